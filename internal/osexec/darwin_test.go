package osexec

import (
	"context"
	"errors"
	"strings"
	"testing"

	"motorcortex/internal/intent"
	"motorcortex/internal/sysopen"
)

func macosFor(runner *recordingRunner) *macosBackend {
	return newMacOS(runner, sysopen.NewWithRunner("darwin", runner))
}

func TestMacOSOpenURL(t *testing.T) {
	runner := &recordingRunner{}
	b := macosFor(runner)

	res := b.ExecuteStep(context.Background(), intent.Step{Intent: intent.IntentOpenURL, URL: "https://example.com"})

	if res.Status != intent.StatusOK {
		t.Fatalf("status = %q, want ok (details: %v)", res.Status, res.Details)
	}
	got := runner.call(t, 0)
	want := "open -- https://example.com"
	if strings.Join(got, " ") != want {
		t.Fatalf("command = %v, want %q", got, want)
	}
}

func TestMacOSOpenURLRejectsUnsafe(t *testing.T) {
	runner := &recordingRunner{}
	b := macosFor(runner)

	res := b.ExecuteStep(context.Background(), intent.Step{Intent: intent.IntentOpenURL, URL: "http://127.0.0.1/admin"})

	if res.Status != intent.StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	reason, _ := res.Details["reason"].(string)
	if !strings.Contains(reason, "unsafe url") {
		t.Fatalf("reason = %q, want unsafe url", reason)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("no command should run for a rejected URL, got %v", runner.calls)
	}
}

func TestMacOSOpenFile(t *testing.T) {
	runner := &recordingRunner{}
	b := macosFor(runner)

	res := b.ExecuteStep(context.Background(), intent.Step{Intent: intent.IntentOpenFile, Path: "/tmp/report.pdf"})

	if res.Status != intent.StatusOK {
		t.Fatalf("status = %q, want ok", res.Status)
	}
	got := runner.call(t, 0)
	if strings.Join(got, " ") != "open -- /tmp/report.pdf" {
		t.Fatalf("command = %v", got)
	}
}

func TestMacKeyComboScript(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want string
		ok   bool
	}{
		{
			name: "modifier chord",
			keys: []string{"command", "shift", "k"},
			want: `tell application "System Events" to keystroke "k" using {command down, shift down}`,
			ok:   true,
		},
		{
			name: "single modifier",
			keys: []string{"command", "l"},
			want: `tell application "System Events" to keystroke "l" using {command down}`,
			ok:   true,
		},
		{
			name: "bare key",
			keys: []string{"k"},
			want: `tell application "System Events" to keystroke "k"`,
			ok:   true,
		},
		{
			name: "special key uses key code",
			keys: []string{"command", "enter"},
			want: `tell application "System Events" to key code 36 using {command down}`,
			ok:   true,
		},
		{
			name: "arrow key",
			keys: []string{"down"},
			want: `tell application "System Events" to key code 125`,
			ok:   true,
		},
		{
			name: "modifiers only press nothing",
			keys: []string{"command", "shift"},
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := macKeyComboScript(tt.keys)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Fatalf("script = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMacOSKeyComboRunsOsascript(t *testing.T) {
	runner := &recordingRunner{}
	b := macosFor(runner)

	res := b.ExecuteStep(context.Background(), intent.Step{
		Intent: intent.IntentKeyCombo,
		Keys:   []string{"command", "t"},
	})

	if res.Status != intent.StatusOK {
		t.Fatalf("status = %q, want ok", res.Status)
	}
	got := runner.call(t, 0)
	if got[0] != "osascript" || got[1] != "-e" {
		t.Fatalf("command = %v", got)
	}
	if !strings.Contains(got[2], `keystroke "t" using {command down}`) {
		t.Fatalf("script = %q", got[2])
	}
}

func TestMacOSModifierOnlyComboIsNoop(t *testing.T) {
	runner := &recordingRunner{}
	b := macosFor(runner)

	res := b.ExecuteStep(context.Background(), intent.Step{
		Intent: intent.IntentKeyCombo,
		Keys:   []string{"command"},
	})

	if res.Status != intent.StatusOK {
		t.Fatalf("status = %q, want ok", res.Status)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("no command should run, got %v", runner.calls)
	}
}

func TestMacOSTypeTextEscapes(t *testing.T) {
	runner := &recordingRunner{}
	b := macosFor(runner)

	res := b.ExecuteStep(context.Background(), intent.Step{
		Intent: intent.IntentTypeText,
		Text:   `say "hi" \ bye`,
	})

	if res.Status != intent.StatusOK {
		t.Fatalf("status = %q, want ok", res.Status)
	}
	got := runner.call(t, 0)
	want := `tell application "System Events" to keystroke "say \"hi\" \\ bye"`
	if got[2] != want {
		t.Fatalf("script = %q, want %q", got[2], want)
	}
}

func TestMacOSUnsupportedIntents(t *testing.T) {
	tests := []struct {
		step   intent.Step
		reason string
	}{
		{intent.Step{Intent: intent.IntentScroll, Direction: "down", Amount: 1}, "unsupported intent"},
		{intent.Step{Intent: intent.IntentMouseMove}, "unsupported intent"},
		{intent.Step{Intent: intent.IntentClick}, "unsupported intent"},
		{intent.Step{Intent: intent.IntentWaitForURL, URL: "https://example.com"}, "wait_for_url is polled by the generic backend"},
		{intent.Step{Intent: intent.IntentFindUI}, "UI automation not implemented on macos"},
		{intent.Step{Intent: intent.IntentWaitForWindow, WindowTitle: "Mail"}, "UI automation not implemented on macos"},
	}

	runner := &recordingRunner{}
	b := macosFor(runner)
	for _, tt := range tests {
		t.Run(tt.step.Intent, func(t *testing.T) {
			res := b.ExecuteStep(context.Background(), tt.step)
			if res.Status != intent.StatusUnsupported {
				t.Fatalf("status = %q, want unsupported", res.Status)
			}
			if res.Details["reason"] != tt.reason {
				t.Fatalf("reason = %v, want %q", res.Details["reason"], tt.reason)
			}
		})
	}
	if len(runner.calls) != 0 {
		t.Fatalf("unsupported intents must not spawn commands, got %v", runner.calls)
	}
}

func TestMacOSCommandFailure(t *testing.T) {
	runner := &recordingRunner{runErr: errors.New("open: app not found")}
	b := macosFor(runner)

	res := b.ExecuteStep(context.Background(), intent.Step{Intent: intent.IntentOpenApp, App: "NoSuchApp"})

	if res.Status != intent.StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	reason, _ := res.Details["reason"].(string)
	if !strings.Contains(reason, "app not found") {
		t.Fatalf("reason = %q", reason)
	}
	if res.Target != intent.TargetOS {
		t.Fatalf("target = %q, want os", res.Target)
	}
}
