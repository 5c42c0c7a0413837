package osexec

import (
	"context"
	"strings"
	"testing"

	"motorcortex/internal/config"
	"motorcortex/internal/intent"
)

// recordingRunner captures every command instead of spawning it.
type recordingRunner struct {
	calls  [][]string
	runErr error
	output string
	outErr error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) error {
	r.calls = append(r.calls, append([]string{name}, args...))
	return r.runErr
}

func (r *recordingRunner) Output(_ context.Context, name string, args ...string) (string, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	return r.output, r.outErr
}

func (r *recordingRunner) call(t *testing.T, i int) []string {
	t.Helper()
	if i >= len(r.calls) {
		t.Fatalf("expected at least %d calls, got %d: %v", i+1, len(r.calls), r.calls)
	}
	return r.calls[i]
}

func dispatcherFor(t *testing.T, clientOS string) (*Dispatcher, *recordingRunner) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ClientOS = clientOS
	runner := &recordingRunner{}
	return NewDispatcherWithRunner(cfg, runner), runner
}

func TestDispatcherPrimaryHandlesStep(t *testing.T) {
	d, runner := dispatcherFor(t, "darwin")

	res := d.ExecuteStep(context.Background(), intent.Step{Intent: intent.IntentOpenApp, App: "Safari"})

	if res.Status != intent.StatusOK {
		t.Fatalf("status = %q, want ok (details: %v)", res.Status, res.Details)
	}
	if _, annotated := res.Details["fallback_from"]; annotated {
		t.Fatalf("primary result should not carry fallback_from: %v", res.Details)
	}
	got := runner.call(t, 0)
	want := []string{"open", "-a", "Safari"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("command = %v, want %v", got, want)
	}
}

func TestDispatcherFallsBackWhenPrimaryDeclines(t *testing.T) {
	d, runner := dispatcherFor(t, "darwin")

	res := d.ExecuteStep(context.Background(), intent.Step{
		Intent:    intent.IntentScroll,
		Direction: "down",
		Amount:    2,
	})

	if res.Status != intent.StatusOK {
		t.Fatalf("status = %q, want ok (details: %v)", res.Status, res.Details)
	}
	if res.Details["fallback_from"] != "macos" {
		t.Fatalf("fallback_from = %v, want macos", res.Details["fallback_from"])
	}
	got := runner.call(t, 0)
	if got[0] != "osascript" {
		t.Fatalf("fallback command = %v, want osascript scroll script", got)
	}
	if !strings.Contains(got[2], "repeat 2 times") || !strings.Contains(got[2], "key code 121") {
		t.Fatalf("scroll script = %q", got[2])
	}
}

func TestDispatcherNoPrimaryOnOtherOS(t *testing.T) {
	d, runner := dispatcherFor(t, "linux")

	res := d.ExecuteStep(context.Background(), intent.Step{
		Intent:    intent.IntentScroll,
		Direction: "up",
		Amount:    1,
	})

	if res.Status != intent.StatusOK {
		t.Fatalf("status = %q, want ok (details: %v)", res.Status, res.Details)
	}
	if _, annotated := res.Details["fallback_from"]; annotated {
		t.Fatalf("direct generic result should not carry fallback_from: %v", res.Details)
	}
	got := runner.call(t, 0)
	want := []string{"xdotool", "click", "--repeat", "1", "4"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("command = %v, want %v", got, want)
	}
}

func TestDispatcherAnnotatesUnsupportedFallback(t *testing.T) {
	d, _ := dispatcherFor(t, "darwin")

	res := d.ExecuteStep(context.Background(), intent.Step{Intent: intent.IntentFindUI})

	if res.Status != intent.StatusUnsupported {
		t.Fatalf("status = %q, want unsupported", res.Status)
	}
	if res.Details["fallback_from"] != "macos" {
		t.Fatalf("fallback_from = %v, want macos", res.Details["fallback_from"])
	}
	if res.Details["reason"] == "" {
		t.Fatal("expected a reason for the unsupported result")
	}
}

func TestDispatcherSupportedIntents(t *testing.T) {
	tests := []struct {
		clientOS string
		want     []string
		absent   []string
	}{
		{
			clientOS: "darwin",
			want:     []string{"key_combo", "open_app", "open_file", "open_url", "scroll", "type_text", "wait_for_url"},
			absent:   []string{"click", "mouse_move", "find_ui", "invoke_ui", "wait_for_window"},
		},
		{
			clientOS: "linux",
			want:     []string{"click", "key_combo", "mouse_move", "open_app", "open_file", "open_url", "scroll", "type_text", "wait_for_url"},
			absent:   []string{"find_ui", "invoke_ui", "wait_for_window"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.clientOS, func(t *testing.T) {
			d, _ := dispatcherFor(t, tt.clientOS)
			got := d.SupportedIntents()

			supported := make(map[string]bool, len(got))
			for _, name := range got {
				supported[name] = true
			}
			for _, name := range tt.want {
				if !supported[name] {
					t.Errorf("missing %q in %v", name, got)
				}
			}
			for _, name := range tt.absent {
				if supported[name] {
					t.Errorf("unexpected %q in %v", name, got)
				}
			}
		})
	}
}
