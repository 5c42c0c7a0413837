package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"motorcortex/internal/engine"
	"motorcortex/internal/intent"
)

func TestJoinArgs(t *testing.T) {
	got := joinArgs([]string{"open", "youtube", "and", "search"})
	if got != "open youtube and search" {
		t.Fatalf("expected 'open youtube and search', got '%s'", got)
	}
	if joinArgs(nil) != "" {
		t.Fatalf("expected empty string for no args")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	origConfig, origData, origOS := configPath, dataDir, clientOS
	defer func() { configPath, dataDir, clientOS = origConfig, origData, origOS }()

	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	dataDir = "/tmp/motor-test-data"
	clientOS = "linux"

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.DataDir != "/tmp/motor-test-data" {
		t.Errorf("expected data dir override, got %s", cfg.DataDir)
	}
	if cfg.ClientOS != "linux" {
		t.Errorf("expected client OS override, got %s", cfg.ClientOS)
	}
}

func TestDescribeStep(t *testing.T) {
	cases := []struct {
		step intent.Step
		want string
	}{
		{intent.Step{Intent: intent.IntentOpenURL, URL: "https://www.youtube.com"}, "open_url https://www.youtube.com"},
		{intent.Step{Intent: intent.IntentKeyCombo, Keys: []string{"ctrl", "c"}}, "key_combo ctrl+c"},
		{intent.Step{Intent: intent.IntentTypeText, Text: "hello"}, `type_text "hello"`},
		{intent.Step{Intent: intent.IntentScroll, Direction: "down", Amount: 3}, "scroll down 3"},
		{intent.Step{Intent: intent.IntentWebSendMessage, Contact: "Alice", Message: "hi"}, `web_send_message to Alice: "hi"`},
		{intent.Step{Intent: intent.IntentFindUI}, "find_ui"},
	}
	for _, tc := range cases {
		if got := describeStep(tc.step); got != tc.want {
			t.Errorf("describeStep(%s): expected %q, got %q", tc.step.Intent, tc.want, got)
		}
	}
}

func TestStepSummaryPrefersResolvedURL(t *testing.T) {
	step := intent.Step{
		Intent:      intent.IntentOpenURL,
		URL:         "youtube",
		ResolvedURL: "https://www.youtube.com",
	}
	if got := stepSummary(step); got != "https://www.youtube.com" {
		t.Fatalf("expected resolved URL, got %q", got)
	}
}

func TestFormatPlanListsRoutedSteps(t *testing.T) {
	steps := []intent.Step{
		{Intent: intent.IntentOpenURL, URL: "https://www.youtube.com"},
	}
	plan := formatPlan("open youtube", steps, nil)

	if !strings.Contains(plan, `# Plan for "open youtube"`) {
		t.Errorf("missing title: %s", plan)
	}
	if !strings.Contains(plan, "1. `open_url` https://www.youtube.com") {
		t.Errorf("missing step line: %s", plan)
	}
	if !strings.Contains(plan, "Runs immediately") {
		t.Errorf("expected no confirmation for a plain open: %s", plan)
	}
	if strings.Contains(plan, "## Subjects") {
		t.Errorf("single subject should not print a subjects section: %s", plan)
	}
}

func TestFormatPlanFlagsConfirmation(t *testing.T) {
	steps := []intent.Step{
		{Intent: intent.IntentWebSendMessage, Contact: "Alice", Message: "hi"},
	}
	plan := formatPlan("message alice hi", steps, nil)
	if !strings.Contains(plan, "Held for confirmation") {
		t.Fatalf("expected confirmation notice: %s", plan)
	}
}

func TestFormatPlanMultipleSubjects(t *testing.T) {
	steps := []intent.Step{
		{Intent: intent.IntentOpenURL, URL: "https://www.youtube.com"},
		{Intent: intent.IntentOpenApp, App: "notepad"},
	}
	groups := []engine.SubjectGroup{
		{SubjectName: "YouTube", SubjectType: "url", Steps: steps[:1], StartIndex: 0},
		{SubjectName: "notepad", SubjectType: "app", Steps: steps[1:], StartIndex: 1},
	}
	plan := formatPlan("open youtube and notepad", steps, groups)

	if !strings.Contains(plan, "## Subjects") {
		t.Fatalf("expected subjects section: %s", plan)
	}
	if !strings.Contains(plan, "**YouTube** (url), 1 step(s) from step 1") {
		t.Errorf("missing first subject line: %s", plan)
	}
	if !strings.Contains(plan, "**notepad** (app), 1 step(s) from step 2") {
		t.Errorf("missing second subject line: %s", plan)
	}
}

func TestPrintResultHuman(t *testing.T) {
	result := engine.Result{
		Status: engine.StatusOK,
		Results: []intent.ExecutionResult{
			{
				Intent:    "open_url",
				Status:    "ok",
				Target:    "https://www.youtube.com",
				ElapsedMS: 812,
				Details:   map[string]any{"fallback_from": "https://youtube.invalid"},
			},
		},
	}

	output := captureOutput(t, func() {
		if err := printResult(result, false); err != nil {
			t.Errorf("printResult failed: %v", err)
		}
	})

	if !strings.Contains(output, "ok") {
		t.Errorf("missing status line: %s", output)
	}
	if !strings.Contains(output, "open_url") || !strings.Contains(output, "(812ms)") {
		t.Errorf("missing step detail: %s", output)
	}
	if !strings.Contains(output, "fallback from https://youtube.invalid") {
		t.Errorf("missing fallback detail: %s", output)
	}
}

func TestPrintResultDenied(t *testing.T) {
	output := captureOutput(t, func() {
		if err := printResult(engine.Result{Status: engine.StatusDenied}, false); err != nil {
			t.Errorf("printResult failed: %v", err)
		}
	})
	if !strings.Contains(output, "denied, nothing was executed") {
		t.Fatalf("expected denial notice, got: %s", output)
	}
}

func TestPrintResultJSON(t *testing.T) {
	result := engine.Result{Status: engine.StatusError, Reason: "no browser", Code: "browser_unavailable"}

	output := captureOutput(t, func() {
		if err := printResult(result, true); err != nil {
			t.Errorf("printResult failed: %v", err)
		}
	})

	var decoded engine.Result
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, output)
	}
	if decoded.Status != engine.StatusError || decoded.Code != "browser_unavailable" {
		t.Fatalf("round-trip mismatch: %+v", decoded)
	}
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}
