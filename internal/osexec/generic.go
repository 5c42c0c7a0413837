package osexec

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"motorcortex/internal/intent"
	"motorcortex/internal/sysopen"
)

const (
	waitRequestTimeout = 5 * time.Second
	minPollInterval    = 50 * time.Millisecond
)

// xdotoolKeys maps canonical key names to X keysyms.
var xdotoolKeys = map[string]string{
	"command":   "super",
	"control":   "ctrl",
	"alt":       "alt",
	"shift":     "shift",
	"enter":     "Return",
	"esc":       "Escape",
	"tab":       "Tab",
	"space":     "space",
	"backspace": "BackSpace",
	"delete":    "Delete",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
}

var xdotoolButtons = map[string]string{
	"left":   "1",
	"middle": "2",
	"right":  "3",
}

// genericBackend covers every client OS with portable tools: sysopen for
// URLs, per-OS shell openers for apps and files, xdotool for synthetic
// input on X11, AppleScript and SendKeys equivalents when it stands in for
// a native backend, and plain HTTP for wait_for_url.
type genericBackend struct {
	clientOS   string
	runner     Runner
	opener     *sysopen.Opener
	httpClient *http.Client
	sleep      func(time.Duration)
}

func newGeneric(clientOS string, runner Runner, opener *sysopen.Opener) *genericBackend {
	return &genericBackend{
		clientOS:   clientOS,
		runner:     runner,
		opener:     opener,
		httpClient: &http.Client{Timeout: waitRequestTimeout},
		sleep:      time.Sleep,
	}
}

func (b *genericBackend) Name() string { return "generic" }

func (b *genericBackend) Supports(intentName string) bool {
	switch intentName {
	case intent.IntentOpenURL, intent.IntentOpenApp, intent.IntentOpenFile,
		intent.IntentWaitForURL, intent.IntentKeyCombo, intent.IntentTypeText,
		intent.IntentScroll:
		return true
	case intent.IntentMouseMove, intent.IntentClick:
		// Pointer synthesis needs xdotool, which only the X11 path has.
		return b.clientOS != "darwin" && b.clientOS != "windows"
	}
	return false
}

func (b *genericBackend) ExecuteStep(ctx context.Context, step intent.Step) intent.ExecutionResult {
	start := time.Now()

	switch step.Intent {
	case intent.IntentOpenURL:
		if err := b.opener.Open(ctx, step.URL); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
		return okResult(step.Intent, start)

	case intent.IntentOpenApp:
		return b.open(ctx, step, step.App, []string{"open", "-a", step.App}, start)

	case intent.IntentOpenFile:
		return b.open(ctx, step, step.Path, []string{"open", "--", step.Path}, start)

	case intent.IntentWaitForURL:
		return b.waitForURL(ctx, step, start)

	case intent.IntentKeyCombo:
		return b.keyCombo(ctx, step, start)

	case intent.IntentTypeText:
		return b.typeText(ctx, step, start)

	case intent.IntentScroll:
		return b.scroll(ctx, step, start)

	case intent.IntentMouseMove:
		return b.mouseMove(ctx, step, start)

	case intent.IntentClick:
		return b.click(ctx, step, start)

	case intent.IntentFindUI, intent.IntentInvokeUI, intent.IntentWaitForWindow:
		return unsupportedResult(step.Intent, "UI automation not implemented on the generic backend", start)
	}

	return unsupportedResult(step.Intent, "unsupported intent", start)
}

// open launches a non-URL target with the platform opener. darwinArgs is
// the command used when the client OS is darwin; windows shell-executes and
// everything else goes through xdg-open.
func (b *genericBackend) open(ctx context.Context, step intent.Step, target string, darwinArgs []string, start time.Time) intent.ExecutionResult {
	var err error
	switch b.clientOS {
	case "darwin":
		err = b.runner.Run(ctx, darwinArgs[0], darwinArgs[1:]...)
	case "windows":
		err = b.runner.Run(ctx, "cmd", "/c", "start", "", target)
	default:
		err = b.runner.Run(ctx, "xdg-open", target)
	}
	if err != nil {
		return failedResult(step.Intent, err.Error(), start)
	}
	return okResult(step.Intent, start)
}

// waitForURL polls the URL with GET until a 2xx/3xx lands or the timeout
// elapses. The step reports ok either way; details say whether the URL was
// reached, since the step exists to pace the sequence rather than gate it.
func (b *genericBackend) waitForURL(ctx context.Context, step intent.Step, start time.Time) intent.ExecutionResult {
	timeout := time.Duration(step.TimeoutSecs * float64(time.Second))
	if timeout < 0 {
		timeout = 0
	}
	interval := time.Duration(step.IntervalSecs * float64(time.Second))
	if interval < minPollInterval {
		interval = minPollInterval
	}

	reached := false
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.probe(ctx, step.URL) {
			reached = true
			break
		}
		if ctx.Err() != nil {
			break
		}
		b.sleep(interval)
	}

	return okResultDetails(step.Intent, map[string]any{"url": step.URL, "reached": reached}, start)
}

func (b *genericBackend) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

func (b *genericBackend) keyCombo(ctx context.Context, step intent.Step, start time.Time) intent.ExecutionResult {
	switch b.clientOS {
	case "darwin":
		script, ok := macKeyComboScript(step.Keys)
		if !ok {
			return okResult(step.Intent, start)
		}
		if err := b.runner.Run(ctx, "osascript", "-e", script); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
	case "windows":
		sequence := sendKeysCombo(step.Keys)
		if sequence == "" {
			return okResult(step.Intent, start)
		}
		if err := runSendKeys(ctx, b.runner, sequence); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
	default:
		if err := b.runner.Run(ctx, "xdotool", "key", xdotoolCombo(step.Keys)); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
	}
	return okResult(step.Intent, start)
}

func (b *genericBackend) typeText(ctx context.Context, step intent.Step, start time.Time) intent.ExecutionResult {
	var err error
	switch b.clientOS {
	case "darwin":
		err = b.runner.Run(ctx, "osascript", "-e", macTypeTextScript(step.Text))
	case "windows":
		err = runSendKeys(ctx, b.runner, sendKeysEscape(step.Text))
	default:
		err = b.runner.Run(ctx, "xdotool", "type", "--delay", "20", step.Text)
	}
	if err != nil {
		return failedResult(step.Intent, err.Error(), start)
	}
	return okResult(step.Intent, start)
}

func (b *genericBackend) scroll(ctx context.Context, step intent.Step, start time.Time) intent.ExecutionResult {
	var err error
	switch b.clientOS {
	case "darwin":
		err = b.runner.Run(ctx, "osascript", "-e", macScrollScript(step.Direction, step.Amount))
	case "windows":
		err = runSendKeys(ctx, b.runner, sendKeysScroll(step.Direction, step.Amount))
	default:
		// Wheel buttons: 4 scrolls content up, 5 scrolls it down.
		button := "5"
		if step.Direction == "up" {
			button = "4"
		}
		err = b.runner.Run(ctx, "xdotool", "click", "--repeat", strconv.Itoa(max(1, step.Amount)), button)
	}
	if err != nil {
		return failedResult(step.Intent, err.Error(), start)
	}
	return okResult(step.Intent, start)
}

func (b *genericBackend) mouseMove(ctx context.Context, step intent.Step, start time.Time) intent.ExecutionResult {
	if b.clientOS == "darwin" || b.clientOS == "windows" {
		return unsupportedResult(step.Intent, fmt.Sprintf("no synthetic pointer input on %s", b.clientOS), start)
	}
	if step.X == nil || step.Y == nil {
		return failedResult(step.Intent, "mouse_move requires coordinates", start)
	}
	if err := b.runner.Run(ctx, "xdotool", "mousemove", strconv.Itoa(*step.X), strconv.Itoa(*step.Y)); err != nil {
		return failedResult(step.Intent, err.Error(), start)
	}
	return okResult(step.Intent, start)
}

func (b *genericBackend) click(ctx context.Context, step intent.Step, start time.Time) intent.ExecutionResult {
	if b.clientOS == "darwin" || b.clientOS == "windows" {
		return unsupportedResult(step.Intent, fmt.Sprintf("no synthetic pointer input on %s", b.clientOS), start)
	}
	if step.X != nil && step.Y != nil {
		if err := b.runner.Run(ctx, "xdotool", "mousemove", strconv.Itoa(*step.X), strconv.Itoa(*step.Y)); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
	}
	button := xdotoolButtons[step.Button]
	if button == "" {
		button = "1"
	}
	if err := b.runner.Run(ctx, "xdotool", "click", "--repeat", strconv.Itoa(max(1, step.Clicks)), button); err != nil {
		return failedResult(step.Intent, err.Error(), start)
	}
	return okResult(step.Intent, start)
}

// xdotoolCombo joins canonical key names into an xdotool chord like
// "ctrl+shift+z". Unknown names pass through unchanged.
func xdotoolCombo(keys []string) string {
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if sym, known := xdotoolKeys[key]; known {
			parts = append(parts, sym)
			continue
		}
		parts = append(parts, key)
	}
	return strings.Join(parts, "+")
}
