package osexec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"motorcortex/internal/intent"
	"motorcortex/internal/sysopen"
)

// macModifiers maps canonical modifier names to the System Events "using"
// clause entries.
var macModifiers = map[string]string{
	"command": "command down",
	"control": "control down",
	"alt":     "option down",
	"shift":   "shift down",
}

// macKeyCodes covers keys that "keystroke" cannot express as a literal
// character. Codes are the macOS virtual key codes for a US layout.
var macKeyCodes = map[string]int{
	"enter":     36,
	"tab":       48,
	"space":     49,
	"backspace": 51,
	"esc":       53,
	"delete":    117,
	"left":      123,
	"right":     124,
	"down":      125,
	"up":        126,
}

const (
	macPageUpCode   = 116
	macPageDownCode = 121
)

type macosBackend struct {
	runner Runner
	opener *sysopen.Opener
}

func newMacOS(runner Runner, opener *sysopen.Opener) *macosBackend {
	return &macosBackend{runner: runner, opener: opener}
}

func (b *macosBackend) Name() string { return "macos" }

func (b *macosBackend) Supports(intentName string) bool {
	switch intentName {
	case intent.IntentOpenURL, intent.IntentOpenApp, intent.IntentOpenFile,
		intent.IntentKeyCombo, intent.IntentTypeText:
		return true
	}
	return false
}

func (b *macosBackend) ExecuteStep(ctx context.Context, step intent.Step) intent.ExecutionResult {
	start := time.Now()

	switch step.Intent {
	case intent.IntentOpenURL:
		if err := b.opener.Open(ctx, step.URL); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
		return okResult(step.Intent, start)

	case intent.IntentOpenApp:
		if err := b.runner.Run(ctx, "open", "-a", step.App); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
		return okResult(step.Intent, start)

	case intent.IntentOpenFile:
		if err := b.runner.Run(ctx, "open", "--", step.Path); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
		return okResult(step.Intent, start)

	case intent.IntentKeyCombo:
		script, ok := macKeyComboScript(step.Keys)
		if !ok {
			// Modifier-only combos press nothing.
			return okResult(step.Intent, start)
		}
		if err := b.runner.Run(ctx, "osascript", "-e", script); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
		return okResult(step.Intent, start)

	case intent.IntentTypeText:
		if err := b.runner.Run(ctx, "osascript", "-e", macTypeTextScript(step.Text)); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
		return okResult(step.Intent, start)

	case intent.IntentWaitForURL:
		return unsupportedResult(step.Intent, "wait_for_url is polled by the generic backend", start)

	case intent.IntentFindUI, intent.IntentInvokeUI, intent.IntentWaitForWindow:
		return unsupportedResult(step.Intent, "UI automation not implemented on macos", start)
	}

	return unsupportedResult(step.Intent, "unsupported intent", start)
}

// macKeyComboScript builds the System Events keystroke line for a combo.
// Modifiers collect into the "using" clause; the last non-modifier token is
// the key pressed. Combos with no non-modifier key return ok=false.
func macKeyComboScript(keys []string) (string, bool) {
	mods := make([]string, 0, len(keys))
	press := ""
	for _, key := range keys {
		if mod, isMod := macModifiers[key]; isMod {
			mods = append(mods, mod)
			continue
		}
		press = key
	}
	if press == "" {
		return "", false
	}

	var action string
	if code, special := macKeyCodes[press]; special {
		action = fmt.Sprintf("key code %d", code)
	} else {
		action = "keystroke " + appleScriptQuote(press)
	}
	if len(mods) > 0 {
		action += fmt.Sprintf(" using {%s}", strings.Join(mods, ", "))
	}
	return `tell application "System Events" to ` + action, true
}

func macTypeTextScript(text string) string {
	return `tell application "System Events" to keystroke ` + appleScriptQuote(text)
}

// macScrollScript pages the frontmost window up or down. System Events has
// no wheel event, so scrolling maps to page-up/page-down key codes.
func macScrollScript(direction string, amount int) string {
	code := macPageDownCode
	if direction == "up" {
		code = macPageUpCode
	}
	if amount < 1 {
		amount = 1
	}
	return fmt.Sprintf("tell application \"System Events\"\nrepeat %d times\nkey code %d\nend repeat\nend tell", amount, code)
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
