package osexec

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"motorcortex/internal/intent"
	"motorcortex/internal/resolve"
	"motorcortex/internal/sysopen"
)

// sendKeysModifiers maps canonical modifier names to WScript SendKeys
// prefixes. "command" aliases to Ctrl so macOS-phrased combos still work on
// a Windows client.
var sendKeysModifiers = map[string]string{
	"command": "^",
	"control": "^",
	"alt":     "%",
	"shift":   "+",
}

var sendKeysSpecial = map[string]string{
	"enter":     "{ENTER}",
	"esc":       "{ESC}",
	"tab":       "{TAB}",
	"space":     " ",
	"backspace": "{BACKSPACE}",
	"delete":    "{DELETE}",
	"up":        "{UP}",
	"down":      "{DOWN}",
	"left":      "{LEFT}",
	"right":     "{RIGHT}",
	"home":      "{HOME}",
	"end":       "{END}",
	"pageup":    "{PGUP}",
	"pagedown":  "{PGDN}",
}

var appSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

type windowsBackend struct {
	runner Runner
	opener *sysopen.Opener
}

func newWindows(runner Runner, opener *sysopen.Opener) *windowsBackend {
	return &windowsBackend{runner: runner, opener: opener}
}

func (b *windowsBackend) Name() string { return "windows" }

func (b *windowsBackend) Supports(intentName string) bool {
	switch intentName {
	case intent.IntentOpenURL, intent.IntentOpenApp, intent.IntentOpenFile,
		intent.IntentKeyCombo, intent.IntentTypeText, intent.IntentScroll:
		return true
	}
	return false
}

func (b *windowsBackend) ExecuteStep(ctx context.Context, step intent.Step) intent.ExecutionResult {
	start := time.Now()

	switch step.Intent {
	case intent.IntentOpenURL:
		if err := b.opener.Open(ctx, step.URL); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
		return okResult(step.Intent, start)

	case intent.IntentOpenApp:
		return b.openApp(ctx, step, start)

	case intent.IntentOpenFile:
		if err := b.start(ctx, step.Path); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
		return okResult(step.Intent, start)

	case intent.IntentKeyCombo:
		sequence := sendKeysCombo(step.Keys)
		if sequence == "" {
			return okResult(step.Intent, start)
		}
		if err := b.sendKeys(ctx, sequence); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
		return okResult(step.Intent, start)

	case intent.IntentTypeText:
		if err := b.sendKeys(ctx, sendKeysEscape(step.Text)); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
		return okResult(step.Intent, start)

	case intent.IntentScroll:
		if err := b.sendKeys(ctx, sendKeysScroll(step.Direction, step.Amount)); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
		return okResult(step.Intent, start)

	case intent.IntentFindUI, intent.IntentInvokeUI, intent.IntentWaitForWindow:
		return unsupportedResult(step.Intent, "UI automation not implemented on windows", start)
	}

	return unsupportedResult(step.Intent, "unsupported intent", start)
}

// openApp launches a Start-menu app when the catalog knows it, otherwise
// falls back to the app's likely website.
func (b *windowsBackend) openApp(ctx context.Context, step intent.Step, start time.Time) intent.ExecutionResult {
	appID, err := b.lookupAppID(ctx, step.App)
	if err == nil && appID != "" {
		if err := b.start(ctx, `shell:AppsFolder\`+appID); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
		return okResultDetails(step.Intent, map[string]any{"app_id": appID}, start)
	}

	if url := appURL(step.App); url != "" {
		if err := b.opener.Open(ctx, url); err != nil {
			return failedResult(step.Intent, err.Error(), start)
		}
		return okResultDetails(step.Intent, map[string]any{"opened_url": url}, start)
	}

	return failedResult(step.Intent, fmt.Sprintf("app not found: %s", step.App), start)
}

// lookupAppID asks the Start-menu catalog for the first app whose name
// contains the query, returning its AppID or "".
func (b *windowsBackend) lookupAppID(ctx context.Context, app string) (string, error) {
	query := strings.ReplaceAll(app, "'", "''")
	script := fmt.Sprintf(
		"(Get-StartApps | Where-Object { $_.Name -like '*%s*' } | Select-Object -First 1).AppID",
		query)
	out, err := b.runner.Output(ctx, "powershell", "-NoProfile", "-Command", script)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// start shell-executes a target. The empty string fills the window-title
// slot of the start builtin.
func (b *windowsBackend) start(ctx context.Context, target string) error {
	return b.runner.Run(ctx, "cmd", "/c", "start", "", target)
}

func (b *windowsBackend) sendKeys(ctx context.Context, sequence string) error {
	return runSendKeys(ctx, b.runner, sequence)
}

func runSendKeys(ctx context.Context, runner Runner, sequence string) error {
	script := fmt.Sprintf(
		"$ws = New-Object -ComObject WScript.Shell; $ws.SendKeys('%s')",
		strings.ReplaceAll(sequence, "'", "''"))
	return runner.Run(ctx, "powershell", "-NoProfile", "-Command", script)
}

// appURL maps an app name to a site: known names use the shared domain
// table, single-word names become <slug>.com, multi-word names have no
// guessable site.
func appURL(app string) string {
	name := strings.ToLower(strings.TrimSpace(app))
	if host, known := resolve.CommonDomains[name]; known {
		return "https://" + host
	}
	if strings.Contains(name, " ") {
		return ""
	}
	slug := appSlugRe.ReplaceAllString(name, "")
	if slug == "" {
		return ""
	}
	return "https://" + slug + ".com"
}

// sendKeysCombo renders a key combo in SendKeys notation. Modifiers become
// prefixes; the last non-modifier token is the key pressed. Combos with no
// non-modifier key render empty.
func sendKeysCombo(keys []string) string {
	var prefix strings.Builder
	press := ""
	for _, key := range keys {
		if mod, isMod := sendKeysModifiers[key]; isMod {
			prefix.WriteString(mod)
			continue
		}
		press = key
	}
	if press == "" {
		return ""
	}
	if special, isSpecial := sendKeysSpecial[press]; isSpecial {
		return prefix.String() + special
	}
	return prefix.String() + sendKeysEscape(press)
}

func sendKeysScroll(direction string, amount int) string {
	key := "{PGDN}"
	if direction == "up" {
		key = "{PGUP}"
	}
	if amount < 1 {
		amount = 1
	}
	return strings.Repeat(key, amount)
}

// sendKeysEscape wraps the characters SendKeys treats as operators.
func sendKeysEscape(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '+', '^', '%', '~', '(', ')', '{', '}', '[', ']':
			sb.WriteRune('{')
			sb.WriteRune(r)
			sb.WriteRune('}')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
