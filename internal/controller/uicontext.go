package controller

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"time"

	"motorcortex/internal/config"
	"motorcortex/internal/intent"
	"motorcortex/internal/logging"
	"motorcortex/internal/osexec"
)

// ContextProvider supplies the UI snapshot handed to the interpreter.
type ContextProvider interface {
	Snapshot(ctx context.Context, readSelection bool) *intent.UIContext
}

// probeTimeout bounds each shell probe so a hung helper cannot eat into
// the command budget.
const probeTimeout = time.Second

const darwinFrontmostScript = `tell application "System Events" to get name of first application process whose frontmost is true`

const windowsForegroundScript = `Add-Type -Namespace Native -Name Win32 -MemberDefinition @'
[DllImport("user32.dll")] public static extern System.IntPtr GetForegroundWindow();
[DllImport("user32.dll")] public static extern int GetWindowText(System.IntPtr hWnd, System.Text.StringBuilder text, int count);
'@
$handle = [Native.Win32]::GetForegroundWindow()
$buffer = New-Object System.Text.StringBuilder 512
[void][Native.Win32]::GetWindowText($handle, $buffer, 512)
$buffer.ToString()`

// Prober implements ContextProvider with small shell probes. Everything
// beyond the platform identifiers is best-effort: a probe that fails or
// times out leaves its field empty instead of failing the command. The
// snapshot never synthesizes input events, so the selection is approximated
// by the current clipboard contents.
type Prober struct {
	hostOS   string
	clientOS string
	runner   osexec.Runner
}

// NewProber builds the default prober for this host.
func NewProber(cfg *config.Config) *Prober {
	return &Prober{
		hostOS:   runtime.GOOS,
		clientOS: cfg.ResolvedClientOS(),
		runner:   osexec.SystemRunner(),
	}
}

// NewProberWithRunner is NewProber with an explicit host OS and runner.
func NewProberWithRunner(hostOS, clientOS string, runner osexec.Runner) *Prober {
	return &Prober{hostOS: hostOS, clientOS: clientOS, runner: runner}
}

// Snapshot gathers the current UI context. readSelection=false skips the
// clipboard probe; the worker does that for trivial shortcut phrases.
func (p *Prober) Snapshot(ctx context.Context, readSelection bool) *intent.UIContext {
	uiCtx := &intent.UIContext{
		Platform: p.hostOS,
		ClientOS: p.clientOS,
	}

	uiCtx.ActiveWindow = p.activeWindow(ctx)
	uiCtx.MousePosition = p.mousePosition(ctx)

	if readSelection {
		if text := p.clipboardText(ctx); text != "" {
			uiCtx.SelectionText = text
			uiCtx.SelectionLength = len(text)
		}
	}

	logging.ContextDebug("snapshot: window=%q selection=%d chars", uiCtx.ActiveWindow, uiCtx.SelectionLength)
	return uiCtx
}

func (p *Prober) activeWindow(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var out string
	var err error
	switch p.hostOS {
	case "darwin":
		out, err = p.runner.Output(ctx, "osascript", "-e", darwinFrontmostScript)
	case "windows":
		out, err = p.runner.Output(ctx, "powershell", "-NoProfile", "-Command", windowsForegroundScript)
	default:
		out, err = p.runner.Output(ctx, "xdotool", "getactivewindow", "getwindowname")
	}
	if err != nil {
		logging.ContextDebug("active window probe: %v", err)
		return ""
	}
	return strings.TrimSpace(out)
}

// mousePosition is only probed where a stock tool reports it.
func (p *Prober) mousePosition(ctx context.Context) *intent.MousePosition {
	if p.hostOS == "darwin" || p.hostOS == "windows" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := p.runner.Output(ctx, "xdotool", "getmouselocation")
	if err != nil {
		logging.ContextDebug("mouse probe: %v", err)
		return nil
	}
	return parseMouseLocation(out)
}

// parseMouseLocation reads xdotool's "x:662 y:474 screen:0 window:..." form.
func parseMouseLocation(out string) *intent.MousePosition {
	pos := &intent.MousePosition{X: -1, Y: -1}
	for _, field := range strings.Fields(out) {
		key, value, found := strings.Cut(field, ":")
		if !found {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		switch key {
		case "x":
			pos.X = n
		case "y":
			pos.Y = n
		}
	}
	if pos.X < 0 || pos.Y < 0 {
		return nil
	}
	return pos
}

func (p *Prober) clipboardText(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var out string
	var err error
	switch p.hostOS {
	case "darwin":
		out, err = p.runner.Output(ctx, "pbpaste")
	case "windows":
		out, err = p.runner.Output(ctx, "powershell", "-NoProfile", "-Command", "Get-Clipboard")
	default:
		out, err = p.runner.Output(ctx, "xclip", "-selection", "clipboard", "-o")
	}
	if err != nil {
		logging.ContextDebug("clipboard probe: %v", err)
		return ""
	}
	return strings.TrimSpace(out)
}
