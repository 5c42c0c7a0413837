// Package engine implements the command pipeline: the shortcut table, the
// structured-JSON escape hatch, LLM interpretation, validation, the
// sensitive-command confirmation gate, and dispatch through the router.
package engine

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"motorcortex/internal/config"
	"motorcortex/internal/confirm"
	"motorcortex/internal/intent"
	"motorcortex/internal/logging"
	"motorcortex/internal/route"
)

// Run result statuses.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusIgnored = "ignored"
	StatusPending = "pending"
	StatusDenied  = "denied"
	StatusMissing = "missing"
	StatusTimeout = "timeout"
)

// sensitiveRe flags command text that must be confirmed before running.
var sensitiveRe = regexp.MustCompile(`(?i)\b(delete|remove|erase|trash|format|wipe|rm|shutdown|restart|kill|terminate|uninstall)\b`)

// alwaysConfirmIntents require confirmation regardless of phrasing.
var alwaysConfirmIntents = map[string]bool{
	intent.IntentWebSendMessage: true,
}

const confirmReason = "Sensitive command requires confirmation"

// webIntents always reach the interpreter's allowed set; the web executor
// carries them on every platform.
var webIntents = []string{
	intent.IntentOpenURL,
	intent.IntentTypeText,
	intent.IntentKeyCombo,
	intent.IntentClick,
	intent.IntentScroll,
	intent.IntentWebSendMessage,
	intent.IntentWebFillForm,
}

var shortcutWordsRe = regexp.MustCompile(`[^a-z0-9]+`)

// basicShortcutPhrases are the raw phrasings the shortcut table accepts.
// Callers use IsBasicShortcut to skip expensive context reads for them.
var basicShortcutPhrases = map[string]bool{
	"copy":               true,
	"copy selection":     true,
	"copy selected text": true,
	"paste":              true,
	"paste selection":    true,
	"cut":                true,
	"cut selection":      true,
	"undo":               true,
	"redo":               true,
	"select all":         true,
}

// Result is one command's outcome. A single slot keeps the most recent one
// for polling UIs.
type Result struct {
	Status     string                   `json:"status"`
	Reason     string                   `json:"reason,omitempty"`
	ID         string                   `json:"id,omitempty"`
	Code       string                   `json:"code,omitempty"`
	Screenshot string                   `json:"screenshot,omitempty"`
	Results    []intent.ExecutionResult `json:"results,omitempty"`
	Timestamp  float64                  `json:"timestamp"`
}

// Interpreter turns free text into a raw step payload (a list of step
// objects or an object with a "steps" key).
type Interpreter interface {
	Interpret(ctx context.Context, text string, uiCtx *intent.UIContext, supportedIntents []string) (any, error)
}

// StepRunner executes a validated step list.
type StepRunner interface {
	Execute(ctx context.Context, steps []intent.Step) ([]intent.ExecutionResult, error)
}

// Recorder persists command outcomes for later inspection. Optional.
type Recorder interface {
	Record(source, text string, result Result)
}

// Engine owns one command pipeline.
type Engine struct {
	cfg           *config.Config
	interpreter   Interpreter
	runner        StepRunner
	confirmations *confirm.Store
	recorder      Recorder
	osIntents     []string

	mu         sync.Mutex
	lastResult *Result
}

// New builds an engine. osIntents is what the native backends support on
// this machine; it seeds the interpreter's allowed-intent list together
// with the web set.
func New(cfg *config.Config, interpreter Interpreter, runner StepRunner, osIntents []string) *Engine {
	return &Engine{
		cfg:           cfg,
		interpreter:   interpreter,
		runner:        runner,
		confirmations: confirm.NewStore(),
		osIntents:     osIntents,
	}
}

// SetRecorder attaches an outcome recorder.
func (e *Engine) SetRecorder(r Recorder) { e.recorder = r }

// Run interprets free text and executes the resulting steps, subject to
// the confirmation gate.
func (e *Engine) Run(ctx context.Context, source, text string, uiCtx *intent.UIContext) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return e.store(source, text, Result{Status: StatusIgnored, Reason: "empty"})
	}

	start := time.Now()
	payload, err := e.parseText(ctx, trimmed, uiCtx)
	if err != nil {
		logging.EngineError("command parse failed: %v", err)
		return e.store(source, text, Result{Status: StatusError, Reason: err.Error()})
	}
	steps, err := intent.ValidateAll(intent.NormalizeSteps(payload))
	if err != nil {
		logging.EngineError("command steps invalid: %v", err)
		return e.store(source, text, Result{Status: StatusError, Reason: err.Error()})
	}
	logging.Engine("parsed %d steps in %d ms", len(steps), time.Since(start).Milliseconds())

	if len(steps) == 0 {
		return e.store(source, text, Result{Status: StatusIgnored, Reason: "no_steps"})
	}

	if RequiresConfirmation(trimmed, steps) {
		pending := e.confirmations.Add(source, text, confirmReason, steps)
		logging.Engine("command pending confirmation: %s", pending.ID)
		return e.store(source, text, Result{Status: StatusPending, ID: pending.ID})
	}

	return e.execute(ctx, source, text, steps)
}

// RunSteps executes a pre-built raw step list (gesture bindings), joining
// the pipeline at validation.
func (e *Engine) RunSteps(ctx context.Context, source, text string, raw []map[string]any) Result {
	if len(raw) == 0 {
		return e.store(source, text, Result{Status: StatusIgnored, Reason: "no_steps"})
	}

	steps, err := intent.ValidateAll(raw)
	if err != nil {
		logging.EngineError("command steps invalid: %v", err)
		return e.store(source, text, Result{Status: StatusError, Reason: err.Error()})
	}

	if RequiresConfirmation(text, steps) {
		pending := e.confirmations.Add(source, text, confirmReason, steps)
		logging.Engine("command pending confirmation: %s", pending.ID)
		return e.store(source, text, Result{Status: StatusPending, ID: pending.ID})
	}

	return e.execute(ctx, source, text, steps)
}

// Approve pops a pending confirmation and executes its stored steps.
func (e *Engine) Approve(ctx context.Context, id string) Result {
	pending, ok := e.confirmations.Pop(id)
	if !ok {
		return e.store("", "", Result{Status: StatusMissing})
	}
	logging.Engine("confirmation %s approved", id)
	return e.execute(ctx, pending.Source, pending.Text, pending.Steps)
}

// Deny pops a pending confirmation without executing it.
func (e *Engine) Deny(id string) Result {
	pending, ok := e.confirmations.Pop(id)
	if !ok {
		return e.store("", "", Result{Status: StatusMissing})
	}
	logging.Engine("confirmation %s denied", id)
	return e.store(pending.Source, pending.Text, Result{Status: StatusDenied})
}

// ListPending returns pending confirmations, oldest first.
func (e *Engine) ListPending() []confirm.Pending {
	return e.confirmations.List()
}

// LastResult returns a copy of the most recent result, or nil before the
// first command.
func (e *Engine) LastResult() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastResult == nil {
		return nil
	}
	out := *e.lastResult
	return &out
}

// StoreResult records an externally produced result (the controller uses
// this for timeouts) as the last result.
func (e *Engine) StoreResult(source, text string, result Result) Result {
	return e.store(source, text, result)
}

// Explain parses text through the same shortcut/JSON/interpreter ladder
// without executing anything, returning the validated steps and their
// subject grouping.
func (e *Engine) Explain(ctx context.Context, text string, uiCtx *intent.UIContext) ([]intent.Step, []SubjectGroup, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil, nil
	}
	payload, err := e.parseText(ctx, trimmed, uiCtx)
	if err != nil {
		return nil, nil, err
	}
	steps, err := intent.ValidateAll(intent.NormalizeSteps(payload))
	if err != nil {
		return nil, nil, err
	}
	return steps, ExtractSubjects(trimmed, steps), nil
}

func (e *Engine) execute(ctx context.Context, source, text string, steps []intent.Step) Result {
	results, err := e.runner.Execute(ctx, steps)
	if err != nil {
		logging.EngineError("execution failed: %v", err)
		result := Result{Status: StatusError, Reason: err.Error()}
		if execErr, ok := route.IsExecutionError(err); ok {
			result.Reason = execErr.Message
			result.Code = execErr.Code
			result.Screenshot = execErr.ScreenshotPath
		}
		return e.store(source, text, result)
	}
	return e.store(source, text, Result{Status: StatusOK, Results: results})
}

func (e *Engine) store(source, text string, result Result) Result {
	result.Timestamp = float64(time.Now().UnixNano()) / 1e9

	e.mu.Lock()
	e.lastResult = &result
	e.mu.Unlock()

	if e.recorder != nil {
		e.recorder.Record(source, text, result)
	}
	return result
}

// parseText resolves text to a raw step payload: shortcut table first,
// then the JSON escape hatch, then the interpreter.
func (e *Engine) parseText(ctx context.Context, text string, uiCtx *intent.UIContext) (any, error) {
	if keys, ok := e.shortcutKeys(text); ok {
		logging.Engine("shortcut match: %q -> %v", text, keys)
		return []map[string]any{{"intent": intent.IntentKeyCombo, "keys": keys}}, nil
	}

	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		var payload any
		if err := json.Unmarshal([]byte(text), &payload); err == nil {
			return payload, nil
		}
		// Not valid JSON after all; let the interpreter have it.
	}

	logging.Engine("interpreting: %q", text)
	return e.interpreter.Interpret(ctx, text, uiCtx, e.supportedIntents())
}

// shortcutKeys maps trivial edit phrases straight onto key chords. The
// modifier follows the client OS being controlled, not the host.
func (e *Engine) shortcutKeys(text string) ([]string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = shortcutWordsRe.ReplaceAllString(normalized, " ")
	normalized = strings.Join(strings.Fields(normalized), " ")
	if normalized == "" {
		return nil, false
	}

	modifier := "control"
	redo := []string{"control", "y"}
	if e.cfg.ResolvedClientOS() == "darwin" {
		modifier = "command"
		redo = []string{"command", "shift", "z"}
	}

	shortcuts := map[string][]string{
		"copy":               {modifier, "c"},
		"copy selection":     {modifier, "c"},
		"copy selected text": {modifier, "c"},
		"paste":              {modifier, "v"},
		"paste selection":    {modifier, "v"},
		"cut":                {modifier, "x"},
		"cut selection":      {modifier, "x"},
		"undo":               {modifier, "z"},
		"redo":               redo,
		"select all":         {modifier, "a"},
	}
	keys, ok := shortcuts[normalized]
	return keys, ok
}

// IsBasicShortcut reports whether text is one of the canned edit phrases.
// The controller skips selection reads for these.
func IsBasicShortcut(text string) bool {
	return basicShortcutPhrases[strings.ToLower(strings.TrimSpace(text))]
}

// RequiresConfirmation reports whether a command must pass the
// confirmation gate before executing: sensitive phrasing, an
// always-confirm intent, or sensitive typed text.
func RequiresConfirmation(text string, steps []intent.Step) bool {
	if sensitiveRe.MatchString(text) {
		return true
	}
	for _, step := range steps {
		if alwaysConfirmIntents[step.Intent] {
			return true
		}
		if step.Intent == intent.IntentTypeText && sensitiveRe.MatchString(step.Text) {
			return true
		}
	}
	return false
}

// supportedIntents is the allowed set advertised to the interpreter: what
// the native backends can run here, plus the browser-side intents.
func (e *Engine) supportedIntents() []string {
	seen := make(map[string]bool, len(e.osIntents)+len(webIntents))
	out := make([]string, 0, len(e.osIntents)+len(webIntents))
	for _, name := range e.osIntents {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, name := range webIntents {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
