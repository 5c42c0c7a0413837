// Package intent defines the command-step schema shared across the engine,
// router, and execution backends. This package exists to break import cycles
// between those layers; types here are foundational data structures with no
// dependencies beyond the standard library.
package intent

import "sort"

// Step intents. The validator rejects anything outside this set.
const (
	IntentOpenURL        = "open_url"
	IntentWaitForURL     = "wait_for_url"
	IntentOpenApp        = "open_app"
	IntentOpenFile       = "open_file"
	IntentKeyCombo       = "key_combo"
	IntentTypeText       = "type_text"
	IntentScroll         = "scroll"
	IntentMouseMove      = "mouse_move"
	IntentClick          = "click"
	IntentWebSendMessage = "web_send_message"
	IntentWebFillForm    = "web_fill_form"
	IntentFindUI         = "find_ui"
	IntentInvokeUI       = "invoke_ui"
	IntentWaitForWindow  = "wait_for_window"
)

// Step targets.
const (
	TargetOS  = "os"
	TargetWeb = "web"
)

// Execution statuses.
const (
	StatusOK          = "ok"
	StatusFailed      = "failed"
	StatusUnsupported = "unsupported"
)

var allowedIntents = map[string]bool{
	IntentOpenURL:        true,
	IntentWaitForURL:     true,
	IntentOpenApp:        true,
	IntentOpenFile:       true,
	IntentKeyCombo:       true,
	IntentTypeText:       true,
	IntentScroll:         true,
	IntentMouseMove:      true,
	IntentClick:          true,
	IntentWebSendMessage: true,
	IntentWebFillForm:    true,
	IntentFindUI:         true,
	IntentInvokeUI:       true,
	IntentWaitForWindow:  true,
}

// SupportedIntents returns the closed intent set in sorted order.
func SupportedIntents() []string {
	out := make([]string, 0, len(allowedIntents))
	for name := range allowedIntents {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsSupported reports whether the intent name is in the closed set.
func IsSupported(name string) bool {
	return allowedIntents[name]
}

// Step is one validated command step. Field names are the wire format; the
// validator fills only the fields its intent defines, so marshalled steps
// stay minimal.
type Step struct {
	Intent string `json:"intent"`
	Target string `json:"target,omitempty"`

	// open_url, wait_for_url
	URL          string  `json:"url,omitempty"`
	TimeoutSecs  float64 `json:"timeout_secs,omitempty"`
	IntervalSecs float64 `json:"interval_secs,omitempty"`

	// open_app, wait_for_window
	App string `json:"app,omitempty"`

	// open_file
	Path string `json:"path,omitempty"`

	// key_combo
	Keys []string `json:"keys,omitempty"`

	// type_text
	Text string `json:"text,omitempty"`

	// scroll
	Direction string `json:"direction,omitempty"`
	Amount    int    `json:"amount,omitempty"`

	// mouse_move, click coordinates
	X *int `json:"x,omitempty"`
	Y *int `json:"y,omitempty"`

	// click
	Button string `json:"button,omitempty"`
	Clicks int    `json:"clicks,omitempty"`

	// web_send_message
	Contact string `json:"contact,omitempty"`
	Message string `json:"message,omitempty"`

	// web_fill_form
	Fields map[string]string `json:"fields,omitempty"`
	Submit bool              `json:"submit,omitempty"`

	// Locator: a CSS selector string for web type_text/click/invoke_ui, or a
	// UI-selector object (map with app/window_title/role/name/contains/
	// automation_id keys) for find_ui and invoke_ui.
	Selector any `json:"selector,omitempty"`

	// invoke_ui
	ElementID string `json:"element_id,omitempty"`

	// wait_for_window
	WindowTitle string `json:"window_title,omitempty"`

	// Resolution annotations carried by bindings and the router.
	ResolvedURL string `json:"resolved_url,omitempty"`
	Precomputed bool   `json:"precomputed,omitempty"`
	DeferOpen   bool   `json:"defer_open,omitempty"`
}

// CSSSelector returns the selector when it is a CSS string, else "".
func (s Step) CSSSelector() string {
	str, _ := s.Selector.(string)
	return str
}

// UIQuery returns the selector when it is a UI-selector object, else nil.
func (s Step) UIQuery() map[string]any {
	q, _ := s.Selector.(map[string]any)
	return q
}

// IsWeb reports whether the step targets the in-browser executor.
func (s Step) IsWeb() bool {
	return s.Target == TargetWeb
}

// ExecutionResult is the per-step outcome reported by every backend.
type ExecutionResult struct {
	Intent    string         `json:"intent"`
	Status    string         `json:"status"`
	Target    string         `json:"target"`
	Details   map[string]any `json:"details,omitempty"`
	ElapsedMS int64          `json:"elapsed_ms"`
}

// MousePosition is a screen coordinate pair.
type MousePosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// UIContext is the snapshot of desktop state gathered before interpreting a
// command. Everything beyond platform identifiers is best-effort.
type UIContext struct {
	Platform        string         `json:"platform"`
	ClientOS        string         `json:"client_os"`
	MousePosition   *MousePosition `json:"mouse_position,omitempty"`
	ActiveWindow    string         `json:"active_window,omitempty"`
	SelectionText   string         `json:"selection_text,omitempty"`
	SelectionLength int            `json:"selection_length"`
}
