package intent

import (
	"fmt"
	"strconv"
	"strings"
)

// KeyAliases maps accepted key spellings to canonical key names.
var KeyAliases = map[string]string{
	"cmd":     "command",
	"command": "command",
	"ctrl":    "control",
	"control": "control",
	"opt":     "alt",
	"option":  "alt",
	"alt":     "alt",
	"shift":   "shift",
	"enter":   "enter",
	"return":  "enter",
	"esc":     "esc",
	"escape":  "esc",
}

// NormalizeSteps returns a normalized list of step objects from a parsed
// payload. The payload may be a bare list of steps or an object with a
// "steps" list; anything else yields an empty slice. Non-object entries are
// skipped.
func NormalizeSteps(payload any) []map[string]any {
	switch v := payload.(type) {
	case []any:
		return filterMaps(v)
	case []map[string]any:
		return v
	case map[string]any:
		if steps, ok := v["steps"].([]any); ok {
			return filterMaps(steps)
		}
	}
	return []map[string]any{}
}

func filterMaps(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// Validate checks one raw step object and returns the canonical Step.
// Unknown fields are dropped; a missing or ill-typed required field is an
// error. Validate is idempotent over its own output.
func Validate(raw map[string]any) (Step, error) {
	name := strings.TrimSpace(stringOf(raw["intent"]))
	if !allowedIntents[name] {
		return Step{}, fmt.Errorf("unsupported intent %q", name)
	}

	step := Step{Intent: name}
	if target := strings.TrimSpace(stringOf(raw["target"])); target != "" {
		step.Target = target
	}

	switch name {
	case IntentOpenURL:
		url := strings.TrimSpace(stringOf(raw["url"]))
		if url == "" {
			return Step{}, fmt.Errorf("open_url requires 'url'")
		}
		step.URL = url
		// Resolution annotations survive re-validation so binding
		// short-circuits keep working.
		if resolved := strings.TrimSpace(stringOf(raw["resolved_url"])); resolved != "" {
			step.ResolvedURL = resolved
		}
		if b, ok := raw["precomputed"].(bool); ok {
			step.Precomputed = b
		}
		if b, ok := raw["defer_open"].(bool); ok {
			step.DeferOpen = b
		}
		return step, nil

	case IntentWaitForURL:
		url := strings.TrimSpace(stringOf(raw["url"]))
		if url == "" {
			return Step{}, fmt.Errorf("wait_for_url requires 'url'")
		}
		step.URL = url
		timeout, ok := floatField(raw, "timeout_secs", 15)
		if !ok {
			return Step{}, fmt.Errorf("wait_for_url requires numeric 'timeout_secs'")
		}
		if timeout < 0 {
			return Step{}, fmt.Errorf("wait_for_url requires non-negative 'timeout_secs'")
		}
		interval, ok := floatField(raw, "interval_secs", 0.5)
		if !ok {
			return Step{}, fmt.Errorf("wait_for_url requires numeric 'interval_secs'")
		}
		if interval <= 0 {
			return Step{}, fmt.Errorf("wait_for_url requires positive 'interval_secs'")
		}
		step.TimeoutSecs = timeout
		step.IntervalSecs = interval
		return step, nil

	case IntentOpenApp:
		app := strings.TrimSpace(stringOf(raw["app"]))
		if app == "" {
			return Step{}, fmt.Errorf("open_app requires 'app'")
		}
		step.App = app
		return step, nil

	case IntentOpenFile:
		path := strings.TrimSpace(stringOf(raw["path"]))
		if path == "" {
			return Step{}, fmt.Errorf("open_file requires 'path'")
		}
		step.Path = path
		return step, nil

	case IntentKeyCombo:
		keys, err := normalizeKeys(raw["keys"])
		if err != nil {
			return Step{}, err
		}
		step.Keys = keys
		return step, nil

	case IntentTypeText:
		text, ok := raw["text"].(string)
		if !ok || text == "" {
			return Step{}, fmt.Errorf("type_text requires 'text'")
		}
		step.Text = text
		if sel := strings.TrimSpace(stringOf(raw["selector"])); sel != "" {
			step.Selector = sel
		}
		return step, nil

	case IntentScroll:
		direction := strings.ToLower(strings.TrimSpace(stringOf(raw["direction"])))
		if direction == "" {
			direction = "down"
		}
		if direction != "up" && direction != "down" {
			return Step{}, fmt.Errorf("scroll direction must be 'up' or 'down'")
		}
		amount, ok := intField(raw, "amount", 3)
		if !ok {
			return Step{}, fmt.Errorf("scroll requires integer 'amount'")
		}
		step.Direction = direction
		step.Amount = max(1, amount)
		return step, nil

	case IntentMouseMove:
		x, okX := intField(raw, "x", 0)
		y, okY := intField(raw, "y", 0)
		if raw["x"] == nil || raw["y"] == nil {
			return Step{}, fmt.Errorf("mouse_move requires 'x' and 'y' coordinates")
		}
		if !okX {
			return Step{}, fmt.Errorf("mouse_move requires integer 'x'")
		}
		if !okY {
			return Step{}, fmt.Errorf("mouse_move requires integer 'y'")
		}
		step.X = &x
		step.Y = &y
		return step, nil

	case IntentClick:
		button := strings.ToLower(strings.TrimSpace(stringOf(raw["button"])))
		if button == "" {
			button = "left"
		}
		if button != "left" && button != "right" && button != "middle" {
			return Step{}, fmt.Errorf("click button must be 'left', 'right', or 'middle'")
		}
		clicks, ok := intField(raw, "clicks", 1)
		if !ok {
			return Step{}, fmt.Errorf("click requires integer 'clicks'")
		}
		step.Button = button
		step.Clicks = max(1, clicks)
		if sel := strings.TrimSpace(stringOf(raw["selector"])); sel != "" {
			step.Selector = sel
		}
		hasX := raw["x"] != nil
		hasY := raw["y"] != nil
		if hasX != hasY {
			return Step{}, fmt.Errorf("click requires both 'x' and 'y' when either is present")
		}
		if hasX {
			x, okX := intField(raw, "x", 0)
			y, okY := intField(raw, "y", 0)
			if !okX || !okY {
				return Step{}, fmt.Errorf("click requires integer 'x' and 'y'")
			}
			step.X = &x
			step.Y = &y
		}
		return step, nil

	case IntentWebSendMessage:
		contact := strings.TrimSpace(stringOf(raw["contact"]))
		message := strings.TrimSpace(stringOf(raw["message"]))
		if contact == "" {
			return Step{}, fmt.Errorf("web_send_message requires 'contact'")
		}
		if message == "" {
			return Step{}, fmt.Errorf("web_send_message requires 'message'")
		}
		step.Contact = contact
		step.Message = message
		step.Target = TargetWeb
		return step, nil

	case IntentWebFillForm:
		fields, err := cleanFormFields(raw["fields"])
		if err != nil {
			return Step{}, err
		}
		step.Fields = fields
		if b, ok := raw["submit"].(bool); ok {
			step.Submit = b
		}
		step.Target = TargetWeb
		return step, nil

	case IntentFindUI:
		selector, ok := raw["selector"].(map[string]any)
		if !ok {
			return Step{}, fmt.Errorf("find_ui requires 'selector' object")
		}
		cleaned, err := cleanSelector(selector)
		if err != nil {
			return Step{}, err
		}
		step.Selector = cleaned
		return step, nil

	case IntentInvokeUI:
		if id := strings.TrimSpace(stringOf(raw["element_id"])); id != "" {
			step.ElementID = id
			return step, nil
		}
		selector, ok := raw["selector"].(map[string]any)
		if !ok {
			return Step{}, fmt.Errorf("invoke_ui requires 'selector' object or 'element_id'")
		}
		cleaned, err := cleanSelector(selector)
		if err != nil {
			return Step{}, err
		}
		step.Selector = cleaned
		return step, nil

	case IntentWaitForWindow:
		title := strings.TrimSpace(stringOf(raw["window_title"]))
		if title == "" {
			return Step{}, fmt.Errorf("wait_for_window requires 'window_title'")
		}
		step.WindowTitle = title
		if app := strings.TrimSpace(stringOf(raw["app"])); app != "" {
			step.App = app
		}
		timeout, ok := floatField(raw, "timeout_secs", 10)
		if !ok {
			return Step{}, fmt.Errorf("wait_for_window requires numeric 'timeout_secs'")
		}
		if timeout < 0 {
			return Step{}, fmt.Errorf("wait_for_window requires non-negative 'timeout_secs'")
		}
		step.TimeoutSecs = timeout
		return step, nil
	}

	return Step{}, fmt.Errorf("unsupported intent %q", name)
}

// ValidateAll validates a list of raw steps, failing on the first invalid one.
func ValidateAll(raw []map[string]any) ([]Step, error) {
	steps := make([]Step, 0, len(raw))
	for i, item := range raw {
		step, err := Validate(item)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// normalizeKeys accepts a list of key tokens or an "a+b" combo string and
// returns canonical lowercase key names with aliases applied.
func normalizeKeys(v any) ([]string, error) {
	var tokens []string
	switch keys := v.(type) {
	case string:
		for _, part := range strings.Split(keys, "+") {
			if p := strings.TrimSpace(part); p != "" {
				tokens = append(tokens, p)
			}
		}
	case []any:
		for _, item := range keys {
			tokens = append(tokens, stringOf(item))
		}
	case []string:
		tokens = keys
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("key_combo requires non-empty 'keys'")
	}

	cleaned := make([]string, 0, len(tokens))
	for _, token := range tokens {
		key := strings.ToLower(strings.TrimSpace(token))
		if key == "" {
			continue
		}
		if alias, ok := KeyAliases[key]; ok {
			key = alias
		}
		cleaned = append(cleaned, key)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("key_combo requires non-empty 'keys'")
	}
	return cleaned, nil
}

func cleanSelector(selector map[string]any) (map[string]any, error) {
	allowed := []string{"app", "window_title", "role", "name", "contains", "automation_id"}
	cleaned := make(map[string]any)
	for _, key := range allowed {
		value, exists := selector[key]
		if !exists || value == nil {
			continue
		}
		if s, ok := value.(string); ok {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			cleaned[key] = s
			continue
		}
		cleaned[key] = value
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("selector requires at least one field")
	}
	return cleaned, nil
}

func cleanFormFields(v any) (map[string]string, error) {
	raw, ok := v.(map[string]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("web_fill_form requires non-empty 'fields'")
	}
	fields := make(map[string]string, len(raw))
	for selector, value := range raw {
		selector = strings.TrimSpace(selector)
		if selector == "" {
			continue
		}
		text, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("web_fill_form field %q requires a string value", selector)
		}
		fields[selector] = text
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("web_fill_form requires non-empty 'fields'")
	}
	return fields, nil
}

// stringOf returns v when it is a string, else "". Callers decide whether an
// empty result is an error.
func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

// floatField reads a numeric field, applying def when absent. Numeric
// strings are accepted the way the wire format's producers emit them.
func floatField(raw map[string]any, key string, def float64) (float64, bool) {
	v, exists := raw[key]
	if !exists || v == nil {
		return def, true
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// intField reads an integer field, truncating float values the way the wire
// format's producers round-trip them.
func intField(raw map[string]any, key string, def int) (int, bool) {
	v, exists := raw[key]
	if !exists || v == nil {
		return def, true
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

