package web

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"motorcortex/internal/intent"
	"motorcortex/internal/logging"
)

// searchInputProbeTimeout bounds each rung of the search-input ladder.
const searchInputProbeTimeout = time.Second

// searchInputSelectors is tried in order when type_text names no selector;
// most sites expose one of these for their primary search box.
var searchInputSelectors = []string{
	`input[type="search"]`,
	`input[name*="search" i]`,
	`input[name="q"]`,
	`input[aria-label*="search" i]`,
	`textarea[name="q"]`,
	`[role="searchbox"]`,
}

// pageModifiers maps canonical modifier names onto devtools keys.
var pageModifiers = map[string]input.Key{
	"command": input.MetaLeft,
	"control": input.ControlLeft,
	"alt":     input.AltLeft,
	"shift":   input.ShiftLeft,
}

// pageKeys maps canonical special-key names onto devtools keys. Single
// characters outside this map are sent as their own rune.
var pageKeys = map[string]input.Key{
	"enter":     input.Enter,
	"esc":       input.Escape,
	"tab":       input.Tab,
	"space":     input.Space,
	"backspace": input.Backspace,
	"delete":    input.Delete,
	"up":        input.ArrowUp,
	"down":      input.ArrowDown,
	"left":      input.ArrowLeft,
	"right":     input.ArrowRight,
}

var mouseButtons = map[string]proto.InputMouseButton{
	"left":   proto.InputMouseButtonLeft,
	"right":  proto.InputMouseButtonRight,
	"middle": proto.InputMouseButtonMiddle,
}

func pageKey(name string) (input.Key, bool) {
	if key, ok := pageKeys[name]; ok {
		return key, true
	}
	runes := []rune(name)
	if len(runes) == 1 {
		return input.Key(runes[0]), true
	}
	return 0, false
}

func comboHasEnter(keys []string) bool {
	return slices.Contains(keys, "enter")
}

// handleTypeText types into an explicit selector when given, otherwise
// walks the search-input ladder, and as a last resort inserts the text
// into whatever element holds focus. The text is also remembered so a
// deferred open can turn it into a site search.
func (e *Executor) handleTypeText(ctx context.Context, step intent.Step) error {
	e.pendingSearch = step.Text

	if sel := step.CSSSelector(); sel != "" {
		el, err := e.page.Context(ctx).Timeout(e.cfg.GetBrowserActionTimeout()).Element(sel)
		if err != nil {
			return fmt.Errorf("selector %q not found: %w", sel, err)
		}
		return fillElement(el, step.Text)
	}

	for _, sel := range searchInputSelectors {
		el, err := e.page.Context(ctx).Timeout(searchInputProbeTimeout).Element(sel)
		if err != nil {
			continue
		}
		if err := fillElement(el, step.Text); err != nil {
			logging.WebDebug("type into %s: %v", sel, err)
			continue
		}
		logging.WebDebug("typed %d chars into %s", len(step.Text), sel)
		return nil
	}

	return e.page.InsertText(step.Text)
}

// handleKeyCombo presses the chord: modifiers go down, the remaining keys
// are typed, modifiers come back up in reverse. An enter while a deferred
// open is held settles the deferral.
func (e *Executor) handleKeyCombo(ctx context.Context, step intent.Step) error {
	var mods, taps []input.Key
	for _, name := range step.Keys {
		if mod, ok := pageModifiers[name]; ok {
			mods = append(mods, mod)
			continue
		}
		key, ok := pageKey(name)
		if !ok {
			return fmt.Errorf("unmapped key %q", name)
		}
		taps = append(taps, key)
	}

	var firstErr error
	for _, mod := range mods {
		if err := e.page.Keyboard.Press(mod); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if len(taps) > 0 {
		if err := e.page.Keyboard.Type(taps...); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for i := len(mods) - 1; i >= 0; i-- {
		if err := e.page.Keyboard.Release(mods[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}

	if e.deferredURL != "" && comboHasEnter(step.Keys) {
		return e.settleDeferred(ctx)
	}
	return nil
}

// handleClick clicks an element when a selector is given, otherwise
// synthesizes a pointer click at the step coordinates (the viewport
// origin when none are set).
func (e *Executor) handleClick(ctx context.Context, step intent.Step) error {
	if sel := step.CSSSelector(); sel != "" {
		el, err := e.page.Context(ctx).Timeout(e.cfg.GetBrowserActionTimeout()).Element(sel)
		if err != nil {
			return fmt.Errorf("selector %q not found: %w", sel, err)
		}
		return el.Click(clickButton(step.Button), clickCount(step.Clicks))
	}

	var x, y float64
	if step.X != nil && step.Y != nil {
		x, y = float64(*step.X), float64(*step.Y)
	}
	if err := e.page.Mouse.MoveTo(proto.Point{X: x, Y: y}); err != nil {
		return err
	}
	return e.page.Mouse.Click(clickButton(step.Button), clickCount(step.Clicks))
}

func (e *Executor) handleScroll(_ context.Context, step intent.Step) error {
	offset := float64(step.Amount) * 100
	if step.Direction == "up" {
		offset = -offset
	}
	return e.page.Mouse.Scroll(0, offset, 1)
}

// handleFillForm fills selector-addressed fields in a stable order and
// optionally clicks the first submit control. Gated off unless the
// operator opted in.
func (e *Executor) handleFillForm(ctx context.Context, step intent.Step) error {
	if !e.cfg.Browser.EnableFormFill {
		return &ExecutionError{
			Code:    CodeFormFillDisabled,
			Message: "form filling is disabled; set browser.enable_form_fill to allow it",
		}
	}

	selectors := make([]string, 0, len(step.Fields))
	for sel := range step.Fields {
		selectors = append(selectors, sel)
	}
	sort.Strings(selectors)

	for _, sel := range selectors {
		el, err := e.page.Context(ctx).Timeout(e.cfg.GetBrowserActionTimeout()).Element(sel)
		if err != nil {
			return &ExecutionError{
				Code:    CodeFieldNotFound,
				Message: "form field not found: " + sel,
			}
		}
		if err := fillElement(el, step.Fields[sel]); err != nil {
			return err
		}
	}

	if step.Submit {
		btn, err := e.page.Context(ctx).Timeout(e.cfg.GetBrowserActionTimeout()).
			Element(`button[type="submit"], input[type="submit"]`)
		if err != nil {
			return &ExecutionError{Code: CodeSubmitFailed, Message: "no submit control found"}
		}
		if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return &ExecutionError{Code: CodeSubmitFailed, Message: err.Error()}
		}
	}
	return nil
}

// fillElement replaces an element's content, click to focus first.
func fillElement(el *rod.Element, text string) error {
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(text)
}

func clickButton(name string) proto.InputMouseButton {
	if btn, ok := mouseButtons[name]; ok {
		return btn
	}
	return proto.InputMouseButtonLeft
}

func clickCount(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
