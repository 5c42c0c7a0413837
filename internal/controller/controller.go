// Package controller receives gesture and voice events and drives the
// command engine from a single worker goroutine, so commands run strictly
// in arrival order and a stuck command never wedges the ingress path.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"motorcortex/internal/bindings"
	"motorcortex/internal/config"
	"motorcortex/internal/confirm"
	"motorcortex/internal/engine"
	"motorcortex/internal/intent"
	"motorcortex/internal/logging"
)

// Event sources.
const (
	SourceGesture = "gesture"
	SourceVoice   = "voice"
)

// Event is one inbound trigger. For gestures Action is the trained label;
// for everything else it is free command text.
type Event struct {
	Source  string         `json:"source"`
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Dispatcher is the engine surface the worker drives.
type Dispatcher interface {
	Run(ctx context.Context, source, text string, uiCtx *intent.UIContext) engine.Result
	RunSteps(ctx context.Context, source, text string, raw []map[string]any) engine.Result
	StoreResult(source, text string, result engine.Result) engine.Result
	LastResult() *engine.Result
	Approve(ctx context.Context, id string) engine.Result
	Deny(id string) engine.Result
	ListPending() []confirm.Pending
}

// BindingSource maps gesture labels to their configured commands.
type BindingSource interface {
	Lookup(label string) (bindings.Binding, bool)
}

// Controller owns the event queue, the worker, and the per-command budget.
type Controller struct {
	dispatcher Dispatcher
	bindings   BindingSource
	contexts   ContextProvider
	timeout    time.Duration // wall clock per command, 0 = unlimited

	queue chan Event

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds a controller. bindings and contexts may be nil; gestures then
// go unmapped and commands run without a UI snapshot.
func New(cfg *config.Config, dispatcher Dispatcher, bindingSource BindingSource, contexts ContextProvider) *Controller {
	size := cfg.Controller.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Controller{
		dispatcher: dispatcher,
		bindings:   bindingSource,
		contexts:   contexts,
		timeout:    cfg.GetCommandTimeout(),
		queue:      make(chan Event, size),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// HandleEvent enqueues an event without blocking. A full queue drops the
// event so slow commands cannot back up into the gesture pipeline; the
// return value reports whether the event was accepted.
func (c *Controller) HandleEvent(event Event) bool {
	select {
	case c.queue <- event:
		logging.Controller("queued %s event: %q", event.Source, event.Action)
		return true
	default:
		logging.ControllerWarn("queue full, dropped %s event: %q", event.Source, event.Action)
		return false
	}
}

// Start launches the worker. Calling Start on a running controller is a
// no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	logging.Controller("worker starting (queue %d, command timeout %s)", cap(c.queue), c.timeout)
	go c.work(ctx)
	return nil
}

// Stop halts the worker after its current command and waits for it to
// exit. Stopping a stopped controller is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	close(c.stopCh)
	<-c.doneCh
	logging.Controller("worker stopped")
}

// LastResult returns the most recent command outcome.
func (c *Controller) LastResult() *engine.Result {
	return c.dispatcher.LastResult()
}

// ListPending returns the commands waiting on confirmation.
func (c *Controller) ListPending() []confirm.Pending {
	return c.dispatcher.ListPending()
}

// Approve executes a pending confirmation.
func (c *Controller) Approve(ctx context.Context, id string) engine.Result {
	return c.dispatcher.Approve(ctx, id)
}

// Deny discards a pending confirmation.
func (c *Controller) Deny(id string) engine.Result {
	return c.dispatcher.Deny(id)
}

func (c *Controller) work(ctx context.Context) {
	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case event := <-c.queue:
			c.process(ctx, event)
		}
	}
}

func (c *Controller) process(ctx context.Context, event Event) {
	if event.Source == SourceGesture {
		c.processGesture(ctx, event)
		return
	}

	text := strings.TrimSpace(event.Action)
	if text == "" {
		logging.Controller("ignoring empty %s event", event.Source)
		return
	}
	c.dispatch(ctx, event.Source, text, nil)
}

func (c *Controller) processGesture(ctx context.Context, event Event) {
	if c.bindings == nil {
		logging.Controller("no binding store, ignoring gesture %q", event.Action)
		return
	}
	binding, ok := c.bindings.Lookup(event.Action)
	if !ok {
		logging.Controller("no command bound to gesture %q", event.Action)
		return
	}

	if len(binding.ValidatedSteps) > 0 {
		c.dispatch(ctx, event.Source, binding.CommandText, binding.ValidatedSteps)
		return
	}

	text := strings.TrimSpace(binding.CommandText)
	if text == "" {
		logging.ControllerWarn("gesture %q is bound to an empty command", event.Action)
		return
	}
	c.dispatch(ctx, event.Source, text, nil)
}

// dispatch runs one command on the engine under the wall-clock budget. On
// expiry the worker stores a timeout result and returns to the queue; the
// helper goroutine keeps the cancelled context and unwinds on its own.
func (c *Controller) dispatch(ctx context.Context, source, text string, steps []map[string]any) {
	uiCtx := c.snapshot(ctx, text, steps)

	runCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan engine.Result, 1)
	go func() {
		if len(steps) > 0 {
			done <- c.dispatcher.RunSteps(runCtx, source, text, steps)
			return
		}
		done <- c.dispatcher.Run(runCtx, source, text, uiCtx)
	}()

	select {
	case result := <-done:
		logging.Controller("command %q finished: %s", text, result.Status)
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			c.dispatcher.StoreResult(source, text, engine.Result{
				Status: engine.StatusTimeout,
				Reason: fmt.Sprintf("command exceeded %s budget", c.timeout),
			})
			logging.ControllerWarn("command %q timed out after %s, abandoning", text, c.timeout)
			return
		}
		// Shutdown while a command was in flight; nothing to record.
	}
}

// snapshot gathers UI context for interpreted commands. Pre-validated step
// lists skip it entirely, and trivial shortcut phrases skip the selection
// read so the clipboard is not touched on every copy/paste.
func (c *Controller) snapshot(ctx context.Context, text string, steps []map[string]any) *intent.UIContext {
	if c.contexts == nil || len(steps) > 0 {
		return nil
	}
	return c.contexts.Snapshot(ctx, !engine.IsBasicShortcut(text))
}
