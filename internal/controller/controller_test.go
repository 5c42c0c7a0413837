package controller

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"motorcortex/internal/bindings"
	"motorcortex/internal/config"
	"motorcortex/internal/confirm"
	"motorcortex/internal/engine"
	"motorcortex/internal/intent"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type dispatchCall struct {
	kind   string // run | steps
	source string
	text   string
	uiCtx  *intent.UIContext
	steps  []map[string]any
}

type fakeDispatcher struct {
	mu         sync.Mutex
	calls      []dispatchCall
	stored     []engine.Result
	last       *engine.Result
	pending    []confirm.Pending
	approved   []string
	denied     []string
	blockTexts map[string]bool // commands that hang until cancelled

	notify chan string
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		blockTexts: map[string]bool{},
		notify:     make(chan string, 32),
	}
}

func (f *fakeDispatcher) Run(ctx context.Context, source, text string, uiCtx *intent.UIContext) engine.Result {
	f.mu.Lock()
	f.calls = append(f.calls, dispatchCall{kind: "run", source: source, text: text, uiCtx: uiCtx})
	block := f.blockTexts[text]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
	}
	f.notify <- "run:" + text
	return engine.Result{Status: engine.StatusOK}
}

func (f *fakeDispatcher) RunSteps(_ context.Context, source, text string, raw []map[string]any) engine.Result {
	f.mu.Lock()
	f.calls = append(f.calls, dispatchCall{kind: "steps", source: source, text: text, steps: raw})
	f.mu.Unlock()
	f.notify <- "steps:" + text
	return engine.Result{Status: engine.StatusOK}
}

func (f *fakeDispatcher) StoreResult(_, text string, result engine.Result) engine.Result {
	f.mu.Lock()
	f.stored = append(f.stored, result)
	f.last = &result
	f.mu.Unlock()
	f.notify <- "stored:" + text
	return result
}

func (f *fakeDispatcher) LastResult() *engine.Result           { return f.last }
func (f *fakeDispatcher) ListPending() []confirm.Pending       { return f.pending }
func (f *fakeDispatcher) Deny(id string) engine.Result {
	f.mu.Lock()
	f.denied = append(f.denied, id)
	f.mu.Unlock()
	return engine.Result{Status: engine.StatusDenied}
}

func (f *fakeDispatcher) Approve(_ context.Context, id string) engine.Result {
	f.mu.Lock()
	f.approved = append(f.approved, id)
	f.mu.Unlock()
	return engine.Result{Status: engine.StatusOK}
}

func (f *fakeDispatcher) Calls() []dispatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dispatchCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeDispatcher) Stored() []engine.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]engine.Result, len(f.stored))
	copy(out, f.stored)
	return out
}

type fakeProvider struct {
	mu    sync.Mutex
	calls []bool
}

func (f *fakeProvider) Snapshot(_ context.Context, readSelection bool) *intent.UIContext {
	f.mu.Lock()
	f.calls = append(f.calls, readSelection)
	f.mu.Unlock()
	return &intent.UIContext{Platform: "test", ClientOS: "linux"}
}

func (f *fakeProvider) Calls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeBindings map[string]bindings.Binding

func (f fakeBindings) Lookup(label string) (bindings.Binding, bool) {
	b, ok := f[label]
	return b, ok
}

func waitSignal(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func testConfig(timeout string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Controller.CommandTimeout = timeout
	return cfg
}

func TestController_VoiceEventDispatchesFreeText(t *testing.T) {
	disp := newFakeDispatcher()
	provider := &fakeProvider{}
	ctrl := New(testConfig("5s"), disp, nil, provider)

	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	require.True(t, ctrl.HandleEvent(Event{Source: SourceVoice, Action: "open youtube"}))
	waitSignal(t, disp.notify, "run:open youtube")

	calls := disp.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "run", calls[0].kind)
	assert.Equal(t, SourceVoice, calls[0].source)
	assert.Equal(t, "open youtube", calls[0].text)
	require.NotNil(t, calls[0].uiCtx)
	assert.Equal(t, "test", calls[0].uiCtx.Platform)
}

func TestController_GestureWithValidatedStepsSkipsInterpretation(t *testing.T) {
	disp := newFakeDispatcher()
	binds := fakeBindings{
		"swipe_left": {
			CommandText: "open youtube",
			ValidatedSteps: []map[string]any{
				{"intent": "open_url", "url": "https://www.youtube.com", "precomputed": true},
			},
		},
	}
	provider := &fakeProvider{}
	ctrl := New(testConfig("5s"), disp, binds, provider)

	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	ctrl.HandleEvent(Event{Source: SourceGesture, Action: "swipe_left"})
	waitSignal(t, disp.notify, "steps:open youtube")

	calls := disp.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "steps", calls[0].kind)
	require.Len(t, calls[0].steps, 1)
	assert.Equal(t, "open_url", calls[0].steps[0]["intent"])
	assert.Empty(t, provider.Calls(), "pre-validated steps need no UI snapshot")
}

func TestController_GestureWithCommandTextInterprets(t *testing.T) {
	disp := newFakeDispatcher()
	binds := fakeBindings{"fist": {CommandText: "select all"}}
	ctrl := New(testConfig("5s"), disp, binds, nil)

	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	ctrl.HandleEvent(Event{Source: SourceGesture, Action: "fist"})
	waitSignal(t, disp.notify, "run:select all")

	calls := disp.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, SourceGesture, calls[0].source)
}

func TestController_UnmappedGestureIsLoggedOnly(t *testing.T) {
	disp := newFakeDispatcher()
	ctrl := New(testConfig("5s"), disp, fakeBindings{}, nil)

	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	ctrl.HandleEvent(Event{Source: SourceGesture, Action: "unknown"})
	// The worker is strictly FIFO, so once this one lands the gesture above
	// has already been (not) dispatched.
	ctrl.HandleEvent(Event{Source: SourceVoice, Action: "probe"})
	waitSignal(t, disp.notify, "run:probe")

	calls := disp.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "probe", calls[0].text)
}

func TestController_EmptyVoiceTextIgnored(t *testing.T) {
	disp := newFakeDispatcher()
	ctrl := New(testConfig("5s"), disp, nil, nil)

	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	ctrl.HandleEvent(Event{Source: SourceVoice, Action: "   "})
	ctrl.HandleEvent(Event{Source: SourceVoice, Action: "probe"})
	waitSignal(t, disp.notify, "run:probe")

	require.Len(t, disp.Calls(), 1)
}

func TestController_QueueFullDrops(t *testing.T) {
	disp := newFakeDispatcher()
	cfg := testConfig("5s")
	cfg.Controller.QueueSize = 1
	ctrl := New(cfg, disp, nil, nil)

	// No worker running, so the queue fills immediately.
	assert.True(t, ctrl.HandleEvent(Event{Source: SourceVoice, Action: "first"}))
	assert.False(t, ctrl.HandleEvent(Event{Source: SourceVoice, Action: "second"}))
}

func TestController_TimeoutStoresResultAndWorkerSurvives(t *testing.T) {
	disp := newFakeDispatcher()
	disp.blockTexts["slow command"] = true
	ctrl := New(testConfig("60ms"), disp, nil, nil)

	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	ctrl.HandleEvent(Event{Source: SourceVoice, Action: "slow command"})
	waitSignal(t, disp.notify, "stored:slow command")

	stored := disp.Stored()
	require.Len(t, stored, 1)
	assert.Equal(t, engine.StatusTimeout, stored[0].Status)
	assert.True(t, strings.Contains(stored[0].Reason, "60ms"), "reason = %q", stored[0].Reason)

	// The worker keeps servicing the queue after an abandoned command.
	ctrl.HandleEvent(Event{Source: SourceVoice, Action: "fast command"})
	waitSignal(t, disp.notify, "run:fast command")
}

func TestController_ZeroTimeoutDisablesBudget(t *testing.T) {
	disp := newFakeDispatcher()
	ctrl := New(testConfig("-1s"), disp, nil, nil)

	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	ctrl.HandleEvent(Event{Source: SourceVoice, Action: "take your time"})
	waitSignal(t, disp.notify, "run:take your time")

	assert.Empty(t, disp.Stored(), "no timeout result without a budget")
}

func TestController_SelectionReadSkippedForShortcuts(t *testing.T) {
	disp := newFakeDispatcher()
	provider := &fakeProvider{}
	ctrl := New(testConfig("5s"), disp, nil, provider)

	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	ctrl.HandleEvent(Event{Source: SourceVoice, Action: "copy"})
	waitSignal(t, disp.notify, "run:copy")
	ctrl.HandleEvent(Event{Source: SourceVoice, Action: "open youtube"})
	waitSignal(t, disp.notify, "run:open youtube")

	calls := provider.Calls()
	require.Len(t, calls, 2)
	assert.False(t, calls[0], "shortcut phrases skip the clipboard read")
	assert.True(t, calls[1])
}

func TestController_StartStopIdempotent(t *testing.T) {
	disp := newFakeDispatcher()
	ctrl := New(testConfig("5s"), disp, nil, nil)

	ctx := context.Background()
	require.NoError(t, ctrl.Start(ctx))
	require.NoError(t, ctrl.Start(ctx))

	ctrl.Stop()
	ctrl.Stop()
}

func TestController_StopWithoutStart(t *testing.T) {
	ctrl := New(testConfig("5s"), newFakeDispatcher(), nil, nil)
	ctrl.Stop()
}

func TestController_ContextCancelStopsWorker(t *testing.T) {
	disp := newFakeDispatcher()
	ctrl := New(testConfig("5s"), disp, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, ctrl.Start(ctx))
	cancel()

	// Stop returns even though the worker exited via the context.
	ctrl.Stop()
}

func TestController_PassThroughs(t *testing.T) {
	disp := newFakeDispatcher()
	disp.pending = []confirm.Pending{{ID: "p1", Text: "delete stuff"}}
	disp.last = &engine.Result{Status: engine.StatusOK}
	ctrl := New(testConfig("5s"), disp, nil, nil)

	assert.Equal(t, engine.StatusOK, ctrl.LastResult().Status)
	require.Len(t, ctrl.ListPending(), 1)

	ctrl.Approve(context.Background(), "p1")
	assert.Equal(t, []string{"p1"}, disp.approved)

	ctrl.Deny("p2")
	assert.Equal(t, []string{"p2"}, disp.denied)
}
