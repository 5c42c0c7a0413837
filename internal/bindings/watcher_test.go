package bindings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnExternalEdit(t *testing.T) {
	store, dir := newTestStore(t)
	require.NoError(t, store.Set("swipe_left", Binding{CommandText: "open youtube"}))

	reloaded := make(chan struct{}, 8)
	watcher, err := NewWatcher(store, func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	// Simulate the desktop client rewriting the file.
	path := filepath.Join(dir, "gesture_bindings.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"swipe_left": {"command_text": "open gmail"}}`), 0644))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never reloaded after external edit")
	}

	b, ok := store.Lookup("swipe_left")
	require.True(t, ok)
	assert.Equal(t, "open gmail", b.CommandText)
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	store, dir := newTestStore(t)

	reloaded := make(chan struct{}, 8)
	watcher, err := NewWatcher(store, func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	require.NoError(t, watcher.Start(context.Background()))
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	select {
	case <-reloaded:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(900 * time.Millisecond):
	}
}

func TestWatcher_StartStopIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	watcher, err := NewWatcher(store, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, watcher.Start(ctx))
	require.NoError(t, watcher.Start(ctx), "second start is a no-op")

	watcher.Stop()
	watcher.Stop()
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	store, _ := newTestStore(t)
	watcher, err := NewWatcher(store, nil)
	require.NoError(t, err)
	watcher.Stop()
}
