package history

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motorcortex/internal/engine"
	"motorcortex/internal/intent"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RecordAndRecent(t *testing.T) {
	store := newTestStore(t)

	store.Record("voice", "open youtube", engine.Result{
		Status: engine.StatusOK,
		Results: []intent.ExecutionResult{
			{Intent: intent.IntentOpenURL, Status: intent.StatusOK, Target: intent.TargetWeb},
		},
		Timestamp: 1700000000.5,
	})
	store.Record("gesture", "delete downloads", engine.Result{
		Status: engine.StatusPending,
		ID:     "abc-123",
	})
	store.Record("voice", "open gmail", engine.Result{
		Status: engine.StatusError,
		Reason: "interpreter offline",
	})

	entries, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first.
	assert.Equal(t, "open gmail", entries[0].Text)
	assert.Equal(t, engine.StatusError, entries[0].Status)
	assert.Equal(t, "interpreter offline", entries[0].Detail["reason"])

	assert.Equal(t, "delete downloads", entries[1].Text)
	assert.Equal(t, "gesture", entries[1].Source)
	assert.Equal(t, "abc-123", entries[1].Detail["id"])

	assert.Equal(t, "open youtube", entries[2].Text)
	assert.NotEmpty(t, entries[2].ID)
	assert.NotEmpty(t, entries[2].CreatedAt)
}

func TestStore_RecentLimits(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 5; i++ {
		store.Record("voice", "copy", engine.Result{Status: engine.StatusOK})
	}

	entries, err := store.Recent(2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = store.Recent(0)
	require.NoError(t, err)
	assert.Len(t, entries, 5, "non-positive limit falls back to the default window")
}

func TestStore_CountAndReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	store, err := New(path)
	require.NoError(t, err)
	store.Record("voice", "undo", engine.Result{Status: engine.StatusOK})
	store.Record("voice", "redo", engine.Result{Status: engine.StatusOK})
	require.NoError(t, store.Close())

	// Rows survive process restarts.
	again, err := New(path)
	require.NoError(t, err)
	defer again.Close()

	n, err := again.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_EmptyRecent(t *testing.T) {
	store := newTestStore(t)
	entries, err := store.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
