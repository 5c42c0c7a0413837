package bindings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := NewStore(
		filepath.Join(dir, "gesture_bindings.json"),
		filepath.Join(dir, "gesture_hotkeys.json"),
	)
	require.NoError(t, store.Load())
	return store, dir
}

func TestStore_LoadMissingFilesIsEmpty(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Empty(t, store.Labels())
	assert.Empty(t, store.Hotkeys())
}

func TestStore_SetPersistsAndReloads(t *testing.T) {
	store, dir := newTestStore(t)

	require.NoError(t, store.Set("swipe_left", Binding{
		CommandText: "open youtube",
		ResolvedURL: "https://www.youtube.com",
	}))
	require.NoError(t, store.Set("fist", Binding{
		CommandText: "copy",
		ValidatedSteps: []map[string]any{
			{"intent": "key_combo", "keys": []any{"command", "c"}},
		},
	}))

	// A fresh store over the same files sees the same content.
	again := NewStore(
		filepath.Join(dir, "gesture_bindings.json"),
		filepath.Join(dir, "gesture_hotkeys.json"),
	)
	require.NoError(t, again.Load())

	b, ok := again.Lookup("swipe_left")
	require.True(t, ok)
	assert.Equal(t, "open youtube", b.CommandText)
	assert.Equal(t, "https://www.youtube.com", b.ResolvedURL)

	b, ok = again.Lookup("fist")
	require.True(t, ok)
	require.Len(t, b.ValidatedSteps, 1)
	assert.Equal(t, "key_combo", b.ValidatedSteps[0]["intent"])

	assert.Equal(t, []string{"fist", "swipe_left"}, again.Labels())
}

func TestStore_DeleteRemovesAndRewrites(t *testing.T) {
	store, dir := newTestStore(t)
	require.NoError(t, store.Set("wave", Binding{CommandText: "select all"}))
	require.NoError(t, store.Delete("wave"))

	_, ok := store.Lookup("wave")
	assert.False(t, ok)

	data, err := os.ReadFile(filepath.Join(dir, "gesture_bindings.json"))
	require.NoError(t, err)
	var onDisk map[string]Binding
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Empty(t, onDisk)

	// Deleting an unknown label is a quiet no-op.
	require.NoError(t, store.Delete("never-bound"))
}

func TestStore_LegacyStringValuesLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gesture_bindings.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"swipe_up": "scroll up", "pinch": {"command_text": "open gmail"}}`), 0644))

	store := NewStore(path, filepath.Join(dir, "gesture_hotkeys.json"))
	require.NoError(t, store.Load())

	b, ok := store.Lookup("swipe_up")
	require.True(t, ok)
	assert.Equal(t, "scroll up", b.CommandText)

	b, ok = store.Lookup("pinch")
	require.True(t, ok)
	assert.Equal(t, "open gmail", b.CommandText)
}

func TestStore_MalformedFileKeepsPreviousContents(t *testing.T) {
	store, dir := newTestStore(t)
	require.NoError(t, store.Set("swipe_left", Binding{CommandText: "open youtube"}))

	path := filepath.Join(dir, "gesture_bindings.json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0644))

	err := store.Load()
	require.Error(t, err)

	b, ok := store.Lookup("swipe_left")
	require.True(t, ok, "a bad file must not wipe the in-memory bindings")
	assert.Equal(t, "open youtube", b.CommandText)
}

func TestStore_Hotkeys(t *testing.T) {
	store, dir := newTestStore(t)

	require.NoError(t, store.SetHotkey("fist", "ctrl+alt+c"))

	hk, ok := store.Hotkey("fist")
	require.True(t, ok)
	assert.Equal(t, "ctrl+alt+c", hk)

	again := NewStore(
		filepath.Join(dir, "gesture_bindings.json"),
		filepath.Join(dir, "gesture_hotkeys.json"),
	)
	require.NoError(t, again.Load())
	hk, ok = again.Hotkey("fist")
	require.True(t, ok)
	assert.Equal(t, "ctrl+alt+c", hk)

	// Empty hotkey clears the assignment.
	require.NoError(t, store.SetHotkey("fist", ""))
	_, ok = store.Hotkey("fist")
	assert.False(t, ok)
}

func TestStore_AllReturnsCopies(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Set("wave", Binding{CommandText: "undo"}))

	all := store.All()
	all["wave"] = Binding{CommandText: "mangled"}

	b, _ := store.Lookup("wave")
	assert.Equal(t, "undo", b.CommandText)
}

func TestWriteJSONAtomic_CreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "deep", "gesture_bindings.json")

	store := NewStore(nested, filepath.Join(dir, "deep", "gesture_hotkeys.json"))
	require.NoError(t, store.Load())
	require.NoError(t, store.Set("wave", Binding{CommandText: "undo"}))

	_, err := os.Stat(nested)
	assert.NoError(t, err)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(dir, "deep"))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp-")
	}
}
