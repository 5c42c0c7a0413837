// Package bindings persists gesture-to-command bindings and hotkey
// assignments as JSON files under the data directory. Files are rewritten
// atomically so a concurrent reader never sees a partial document.
package bindings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"motorcortex/internal/logging"
)

// Binding maps one gesture label to a dispatchable command. ValidatedSteps,
// when present, lets the dispatcher skip interpretation entirely; the
// resolution annotations keep pre-resolved URLs warm across restarts.
type Binding struct {
	CommandText     string           `json:"command_text"`
	ValidatedSteps  []map[string]any `json:"validated_steps,omitempty"`
	ResolvedURL     string           `json:"resolved_url,omitempty"`
	ResolvedBaseURL string           `json:"resolved_base_url,omitempty"`
}

// Store holds the gesture bindings and hotkeys, mirrored to two JSON files.
type Store struct {
	bindingsPath string
	hotkeysPath  string

	mu       sync.RWMutex
	bindings map[string]Binding
	hotkeys  map[string]string
}

// NewStore builds a store over the two binding files. Call Load before the
// first read.
func NewStore(bindingsPath, hotkeysPath string) *Store {
	return &Store{
		bindingsPath: bindingsPath,
		hotkeysPath:  hotkeysPath,
		bindings:     make(map[string]Binding),
		hotkeys:      make(map[string]string),
	}
}

// Load reads both files from disk, replacing the in-memory maps. Missing
// files load as empty; a malformed file is an error and leaves the previous
// contents in place.
func (s *Store) Load() error {
	bindings, err := loadBindingsFile(s.bindingsPath)
	if err != nil {
		return fmt.Errorf("load bindings: %w", err)
	}
	hotkeys, err := loadHotkeysFile(s.hotkeysPath)
	if err != nil {
		return fmt.Errorf("load hotkeys: %w", err)
	}

	s.mu.Lock()
	s.bindings = bindings
	s.hotkeys = hotkeys
	s.mu.Unlock()

	logging.Bindings("loaded %d bindings, %d hotkeys", len(bindings), len(hotkeys))
	return nil
}

// Lookup returns the binding for a gesture label.
func (s *Store) Lookup(label string) (Binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[label]
	return b, ok
}

// Set stores a binding and rewrites the bindings file.
func (s *Store) Set(label string, b Binding) error {
	s.mu.Lock()
	s.bindings[label] = b
	snapshot := copyBindings(s.bindings)
	s.mu.Unlock()

	return writeJSONAtomic(s.bindingsPath, snapshot)
}

// Delete removes a binding and rewrites the bindings file. Deleting an
// unknown label is a no-op.
func (s *Store) Delete(label string) error {
	s.mu.Lock()
	_, existed := s.bindings[label]
	delete(s.bindings, label)
	snapshot := copyBindings(s.bindings)
	s.mu.Unlock()

	if !existed {
		return nil
	}
	return writeJSONAtomic(s.bindingsPath, snapshot)
}

// Labels returns the bound gesture labels, sorted.
func (s *Store) Labels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	labels := make([]string, 0, len(s.bindings))
	for label := range s.bindings {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// All returns a copy of every binding, keyed by label.
func (s *Store) All() map[string]Binding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyBindings(s.bindings)
}

// Hotkey returns the hotkey assigned to a gesture label.
func (s *Store) Hotkey(label string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hk, ok := s.hotkeys[label]
	return hk, ok
}

// SetHotkey assigns a hotkey to a label and rewrites the hotkeys file.
// An empty hotkey clears the assignment.
func (s *Store) SetHotkey(label, hotkey string) error {
	s.mu.Lock()
	if hotkey == "" {
		delete(s.hotkeys, label)
	} else {
		s.hotkeys[label] = hotkey
	}
	snapshot := make(map[string]string, len(s.hotkeys))
	for k, v := range s.hotkeys {
		snapshot[k] = v
	}
	s.mu.Unlock()

	return writeJSONAtomic(s.hotkeysPath, snapshot)
}

// Hotkeys returns a copy of every hotkey assignment.
func (s *Store) Hotkeys() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.hotkeys))
	for k, v := range s.hotkeys {
		out[k] = v
	}
	return out
}

// Paths returns the files the store persists to, bindings first.
func (s *Store) Paths() (string, string) {
	return s.bindingsPath, s.hotkeysPath
}

func copyBindings(in map[string]Binding) map[string]Binding {
	out := make(map[string]Binding, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// loadBindingsFile accepts both the current object form and the bare
// command-string form written by older builds.
func loadBindingsFile(path string) (map[string]Binding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]Binding), nil
		}
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	out := make(map[string]Binding, len(raw))
	for label, entry := range raw {
		var b Binding
		if err := json.Unmarshal(entry, &b); err == nil {
			out[label] = b
			continue
		}
		var text string
		if err := json.Unmarshal(entry, &text); err != nil {
			return nil, fmt.Errorf("%s: binding %q has an unreadable value", filepath.Base(path), label)
		}
		out[label] = Binding{CommandText: text}
	}
	return out, nil
}

func loadHotkeysFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	var out map[string]string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if out == nil {
		out = make(map[string]string)
	}
	return out, nil
}

// writeJSONAtomic writes v to path via a temp file in the same directory
// and a rename, so readers and the fsnotify watcher never observe a
// half-written document.
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
