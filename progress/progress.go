// Package progress tracks which units of work have completed so a run
// can resume after interruption without redoing finished chapters.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Store records per-chapter completion for one scope (a novel, or a
// source file in the batch CLI). MarkDone must only be called after the
// chapter's content is durably persisted downstream.
type Store interface {
	IsDone(scope string, chapter int) bool
	MarkDone(scope string, chapter int) error
}

// MemoryStore is the test double.
type MemoryStore struct {
	mu   sync.Mutex
	done map[string]map[int]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{done: make(map[string]map[int]bool)}
}

func (m *MemoryStore) IsDone(scope string, chapter int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done[scope][chapter]
}

func (m *MemoryStore) MarkDone(scope string, chapter int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done[scope] == nil {
		m.done[scope] = make(map[int]bool)
	}
	m.done[scope][chapter] = true
	return nil
}

// ledgerEntry is the on-disk record for one scope.
type ledgerEntry struct {
	Translated  []int `json:"translated"`
	LastChapter int   `json:"lastChapter"`
}

// FileLedger is the JSON-file Store used by the batch translation CLI.
// Every MarkDone rewrites the file immediately, so a crash loses at most
// the chapter in flight.
type FileLedger struct {
	mu      sync.Mutex
	path    string
	entries map[string]*ledgerEntry
}

// OpenFileLedger loads the ledger at path, creating an empty one if the
// file does not exist.
func OpenFileLedger(path string) (*FileLedger, error) {
	l := &FileLedger{
		path:    path,
		entries: make(map[string]*ledgerEntry),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}

	if err := json.Unmarshal(data, &l.entries); err != nil {
		return nil, fmt.Errorf("parsing ledger %s: %w", path, err)
	}
	return l, nil
}

func (l *FileLedger) IsDone(scope string, chapter int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entries[scope]
	if entry == nil {
		return false
	}
	for _, n := range entry.Translated {
		if n == chapter {
			return true
		}
	}
	return false
}

// MarkDone appends the chapter to the scope's translated set and persists
// synchronously. Membership is append-only.
func (l *FileLedger) MarkDone(scope string, chapter int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entries[scope]
	if entry == nil {
		entry = &ledgerEntry{}
		l.entries[scope] = entry
	}

	for _, n := range entry.Translated {
		if n == chapter {
			return nil
		}
	}
	entry.Translated = append(entry.Translated, chapter)
	sort.Ints(entry.Translated)
	if chapter > entry.LastChapter {
		entry.LastChapter = chapter
	}

	return l.persistLocked()
}

// persistLocked writes the ledger atomically: temp file then rename.
func (l *FileLedger) persistLocked() error {
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling ledger: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating ledger dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replacing ledger: %w", err)
	}
	return nil
}

// Translated returns the recorded chapter numbers for a scope, ascending.
func (l *FileLedger) Translated(scope string) []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entries[scope]
	if entry == nil {
		return nil
	}
	out := make([]int, len(entry.Translated))
	copy(out, entry.Translated)
	return out
}
