// Package server persists the bounded chat history as a single JSON snapshot
// file that is fully rewritten on every accepted message.
package server

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

// HistoryStore keeps the ordered log of accepted chat messages, bounded to
// the most recent limit entries. The hub goroutine is the only writer;
// the read lock exists because HTTP handlers serve snapshots concurrently.
// Durability is best-effort: a failed write leaves the in-memory log
// authoritative for the rest of the process lifetime.
type HistoryStore struct {
	mu     sync.RWMutex
	events []ChatEvent
	path   string
	limit  int
}

// NewHistoryStore creates a store backed by the snapshot file at path.
// A non-positive limit falls back to the default capacity of 1000.
func NewHistoryStore(path string, limit int) *HistoryStore {
	if limit <= 0 {
		limit = 1000
	}
	return &HistoryStore{
		path:  path,
		limit: limit,
	}
}

// Load reads the snapshot file into memory. A missing, unreadable, or
// corrupt file is never fatal: the store degrades to an empty history and
// the cause is logged.
func (s *HistoryStore) Load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("No history file at %s, starting fresh", s.path)
		} else {
			log.Printf("Failed to read history file %s: %v; starting with empty history", s.path, err)
		}
		return
	}

	var events []ChatEvent
	if err := json.Unmarshal(data, &events); err != nil {
		log.Printf("Failed to parse history file %s: %v; starting with empty history", s.path, err)
		return
	}

	s.mu.Lock()
	s.events = s.trim(events)
	count := len(s.events)
	s.mu.Unlock()

	log.Printf("Loaded %d messages from history", count)
}

// Append adds event to the log, evicts the oldest entries beyond the
// capacity, and synchronously rewrites the snapshot file. Write failures are
// logged and swallowed.
func (s *HistoryStore) Append(event ChatEvent) {
	s.mu.Lock()
	s.events = s.trim(append(s.events, event))
	data, err := json.Marshal(s.events)
	s.mu.Unlock()

	if err != nil {
		log.Printf("Failed to serialize chat history: %v", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		log.Printf("Failed to persist chat history to %s: %v", s.path, err)
	}
}

// Snapshot returns a copy of the current log, reflecting every append made
// before the call.
func (s *HistoryStore) Snapshot() []ChatEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]ChatEvent, len(s.events))
	copy(snapshot, s.events)
	return snapshot
}

// Len returns the number of messages currently held.
func (s *HistoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// trim drops entries from the front so at most limit remain. Caller holds
// the write lock.
func (s *HistoryStore) trim(events []ChatEvent) []ChatEvent {
	if len(events) > s.limit {
		events = events[len(events)-s.limit:]
	}
	return events
}
