// Package state persists per-issue processing outcomes so an issue is
// handled at most once across daemon restarts. The store is the single
// source of truth for "has this issue been handled"; remote labels and
// comments are never consulted, they can lag or be edited.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wakamex/issuepilot/internal/issue"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Record is the durable outcome of one issue attempt. Unknown fields in
// the persisted form are ignored on read so older readers keep working.
type Record struct {
	Status      Status    `json:"status"`
	AttemptedAt time.Time `json:"attempted_at"`
	PRNumber    int       `json:"pr_number,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	ForceRetry  bool      `json:"force_retry,omitempty"`
}

// CorruptionError is fatal at startup: a malformed state file must never
// be silently discarded.
type CorruptionError struct {
	Path string
	Err  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("state file %s is corrupt: %v", e.Path, e.Err)
}
func (e *CorruptionError) Unwrap() error { return e.Err }

// Store maps issue identity to Record, backed by a single JSON file.
// Writes go through a write-then-rename so a crash mid-write leaves the
// previous valid file in place.
type Store struct {
	path string

	mu      sync.Mutex
	records map[string]Record

	now func() time.Time
}

// Open loads the store at path. A missing file is an empty store.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		records: make(map[string]Record),
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, &CorruptionError{Path: path, Err: err}
	}
	return s, nil
}

// Get returns the record for ref, if any.
func (s *Store) Get(ref issue.Ref) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[ref.String()]
	return rec, ok
}

// IsProcessed reports whether ref needs no further work. An in_progress
// record older than staleAfter is treated as a crashed attempt and is
// eligible again; one younger is assumed live.
func (s *Store) IsProcessed(ref issue.Ref, staleAfter time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[ref.String()]
	if !ok {
		return false
	}
	if rec.ForceRetry {
		return false
	}
	switch rec.Status {
	case StatusSucceeded, StatusFailed:
		return true
	case StatusInProgress:
		return s.now().Sub(rec.AttemptedAt) < staleAfter
	default:
		return false
	}
}

// Put records ref's outcome and persists the whole mapping atomically.
func (s *Store) Put(ref issue.Ref, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[ref.String()] = rec
	return s.persist()
}

// Len returns the number of recorded issues.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
