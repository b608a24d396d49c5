// Package eventlog owns the authoritative event log.
//
// The in-memory slice is the canonical log; SQLite is a persisted
// mirror. Persistence failures never propagate past the call boundary:
// the in-memory log still updates and the failure is reported through
// the configured callback. Mutating operations are all-or-nothing with
// respect to the in-memory log.
//
// The derived snapshot is memoized behind an explicit dirty flag and
// recomputed lazily on the first read after any mutation.
package eventlog

import (
	"database/sql"
	"encoding/json"
	_ "embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/grove/internal/derive"
	"github.com/roach88/grove/internal/event"
)

//go:embed schema.sql
var schemaSQL string

// Store holds the canonical in-memory event list and its SQLite mirror.
// All operations are synchronous and atomic with respect to each other.
type Store struct {
	mu sync.Mutex

	db  *sql.DB // nil in memory-only mode
	log []event.Event

	// clientIDs indexes non-empty idempotency keys present in the log.
	clientIDs map[string]bool

	// Snapshot memoization: explicit dirty flag plus cached value.
	snap  *derive.Snapshot
	dirty bool

	now            func() time.Time
	onPersistError func(error)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the reference-instant source. Used by tests to
// pin derivation to a fixed instant.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPersistErrorHandler installs the side channel for persistence
// failures. Without one, failures are silently absorbed (the in-memory
// log is still authoritative).
func WithPersistErrorHandler(fn func(error)) Option {
	return func(s *Store) { s.onPersistError = fn }
}

// Open creates or opens the event log database at path and loads the
// persisted log into memory.
//
// The database is configured with WAL mode, NORMAL synchronous mode, a
// 5-second busy timeout, and a single connection (SQLite supports one
// writer at a time).
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect event log: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply event log schema: %w", err)
	}

	s := newStore(db, opts...)
	if err := s.loadPersisted(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory creates a memory-only store with no persisted mirror.
func OpenMemory(opts ...Option) *Store {
	return newStore(nil, opts...)
}

func newStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:        db,
		log:       []event.Event{},
		clientIDs: make(map[string]bool),
		dirty:     true,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the persisted mirror, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// loadPersisted reads the mirrored log in append order.
func (s *Store) loadPersisted() error {
	rows, err := s.db.Query(`SELECT payload FROM events ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("load event log: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan event row: %w", err)
		}
		var ev event.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			// A corrupt row must not make the whole log unreadable.
			continue
		}
		s.log = append(s.log, ev)
		if ev.ClientID != "" {
			s.clientIDs[ev.ClientID] = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate event rows: %w", err)
	}
	return nil
}

// Append adds an event to the tail of the log, invalidates the cached
// snapshot, and persists. Never reorders. Returns false if an event
// with the same idempotency key is already present (the append is a
// no-op).
func (s *Store) Append(ev event.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ClientID != "" && s.clientIDs[ev.ClientID] {
		return false
	}

	s.log = append(s.log, ev)
	if ev.ClientID != "" {
		s.clientIDs[ev.ClientID] = true
	}
	s.dirty = true

	s.persistAppend(ev)
	return true
}

// ContainsClientID reports whether an event with the given idempotency
// key is already in the log.
func (s *Store) ContainsClientID(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clientID != "" && s.clientIDs[clientID]
}

// ExportAll returns a copy of the full ordered log. Mutating the
// returned slice does not affect the store.
func (s *Store) ExportAll() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]event.Event, len(s.log))
	copy(out, s.log)
	return out
}

// Len returns the number of events in the log.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.log)
}

// ReplaceAll atomically discards the current log and installs events
// in their given order. An empty slice leaves the store valid and
// empty. Used by sync restore and explicit import.
func (s *Store) ReplaceAll(events []event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = make([]event.Event, len(events))
	copy(s.log, events)
	s.clientIDs = make(map[string]bool)
	for _, ev := range s.log {
		if ev.ClientID != "" {
			s.clientIDs[ev.ClientID] = true
		}
	}
	s.dirty = true

	s.persistReplace(s.log)
}

// Clear empties the log and removes persisted data.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = []event.Event{}
	s.clientIDs = make(map[string]bool)
	s.dirty = true

	if s.db == nil {
		return
	}
	if _, err := s.db.Exec(`DELETE FROM events`); err != nil {
		s.reportPersistError(fmt.Errorf("clear event log: %w", err))
	}
}

// Snapshot returns the derived state of the log. The result is
// memoized and recomputed lazily on the first read after a mutation.
func (s *Store) Snapshot() *derive.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty || s.snap == nil {
		s.snap = derive.Derive(s.log, s.now())
		s.dirty = false
	}
	return s.snap
}

// SnapshotAt derives state at an explicit reference instant, bypassing
// the memoized cache.
func (s *Store) SnapshotAt(now time.Time) *derive.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return derive.Derive(s.log, now)
}

// persistAppend mirrors one appended event. Failures go to the side
// channel; the in-memory log has already been updated.
func (s *Store) persistAppend(ev event.Event) {
	if s.db == nil {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		s.reportPersistError(fmt.Errorf("persist event: %w", err))
		return
	}

	_, err = s.db.Exec(`
		INSERT INTO events (client_id, type, timestamp, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, ev.ClientID, string(ev.Type), event.FormatTimestamp(ev.Timestamp), string(payload))
	if err != nil {
		s.reportPersistError(fmt.Errorf("persist event: %w", err))
	}
}

// persistReplace mirrors a full log replacement in one transaction.
func (s *Store) persistReplace(events []event.Event) {
	if s.db == nil {
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.reportPersistError(fmt.Errorf("replace event log: begin: %w", err))
		return
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM events`); err != nil {
		s.reportPersistError(fmt.Errorf("replace event log: delete: %w", err))
		return
	}

	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.reportPersistError(fmt.Errorf("replace event log: marshal: %w", err))
			return
		}
		_, err = tx.Exec(`
			INSERT INTO events (client_id, type, timestamp, payload)
			VALUES (?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, ev.ClientID, string(ev.Type), event.FormatTimestamp(ev.Timestamp), string(payload))
		if err != nil {
			s.reportPersistError(fmt.Errorf("replace event log: insert: %w", err))
			return
		}
	}

	if err := tx.Commit(); err != nil {
		s.reportPersistError(fmt.Errorf("replace event log: commit: %w", err))
	}
}

func (s *Store) reportPersistError(err error) {
	if s.onPersistError != nil {
		s.onPersistError(err)
	}
}
