package syncer

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// PendingSet tracks idempotency keys of events appended locally but
// not yet confirmed remote. It is persisted independently of the event
// log; persistence failures are swallowed, never thrown — the
// in-memory set stays correct for the session either way.
type PendingSet struct {
	mu  sync.Mutex
	ids map[string]bool
	db  *sql.DB // nil in memory-only mode
}

// OpenPendingSet opens (or creates) the persisted pending set at path
// and loads it into memory.
func OpenPendingSet(path string) (*PendingSet, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open pending set: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect pending set: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS pending_uploads (
			client_id TEXT PRIMARY KEY
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create pending set schema: %w", err)
	}

	p := &PendingSet{ids: make(map[string]bool), db: db}

	rows, err := db.Query(`SELECT client_id FROM pending_uploads`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load pending set: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			db.Close()
			return nil, fmt.Errorf("scan pending id: %w", err)
		}
		p.ids[id] = true
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("iterate pending ids: %w", err)
	}

	return p, nil
}

// NewPendingSet creates a memory-only pending set.
func NewPendingSet() *PendingSet {
	return &PendingSet{ids: make(map[string]bool)}
}

// Close releases the persisted mirror, if any.
func (p *PendingSet) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Add records an identifier as pending upload. Adding an identifier
// that is already present is a no-op; the count does not increase.
func (p *PendingSet) Add(clientID string) {
	if clientID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ids[clientID] {
		return
	}
	p.ids[clientID] = true

	if p.db != nil {
		// Persistence failure swallowed; the set remains correct in memory.
		_, _ = p.db.Exec(`INSERT INTO pending_uploads (client_id) VALUES (?) ON CONFLICT DO NOTHING`, clientID)
	}
}

// Remove drops an identifier. Removing an absent identifier is a no-op.
func (p *PendingSet) Remove(clientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ids[clientID] {
		return
	}
	delete(p.ids, clientID)

	if p.db != nil {
		_, _ = p.db.Exec(`DELETE FROM pending_uploads WHERE client_id = ?`, clientID)
	}
}

// Contains reports whether an identifier is pending.
func (p *PendingSet) Contains(clientID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ids[clientID]
}

// Count returns the number of pending identifiers.
func (p *PendingSet) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

// List returns the pending identifiers in sorted order.
func (p *PendingSet) List() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.ids))
	for id := range p.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
