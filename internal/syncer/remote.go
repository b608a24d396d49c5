package syncer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/grove/internal/event"
)

// Row is one record of the remote event table.
type Row struct {
	ID              string
	UserID          string
	Type            string
	Payload         []byte // the Event in wire JSON
	ClientID        string
	ClientTimestamp time.Time
	CreatedAt       time.Time
}

// Remote is the thin transport contract the sync engine requires:
// ordered select with an optional lower bound, insert, and delete.
// Implementations carry their own authentication.
type Remote interface {
	// Select returns rows for userID with CreatedAt strictly after
	// the bound (all rows if the bound is the zero time), ordered by
	// CreatedAt ascending with ID as the tiebreaker.
	Select(ctx context.Context, userID string, after time.Time) ([]Row, error)

	// Insert stores a row. Re-inserting an existing (user, client id)
	// pair is a no-op.
	Insert(ctx context.Context, row Row) error

	// Delete removes a row by id.
	Delete(ctx context.Context, id string) error
}

// SQLiteRemote implements Remote against a local SQLite file. It
// stands in for the hosted event table when syncing between devices
// through a shared file, and exercises the same contract in tests.
type SQLiteRemote struct {
	db *sql.DB
}

// OpenSQLiteRemote creates or opens a remote event table at path.
func OpenSQLiteRemote(path string) (*SQLiteRemote, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open remote: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect remote: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS event_rows (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			type             TEXT NOT NULL,
			payload          TEXT NOT NULL,
			client_id        TEXT NOT NULL,
			client_timestamp TEXT NOT NULL,
			created_at       TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_event_rows_dedupe
			ON event_rows(user_id, client_id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create remote schema: %w", err)
	}

	return &SQLiteRemote{db: db}, nil
}

// Close releases the underlying database.
func (r *SQLiteRemote) Close() error {
	return r.db.Close()
}

// Select implements Remote. Timestamps are stored in the fixed wire
// format, so lexical ordering on created_at matches chronological.
func (r *SQLiteRemote) Select(ctx context.Context, userID string, after time.Time) ([]Row, error) {
	query := `
		SELECT id, user_id, type, payload, client_id, client_timestamp, created_at
		FROM event_rows
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`
	args := []any{userID}
	if !after.IsZero() {
		query = `
			SELECT id, user_id, type, payload, client_id, client_timestamp, created_at
			FROM event_rows
			WHERE user_id = ? AND created_at > ?
			ORDER BY created_at ASC, id ASC
		`
		args = append(args, event.FormatTimestamp(after))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select remote rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row               Row
			payload, clientTS string
			createdAt         string
		)
		if err := rows.Scan(&row.ID, &row.UserID, &row.Type, &payload, &row.ClientID, &clientTS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan remote row: %w", err)
		}
		row.Payload = []byte(payload)
		if t, err := event.ParseTimestamp(clientTS); err == nil {
			row.ClientTimestamp = t
		}
		if t, err := event.ParseTimestamp(createdAt); err == nil {
			row.CreatedAt = t
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate remote rows: %w", err)
	}

	if out == nil {
		out = []Row{}
	}
	return out, nil
}

// Insert implements Remote with (user_id, client_id) idempotency.
func (r *SQLiteRemote) Insert(ctx context.Context, row Row) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_rows (id, user_id, type, payload, client_id, client_timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		row.ID,
		row.UserID,
		row.Type,
		string(row.Payload),
		row.ClientID,
		event.FormatTimestamp(row.ClientTimestamp),
		event.FormatTimestamp(row.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert remote row: %w", err)
	}
	return nil
}

// Delete implements Remote.
func (r *SQLiteRemote) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM event_rows WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete remote row: %w", err)
	}
	return nil
}
