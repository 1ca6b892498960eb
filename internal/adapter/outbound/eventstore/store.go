// Package eventstore provides an ephemeral, queryable buffer of security
// events backed by an in-memory SQLite database. It satisfies spec §6's
// "external sink" without violating the no-persistent-state Non-goal: the
// database lives only in process memory and vanishes on exit.
package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/veilgate/veilgate/internal/domain/secevent"
)

// Store is an in-memory SQLite-backed buffer of emitted security events.
type Store struct {
	db *sql.DB
}

// Open creates a fresh in-memory event store. Each Store gets its own
// isolated database (the DSN is unique per call) so multiple Stores in one
// process don't share state.
func Open() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("eventstore: opening database: %w", err)
	}
	// SQLite only supports one writer at a time; events are append-only
	// and low-volume enough that a single connection is sufficient and
	// avoids "database is locked" errors under concurrent Emit calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE security_events (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			kind          TEXT NOT NULL,
			connection_id TEXT NOT NULL,
			occurred_at   TEXT NOT NULL,
			details       TEXT NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventstore: creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Emit implements secevent.Sink. Insertion failures are swallowed after
// being surfaced via the returned error's absence — Emit has no error
// return (matching the Sink contract), so a failed insert is dropped rather
// than blocking the connection task that called it.
func (s *Store) Emit(event secevent.Event) {
	details, err := json.Marshal(event.Details)
	if err != nil {
		details = []byte("{}")
	}

	_, _ = s.db.Exec(
		`INSERT INTO security_events (kind, connection_id, occurred_at, details) VALUES (?, ?, ?, ?)`,
		string(event.Kind), event.ConnectionID, event.Timestamp.Format(time.RFC3339Nano), string(details),
	)
}

// Record is a row read back from the store.
type Record struct {
	Kind         secevent.Kind
	ConnectionID string
	OccurredAt   time.Time
	Details      map[string]interface{}
}

// Recent returns up to limit most recently emitted events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, connection_id, occurred_at, details FROM security_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("eventstore: querying recent events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			kind, connID, occurredAt, details string
		)
		if err := rows.Scan(&kind, &connID, &occurredAt, &details); err != nil {
			return nil, fmt.Errorf("eventstore: scanning row: %w", err)
		}

		ts, _ := time.Parse(time.RFC3339Nano, occurredAt)
		var detailsMap map[string]interface{}
		_ = json.Unmarshal([]byte(details), &detailsMap)

		out = append(out, Record{
			Kind:         secevent.Kind(kind),
			ConnectionID: connID,
			OccurredAt:   ts,
			Details:      detailsMap,
		})
	}
	return out, rows.Err()
}

// ByConnection returns every event emitted for connectionID, oldest first.
func (s *Store) ByConnection(ctx context.Context, connectionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, connection_id, occurred_at, details FROM security_events WHERE connection_id = ? ORDER BY id ASC`,
		connectionID)
	if err != nil {
		return nil, fmt.Errorf("eventstore: querying events for connection: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			kind, connID, occurredAt, details string
		)
		if err := rows.Scan(&kind, &connID, &occurredAt, &details); err != nil {
			return nil, fmt.Errorf("eventstore: scanning row: %w", err)
		}

		ts, _ := time.Parse(time.RFC3339Nano, occurredAt)
		var detailsMap map[string]interface{}
		_ = json.Unmarshal([]byte(details), &detailsMap)

		out = append(out, Record{
			Kind:         secevent.Kind(kind),
			ConnectionID: connID,
			OccurredAt:   ts,
			Details:      detailsMap,
		})
	}
	return out, rows.Err()
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ secevent.Sink = (*Store)(nil)
