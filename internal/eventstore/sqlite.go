package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using sqlite on a shared database handle.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore initializes the event schema on db and returns the store.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS build_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_build_events_build ON build_events(build_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("initialize event schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, buildID int64, eventType string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO build_events (build_id, event_type, timestamp, payload) VALUES (?, ?, ?, ?)`,
		buildID, eventType, time.Now().UnixNano(), payload)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetByBuildID(ctx context.Context, buildID int64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, build_id, event_type, timestamp, payload FROM build_events
		 WHERE build_id = ? ORDER BY id ASC`, buildID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var ts int64
		if err := rows.Scan(&e.ID, &e.BuildID, &e.Type, &ts, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}
