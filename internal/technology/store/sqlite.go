package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save replaces the persisted snapshot in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, snapshot map[string]any) error {
	rows := flatten(snapshot)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM component_state`); err != nil {
		return fmt.Errorf("clearing component state: %w", err)
	}

	query := `INSERT INTO component_state (kind, id, state, updated_at) VALUES (?, ?, ?, ?)`
	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range rows {
		blob, err := json.Marshal(r.state)
		if err != nil {
			return fmt.Errorf("marshalling %s %s: %w", r.kind, r.id, err)
		}
		if _, err := tx.ExecContext(ctx, query, r.kind, r.id, string(blob), now); err != nil {
			return fmt.Errorf("inserting %s %s: %w", r.kind, r.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// Load rebuilds the last saved snapshot.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]any, error) {
	query := `SELECT kind, id, state FROM component_state ORDER BY kind, id`
	result, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying component state: %w", err)
	}
	defer result.Close()

	var rows []row
	for result.Next() {
		var r row
		var blob string
		if err := result.Scan(&r.kind, &r.id, &blob); err != nil {
			return nil, fmt.Errorf("scanning component state: %w", err)
		}
		if err := json.Unmarshal([]byte(blob), &r.state); err != nil {
			return nil, fmt.Errorf("unmarshalling %s %s: %w", r.kind, r.id, err)
		}
		rows = append(rows, r)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterating component state: %w", err)
	}
	return rebuild(rows), nil
}
