package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mikanlink/pkg/db"
	"mikanlink/pkg/mikan"
)

// Store composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	StateStore
	AnchorStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		slog.Warn("Failed to read state", "key", key, "error", err)
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}

// --- Anchors ---

// SaveAnchors upserts every snapshot by name in one transaction. Anchors not
// in the slice are left alone; maintenance prunes the stale ones.
func (s *SQLiteStore) SaveAnchors(ctx context.Context, anchors []AnchorSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO anchor_snapshot (name, anchor_id, transform, updated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format("2006-01-02 15:04:05")
	for i := range anchors {
		a := &anchors[i]
		data, err := json.Marshal(a.Transform)
		if err != nil {
			return fmt.Errorf("failed to encode anchor %q: %w", a.Name, err)
		}
		if _, err := stmt.ExecContext(ctx, a.Name, int32(a.ID), string(data), now); err != nil {
			return fmt.Errorf("failed to save anchor %q: %w", a.Name, err)
		}
	}
	return tx.Commit()
}

// ListAnchors returns all snapshots ordered by name.
func (s *SQLiteStore) ListAnchors(ctx context.Context) ([]AnchorSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, anchor_id, transform, updated_at FROM anchor_snapshot ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnchorSnapshot
	for rows.Next() {
		var (
			a       AnchorSnapshot
			id      int32
			data    string
			updated sql.NullTime
		)
		if err := rows.Scan(&a.Name, &id, &data, &updated); err != nil {
			return nil, err
		}
		a.ID = mikan.AnchorID(id)
		a.UpdatedAt = updated.Time
		if err := json.Unmarshal([]byte(data), &a.Transform); err != nil {
			slog.Warn("Skipping corrupt anchor snapshot", "name", a.Name, "error", err)
			continue
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
