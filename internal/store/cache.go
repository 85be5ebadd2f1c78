// Package store implements the durable local cache: one SQLite table
// per mirrored entity collection plus the offline operation log. Bulk
// writes and owner-scoped deletes are single transactions, so callers
// never observe a partial batch. The store reports storage failures to
// the caller and performs no retries of its own.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/studiokit/studiokit/internal/types"
	_ "modernc.org/sqlite"
)

// CacheStore is the SQLite-backed local mirror and operation log.
type CacheStore struct {
	db *sql.DB
}

// NewCacheStore opens (or creates) the cache database at dbPath,
// applies pragmas and runs migrations.
func NewCacheStore(dbPath string) (*CacheStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &CacheStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *CacheStore) Close() error {
	return s.db.Close()
}

// BulkUpsert inserts or overwrites rows by id within a single
// transaction. Every row must carry the same non-empty owner; a batch
// that does not is rejected whole with ErrOwnerMismatch.
func (s *CacheStore) BulkUpsert(ctx context.Context, collection types.Collection, rows []types.Row) error {
	if len(rows) == 0 {
		return nil
	}

	owner := rows[0].OwnerID
	for _, row := range rows {
		if row.OwnerID == "" || row.OwnerID != owner {
			return fmt.Errorf("bulk upsert %s: %w", collection, ErrOwnerMismatch)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL(collection))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, upsertArgs(collection, row, now)...); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", collection, row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// UpsertRow inserts or overwrites a single row.
func (s *CacheStore) UpsertRow(ctx context.Context, collection types.Collection, row types.Row) error {
	if row.OwnerID == "" {
		return fmt.Errorf("upsert %s: %w", collection, ErrOwnerMismatch)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, upsertSQL(collection), upsertArgs(collection, row, now)...); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, row.ID, err)
	}
	return nil
}

func upsertSQL(collection types.Collection) string {
	if collection == types.CollectionAppointments {
		return `
			INSERT INTO appointments (id, owner_id, status, scheduled_date, payload, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				owner_id = excluded.owner_id,
				status = excluded.status,
				scheduled_date = excluded.scheduled_date,
				payload = excluded.payload,
				updated_at = excluded.updated_at`
	}
	return fmt.Sprintf(`
		INSERT INTO %s (id, owner_id, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			payload = excluded.payload,
			updated_at = excluded.updated_at`, collection)
}

func upsertArgs(collection types.Collection, row types.Row, now string) []any {
	if collection == types.CollectionAppointments {
		status := row.Status
		if status == "" {
			status = string(types.AppointmentPending)
		}
		return []any{row.ID, row.OwnerID, status, row.ScheduledDate, string(row.Payload), now}
	}
	return []any{row.ID, row.OwnerID, string(row.Payload), now}
}

// GetRow returns a single cached row by id, scoped to the owner.
func (s *CacheStore) GetRow(ctx context.Context, collection types.Collection, id, ownerID string) (types.Row, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT payload FROM %s WHERE id = ? AND owner_id = ?", collection),
		id, ownerID).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.Row{}, ErrNotFound
		}
		return types.Row{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}

	row, err := types.RowFromJSON([]byte(payload))
	if err != nil {
		return types.Row{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return row, nil
}

// ListRows returns all cached rows of a collection scoped to the owner.
func (s *CacheStore) ListRows(ctx context.Context, collection types.Collection, ownerID string) ([]types.Row, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT payload FROM %s WHERE owner_id = ? ORDER BY id", collection),
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var out []types.Row
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		row, err := types.RowFromJSON([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return out, nil
}

// DeleteRow removes a cached row by id, scoped to the owner. Deleting
// an absent row is not an error.
func (s *CacheStore) DeleteRow(ctx context.Context, collection types.Collection, id, ownerID string) error {
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = ? AND owner_id = ?", collection),
		id, ownerID); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// ClearOwner deletes every cached row and operation record scoped to
// ownerID across all collections, within one transaction. Used on
// logout; no partial clear is observable.
func (s *CacheStore) ClearOwner(ctx context.Context, ownerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, collection := range types.Collections {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE owner_id = ?", collection), ownerID); err != nil {
			return fmt.Errorf("clear %s: %w", collection, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM sync_queue WHERE owner_id = ?", ownerID); err != nil {
		return fmt.Errorf("clear sync_queue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
