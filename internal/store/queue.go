package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/studiokit/studiokit/internal/types"
)

// Enqueue durably appends an operation record and returns its assigned
// sequence id. A storage failure here is fatal to the triggering
// mutation and is propagated to the caller, never swallowed.
func (s *CacheStore) Enqueue(ctx context.Context, op types.Operation) (int64, error) {
	var payload any
	if len(op.Payload) > 0 {
		payload = string(op.Payload)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_queue (op_type, collection, target_id, owner_id, payload, idempotency_key, queued_at, settled)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, string(op.Type), string(op.Collection), op.TargetID, op.OwnerID, payload,
		op.IdempotencyKey, op.QueuedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("enqueue operation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue operation id: %w", err)
	}
	return id, nil
}

// ListUnsettled returns all unsettled operation records in ascending
// id order, which is the replay order.
func (s *CacheStore) ListUnsettled(ctx context.Context) ([]types.Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, op_type, collection, target_id, owner_id, payload, idempotency_key, queued_at, settled, last_error
		FROM sync_queue
		WHERE settled = 0
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query unsettled operations: %w", err)
	}
	defer rows.Close()

	var ops []types.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		ops = append(ops, *op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return ops, nil
}

// GetOperation returns a single operation record by id.
func (s *CacheStore) GetOperation(ctx context.Context, id int64) (*types.Operation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, op_type, collection, target_id, owner_id, payload, idempotency_key, queued_at, settled, last_error
		FROM sync_queue
		WHERE id = ?
	`, id)

	op, err := scanOperation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan operation: %w", err)
	}
	return op, nil
}

// MarkSettled records that the remote system confirmed the operation.
// Idempotent; settling an already-settled record is a no-op.
func (s *CacheStore) MarkSettled(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE sync_queue SET settled = 1, last_error = NULL WHERE id = ?", id); err != nil {
		return fmt.Errorf("mark settled %d: %w", id, err)
	}
	return nil
}

// MarkFailed records the latest failure on an unsettled record. A
// settled record is never touched, so a late failure report cannot
// resurrect it.
func (s *CacheStore) MarkFailed(ctx context.Context, id int64, failure string) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE sync_queue SET last_error = ? WHERE id = ? AND settled = 0", failure, id); err != nil {
		return fmt.Errorf("mark failed %d: %w", id, err)
	}
	return nil
}

// PruneSettled deletes settled records enqueued before the cutoff and
// returns how many were removed. Bounds operation-log growth.
func (s *CacheStore) PruneSettled(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sync_queue WHERE settled = 1 AND queued_at < ?",
		olderThan.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("prune settled: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune settled rows affected: %w", err)
	}
	return n, nil
}

// CountUnsettled returns the number of unsettled operation records.
func (s *CacheStore) CountUnsettled(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sync_queue WHERE settled = 0").Scan(&count); err != nil {
		return 0, fmt.Errorf("count unsettled: %w", err)
	}
	return count, nil
}

func scanOperation(scanner interface{ Scan(...any) error }) (*types.Operation, error) {
	var op types.Operation
	var opType, collection, queuedAt string
	var targetID, payload, lastError sql.NullString
	var settled int

	err := scanner.Scan(
		&op.ID,
		&opType,
		&collection,
		&targetID,
		&op.OwnerID,
		&payload,
		&op.IdempotencyKey,
		&queuedAt,
		&settled,
		&lastError,
	)
	if err != nil {
		return nil, err
	}

	op.Type = types.OpType(opType)
	op.Collection = types.Collection(collection)
	op.TargetID = targetID.String
	if payload.Valid {
		op.Payload = []byte(payload.String)
	}
	op.Settled = settled != 0
	op.LastError = lastError.String
	if t, err := time.Parse(time.RFC3339, queuedAt); err == nil {
		op.QueuedAt = t
	}

	return &op, nil
}
