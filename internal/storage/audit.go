package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/model"
	"github.com/Veraticus/parcel/internal/service"
)

// ArchiveOperation records a terminal operation in the audit trail. Archiving
// the same operation again replaces the earlier row.
func (s *SQLiteStorage) ArchiveOperation(ctx context.Context, op model.PendingOperation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateOperation(&op); err != nil {
		return err
	}

	payload, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to encode operation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO operation_audit (
			id, session_id, kind, status, status_reason, path, confidence,
			payload, created_at, updated_at, archived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			status_reason = excluded.status_reason,
			payload = excluded.payload,
			updated_at = excluded.updated_at,
			archived_at = excluded.archived_at
	`, op.ID, op.SessionID, string(op.Kind), string(op.Status), op.StatusReason, string(op.Path),
		op.Confidence, string(payload), op.CreatedAt.UTC(), op.UpdatedAt.UTC(), s.now())
	if err != nil {
		return fmt.Errorf("failed to archive operation: %w", err)
	}
	return nil
}

// GetArchivedOperation returns an archived operation by ID.
func (s *SQLiteStorage) GetArchivedOperation(ctx context.Context, id string) (*model.PendingOperation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM operation_audit WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("operation %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archived operation: %w", err)
	}

	var op model.PendingOperation
	if err := json.Unmarshal([]byte(payload), &op); err != nil {
		return nil, fmt.Errorf("failed to decode operation %s: %w", id, err)
	}
	return &op, nil
}

// ListArchivedOperations returns archived operations, most recent first.
func (s *SQLiteStorage) ListArchivedOperations(ctx context.Context, filter service.OperationFilter) ([]model.PendingOperation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "updated_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := `SELECT payload FROM operation_audit`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ops []model.PendingOperation
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		var op model.PendingOperation
		if err := json.Unmarshal([]byte(payload), &op); err != nil {
			return nil, fmt.Errorf("failed to decode operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
