package notify

import (
	"context"
	"log/slog"

	"github.com/Veraticus/parcel/internal/model"
)

// Log writes every event to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging notifier.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// ProposalReady implements service.Notifier.
func (l *Log) ProposalReady(ctx context.Context, op model.PendingOperation) {
	l.logger.InfoContext(ctx, "proposal ready",
		"operation_id", op.ID,
		"session_id", op.SessionID,
		"kind", op.Kind,
		"expires_at", op.ExpiresAt)
}

// ExecutionComplete implements service.Notifier.
func (l *Log) ExecutionComplete(ctx context.Context, op model.PendingOperation, result model.ExecutionResult) {
	if !result.Success {
		l.logger.WarnContext(ctx, "execution failed",
			"operation_id", op.ID,
			"session_id", op.SessionID,
			"kind", op.Kind,
			"error", result.Error)
		return
	}
	l.logger.InfoContext(ctx, "execution complete",
		"operation_id", op.ID,
		"session_id", op.SessionID,
		"kind", op.Kind,
		"record_id", result.RecordID,
		"warnings", len(result.Warnings))
}
