// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/parcel/internal/model"
)

// Inferrer sends a prompt to an inference service and returns its raw reply.
type Inferrer interface {
	Complete(ctx context.Context, system string, messages []model.Exchange) (string, error)
}

// RecordStore defines the contract for the record persistence layer.
type RecordStore interface {
	// Client operations
	CreateClient(ctx context.Context, client *model.Client) error
	UpdateClient(ctx context.Context, client *model.Client) error
	GetClient(ctx context.Context, id int64) (*model.Client, error)
	FindClients(ctx context.Context, filter model.RecordFilter) ([]model.Client, error)

	// Property operations
	CreateProperty(ctx context.Context, property *model.Property) error
	UpdateProperty(ctx context.Context, property *model.Property) error
	GetProperty(ctx context.Context, id int64) (*model.Property, error)
	FindProperties(ctx context.Context, filter model.RecordFilter) ([]model.Property, error)

	// Transaction operations
	CreateTransaction(ctx context.Context, txn *model.Transaction) error
	UpdateTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	FindTransactions(ctx context.Context, filter model.RecordFilter) ([]model.Transaction, error)

	// LookupID returns the id of the record of the given entity whose
	// natural-key field equals value, or common.ErrNotFound.
	LookupID(ctx context.Context, entity model.Entity, field, value string) (int64, error)
}

// Archiver persists terminal operations for the audit trail.
type Archiver interface {
	ArchiveOperation(ctx context.Context, op model.PendingOperation) error
}

// OperationFilter narrows audit queries.
type OperationFilter struct {
	Since     *time.Time
	SessionID string
	Status    model.Status
	Limit     int
}

// AuditLog reads archived operations.
type AuditLog interface {
	Archiver
	GetArchivedOperation(ctx context.Context, id string) (*model.PendingOperation, error)
	ListArchivedOperations(ctx context.Context, filter OperationFilter) ([]model.PendingOperation, error)
}

// Notifier is told about proposal and execution events.
type Notifier interface {
	ProposalReady(ctx context.Context, op model.PendingOperation)
	ExecutionComplete(ctx context.Context, op model.PendingOperation, result model.ExecutionResult)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
