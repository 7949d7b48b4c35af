package engine

import (
	"context"

	"github.com/Veraticus/parcel/internal/executor"
	"github.com/Veraticus/parcel/internal/model"
)

// Resolver produces a candidate from raw text. It never fails.
type Resolver interface {
	Resolve(ctx context.Context, in model.RawInput, history []model.Exchange) model.Candidate
}

// Executor applies a confirmed operation to the record store.
type Executor interface {
	Execute(ctx context.Context, op model.PendingOperation, resolution executor.Resolution) (model.ExecutionResult, error)
}
