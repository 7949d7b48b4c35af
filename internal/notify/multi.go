package notify

import (
	"context"

	"github.com/Veraticus/parcel/internal/model"
	"github.com/Veraticus/parcel/internal/service"
)

// Multi forwards every event to each notifier in order.
type Multi []service.Notifier

// ProposalReady implements service.Notifier.
func (m Multi) ProposalReady(ctx context.Context, op model.PendingOperation) {
	for _, n := range m {
		n.ProposalReady(ctx, op)
	}
}

// ExecutionComplete implements service.Notifier.
func (m Multi) ExecutionComplete(ctx context.Context, op model.PendingOperation, result model.ExecutionResult) {
	for _, n := range m {
		n.ExecutionComplete(ctx, op, result)
	}
}
