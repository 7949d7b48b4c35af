// Package notify fans proposal and execution events out to logs, browser
// websockets and NATS subscribers.
package notify

import (
	"time"

	"github.com/Veraticus/parcel/internal/model"
)

// EventType names a pipeline event.
type EventType string

// Event types.
const (
	EventProposalReady     EventType = "proposal.ready"
	EventExecutionComplete EventType = "execution.complete"
)

// Event is the payload published for every notification.
type Event struct {
	At          time.Time              `json:"at"`
	ExpiresAt   *time.Time             `json:"expires_at,omitempty"`
	Result      *model.ExecutionResult `json:"result,omitempty"`
	Conflict    *model.Conflict        `json:"conflict,omitempty"`
	Type        EventType              `json:"type"`
	OperationID string                 `json:"operation_id"`
	SessionID   string                 `json:"session_id"`
	Kind        model.OperationKind    `json:"kind"`
	Status      model.Status           `json:"status"`
	Preview     []model.PreviewLine    `json:"preview,omitempty"`
}

func proposalEvent(op model.PendingOperation) Event {
	expires := op.ExpiresAt
	return Event{
		At:          time.Now(),
		Type:        EventProposalReady,
		OperationID: op.ID,
		SessionID:   op.SessionID,
		Kind:        op.Kind,
		Status:      op.Status,
		Preview:     op.Preview,
		ExpiresAt:   &expires,
		Conflict:    op.Conflict,
	}
}

func executionEvent(op model.PendingOperation, result model.ExecutionResult) Event {
	res := result
	return Event{
		At:          time.Now(),
		Type:        EventExecutionComplete,
		OperationID: op.ID,
		SessionID:   op.SessionID,
		Kind:        op.Kind,
		Status:      op.Status,
		Result:      &res,
	}
}
