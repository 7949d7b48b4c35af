package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a PendingOperation.
type Status string

// Operation statuses.
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusExecuted  Status = "executed"
	StatusFailed    Status = "failed"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusRejected, StatusExpired},
	StatusConfirmed: {StatusExecuted, StatusFailed},
}

// CanTransition reports whether s may move to next. Transitions are
// monotonic; nothing returns to pending.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Reasons recorded when an operation leaves pending without confirmation.
const (
	ReasonSuperseded = "superseded"
	ReasonCancelled  = "cancelled"
	ReasonTTL        = "ttl elapsed"
)

// PendingOperation is a validated unit of work awaiting explicit approval.
// Everything except Status, StatusReason, UpdatedAt and Result is fixed at
// construction. Conflict is set on proposals that re-offer an operation which
// collided with an existing record; Input keeps the original text so a failed
// operation can be resubmitted.
type PendingOperation struct {
	CreatedAt    time.Time        `json:"created_at"`
	ExpiresAt    time.Time        `json:"expires_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Result       *ExecutionResult `json:"result,omitempty"`
	Conflict     *Conflict        `json:"conflict,omitempty"`
	ID           string           `json:"id"`
	SessionID    string           `json:"session_id"`
	Kind         OperationKind    `json:"kind"`
	Path         ExtractionPath   `json:"path"`
	Status       Status           `json:"status"`
	StatusReason string           `json:"status_reason,omitempty"`
	Input        string           `json:"input,omitempty"`
	Params       NormalizedParams `json:"params"`
	Preview      []PreviewLine    `json:"preview"`
	Warnings     []string         `json:"warnings,omitempty"`
	Confidence   float64          `json:"confidence"`
}

// PreviewText renders the fixed-format preview: the kind on the first line,
// then one "field: value" line per field.
func (op PendingOperation) PreviewText() string {
	var sb strings.Builder
	sb.WriteString(op.Kind.Title())
	for _, line := range op.Preview {
		sb.WriteString("\n  ")
		sb.WriteString(line.Field)
		sb.WriteString(": ")
		sb.WriteString(line.Value)
	}
	return sb.String()
}

// Expired reports whether now is at or past the expiry.
func (op PendingOperation) Expired(now time.Time) bool {
	return !now.Before(op.ExpiresAt)
}

// Conflict identifies a record that collides with the operation's natural key.
type Conflict struct {
	Field    string `json:"field"`
	Value    string `json:"value"`
	RecordID int64  `json:"record_id"`
}

// ExecutionResult is the outcome of applying an operation.
type ExecutionResult struct {
	Conflict  *Conflict `json:"conflict,omitempty"`
	Error     string    `json:"error,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	RecordIDs []int64   `json:"record_ids,omitempty"`
	RecordID  int64     `json:"record_id,omitempty"`
	Success   bool      `json:"success"`
}
