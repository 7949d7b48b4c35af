package engine

import (
	"fmt"
	"strings"

	"github.com/Veraticus/parcel/internal/executor"
	"github.com/Veraticus/parcel/internal/model"
)

// Decision is the user's answer to a proposal.
type Decision string

// Decisions.
const (
	DecisionConfirm Decision = "confirm"
	DecisionReject  Decision = "reject"
)

// ParseDecision accepts confirm/reject and their common synonyms.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "confirm", "yes", "y", "ok", "approve":
		return DecisionConfirm, nil
	case "reject", "no", "n", "cancel":
		return DecisionReject, nil
	}
	return "", fmt.Errorf("unknown decision %q: want confirm or reject", s)
}

// ExtractionOutcome is the answer to a submission: either a proposal awaiting
// a decision or a clarification listing what to fix.
type ExtractionOutcome struct {
	Proposal       *model.PendingOperation `json:"proposal,omitempty"`
	Superseded     *model.PendingOperation `json:"superseded,omitempty"`
	Message        string                  `json:"message"`
	Path           model.ExtractionPath    `json:"path"`
	FallbackReason string                  `json:"fallback_reason,omitempty"`
	Errors         []model.FieldError      `json:"errors,omitempty"`
	LowConfidence  []string                `json:"low_confidence,omitempty"`
}

// IsProposal reports whether the submission produced a pending operation.
func (o ExtractionOutcome) IsProposal() bool {
	return o.Proposal != nil
}

// ConfirmationRequest decides a pending operation. Overrides are field edits
// applied, and re-validated, before confirming. Resolution applies when the
// operation collides with an existing record.
type ConfirmationRequest struct {
	Overrides   map[string]string   `json:"overrides,omitempty"`
	OperationID string              `json:"operation_id"`
	Decision    Decision            `json:"decision"`
	Resolution  executor.Resolution `json:"resolution,omitempty"`
}

// ExecutionOutcome reports a decision's effect. FollowUp is a fresh proposal
// offered when execution hit a conflict the user can resolve.
type ExecutionOutcome struct {
	Result    *model.ExecutionResult  `json:"result,omitempty"`
	FollowUp  *model.PendingOperation `json:"follow_up,omitempty"`
	Message   string                  `json:"message"`
	Operation model.PendingOperation  `json:"operation"`
	Errors    []model.FieldError      `json:"errors,omitempty"`
}
