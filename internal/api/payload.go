package api

import (
	"time"

	"github.com/Veraticus/parcel/internal/engine"
	"github.com/Veraticus/parcel/internal/model"
)

// SubmitRequest carries free text for the pipeline.
type SubmitRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"sessionId"`
	Source    string `json:"source,omitempty"`
}

// ProposalPayload is a pending operation as shown to clients.
type ProposalPayload struct {
	ExpiresAt     time.Time           `json:"expiresAt"`
	Conflict      *model.Conflict     `json:"conflict,omitempty"`
	OperationID   string              `json:"operationId"`
	OperationKind model.OperationKind `json:"operationKind"`
	Message       string              `json:"message,omitempty"`
	Preview       []model.PreviewLine `json:"preview"`
	Warnings      []string            `json:"warnings,omitempty"`
}

// SubmitResponse answers a submission with a proposal or a clarification.
type SubmitResponse struct {
	Proposal      *ProposalPayload     `json:"proposal,omitempty"`
	Message       string               `json:"message"`
	Superseded    string               `json:"superseded,omitempty"`
	Path          model.ExtractionPath `json:"path,omitempty"`
	Errors        []model.FieldError   `json:"errors,omitempty"`
	LowConfidence []string             `json:"lowConfidence,omitempty"`
}

// DecideRequest confirms or rejects a proposal.
type DecideRequest struct {
	Overrides   map[string]string `json:"overrides,omitempty"`
	OperationID string            `json:"operationId"`
	Decision    string            `json:"decision"`
	Resolution  string            `json:"resolution,omitempty"`
}

// ExecutionPayload reports what an execution did.
type ExecutionPayload struct {
	Conflict  *model.Conflict `json:"conflict,omitempty"`
	Error     string          `json:"error,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
	RecordIDs []int64         `json:"recordIds,omitempty"`
	RecordID  int64           `json:"recordId,omitempty"`
	Success   bool            `json:"success"`
}

// DecideResponse answers a decision.
type DecideResponse struct {
	Result      *ExecutionPayload  `json:"result,omitempty"`
	FollowUp    *ProposalPayload   `json:"followUp,omitempty"`
	OperationID string             `json:"operationId"`
	Status      model.Status       `json:"status,omitempty"`
	Message     string             `json:"message"`
	Errors      []model.FieldError `json:"errors,omitempty"`
}

// OperationPayload is the full view of one operation.
type OperationPayload struct {
	CreatedAt     time.Time            `json:"createdAt"`
	ExpiresAt     time.Time            `json:"expiresAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
	Result        *ExecutionPayload    `json:"result,omitempty"`
	Conflict      *model.Conflict      `json:"conflict,omitempty"`
	OperationID   string               `json:"operationId"`
	SessionID     string               `json:"sessionId"`
	OperationKind model.OperationKind  `json:"operationKind"`
	Status        model.Status         `json:"status"`
	StatusReason  string               `json:"statusReason,omitempty"`
	Path          model.ExtractionPath `json:"path"`
	Preview       []model.PreviewLine  `json:"preview"`
	Warnings      []string             `json:"warnings,omitempty"`
	Confidence    float64              `json:"confidence"`
}

func proposalPayload(op *model.PendingOperation, message string) *ProposalPayload {
	if op == nil {
		return nil
	}
	return &ProposalPayload{
		OperationID:   op.ID,
		OperationKind: op.Kind,
		Preview:       op.Preview,
		ExpiresAt:     op.ExpiresAt,
		Warnings:      op.Warnings,
		Conflict:      op.Conflict,
		Message:       message,
	}
}

func executionPayload(res *model.ExecutionResult) *ExecutionPayload {
	if res == nil {
		return nil
	}
	return &ExecutionPayload{
		Success:   res.Success,
		RecordID:  res.RecordID,
		RecordIDs: res.RecordIDs,
		Warnings:  res.Warnings,
		Error:     res.Error,
		Conflict:  res.Conflict,
	}
}

func submitResponse(out engine.ExtractionOutcome) SubmitResponse {
	resp := SubmitResponse{
		Proposal:      proposalPayload(out.Proposal, out.Message),
		Message:       out.Message,
		Path:          out.Path,
		Errors:        out.Errors,
		LowConfidence: out.LowConfidence,
	}
	if out.Superseded != nil {
		resp.Superseded = out.Superseded.ID
	}
	return resp
}

func decideResponse(id string, out engine.ExecutionOutcome) DecideResponse {
	resp := DecideResponse{
		OperationID: id,
		Status:      out.Operation.Status,
		Result:      executionPayload(out.Result),
		FollowUp:    proposalPayload(out.FollowUp, ""),
		Message:     out.Message,
		Errors:      out.Errors,
	}
	if out.Operation.ID != "" {
		resp.OperationID = out.Operation.ID
	}
	return resp
}

func operationPayload(op model.PendingOperation) OperationPayload {
	return OperationPayload{
		OperationID:   op.ID,
		SessionID:     op.SessionID,
		OperationKind: op.Kind,
		Status:        op.Status,
		StatusReason:  op.StatusReason,
		Path:          op.Path,
		Preview:       op.Preview,
		Warnings:      op.Warnings,
		Confidence:    op.Confidence,
		CreatedAt:     op.CreatedAt,
		ExpiresAt:     op.ExpiresAt,
		UpdatedAt:     op.UpdatedAt,
		Result:        executionPayload(op.Result),
		Conflict:      op.Conflict,
	}
}

// toConfirmation converts a wire request, rejecting unknown decisions and
// resolutions.
func (r DecideRequest) toConfirmation() (engine.ConfirmationRequest, error) {
	decision, err := engine.ParseDecision(r.Decision)
	if err != nil {
		return engine.ConfirmationRequest{}, err
	}
	resolution, err := parseResolution(r.Resolution)
	if err != nil {
		return engine.ConfirmationRequest{}, err
	}
	return engine.ConfirmationRequest{
		OperationID: r.OperationID,
		Decision:    decision,
		Overrides:   r.Overrides,
		Resolution:  resolution,
	}, nil
}
