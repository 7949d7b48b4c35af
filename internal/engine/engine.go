// Package engine runs the text-to-mutation pipeline: extraction, validation,
// proposal, decision and execution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/parcel/internal/clarify"
	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/executor"
	"github.com/Veraticus/parcel/internal/model"
	"github.com/Veraticus/parcel/internal/proposal"
	"github.com/Veraticus/parcel/internal/service"
	"github.com/Veraticus/parcel/internal/validate"
)

// ErrEmptyInput is returned for submissions with no text.
var ErrEmptyInput = errors.New("nothing to process")

// Config holds pipeline settings.
type Config struct {
	ConfidenceThreshold float64
	HistoryTTL          time.Duration
	HistoryLimit        int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.7,
		HistoryTTL:          30 * time.Minute,
		HistoryLimit:        6,
	}
}

// Pipeline orchestrates submissions and decisions. Submissions within one
// session are serialized by a gate; sessions run independently.
type Pipeline struct {
	resolver  Resolver
	validator *validate.Validator
	builder   *proposal.Builder
	store     *proposal.Store
	executor  Executor
	responder *clarify.Responder
	notifier  service.Notifier
	logger    *slog.Logger
	sessions  *sessions
	cfg       Config
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithNotifier sends proposal and execution events to n.
func WithNotifier(n service.Notifier) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.notifier = n
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithResponder replaces the clarification responder.
func WithResponder(r *clarify.Responder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.responder = r
		}
	}
}

// New creates a pipeline from its collaborators.
func New(resolver Resolver, validator *validate.Validator, builder *proposal.Builder,
	store *proposal.Store, exec Executor, cfg Config, opts ...Option) *Pipeline {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfig().ConfidenceThreshold
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = DefaultConfig().HistoryTTL
	}
	p := &Pipeline{
		resolver:  resolver,
		validator: validator,
		builder:   builder,
		store:     store,
		executor:  exec,
		responder: clarify.New(),
		notifier:  nopNotifier{},
		logger:    slog.Default(),
		sessions:  newSessions(cfg.HistoryLimit, cfg.HistoryTTL),
		cfg:       cfg,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Submit turns raw text into a proposal or a clarification. A second
// submission for a session still being resolved fails with
// common.ErrSessionBusy.
func (p *Pipeline) Submit(ctx context.Context, in model.RawInput) (ExtractionOutcome, error) {
	if strings.TrimSpace(in.Text) == "" {
		return ExtractionOutcome{}, common.NewUserError("say what you would like to do", ErrEmptyInput)
	}
	if in.SessionID == "" {
		return ExtractionOutcome{}, fmt.Errorf("session ID is required")
	}
	if in.Source == "" {
		in.Source = model.SourceChat
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = time.Now()
	}

	release, ok := p.sessions.acquire(in.SessionID)
	if !ok {
		return ExtractionOutcome{}, common.ErrSessionBusy
	}
	defer release()

	cand := p.resolver.Resolve(ctx, in, p.sessions.history(in.SessionID))
	p.sessions.remember(in.SessionID, model.Exchange{Role: "user", Content: in.Text})

	outcome := ExtractionOutcome{Path: cand.Path, FallbackReason: cand.FallbackReason}
	params, errs := p.validator.Validate(cand)
	if len(errs) > 0 {
		outcome.Errors = errs
		outcome.Message = p.responder.ExplainErrors(errs)
		p.sessions.remember(in.SessionID, model.Exchange{Role: "assistant", Content: outcome.Message})
		p.logger.Info("Submission needs clarification",
			"session_id", in.SessionID,
			"kind", cand.Kind,
			"errors", len(errs))
		return outcome, nil
	}

	op := p.builder.Build(in.SessionID, params, cand)
	op.Input = in.Text
	superseded, err := p.store.Put(ctx, op)
	if err != nil {
		return ExtractionOutcome{}, fmt.Errorf("failed to store proposal: %w", err)
	}

	outcome.Proposal = &op
	outcome.Superseded = superseded
	outcome.LowConfidence = cand.LowConfidenceFields(p.cfg.ConfidenceThreshold)
	if cand.Confidence < p.cfg.ConfidenceThreshold || len(outcome.LowConfidence) > 0 {
		outcome.Message = p.responder.ExplainLowConfidence(cand, op, outcome.LowConfidence)
	} else {
		outcome.Message = p.responder.ExplainProposal(op)
	}
	p.sessions.remember(in.SessionID, model.Exchange{Role: "assistant", Content: outcome.Message})

	p.logger.Info("Proposal ready",
		"session_id", in.SessionID,
		"operation_id", op.ID,
		"kind", op.Kind,
		"path", op.Path,
		"confidence", op.Confidence)
	p.notifier.ProposalReady(ctx, op)
	return outcome, nil
}

// Decide confirms or rejects a pending operation. A confirmed operation is
// executed to completion even if ctx is cancelled once execution starts.
func (p *Pipeline) Decide(ctx context.Context, req ConfirmationRequest) (ExecutionOutcome, error) {
	if req.OperationID == "" {
		return ExecutionOutcome{}, fmt.Errorf("operation ID is required")
	}

	switch req.Decision {
	case DecisionReject:
		op, err := p.store.Reject(ctx, req.OperationID, model.ReasonCancelled)
		if err != nil {
			return p.refused(op, err)
		}
		p.logger.Info("Proposal rejected", "operation_id", op.ID, "session_id", op.SessionID)
		return ExecutionOutcome{Operation: op, Message: "Cancelled. Nothing was changed."}, nil
	case DecisionConfirm:
	default:
		return ExecutionOutcome{}, common.NewUserError("reply confirm or reject", fmt.Errorf("unknown decision %q", req.Decision))
	}

	id := req.OperationID
	if len(req.Overrides) > 0 {
		edited, outcome, err := p.applyOverrides(ctx, id, req.Overrides)
		if err != nil {
			return outcome, err
		}
		id = edited.ID
	}

	op, err := p.store.Confirm(ctx, id)
	if err != nil {
		return p.refused(op, err)
	}

	// The write must finish once started.
	execCtx := context.WithoutCancel(ctx)
	result, execErr := p.executor.Execute(execCtx, op, req.Resolution)
	final, err := p.store.Complete(execCtx, op.ID, result)
	if err != nil {
		p.logger.Error("Failed to record execution result", "operation_id", op.ID, "error", err)
		final = op
		final.Result = &result
	}
	p.notifier.ExecutionComplete(execCtx, final, result)

	outcome := ExecutionOutcome{Operation: final, Result: &result}
	var conflict *common.ConflictFailure
	if errors.As(execErr, &conflict) {
		followUp, ferr := p.offerResolution(execCtx, final, conflict.Conflict)
		if ferr != nil {
			p.logger.Error("Failed to offer conflict resolution", "operation_id", op.ID, "error", ferr)
			outcome.Message = p.responder.ExplainResult(final, result)
			return outcome, execErr
		}
		outcome.FollowUp = &followUp
		outcome.Message = p.responder.ExplainConflict(final.Kind.Entity(), conflict.Conflict)
		p.sessions.remember(final.SessionID, model.Exchange{Role: "assistant", Content: outcome.Message})
		return outcome, execErr
	}

	outcome.Message = p.responder.ExplainResult(final, result)
	p.sessions.remember(final.SessionID, model.Exchange{Role: "assistant", Content: outcome.Message})
	return outcome, execErr
}

// applyOverrides merges field edits into a pending operation, re-validates
// the result and replaces the operation with the rebuilt one.
func (p *Pipeline) applyOverrides(ctx context.Context, id string, overrides map[string]string) (model.PendingOperation, ExecutionOutcome, error) {
	op, err := p.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			err = &common.ConfirmationFailure{OperationID: id, Reason: common.ReasonNotFound}
		}
		outcome, err := p.refused(op, err)
		return model.PendingOperation{}, outcome, err
	}
	if op.Status != model.StatusPending {
		// Let the store report why it cannot be confirmed.
		got, err := p.store.Confirm(ctx, id)
		outcome, err := p.refused(got, err)
		return model.PendingOperation{}, outcome, err
	}

	raw := op.Params.Raw()
	var errs []model.FieldError
	for field, value := range overrides {
		field = strings.ToLower(strings.TrimSpace(field))
		if field == model.FieldName && raw.Client != nil {
			first, last := splitName(value)
			raw.Client.FirstName, raw.Client.LastName = first, last
			continue
		}
		if err := raw.Set(field, value); err != nil {
			errs = append(errs, model.FieldError{Field: field, Kind: model.ErrConflicting, Message: err.Error()})
		}
	}

	cand := model.Candidate{Kind: op.Kind, Params: raw, Path: op.Path, Confidence: op.Confidence}
	params, verrs := p.validator.Validate(cand)
	errs = append(errs, verrs...)
	if len(errs) > 0 {
		failure := &common.ValidationFailure{Errors: errs}
		return model.PendingOperation{}, ExecutionOutcome{
			Operation: op,
			Errors:    errs,
			Message:   p.responder.ExplainErrors(errs),
		}, failure
	}

	edited := p.builder.Build(op.SessionID, params, cand)
	edited.Input = op.Input
	edited.Conflict = op.Conflict
	if old, err := p.store.Replace(ctx, op.ID, edited); err != nil {
		var cf *common.ConfirmationFailure
		if errors.As(err, &cf) {
			outcome, err := p.refused(old, err)
			return model.PendingOperation{}, outcome, err
		}
		return model.PendingOperation{}, ExecutionOutcome{Operation: op}, fmt.Errorf("failed to store edited proposal: %w", err)
	}
	p.logger.Info("Proposal edited",
		"operation_id", op.ID,
		"replaced_by", edited.ID,
		"fields", len(overrides))
	p.notifier.ProposalReady(ctx, edited)
	return edited, ExecutionOutcome{}, nil
}

// offerResolution re-proposes an operation that collided with an existing
// record so the user can choose how to resolve it.
func (p *Pipeline) offerResolution(ctx context.Context, failed model.PendingOperation, c model.Conflict) (model.PendingOperation, error) {
	cand := model.Candidate{Kind: failed.Kind, Path: failed.Path, Confidence: failed.Confidence}
	followUp := p.builder.Build(failed.SessionID, failed.Params, cand)
	followUp.Input = failed.Input
	followUp.Conflict = &c
	if _, err := p.store.Put(ctx, followUp); err != nil {
		return model.PendingOperation{}, err
	}
	p.notifier.ProposalReady(ctx, followUp)
	return followUp, nil
}

func (p *Pipeline) refused(op model.PendingOperation, err error) (ExecutionOutcome, error) {
	var cf *common.ConfirmationFailure
	if errors.As(err, &cf) {
		p.logger.Info("Decision refused",
			"operation_id", cf.OperationID,
			"reason", cf.Reason,
			"status", cf.Status)
		return ExecutionOutcome{Operation: op, Message: p.responder.ExplainConfirmation(cf)}, err
	}
	return ExecutionOutcome{Operation: op}, err
}

// Get returns an operation held by the store.
func (p *Pipeline) Get(ctx context.Context, id string) (model.PendingOperation, error) {
	return p.store.Get(ctx, id)
}

// Pending returns the session's pending operation, if any.
func (p *Pipeline) Pending(ctx context.Context, sessionID string) (model.PendingOperation, bool) {
	return p.store.PendingFor(ctx, sessionID)
}

// History returns the session's remembered exchanges, oldest first.
func (p *Pipeline) History(sessionID string) []model.Exchange {
	return p.sessions.history(sessionID)
}

// Close stops the operation store's background sweep.
func (p *Pipeline) Close() {
	p.store.Close()
}

func splitName(full string) (first, last string) {
	fields := strings.Fields(full)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	}
	return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1]
}

type nopNotifier struct{}

func (nopNotifier) ProposalReady(context.Context, model.PendingOperation) {}
func (nopNotifier) ExecutionComplete(context.Context, model.PendingOperation, model.ExecutionResult) {
}

var _ Executor = (*executor.Executor)(nil)
