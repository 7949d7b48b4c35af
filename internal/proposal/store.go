package proposal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/model"
	"github.com/Veraticus/parcel/internal/service"
)

// Observer is told about every status transition.
type Observer interface {
	OperationTransitioned(from, to model.Status)
}

type nopObserver struct{}

func (nopObserver) OperationTransitioned(model.Status, model.Status) {}

// Store holds pending operations in memory. It is the single source of truth
// for operation status; every transition happens under its lock.
type Store struct {
	now              func() time.Time
	archiver         service.Archiver
	observer         Observer
	ops              map[string]*model.PendingOperation
	pendingBySession map[string]string
	logger           *slog.Logger
	stopCh           chan struct{}
	doneCh           chan struct{}
	retention        time.Duration
	sweepInterval    time.Duration
	closeOnce        sync.Once
	mu               sync.Mutex
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithArchiver persists operations once they reach a terminal status.
func WithArchiver(a service.Archiver) StoreOption {
	return func(s *Store) { s.archiver = a }
}

// WithObserver reports transitions to o.
func WithObserver(o Observer) StoreOption {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithStoreClock replaces the store's clock.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRetention sets how long terminal operations stay in memory.
func WithRetention(d time.Duration) StoreOption {
	return func(s *Store) { s.retention = d }
}

// WithSweepInterval sets the background sweep period. Zero disables the
// background loop; SweepExpired can still be called directly.
func WithSweepInterval(d time.Duration) StoreOption {
	return func(s *Store) { s.sweepInterval = d }
}

// NewStore creates a store and starts its sweep loop.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		now:              time.Now,
		observer:         nopObserver{},
		ops:              make(map[string]*model.PendingOperation),
		pendingBySession: make(map[string]string),
		logger:           slog.Default(),
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
		retention:        time.Hour,
		sweepInterval:    30 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}

	if s.sweepInterval > 0 {
		go s.sweepLoop()
	} else {
		close(s.doneCh)
	}
	return s
}

// Put stores a new pending operation. Any operation still pending for the
// same session is rejected as superseded first, under the same lock, and
// returned.
func (s *Store) Put(ctx context.Context, op model.PendingOperation) (*model.PendingOperation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if op.ID == "" {
		return nil, fmt.Errorf("operation ID is required")
	}
	if op.SessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	if op.Status != model.StatusPending {
		return nil, fmt.Errorf("operation %s must be pending to be stored, got %s", op.ID, op.Status)
	}

	s.mu.Lock()
	if _, exists := s.ops[op.ID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("operation already exists: %s", op.ID)
	}

	now := s.now()
	var superseded *model.PendingOperation
	if prevID, ok := s.pendingBySession[op.SessionID]; ok {
		if prev := s.ops[prevID]; prev != nil && s.transition(prev, model.StatusRejected, model.ReasonSuperseded, now) {
			c := clone(*prev)
			superseded = &c
		}
	}

	stored := clone(op)
	s.ops[op.ID] = &stored
	s.pendingBySession[op.SessionID] = op.ID
	s.mu.Unlock()

	if superseded != nil {
		s.logger.Info("proposal superseded",
			"operation_id", superseded.ID,
			"session_id", superseded.SessionID,
			"replaced_by", op.ID)
		s.archive(ctx, *superseded)
	}
	return superseded, nil
}

// Replace swaps the pending operation oldID for edited in one step. oldID is
// rejected as superseded only if it is still pending; otherwise nothing is
// stored and a ConfirmationFailure says why.
func (s *Store) Replace(ctx context.Context, oldID string, edited model.PendingOperation) (model.PendingOperation, error) {
	if err := validateContext(ctx); err != nil {
		return model.PendingOperation{}, err
	}
	if edited.ID == "" || edited.Status != model.StatusPending {
		return model.PendingOperation{}, fmt.Errorf("replacement for %s must be a pending operation with an ID", oldID)
	}

	s.mu.Lock()
	old, ok := s.ops[oldID]
	if !ok {
		s.mu.Unlock()
		return model.PendingOperation{}, &common.ConfirmationFailure{OperationID: oldID, Reason: common.ReasonNotFound}
	}
	if _, exists := s.ops[edited.ID]; exists {
		s.mu.Unlock()
		return model.PendingOperation{}, fmt.Errorf("operation already exists: %s", edited.ID)
	}

	now := s.now()
	if s.expireLocked(old, now) {
		out := clone(*old)
		s.mu.Unlock()
		s.archive(ctx, out)
		return out, &common.ConfirmationFailure{OperationID: oldID, Status: out.Status, Reason: common.ReasonExpired}
	}
	if old.Status != model.StatusPending {
		out := clone(*old)
		s.mu.Unlock()
		why := common.ReasonNotPending
		if out.Status == model.StatusExpired {
			why = common.ReasonExpired
		}
		return out, &common.ConfirmationFailure{OperationID: oldID, Status: out.Status, Reason: why}
	}

	s.transition(old, model.StatusRejected, model.ReasonSuperseded, now)
	superseded := clone(*old)
	edited.SessionID = old.SessionID
	stored := clone(edited)
	s.ops[edited.ID] = &stored
	s.pendingBySession[edited.SessionID] = edited.ID
	s.mu.Unlock()

	s.logger.Info("proposal edited",
		"operation_id", superseded.ID,
		"session_id", superseded.SessionID,
		"replaced_by", edited.ID)
	s.archive(ctx, superseded)
	return superseded, nil
}

// Get returns a copy of the operation. A pending operation past its expiry
// is moved to expired before being returned.
func (s *Store) Get(ctx context.Context, id string) (model.PendingOperation, error) {
	if err := validateContext(ctx); err != nil {
		return model.PendingOperation{}, err
	}
	if id == "" {
		return model.PendingOperation{}, fmt.Errorf("operation ID is required")
	}

	s.mu.Lock()
	op, ok := s.ops[id]
	if !ok {
		s.mu.Unlock()
		return model.PendingOperation{}, fmt.Errorf("operation not found: %s: %w", id, common.ErrNotFound)
	}
	expired := s.expireLocked(op, s.now())
	out := clone(*op)
	s.mu.Unlock()

	if expired {
		s.archive(ctx, out)
	}
	return out, nil
}

// Confirm moves a pending operation to confirmed. Exactly one of any number
// of concurrent callers succeeds; the others get a ConfirmationFailure.
func (s *Store) Confirm(ctx context.Context, id string) (model.PendingOperation, error) {
	return s.decide(ctx, id, model.StatusConfirmed, "")
}

// Reject moves a pending operation to rejected with the given reason.
func (s *Store) Reject(ctx context.Context, id, reason string) (model.PendingOperation, error) {
	if reason == "" {
		reason = model.ReasonCancelled
	}
	return s.decide(ctx, id, model.StatusRejected, reason)
}

func (s *Store) decide(ctx context.Context, id string, to model.Status, reason string) (model.PendingOperation, error) {
	if err := validateContext(ctx); err != nil {
		return model.PendingOperation{}, err
	}

	s.mu.Lock()
	op, ok := s.ops[id]
	if !ok {
		s.mu.Unlock()
		return model.PendingOperation{}, &common.ConfirmationFailure{OperationID: id, Reason: common.ReasonNotFound}
	}

	now := s.now()
	if s.expireLocked(op, now) {
		out := clone(*op)
		s.mu.Unlock()
		s.archive(ctx, out)
		return out, &common.ConfirmationFailure{OperationID: id, Status: out.Status, Reason: common.ReasonExpired}
	}

	if op.Status != model.StatusPending {
		out := clone(*op)
		s.mu.Unlock()
		why := common.ReasonNotPending
		if out.Status == model.StatusExpired {
			why = common.ReasonExpired
		}
		return out, &common.ConfirmationFailure{OperationID: id, Status: out.Status, Reason: why}
	}

	s.transition(op, to, reason, now)
	out := clone(*op)
	s.mu.Unlock()

	if out.Status.Terminal() {
		s.archive(ctx, out)
	}
	return out, nil
}

// Complete records the execution result of a confirmed operation, moving it
// to executed or failed.
func (s *Store) Complete(ctx context.Context, id string, result model.ExecutionResult) (model.PendingOperation, error) {
	if err := validateContext(ctx); err != nil {
		return model.PendingOperation{}, err
	}

	to := model.StatusFailed
	if result.Success {
		to = model.StatusExecuted
	}

	s.mu.Lock()
	op, ok := s.ops[id]
	if !ok {
		s.mu.Unlock()
		return model.PendingOperation{}, fmt.Errorf("operation not found: %s: %w", id, common.ErrNotFound)
	}
	if !s.transition(op, to, result.Error, s.now()) {
		status := op.Status
		s.mu.Unlock()
		return model.PendingOperation{}, fmt.Errorf("operation %s cannot move from %s to %s", id, status, to)
	}
	res := result
	op.Result = &res
	out := clone(*op)
	s.mu.Unlock()

	s.archive(ctx, out)
	return out, nil
}

// PendingFor returns the session's pending operation, if any.
func (s *Store) PendingFor(ctx context.Context, sessionID string) (model.PendingOperation, bool) {
	s.mu.Lock()
	id, ok := s.pendingBySession[sessionID]
	if !ok {
		s.mu.Unlock()
		return model.PendingOperation{}, false
	}
	op := s.ops[id]
	expired := s.expireLocked(op, s.now())
	out := clone(*op)
	s.mu.Unlock()

	if expired {
		s.archive(ctx, out)
		return model.PendingOperation{}, false
	}
	return out, true
}

// ListBySession returns the session's operations still held in memory,
// oldest first.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]model.PendingOperation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ops []model.PendingOperation
	for _, op := range s.ops {
		if op.SessionID == sessionID {
			ops = append(ops, clone(*op))
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].CreatedAt.Before(ops[j].CreatedAt)
	})
	return ops, nil
}

// SweepExpired moves every stale pending operation to expired and evicts
// terminal operations older than the retention window. It returns the
// number of operations expired.
func (s *Store) SweepExpired(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var expired []model.PendingOperation
	for id, op := range s.ops {
		if s.expireLocked(op, now) {
			expired = append(expired, clone(*op))
			continue
		}
		if op.Status.Terminal() && s.retention > 0 && now.Sub(op.UpdatedAt) >= s.retention {
			delete(s.ops, id)
		}
	}
	s.mu.Unlock()

	for _, op := range expired {
		s.logger.Info("proposal expired", "operation_id", op.ID, "session_id", op.SessionID)
		s.archive(ctx, op)
	}
	return len(expired)
}

// Len returns the number of operations held in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

// Close stops the sweep loop and waits for it to exit.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
}

func (s *Store) sweepLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepExpired(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// expireLocked moves op to expired when it is pending and past its expiry.
func (s *Store) expireLocked(op *model.PendingOperation, now time.Time) bool {
	if op.Status != model.StatusPending || !op.Expired(now) {
		return false
	}
	return s.transition(op, model.StatusExpired, model.ReasonTTL, now)
}

// transition applies a status change if the state machine allows it.
func (s *Store) transition(op *model.PendingOperation, to model.Status, reason string, now time.Time) bool {
	from := op.Status
	if !from.CanTransition(to) {
		return false
	}
	op.Status = to
	op.StatusReason = reason
	op.UpdatedAt = now
	if from == model.StatusPending && s.pendingBySession[op.SessionID] == op.ID {
		delete(s.pendingBySession, op.SessionID)
	}
	s.observer.OperationTransitioned(from, to)
	return true
}

// archive hands a terminal operation to the archiver. Failures are logged;
// the in-memory copy stays authoritative.
func (s *Store) archive(ctx context.Context, op model.PendingOperation) {
	if s.archiver == nil || !op.Status.Terminal() {
		return
	}
	if err := s.archiver.ArchiveOperation(context.WithoutCancel(ctx), op); err != nil {
		s.logger.Error("failed to archive operation",
			"operation_id", op.ID,
			"status", op.Status,
			"error", err)
	}
}

func clone(op model.PendingOperation) model.PendingOperation {
	op.Preview = append([]model.PreviewLine(nil), op.Preview...)
	op.Warnings = append([]string(nil), op.Warnings...)
	if op.Result != nil {
		r := *op.Result
		r.Warnings = append([]string(nil), r.Warnings...)
		r.RecordIDs = append([]int64(nil), r.RecordIDs...)
		op.Result = &r
	}
	if op.Conflict != nil {
		c := *op.Conflict
		op.Conflict = &c
	}
	return op
}

// validateContext ensures the context is valid.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
