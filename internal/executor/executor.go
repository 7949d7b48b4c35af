// Package executor applies confirmed operations to the record store.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/model"
	"github.com/Veraticus/parcel/internal/service"
)

// Resolution says what to do when a create collides with an existing record.
type Resolution string

// Conflict resolutions. The zero value reports the conflict.
const (
	ResolutionNone    Resolution = ""
	ResolutionMerge   Resolution = "merge"
	ResolutionSkip    Resolution = "skip"
	ResolutionReplace Resolution = "replace"
)

// ErrUnknownResolution is returned by ParseResolution.
var ErrUnknownResolution = errors.New("unknown conflict resolution")

// ParseResolution accepts "", "merge", "skip" or "replace" in any case.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case ResolutionNone, ResolutionMerge, ResolutionSkip, ResolutionReplace:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResolution, s)
}

// Executor writes confirmed operations. Conflicts are checked against the
// store just before each write; the store's unique indexes have the final say.
type Executor struct {
	store  service.RecordStore
	logger *slog.Logger
}

// New creates an executor over store.
func New(store service.RecordStore, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: store, logger: logger}
}

// Execute applies op. The result is always populated; the error is one of
// *common.ConflictFailure, *common.UserError or *common.ExecutionFailure.
func (e *Executor) Execute(ctx context.Context, op model.PendingOperation, resolution Resolution) (model.ExecutionResult, error) {
	if op.Status != model.StatusConfirmed {
		err := &common.ExecutionFailure{Op: string(op.Kind), Err: fmt.Errorf("operation %s is %s, not confirmed", op.ID, op.Status)}
		return model.ExecutionResult{Error: err.Error()}, err
	}

	var (
		result model.ExecutionResult
		err    error
	)
	p := op.Params
	switch op.Kind {
	case model.KindCreateClient:
		result, err = e.apply(ctx, e.createClient(p.Client), resolution)
	case model.KindCreateProperty:
		result, err = e.apply(ctx, e.createProperty(p.Property), resolution)
	case model.KindCreateTransaction:
		var plan createPlan
		plan, err = e.createTransaction(ctx, p.Transaction)
		if err == nil {
			result, err = e.apply(ctx, plan, resolution)
		}
	case model.KindUpdateClient:
		result, err = e.updateClient(ctx, p.Target, p.Client)
	case model.KindUpdateProperty:
		result, err = e.updateProperty(ctx, p.Target, p.Property)
	case model.KindUpdateTransaction:
		result, err = e.updateTransaction(ctx, p.Target, p.Transaction)
	case model.KindFindClient:
		result, err = e.findClients(ctx, p.Target, p.Client)
	case model.KindFindProperty:
		result, err = e.findProperties(ctx, p.Target, p.Property)
	case model.KindFindTransaction:
		result, err = e.findTransactions(ctx, p.Target, p.Transaction)
	default:
		err = fmt.Errorf("unsupported operation kind %q", op.Kind)
	}

	if err != nil {
		err = classify(op.Kind, err)
		result.Success = false
		result.Error = err.Error()
		e.logger.Warn("Operation failed",
			"operation_id", op.ID,
			"kind", op.Kind,
			"error", err)
		return result, err
	}

	result.Success = true
	result.Warnings = append(append([]string(nil), op.Warnings...), result.Warnings...)
	e.logger.Info("Operation executed",
		"operation_id", op.ID,
		"kind", op.Kind,
		"record_id", result.RecordID,
		"matches", len(result.RecordIDs),
		"resolution", resolution)
	return result, nil
}

// classify leaves typed failures alone and wraps everything else as an
// ExecutionFailure.
func classify(kind model.OperationKind, err error) error {
	var conflict *common.ConflictFailure
	var user *common.UserError
	var exec *common.ExecutionFailure
	if errors.As(err, &conflict) || errors.As(err, &user) || errors.As(err, &exec) {
		return err
	}
	return &common.ExecutionFailure{Op: string(kind), Err: err}
}

// createPlan describes one create in terms of the store calls it needs.
type createPlan struct {
	insert  func(ctx context.Context) (int64, error)
	replace func(ctx context.Context, id int64) error
	merge   func(ctx context.Context, id int64) error
	entity  model.Entity
	keys    []naturalKey
}

type naturalKey struct {
	field string
	value string
}

// apply runs a create plan: conflict check, then insert or the chosen
// resolution against the competing record.
func (e *Executor) apply(ctx context.Context, plan createPlan, resolution Resolution) (model.ExecutionResult, error) {
	conflict, err := e.findConflict(ctx, plan.entity, plan.keys, 0)
	if err != nil {
		return model.ExecutionResult{}, err
	}

	if conflict == nil {
		id, insertErr := plan.insert(ctx)
		if insertErr == nil {
			return model.ExecutionResult{RecordID: id}, nil
		}
		if !errors.Is(insertErr, common.ErrDuplicateEntry) {
			return model.ExecutionResult{}, insertErr
		}
		// Lost the race to another writer; report whoever holds the key now.
		conflict, err = e.findConflict(ctx, plan.entity, plan.keys, 0)
		if err != nil {
			return model.ExecutionResult{}, err
		}
		if conflict == nil {
			conflict = &model.Conflict{}
			if len(plan.keys) > 0 {
				conflict.Field, conflict.Value = plan.keys[0].field, plan.keys[0].value
			}
		}
		return conflictResult(*conflict, insertErr)
	}

	switch resolution {
	case ResolutionSkip:
		return model.ExecutionResult{
			RecordID: conflict.RecordID,
			Warnings: []string{fmt.Sprintf("skipped: %s %d already has %s %s", plan.entity, conflict.RecordID, conflict.Field, conflict.Value)},
		}, nil
	case ResolutionReplace:
		if err := plan.replace(ctx, conflict.RecordID); err != nil {
			return e.writeFailure(ctx, plan, conflict.RecordID, err)
		}
		return model.ExecutionResult{
			RecordID: conflict.RecordID,
			Warnings: []string{fmt.Sprintf("replaced %s %d", plan.entity, conflict.RecordID)},
		}, nil
	case ResolutionMerge:
		if err := plan.merge(ctx, conflict.RecordID); err != nil {
			return e.writeFailure(ctx, plan, conflict.RecordID, err)
		}
		return model.ExecutionResult{
			RecordID: conflict.RecordID,
			Warnings: []string{fmt.Sprintf("merged into %s %d", plan.entity, conflict.RecordID)},
		}, nil
	default:
		return conflictResult(*conflict, common.ErrDuplicateEntry)
	}
}

// writeFailure reports a duplicate raised while resolving a conflict against
// record target as a conflict with some other record, any other error unchanged.
func (e *Executor) writeFailure(ctx context.Context, plan createPlan, target int64, err error) (model.ExecutionResult, error) {
	if !errors.Is(err, common.ErrDuplicateEntry) {
		return model.ExecutionResult{}, err
	}
	conflict, lookupErr := e.findConflict(ctx, plan.entity, plan.keys, target)
	if lookupErr != nil || conflict == nil {
		return model.ExecutionResult{}, err
	}
	return conflictResult(*conflict, err)
}

func conflictResult(c model.Conflict, err error) (model.ExecutionResult, error) {
	return model.ExecutionResult{Conflict: &c}, &common.ConflictFailure{Conflict: c, Err: err}
}

// findConflict returns the first natural key already held by a record other
// than exclude.
func (e *Executor) findConflict(ctx context.Context, entity model.Entity, keys []naturalKey, exclude int64) (*model.Conflict, error) {
	for _, k := range keys {
		if k.value == "" {
			continue
		}
		id, err := e.store.LookupID(ctx, entity, k.field, k.value)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if id == exclude {
			continue
		}
		return &model.Conflict{Field: k.field, Value: k.value, RecordID: id}, nil
	}
	return nil, nil
}
