package proposal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/model"
)

type testClock struct {
	t  time.Time
	mu sync.Mutex
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memArchiver struct {
	err error
	ops []model.PendingOperation
	mu  sync.Mutex
}

func (a *memArchiver) ArchiveOperation(_ context.Context, op model.PendingOperation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ops = append(a.ops, op)
	return a.err
}

func (a *memArchiver) statuses() map[string]model.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]model.Status, len(a.ops))
	for _, op := range a.ops {
		out[op.ID] = op.Status
	}
	return out
}

type countingObserver struct {
	counts map[string]int
	mu     sync.Mutex
}

func (o *countingObserver) OperationTransitioned(from, to model.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[string(from)+"->"+string(to)]++
}

type fixture struct {
	store    *Store
	builder  *Builder
	clock    *testClock
	archiver *memArchiver
}

func newFixture(t *testing.T, opts ...StoreOption) *fixture {
	t.Helper()
	clock := newTestClock()
	archiver := &memArchiver{}
	var seq int
	builder := NewBuilder(DefaultTTL,
		WithBuilderClock(clock.now),
		WithIDFunc(func() string {
			seq++
			return fmt.Sprintf("op-%d", seq)
		}))
	opts = append([]StoreOption{
		WithStoreClock(clock.now),
		WithArchiver(archiver),
		WithSweepInterval(0),
	}, opts...)
	store := NewStore(opts...)
	t.Cleanup(store.Close)
	return &fixture{store: store, builder: builder, clock: clock, archiver: archiver}
}

func (f *fixture) propose(t *testing.T, session, email string) model.PendingOperation {
	t.Helper()
	op := f.builder.Build(session, model.NormalizedParams{
		Kind:   model.KindCreateClient,
		Client: &model.ClientFields{FirstName: "Jane", LastName: "Doe", Email: email},
	}, model.Candidate{Path: model.PathInference, Confidence: 0.9})
	_, err := f.store.Put(context.Background(), op)
	require.NoError(t, err)
	return op
}

func TestStore_PutAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	op := f.propose(t, "s1", "jane@example.com")

	got, err := f.store.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, op, got)

	_, err = f.store.Get(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.store.Get(ctx, "")
	assert.ErrorContains(t, err, "ID is required")

	_, err = f.store.Put(ctx, op)
	assert.ErrorContains(t, err, "already exists")

	op.ID = "op-x"
	op.Status = model.StatusConfirmed
	_, err = f.store.Put(ctx, op)
	assert.ErrorContains(t, err, "must be pending")

	//nolint:staticcheck // nil context is the case under test
	_, err = f.store.Get(nil, "op-1")
	assert.ErrorContains(t, err, "context cannot be nil")
}

func TestStore_PutSupersedesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.propose(t, "s1", "jane@example.com")
	other := f.propose(t, "s2", "sam@example.com")

	second := f.builder.Build("s1", model.NormalizedParams{
		Kind:   model.KindCreateClient,
		Client: &model.ClientFields{FirstName: "John", LastName: "Roe", Email: "john@example.com"},
	}, model.Candidate{})
	superseded, err := f.store.Put(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, superseded)
	assert.Equal(t, first.ID, superseded.ID)
	assert.Equal(t, model.StatusRejected, superseded.Status)
	assert.Equal(t, model.ReasonSuperseded, superseded.StatusReason)

	got, err := f.store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)

	pending, ok := f.store.PendingFor(ctx, "s1")
	require.True(t, ok)
	assert.Equal(t, second.ID, pending.ID)

	untouched, err := f.store.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, untouched.Status, "other sessions are unaffected")

	assert.Equal(t, model.StatusRejected, f.archiver.statuses()[first.ID])

	ops, err := f.store.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, ops, 2)
	pendingCount := 0
	for _, op := range ops {
		if op.Status == model.StatusPending {
			pendingCount++
		}
	}
	assert.Equal(t, 1, pendingCount, "at most one pending operation per session")
}

func TestStore_Replace(t *testing.T) {
	edit := func(f *fixture) model.PendingOperation {
		return f.builder.Build("s1", model.NormalizedParams{
			Kind:   model.KindCreateClient,
			Client: &model.ClientFields{FirstName: "Jane", LastName: "Doe", Email: "other@example.com"},
		}, model.Candidate{})
	}

	tests := []struct {
		prepare    func(t *testing.T, f *fixture, id string)
		name       string
		wantReason string
	}{
		{name: "pending original is superseded"},
		{
			name: "confirmed original is kept",
			prepare: func(t *testing.T, f *fixture, id string) {
				t.Helper()
				_, err := f.store.Confirm(context.Background(), id)
				require.NoError(t, err)
			},
			wantReason: common.ReasonNotPending,
		},
		{
			name: "expired original is kept",
			prepare: func(_ *testing.T, f *fixture, _ string) {
				f.clock.advance(DefaultTTL + time.Second)
			},
			wantReason: common.ReasonExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			op := f.propose(t, "s1", "jane@example.com")
			if tt.prepare != nil {
				tt.prepare(t, f, op.ID)
			}

			edited := edit(f)
			old, err := f.store.Replace(ctx, op.ID, edited)
			if tt.wantReason != "" {
				var cf *common.ConfirmationFailure
				require.ErrorAs(t, err, &cf)
				assert.Equal(t, tt.wantReason, cf.Reason)
				_, err = f.store.Get(ctx, edited.ID)
				assert.ErrorIs(t, err, common.ErrNotFound, "the edit is not stored")
				_, ok := f.store.PendingFor(ctx, "s1")
				assert.False(t, ok)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, op.ID, old.ID)
			assert.Equal(t, model.StatusRejected, old.Status)
			assert.Equal(t, model.ReasonSuperseded, old.StatusReason)
			pending, ok := f.store.PendingFor(ctx, "s1")
			require.True(t, ok)
			assert.Equal(t, edited.ID, pending.ID)
			assert.Equal(t, model.StatusRejected, f.archiver.statuses()[op.ID])
		})
	}

	t.Run("unknown original", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.store.Replace(context.Background(), "nope", edit(f))
		var cf *common.ConfirmationFailure
		require.ErrorAs(t, err, &cf)
		assert.Equal(t, common.ReasonNotFound, cf.Reason)
	})
}

func TestStore_ConfirmFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var cf *common.ConfirmationFailure

	_, err := f.store.Confirm(ctx, "nope")
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, common.ReasonNotFound, cf.Reason)
	assert.ErrorIs(t, err, common.ErrNotFound)

	op := f.propose(t, "s1", "jane@example.com")
	_, err = f.store.Reject(ctx, op.ID, "")
	require.NoError(t, err)

	_, err = f.store.Confirm(ctx, op.ID)
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, common.ReasonNotPending, cf.Reason)
	assert.Equal(t, model.StatusRejected, cf.Status)
}

func TestStore_ConfirmExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	op := f.propose(t, "s1", "jane@example.com")

	f.clock.advance(DefaultTTL + time.Second)

	got, err := f.store.Confirm(ctx, op.ID)
	var cf *common.ConfirmationFailure
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, common.ReasonExpired, cf.Reason)
	assert.Equal(t, model.StatusExpired, got.Status)
	assert.Equal(t, model.ReasonTTL, got.StatusReason)

	// A second attempt still reports expiry rather than a generic state error.
	_, err = f.store.Confirm(ctx, op.ID)
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, common.ReasonExpired, cf.Reason)

	assert.Equal(t, model.StatusExpired, f.archiver.statuses()[op.ID])
}

func TestStore_ConcurrentConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	op := f.propose(t, "s1", "jane@example.com")

	const callers = 32
	var wins, failures atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.store.Confirm(ctx, op.ID)
			var cf *common.ConfirmationFailure
			switch {
			case err == nil:
				wins.Add(1)
			case errors.As(err, &cf) && cf.Reason == common.ReasonNotPending:
				failures.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(callers-1), failures.Load())
}

func TestStore_Complete(t *testing.T) {
	obs := &countingObserver{}
	f := newFixture(t, WithObserver(obs))
	ctx := context.Background()
	op := f.propose(t, "s1", "jane@example.com")

	_, err := f.store.Complete(ctx, op.ID, model.ExecutionResult{Success: true, RecordID: 7})
	assert.Error(t, err, "pending operations cannot complete")

	_, err = f.store.Confirm(ctx, op.ID)
	require.NoError(t, err)

	done, err := f.store.Complete(ctx, op.ID, model.ExecutionResult{Success: true, RecordID: 7})
	require.NoError(t, err)
	assert.Equal(t, model.StatusExecuted, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, int64(7), done.Result.RecordID)

	_, err = f.store.Complete(ctx, op.ID, model.ExecutionResult{})
	assert.Error(t, err, "executed is terminal")

	failed := f.propose(t, "s1", "sam@example.com")
	_, err = f.store.Confirm(ctx, failed.ID)
	require.NoError(t, err)
	got, err := f.store.Complete(ctx, failed.ID, model.ExecutionResult{Error: "disk full"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "disk full", got.StatusReason)

	statuses := f.archiver.statuses()
	assert.Equal(t, model.StatusExecuted, statuses[op.ID])
	assert.Equal(t, model.StatusFailed, statuses[failed.ID])

	assert.Equal(t, 2, obs.counts["pending->confirmed"])
	assert.Equal(t, 1, obs.counts["confirmed->executed"])
	assert.Equal(t, 1, obs.counts["confirmed->failed"])
}

func TestStore_SweepExpired(t *testing.T) {
	f := newFixture(t, WithRetention(time.Hour))
	ctx := context.Background()

	stale := f.propose(t, "s1", "jane@example.com")
	f.clock.advance(DefaultTTL - time.Minute)
	fresh := f.propose(t, "s2", "sam@example.com")
	f.clock.advance(2 * time.Minute)

	assert.Equal(t, 1, f.store.SweepExpired(ctx))

	got, err := f.store.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)

	got, err = f.store.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	_, ok := f.store.PendingFor(ctx, "s1")
	assert.False(t, ok)

	f.clock.advance(time.Hour)
	f.store.SweepExpired(ctx)
	_, err = f.store.Get(ctx, stale.ID)
	assert.ErrorIs(t, err, common.ErrNotFound, "terminal operations are evicted after retention")
	assert.Equal(t, model.StatusExpired, f.archiver.statuses()[stale.ID])
}

func TestStore_SweepLoop(t *testing.T) {
	clock := newTestClock()
	obs := &countingObserver{}
	store := NewStore(WithStoreClock(clock.now), WithSweepInterval(5*time.Millisecond), WithObserver(obs))
	defer store.Close()

	op := NewBuilder(time.Minute, WithBuilderClock(clock.now)).Build("s1", model.NormalizedParams{
		Kind:   model.KindFindClient,
		Target: "7",
		Client: &model.ClientFields{},
	}, model.Candidate{})
	_, err := store.Put(context.Background(), op)
	require.NoError(t, err)

	clock.advance(2 * time.Minute)

	assert.Eventually(t, func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return obs.counts["pending->expired"] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStore_ArchiverErrorsAreNotFatal(t *testing.T) {
	f := newFixture(t)
	f.archiver.err = errors.New("database locked")
	ctx := context.Background()

	op := f.propose(t, "s1", "jane@example.com")
	got, err := f.store.Reject(ctx, op.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.Equal(t, "changed my mind", got.StatusReason)
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	store := NewStore(WithSweepInterval(time.Millisecond))
	store.Close()
	store.Close()
}
