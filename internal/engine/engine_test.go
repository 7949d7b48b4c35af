package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/executor"
	"github.com/Veraticus/parcel/internal/extract"
	"github.com/Veraticus/parcel/internal/model"
	"github.com/Veraticus/parcel/internal/proposal"
	"github.com/Veraticus/parcel/internal/testutil"
	"github.com/Veraticus/parcel/internal/testutil/records"
	"github.com/Veraticus/parcel/internal/validate"
)

const (
	janeReply = `{"operation":"create_client","confidence":0.95,
		"fields":{"first_name":"jane","last_name":"doe","email":"Jane@Example.com","phone":"555-111-2222"}}`
	badEmailReply = `{"operation":"create_client","confidence":0.9,
		"fields":{"first_name":"Jane","last_name":"Doe","email":"not-an-email"}}`
	notesReply = `{"operation":"create_client","confidence":0.9,
		"fields":{"first_name":"Jane","last_name":"Doe","email":"jane@example.com","notes":"met at open house"}}`
	guessReply = `{"operation":"create_client","confidence":0.9,
		"fields":{"first_name":"Jane","last_name":"Doe","email":"jane@example.com"},
		"field_confidence":{"last_name":0.4}}`
)

type testClock struct {
	t  time.Time
	mu sync.Mutex
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

type recordingNotifier struct {
	proposals []model.PendingOperation
	results   []model.ExecutionResult
	mu        sync.Mutex
}

func (n *recordingNotifier) ProposalReady(_ context.Context, op model.PendingOperation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.proposals = append(n.proposals, op)
}

func (n *recordingNotifier) ExecutionComplete(_ context.Context, _ model.PendingOperation, result model.ExecutionResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, result)
}

type harness struct {
	pipeline *Pipeline
	db       *testutil.TestDB
	inferrer *MockInferrer
	clock    *testClock
	notifier *recordingNotifier
}

func newHarness(t *testing.T, fixture records.Fixture) *harness {
	t.Helper()

	db := testutil.SetupTestDB(t, fixture)
	clock := &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	inferrer := NewMockInferrer()
	notifier := &recordingNotifier{}

	pattern, err := extract.NewPatternExtractor(extract.DefaultPatterns(), 0.5)
	require.NoError(t, err)
	opts := extract.DefaultOptions()
	opts.Timeout = time.Second
	resolver := extract.NewResolver(extract.NewInferenceExtractor(inferrer, nil), pattern, opts, nil)

	store := proposal.NewStore(
		proposal.WithStoreClock(clock.now),
		proposal.WithSweepInterval(0),
		proposal.WithArchiver(db.Storage),
	)
	p := New(resolver,
		validate.New(validate.DefaultPolicy()),
		proposal.NewBuilder(proposal.DefaultTTL, proposal.WithBuilderClock(clock.now)),
		store,
		executor.New(db.Storage, nil),
		DefaultConfig(),
		WithNotifier(notifier),
	)
	t.Cleanup(p.Close)

	return &harness{pipeline: p, db: db, inferrer: inferrer, clock: clock, notifier: notifier}
}

func chat(session, text string) model.RawInput {
	return model.RawInput{Text: text, Source: model.SourceChat, SessionID: session}
}

func TestPipeline_CreateClientConfirmed(t *testing.T) {
	h := newHarness(t, nil)
	h.inferrer.On("jane doe", janeReply)
	ctx := context.Background()

	out, err := h.pipeline.Submit(ctx, chat("s1", "create client Jane Doe, jane@example.com, 555-111-2222"))
	require.NoError(t, err)
	require.True(t, out.IsProposal())
	assert.Equal(t, model.PathInference, out.Path)
	assert.Empty(t, out.LowConfidence)

	op := out.Proposal
	assert.Equal(t, model.KindCreateClient, op.Kind)
	assert.Equal(t, "Create client\n  name: Jane Doe\n  email: jane@example.com\n  phone: (555) 111-2222", op.PreviewText())
	assert.Contains(t, out.Message, "confirm")

	res, err := h.pipeline.Decide(ctx, ConfirmationRequest{OperationID: op.ID, Decision: DecisionConfirm})
	require.NoError(t, err)
	require.NotNil(t, res.Result)
	assert.True(t, res.Result.Success)
	assert.Equal(t, model.StatusExecuted, res.Operation.Status)
	assert.Contains(t, res.Message, "Done: create client")

	stored, err := h.db.Storage.GetClient(ctx, res.Result.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", stored.FirstName)
	assert.Equal(t, "(555) 111-2222", stored.Phone)

	archived, err := h.db.Storage.GetArchivedOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExecuted, archived.Status)

	assert.Len(t, h.notifier.proposals, 1)
	assert.Len(t, h.notifier.results, 1)
}

func TestPipeline_ClarifiesInvalidEmail(t *testing.T) {
	h := newHarness(t, nil)
	h.inferrer.On("not-an-email", badEmailReply)

	out, err := h.pipeline.Submit(context.Background(), chat("s1", "create client Jane Doe with email not-an-email"))
	require.NoError(t, err)
	assert.False(t, out.IsProposal())
	require.Len(t, out.Errors, 1)
	assert.Equal(t, model.FieldEmail, out.Errors[0].Field)
	assert.Equal(t, model.ErrMalformed, out.Errors[0].Kind)
	assert.Contains(t, out.Message, "email")
	assert.Contains(t, out.Message, "jane@example.com")

	_, pending := h.pipeline.Pending(context.Background(), "s1")
	assert.False(t, pending, "no proposal is stored for invalid input")
}

func TestPipeline_LowConfidence(t *testing.T) {
	t.Run("pattern fallback", func(t *testing.T) {
		h := newHarness(t, nil)
		h.inferrer.SetError(errors.New("connection refused"))

		out, err := h.pipeline.Submit(context.Background(), chat("s1", "create client Jane Doe, jane@example.com, (555) 111-2222"))
		require.NoError(t, err)
		require.True(t, out.IsProposal())
		assert.Equal(t, model.PathPattern, out.Path)
		assert.NotEmpty(t, out.FallbackReason)
		assert.Contains(t, out.Message, "double-check")
		assert.Contains(t, out.Message, "basic parser")
		assert.Contains(t, out.Message, "name: Jane Doe")
	})

	t.Run("single guessed field", func(t *testing.T) {
		h := newHarness(t, nil)
		h.inferrer.On("jane", guessReply)

		out, err := h.pipeline.Submit(context.Background(), chat("s1", "new client jane doe jane@example.com"))
		require.NoError(t, err)
		require.True(t, out.IsProposal())
		assert.Equal(t, []string{model.FieldLastName}, out.LowConfidence)
		assert.Contains(t, out.Message, "double-check the last name")
		assert.NotContains(t, out.Message, "basic parser")
	})

	t.Run("uncertain target only", func(t *testing.T) {
		h := newHarness(t, records.FixtureClients)
		h.inferrer.On("client 12", `{"operation":"find_client","confidence":0.4,"target":"12"}`)

		out, err := h.pipeline.Submit(context.Background(), chat("s1", "look up client 12"))
		require.NoError(t, err)
		require.True(t, out.IsProposal())
		assert.Equal(t, []string{model.FieldTarget}, out.LowConfidence)
		assert.Contains(t, out.Message, "double-check the target")
	})
}

func TestPipeline_ExpiredConfirmation(t *testing.T) {
	h := newHarness(t, nil)
	h.inferrer.On("jane doe", janeReply)
	ctx := context.Background()

	out, err := h.pipeline.Submit(ctx, chat("s1", "create client Jane Doe, jane@example.com, 555-111-2222"))
	require.NoError(t, err)
	require.True(t, out.IsProposal())

	h.clock.advance(proposal.DefaultTTL + time.Second)

	res, err := h.pipeline.Decide(ctx, ConfirmationRequest{OperationID: out.Proposal.ID, Decision: DecisionConfirm})
	var cf *common.ConfirmationFailure
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, common.ReasonExpired, cf.Reason)
	assert.Contains(t, res.Message, "expired")

	clients, err := h.db.Storage.FindClients(ctx, model.RecordFilter{Email: "jane@example.com"})
	require.NoError(t, err)
	assert.Empty(t, clients, "an expired proposal must not write")
}

func TestPipeline_SupersedesPendingProposal(t *testing.T) {
	h := newHarness(t, nil)
	h.inferrer.On("jane doe", janeReply).On("john", `{"operation":"create_client","confidence":0.9,
		"fields":{"first_name":"John","last_name":"Roe","email":"john@example.com"}}`)
	ctx := context.Background()

	first, err := h.pipeline.Submit(ctx, chat("s1", "create client Jane Doe, jane@example.com"))
	require.NoError(t, err)
	second, err := h.pipeline.Submit(ctx, chat("s1", "create client John Roe, john@example.com"))
	require.NoError(t, err)

	require.NotNil(t, second.Superseded)
	assert.Equal(t, first.Proposal.ID, second.Superseded.ID)

	old, err := h.pipeline.Get(ctx, first.Proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, old.Status)
	assert.Equal(t, model.ReasonSuperseded, old.StatusReason)

	current, ok := h.pipeline.Pending(ctx, "s1")
	require.True(t, ok)
	assert.Equal(t, second.Proposal.ID, current.ID)

	_, err = h.pipeline.Decide(ctx, ConfirmationRequest{OperationID: first.Proposal.ID, Decision: DecisionConfirm})
	var cf *common.ConfirmationFailure
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, common.ReasonNotPending, cf.Reason)
}

func TestPipeline_DoubleConfirmExecutesOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.inferrer.On("jane doe", janeReply)
	ctx := context.Background()

	out, err := h.pipeline.Submit(ctx, chat("s1", "create client Jane Doe, jane@example.com, 555-111-2222"))
	require.NoError(t, err)

	req := ConfirmationRequest{OperationID: out.Proposal.ID, Decision: DecisionConfirm}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		executed int
		refused  int
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.pipeline.Decide(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			var cf *common.ConfirmationFailure
			switch {
			case err == nil:
				executed++
			case errors.As(err, &cf) && cf.Reason == common.ReasonNotPending:
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, executed)
	assert.Equal(t, 1, refused)

	clients, err := h.db.Storage.FindClients(ctx, model.RecordFilter{Email: "jane@example.com"})
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}

func TestPipeline_Reject(t *testing.T) {
	h := newHarness(t, nil)
	h.inferrer.On("jane doe", janeReply)
	ctx := context.Background()

	out, err := h.pipeline.Submit(ctx, chat("s1", "create client Jane Doe, jane@example.com"))
	require.NoError(t, err)

	res, err := h.pipeline.Decide(ctx, ConfirmationRequest{OperationID: out.Proposal.ID, Decision: DecisionReject})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, res.Operation.Status)
	assert.Equal(t, model.ReasonCancelled, res.Operation.StatusReason)
	assert.Nil(t, res.Result)

	_, err = h.pipeline.Decide(ctx, ConfirmationRequest{OperationID: out.Proposal.ID, Decision: DecisionConfirm})
	assert.Error(t, err)
}

func TestPipeline_Overrides(t *testing.T) {
	tests := []struct {
		check     func(t *testing.T, h *harness, res ExecutionOutcome)
		overrides map[string]string
		name      string
		wantErr   bool
	}{
		{
			name:      "edited phone is normalized and written",
			overrides: map[string]string{model.FieldPhone: "555 333 4444"},
			check: func(t *testing.T, h *harness, res ExecutionOutcome) {
				t.Helper()
				c, err := h.db.Storage.GetClient(context.Background(), res.Result.RecordID)
				require.NoError(t, err)
				assert.Equal(t, "(555) 333-4444", c.Phone)
			},
		},
		{
			name:      "combined name splits into first and last",
			overrides: map[string]string{"name": "janet van doe"},
			check: func(t *testing.T, h *harness, res ExecutionOutcome) {
				t.Helper()
				c, err := h.db.Storage.GetClient(context.Background(), res.Result.RecordID)
				require.NoError(t, err)
				assert.Equal(t, "Janet Van", c.FirstName)
				assert.Equal(t, "Doe", c.LastName)
			},
		},
		{
			name:      "invalid edit is refused",
			overrides: map[string]string{model.FieldEmail: "nope"},
			wantErr:   true,
			check: func(t *testing.T, h *harness, res ExecutionOutcome) {
				t.Helper()
				require.Len(t, res.Errors, 1)
				assert.Equal(t, model.FieldEmail, res.Errors[0].Field)
				assert.Equal(t, model.StatusPending, res.Operation.Status)
			},
		},
		{
			name:      "unknown field is refused",
			overrides: map[string]string{"price": "$1"},
			wantErr:   true,
			check: func(t *testing.T, _ *harness, res ExecutionOutcome) {
				t.Helper()
				require.Len(t, res.Errors, 1)
				assert.Equal(t, "price", res.Errors[0].Field)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.inferrer.On("jane doe", janeReply)
			ctx := context.Background()

			out, err := h.pipeline.Submit(ctx, chat("s1", "create client Jane Doe, jane@example.com, 555-111-2222"))
			require.NoError(t, err)

			res, err := h.pipeline.Decide(ctx, ConfirmationRequest{
				OperationID: out.Proposal.ID,
				Decision:    DecisionConfirm,
				Overrides:   tt.overrides,
			})
			if tt.wantErr {
				var vf *common.ValidationFailure
				require.ErrorAs(t, err, &vf)
			} else {
				require.NoError(t, err)
				assert.NotEqual(t, out.Proposal.ID, res.Operation.ID, "edits produce a rebuilt operation")
				old, err := h.pipeline.Get(ctx, out.Proposal.ID)
				require.NoError(t, err)
				assert.Equal(t, model.StatusRejected, old.Status)
			}
			tt.check(t, h, res)
		})
	}
}

func TestPipeline_ConflictFollowUp(t *testing.T) {
	h := newHarness(t, records.FixtureClients)
	h.inferrer.On("open house", notesReply)
	ctx := context.Background()
	janeID := h.db.MustClientID("jane@example.com")

	out, err := h.pipeline.Submit(ctx, chat("s1", "add client Jane Doe jane@example.com, met at open house"))
	require.NoError(t, err)
	require.True(t, out.IsProposal())

	res, err := h.pipeline.Decide(ctx, ConfirmationRequest{OperationID: out.Proposal.ID, Decision: DecisionConfirm})
	var conflict *common.ConflictFailure
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, model.StatusFailed, res.Operation.Status)
	require.NotNil(t, res.FollowUp)
	require.NotNil(t, res.FollowUp.Conflict)
	assert.Equal(t, janeID, res.FollowUp.Conflict.RecordID)
	assert.Equal(t, model.StatusPending, res.FollowUp.Status)
	assert.Contains(t, res.Message, "merge")

	merged, err := h.pipeline.Decide(ctx, ConfirmationRequest{
		OperationID: res.FollowUp.ID,
		Decision:    DecisionConfirm,
		Resolution:  executor.ResolutionMerge,
	})
	require.NoError(t, err)
	assert.True(t, merged.Result.Success)
	assert.Equal(t, janeID, merged.Result.RecordID)

	stored, err := h.db.Storage.GetClient(ctx, janeID)
	require.NoError(t, err)
	assert.Equal(t, "met at open house", stored.Notes)
	assert.Equal(t, "(555) 111-2222", stored.Phone)
}

func TestPipeline_SessionBusy(t *testing.T) {
	h := newHarness(t, nil)
	release, ok := h.pipeline.sessions.acquire("s1")
	require.True(t, ok)

	_, err := h.pipeline.Submit(context.Background(), chat("s1", "create client Jane Doe, jane@example.com"))
	assert.ErrorIs(t, err, common.ErrSessionBusy)

	h.inferrer.On("jane doe", janeReply)
	_, err = h.pipeline.Submit(context.Background(), chat("s2", "create client Jane Doe, jane@example.com"))
	assert.NoError(t, err, "other sessions are unaffected")

	release()
	_, err = h.pipeline.Submit(context.Background(), chat("s1", "create client Jane Doe, jane@example.com"))
	assert.NoError(t, err)
}

func TestPipeline_HistoryIsPassedToInference(t *testing.T) {
	h := newHarness(t, nil)
	h.inferrer.On("not-an-email", badEmailReply).On("jane@example.com", janeReply)
	ctx := context.Background()

	_, err := h.pipeline.Submit(ctx, chat("s1", "create client Jane Doe with email not-an-email"))
	require.NoError(t, err)
	_, err = h.pipeline.Submit(ctx, chat("s1", "sorry, it is jane@example.com"))
	require.NoError(t, err)

	calls := h.inferrer.Calls()
	require.Len(t, calls, 2)
	second := calls[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, "user", second[0].Role)
	assert.Equal(t, "assistant", second[1].Role)
	assert.True(t, strings.Contains(second[1].Content, "email"))
}

func TestPipeline_EmptyInput(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.pipeline.Submit(context.Background(), chat("s1", "   "))
	var ue *common.UserError
	require.ErrorAs(t, err, &ue)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in      string
		want    Decision
		wantErr bool
	}{
		{in: "confirm", want: DecisionConfirm},
		{in: " Yes ", want: DecisionConfirm},
		{in: "cancel", want: DecisionReject},
		{in: "n", want: DecisionReject},
		{in: "maybe", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDecision(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPipeline_EditRacingPlainConfirmWritesOnce(t *testing.T) {
	db := testutil.SetupTestDB(t, nil)
	clock := &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	inferrer := NewMockInferrer()
	inferrer.On("jane doe", janeReply)

	pattern, err := extract.NewPatternExtractor(extract.DefaultPatterns(), 0.5)
	require.NoError(t, err)
	resolver := extract.NewResolver(extract.NewInferenceExtractor(inferrer, nil), pattern, extract.DefaultOptions(), nil)
	store := proposal.NewStore(proposal.WithStoreClock(clock.now), proposal.WithSweepInterval(0))

	// The builder's clock runs the interleaved confirm while the edit is
	// being rebuilt, after the edit has read the original.
	var (
		interleave  func()
		plainErr    error
		plainCalled bool
	)
	builderClock := func() time.Time {
		if interleave != nil {
			f := interleave
			interleave = nil
			f()
		}
		return clock.now()
	}

	p := New(resolver,
		validate.New(validate.DefaultPolicy()),
		proposal.NewBuilder(proposal.DefaultTTL, proposal.WithBuilderClock(builderClock)),
		store,
		executor.New(db.Storage, nil),
		DefaultConfig(),
	)
	t.Cleanup(p.Close)
	ctx := context.Background()

	out, err := p.Submit(ctx, chat("s1", "create client Jane Doe, jane@example.com, 555-111-2222"))
	require.NoError(t, err)
	require.NotNil(t, out.Proposal)

	interleave = func() {
		plainCalled = true
		_, plainErr = p.Decide(ctx, ConfirmationRequest{OperationID: out.Proposal.ID, Decision: DecisionConfirm})
	}
	_, editErr := p.Decide(ctx, ConfirmationRequest{
		OperationID: out.Proposal.ID,
		Decision:    DecisionConfirm,
		Overrides:   map[string]string{model.FieldEmail: "other@example.com"},
	})

	require.True(t, plainCalled)
	require.NoError(t, plainErr)
	var cf *common.ConfirmationFailure
	require.ErrorAs(t, editErr, &cf)
	assert.Equal(t, common.ReasonNotPending, cf.Reason)

	clients, err := db.Storage.FindClients(ctx, model.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "jane@example.com", clients[0].Email)

	_, ok := store.PendingFor(ctx, "s1")
	assert.False(t, ok, "the rejected edit leaves nothing pending")
}
