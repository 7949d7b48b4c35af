package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/parcel/internal/engine"
	"github.com/Veraticus/parcel/internal/executor"
	"github.com/Veraticus/parcel/internal/extract"
	"github.com/Veraticus/parcel/internal/model"
	"github.com/Veraticus/parcel/internal/proposal"
	"github.com/Veraticus/parcel/internal/testutil"
	"github.com/Veraticus/parcel/internal/testutil/records"
	"github.com/Veraticus/parcel/internal/validate"
)

const janeReply = `{"operation":"create_client","confidence":0.95,
	"fields":{"first_name":"Jane","last_name":"Doe","email":"jane@example.com","phone":"555-111-2222"}}`

func newTestChat(t *testing.T, fixture records.Fixture, script string) (*engine.Pipeline, *testutil.TestDB, string) {
	t.Helper()

	db := testutil.SetupTestDB(t, fixture)
	inferrer := engine.NewMockInferrer().On("jane doe", janeReply)

	pattern, err := extract.NewPatternExtractor(extract.DefaultPatterns(), 0.5)
	require.NoError(t, err)
	resolver := extract.NewResolver(extract.NewInferenceExtractor(inferrer, nil), pattern, extract.DefaultOptions(), nil)

	p := engine.New(resolver,
		validate.New(validate.DefaultPolicy()),
		proposal.NewBuilder(proposal.DefaultTTL),
		proposal.NewStore(proposal.WithSweepInterval(0), proposal.WithArchiver(db.Storage)),
		executor.New(db.Storage, nil),
		engine.DefaultConfig(),
	)
	t.Cleanup(p.Close)

	var out bytes.Buffer
	chat := NewChat(p, strings.NewReader(script), &out, "term-1")
	require.NoError(t, chat.Run(context.Background()))
	return p, db, out.String()
}

func TestChat_CreateAndConfirm(t *testing.T) {
	p, db, out := newTestChat(t, nil, "add client Jane Doe jane@example.com 555-111-2222\nconfirm\nquit\n")

	assert.Contains(t, out, "Create client")
	assert.Contains(t, out, "(555) 111-2222")
	assert.Contains(t, out, SuccessIcon)
	assert.Contains(t, out, "See you later!")
	assert.Positive(t, db.MustClientID("jane@example.com"))

	_, pending := p.Pending(context.Background(), "term-1")
	assert.False(t, pending)
}

func TestChat_Reject(t *testing.T) {
	p, _, out := newTestChat(t, nil, "add client Jane Doe jane@example.com\nno\n")

	assert.Contains(t, out, "Cancelled. Nothing was changed.")
	_, pending := p.Pending(context.Background(), "term-1")
	assert.False(t, pending)
}

func TestChat_EditBeforeConfirm(t *testing.T) {
	_, db, out := newTestChat(t, nil, "add client Jane Doe jane@example.com\nedit email=jane.doe@example.com\n")

	assert.Contains(t, out, SuccessIcon)
	assert.Positive(t, db.MustClientID("jane.doe@example.com"))
}

func TestChat_ConflictResolution(t *testing.T) {
	_, _, out := newTestChat(t, records.FixtureClients, "add client Jane Doe jane@example.com\nyes\nskip\n")

	assert.Contains(t, out, "already exists")
	assert.Contains(t, out, "Reply merge, skip, replace or reject.")
	assert.Contains(t, out, "conflicts with record #")
	assert.Contains(t, out, SuccessIcon)
}

func TestChat_ReportsPendingChanges(t *testing.T) {
	p := &fakePipeline{hasPending: true}
	var seen []bool
	chat := NewChat(p, strings.NewReader("hello\nhelp\n"), &bytes.Buffer{}, "s")
	chat.OnPendingChange(func(pending bool) { seen = append(seen, pending) })

	require.NoError(t, chat.Run(context.Background()))
	assert.Equal(t, []bool{true, true}, seen)
}

func TestChat_NothingPending(t *testing.T) {
	_, _, out := newTestChat(t, nil, "confirm\npending\nhelp\n")

	assert.Contains(t, out, "Nothing is waiting for confirmation.")
	assert.Contains(t, out, "edit field=value")
}

func TestChat_Handle(t *testing.T) {
	fake := &fakePipeline{pending: model.PendingOperation{ID: "op-1", Kind: model.KindCreateClient}, hasPending: true}
	var out bytes.Buffer
	chat := NewChat(fake, strings.NewReader(""), &out, "s")
	ctx := context.Background()

	tests := []struct {
		want    *engine.ConfirmationRequest
		name    string
		line    string
		submits int
	}{
		{name: "confirm", line: "yes", want: &engine.ConfirmationRequest{OperationID: "op-1", Decision: engine.DecisionConfirm}},
		{name: "reject", line: "Reject", want: &engine.ConfirmationRequest{OperationID: "op-1", Decision: engine.DecisionReject}},
		{name: "resolution", line: "merge", want: &engine.ConfirmationRequest{OperationID: "op-1", Decision: engine.DecisionConfirm, Resolution: executor.ResolutionMerge}},
		{
			name: "edit",
			line: "edit name=Jane Q Doe phone=555 111 2222",
			want: &engine.ConfirmationRequest{
				OperationID: "op-1",
				Decision:    engine.DecisionConfirm,
				Overrides:   map[string]string{"name": "Jane Q Doe", "phone": "555 111 2222"},
			},
		},
		{name: "free text", line: "no more than two bedrooms please", submits: 1},
		{name: "blank", line: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake.reset()
			assert.False(t, chat.Handle(ctx, tt.line))
			if tt.want != nil {
				require.Len(t, fake.decided, 1)
				assert.Equal(t, *tt.want, fake.decided[0])
			} else {
				assert.Empty(t, fake.decided)
			}
			assert.Len(t, fake.submitted, tt.submits)
		})
	}

	assert.True(t, chat.Handle(ctx, "quit"))
}

func TestParseOverrides(t *testing.T) {
	tests := []struct {
		want    map[string]string
		name    string
		input   string
		wantErr bool
	}{
		{name: "single", input: "email=a@b.com", want: map[string]string{"email": "a@b.com"}},
		{name: "spaces in value", input: "Address=12 Oak St city=Portland", want: map[string]string{"address": "12 Oak St", "city": "Portland"}},
		{name: "leading word", input: "Jane email=a@b.com", wantErr: true},
		{name: "empty", input: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOverrides(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakePipeline struct {
	decided    []engine.ConfirmationRequest
	submitted  []model.RawInput
	pending    model.PendingOperation
	hasPending bool
}

func (f *fakePipeline) reset() {
	f.decided = nil
	f.submitted = nil
}

func (f *fakePipeline) Submit(_ context.Context, in model.RawInput) (engine.ExtractionOutcome, error) {
	f.submitted = append(f.submitted, in)
	return engine.ExtractionOutcome{Message: "What would you like to do?"}, nil
}

func (f *fakePipeline) Decide(_ context.Context, req engine.ConfirmationRequest) (engine.ExecutionOutcome, error) {
	f.decided = append(f.decided, req)
	return engine.ExecutionOutcome{Message: "done"}, nil
}

func (f *fakePipeline) Pending(context.Context, string) (model.PendingOperation, bool) {
	return f.pending, f.hasPending
}
