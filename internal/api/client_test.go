package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/parcel/internal/model"
	"github.com/Veraticus/parcel/internal/testutil/records"
)

func TestClient_SubmitDecideOperation(t *testing.T) {
	env := newTestEnv(t, nil)
	client := NewClient(env.server.URL, env.server.Client())
	ctx := context.Background()

	submitted, err := client.Submit(ctx, SubmitRequest{Text: "add client Jane Doe jane@example.com", SessionID: "cli-1"})
	require.NoError(t, err)
	require.NotNil(t, submitted.Proposal)

	decided, err := client.Decide(ctx, DecideRequest{OperationID: submitted.Proposal.OperationID, Decision: "confirm"})
	require.NoError(t, err)
	require.NotNil(t, decided.Result)
	assert.True(t, decided.Result.Success)

	op, err := client.Operation(ctx, submitted.Proposal.OperationID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExecuted, op.Status)
}

func TestClient_Errors(t *testing.T) {
	env := newTestEnv(t, records.FixtureClients)
	client := NewClient(env.server.URL, env.server.Client())
	ctx := context.Background()

	_, err := client.Submit(ctx, SubmitRequest{Text: "add client Jane Doe"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Contains(t, se.Message, "sessionId")

	_, err = client.Operation(ctx, "missing")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)

	submitted, err := client.Submit(ctx, SubmitRequest{Text: "add client Jane Doe jane@example.com", SessionID: "cli-1"})
	require.NoError(t, err)
	decided, err := client.Decide(ctx, DecideRequest{OperationID: submitted.Proposal.OperationID, Decision: "yes"})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Code)
	require.NotNil(t, decided.FollowUp)
	assert.NotEmpty(t, se.Message)
}

func TestNewClient_BaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "127.0.0.1:8420", want: "http://127.0.0.1:8420"},
		{in: "https://parcel.example.com/", want: "https://parcel.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NewClient(tt.in, nil).baseURL)
		})
	}
}
