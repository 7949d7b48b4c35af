package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/Veraticus/parcel/internal/model"
)

func dialHub(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, json.NewDecoder(conn).Decode(&ev))
	return ev
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	all := dialHub(t, srv, "")
	mine := dialHub(t, srv, "?session=chat.42")
	other := dialHub(t, srv, "?session=someone-else")
	require.Eventually(t, func() bool { return hub.Subscribers() == 3 }, 2*time.Second, 10*time.Millisecond)

	hub.ProposalReady(context.Background(), testOperation())

	assert.Equal(t, "op-1", readEvent(t, all).OperationID)
	got := readEvent(t, mine)
	assert.Equal(t, EventProposalReady, got.Type)
	assert.Equal(t, []model.PreviewLine{{Field: "name", Value: "Jane Doe"}}, got.Preview)

	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 64)
	_, err := other.Read(buf)
	assert.Error(t, err, "events for other sessions are filtered out")
}

func TestHub_DropsClosedSubscribers(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	conn := dialHub(t, srv, "")
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

type countingNotifier struct {
	proposals int
	results   int
}

func (c *countingNotifier) ProposalReady(context.Context, model.PendingOperation) { c.proposals++ }
func (c *countingNotifier) ExecutionComplete(context.Context, model.PendingOperation, model.ExecutionResult) {
	c.results++
}

func TestMultiAndLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	counter := &countingNotifier{}
	m := Multi{NewLog(logger), counter}

	ctx := context.Background()
	op := testOperation()
	m.ProposalReady(ctx, op)
	m.ExecutionComplete(ctx, op, model.ExecutionResult{Success: true, RecordID: 7})
	m.ExecutionComplete(ctx, op, model.ExecutionResult{Error: "boom"})

	assert.Equal(t, 1, counter.proposals)
	assert.Equal(t, 2, counter.results)
	out := buf.String()
	assert.Contains(t, out, "proposal ready")
	assert.Contains(t, out, "record_id=7")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "error=boom")
}
