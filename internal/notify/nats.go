package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Veraticus/parcel/internal/model"
)

// NATS publishes events to subjects of the form
//
//	{prefix}.{session_id}.{operation_id}.proposed
//	{prefix}.{session_id}.{operation_id}.executed
//	{prefix}.{session_id}.{operation_id}.failed
//
// Publish errors are logged; they never affect the pipeline.
type NATS struct {
	conn   *nats.Conn
	logger *slog.Logger
	prefix string
	owned  bool
}

// ConnectNATS dials url and returns a publisher that closes the connection
// on Close.
func ConnectNATS(url, prefix string, logger *slog.Logger) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("parcel"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	n := NewNATS(nc, prefix, logger)
	n.owned = true
	return n, nil
}

// NewNATS publishes on an existing connection.
func NewNATS(nc *nats.Conn, prefix string, logger *slog.Logger) *NATS {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "parcel"
	}
	return &NATS{conn: nc, prefix: prefix, logger: logger}
}

// Subject returns the subject an event is published on.
func (n *NATS) Subject(ev Event) string {
	suffix := "proposed"
	if ev.Type == EventExecutionComplete {
		suffix = "executed"
		if ev.Result != nil && !ev.Result.Success {
			suffix = "failed"
		}
	}
	return strings.Join([]string{n.prefix, token(ev.SessionID), token(ev.OperationID), suffix}, ".")
}

func (n *NATS) publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("marshal event", "error", err, "operation_id", ev.OperationID)
		return
	}
	subject := n.Subject(ev)
	if err := n.conn.Publish(subject, data); err != nil {
		n.logger.Warn("publish event", "error", err, "subject", subject)
	}
}

// ProposalReady implements service.Notifier.
func (n *NATS) ProposalReady(_ context.Context, op model.PendingOperation) {
	n.publish(proposalEvent(op))
}

// ExecutionComplete implements service.Notifier.
func (n *NATS) ExecutionComplete(_ context.Context, op model.PendingOperation, result model.ExecutionResult) {
	n.publish(executionEvent(op, result))
}

// Close flushes pending publishes and closes a connection opened by
// ConnectNATS.
func (n *NATS) Close() error {
	if err := n.conn.Flush(); err != nil && n.conn.IsConnected() {
		return fmt.Errorf("flush nats: %w", err)
	}
	if n.owned {
		return n.conn.Drain()
	}
	return nil
}

// token makes s safe as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
