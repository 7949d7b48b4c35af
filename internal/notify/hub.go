package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/Veraticus/parcel/internal/model"
)

const writeTimeout = 5 * time.Second

// peer is one connected websocket. Writes are serialized.
type peer struct {
	conn    *websocket.Conn
	encoder *json.Encoder
	session string
	mu      sync.Mutex
}

func (p *peer) write(ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.encoder.Encode(ev)
}

// Hub broadcasts events to websocket subscribers. A subscriber connecting
// with ?session=<id> only receives that session's events.
type Hub struct {
	peers  map[*peer]struct{}
	logger *slog.Logger
	mu     sync.Mutex
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{peers: make(map[*peer]struct{}), logger: logger}
}

// Handler returns the websocket endpoint.
func (h *Hub) Handler() http.Handler {
	return websocket.Handler(h.serve)
}

func (h *Hub) serve(conn *websocket.Conn) {
	p := &peer{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		session: conn.Request().URL.Query().Get("session"),
	}
	h.add(p)
	defer h.remove(p)

	// Subscribers never send anything meaningful; reading only detects close.
	buf := make([]byte, 512)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

func (h *Hub) add(p *peer) {
	h.mu.Lock()
	h.peers[p] = struct{}{}
	n := len(h.peers)
	h.mu.Unlock()
	h.logger.Debug("websocket subscriber connected", "session_id", p.session, "subscribers", n)
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	_, ok := h.peers[p]
	delete(h.peers, p)
	h.mu.Unlock()
	if ok {
		_ = p.conn.Close()
	}
}

// Subscribers returns the number of connected peers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	targets := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		if p.session == "" || p.session == ev.SessionID {
			targets = append(targets, p)
		}
	}
	h.mu.Unlock()

	for _, p := range targets {
		if err := p.write(ev); err != nil {
			h.logger.Debug("dropping websocket subscriber", "error", err)
			h.remove(p)
		}
	}
}

// ProposalReady implements service.Notifier.
func (h *Hub) ProposalReady(_ context.Context, op model.PendingOperation) {
	h.broadcast(proposalEvent(op))
}

// ExecutionComplete implements service.Notifier.
func (h *Hub) ExecutionComplete(_ context.Context, op model.PendingOperation, result model.ExecutionResult) {
	h.broadcast(executionEvent(op, result))
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[*peer]struct{})
	h.mu.Unlock()
	for p := range peers {
		_ = p.conn.Close()
	}
}
