package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/model"
)

// MockInferrer is a test implementation of service.Inferrer. It answers with
// scripted replies chosen by a substring of the latest user message.
type MockInferrer struct {
	err     error
	replies []scriptedReply
	calls   []MockInferenceCall
	mu      sync.Mutex
}

// MockInferenceCall records one inference request.
type MockInferenceCall struct {
	System   string
	Messages []model.Exchange
}

type scriptedReply struct {
	match string
	reply string
}

// NewMockInferrer creates a mock with no scripted replies.
func NewMockInferrer() *MockInferrer {
	return &MockInferrer{}
}

// On scripts reply for any message containing match (case-insensitive).
// Earlier scripts win.
func (m *MockInferrer) On(match, reply string) *MockInferrer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, scriptedReply{match: strings.ToLower(match), reply: reply})
	return m
}

// SetError makes every call fail with err; nil restores scripted replies.
func (m *MockInferrer) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Complete implements service.Inferrer.
func (m *MockInferrer) Complete(ctx context.Context, system string, messages []model.Exchange) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockInferenceCall{
		System:   system,
		Messages: append([]model.Exchange(nil), messages...),
	})

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.err != nil {
		return "", m.err
	}

	var text string
	if len(messages) > 0 {
		text = strings.ToLower(messages[len(messages)-1].Content)
	}
	for _, r := range m.replies {
		if strings.Contains(text, r.match) {
			return r.reply, nil
		}
	}
	return "", common.ErrInferenceUnavailable
}

// Calls returns a copy of the recorded calls.
func (m *MockInferrer) Calls() []MockInferenceCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockInferenceCall(nil), m.calls...)
}
