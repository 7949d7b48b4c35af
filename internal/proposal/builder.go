// Package proposal turns validated parameters into pending operations and
// holds them until they are confirmed, rejected or expire.
package proposal

import (
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/parcel/internal/model"
)

// DefaultTTL is how long a proposal waits for a decision.
const DefaultTTL = 5 * time.Minute

// Builder creates pending operations.
type Builder struct {
	now   func() time.Time
	newID func() string
	ttl   time.Duration
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithBuilderClock replaces the clock used for timestamps and expiry.
func WithBuilderClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithIDFunc replaces the operation id generator.
func WithIDFunc(newID func() string) BuilderOption {
	return func(b *Builder) { b.newID = newID }
}

// NewBuilder creates a builder whose proposals expire after ttl.
func NewBuilder(ttl time.Duration, opts ...BuilderOption) *Builder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	b := &Builder{
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
		ttl:   ttl,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build creates a pending operation for sessionID from validated params.
// The candidate contributes its extraction path and confidence.
func (b *Builder) Build(sessionID string, params model.NormalizedParams, cand model.Candidate) model.PendingOperation {
	now := b.now()
	return model.PendingOperation{
		ID:         b.newID(),
		SessionID:  sessionID,
		Kind:       params.Kind,
		Path:       cand.Path,
		Status:     model.StatusPending,
		Params:     params,
		Preview:    params.Lines(),
		Warnings:   append([]string(nil), params.Warnings...),
		Confidence: cand.Confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(b.ttl),
	}
}

// TTL returns the proposal lifetime.
func (b *Builder) TTL() time.Duration {
	return b.ttl
}
