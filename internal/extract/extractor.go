// Package extract turns raw text into operation candidates. Two strategies
// implement Extractor: an inference-backed extractor and a deterministic
// pattern extractor. Resolver runs the first under a timeout and circuit
// breaker and falls back to the second.
package extract

import (
	"context"
	"time"

	"github.com/Veraticus/parcel/internal/model"
)

// Extractor produces a candidate from raw text and recent conversation.
type Extractor interface {
	Extract(ctx context.Context, in model.RawInput, history []model.Exchange) (model.Candidate, error)
}

// Recorder observes which extraction path served each request.
type Recorder interface {
	ExtractionResolved(path model.ExtractionPath, reason string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ExtractionResolved(model.ExtractionPath, string, time.Duration) {}

// Fallback reasons recorded alongside the pattern path.
const (
	ReasonOK          = "ok"
	ReasonTimeout     = "timeout"
	ReasonUnavailable = "unavailable"
	ReasonMalformed   = "malformed"
	ReasonCircuitOpen = "circuit_open"
	ReasonDisabled    = "disabled"
)
