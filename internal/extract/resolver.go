package extract

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/model"
)

// Options tune the resolver. Built once from configuration.
type Options struct {
	Timeout           time.Duration
	BreakerCooldown   time.Duration
	BreakerThreshold  int
	PatternConfidence float64
}

// DefaultOptions returns the stock resolver settings.
func DefaultOptions() Options {
	return Options{
		Timeout:           8 * time.Second,
		BreakerCooldown:   30 * time.Second,
		BreakerThreshold:  3,
		PatternConfidence: 0.5,
	}
}

// Resolver picks an extraction path. The primary is tried under a timeout;
// any failure, or an open breaker, falls back to the pattern extractor.
type Resolver struct {
	primary  Extractor
	fallback Extractor
	breaker  *breaker
	logger   *slog.Logger
	recorder Recorder
	opts     Options
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithRecorder reports every resolution to rec.
func WithRecorder(rec Recorder) ResolverOption {
	return func(r *Resolver) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithClock replaces the breaker's clock.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.breaker.now = now
	}
}

// NewResolver builds a resolver. primary may be nil when no inference
// service is configured; every request then takes the pattern path.
func NewResolver(primary, fallback Extractor, opts Options, logger *slog.Logger, options ...ResolverOption) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	r := &Resolver{
		primary:  primary,
		fallback: fallback,
		breaker:  newBreaker(opts.BreakerThreshold, opts.BreakerCooldown, time.Now),
		logger:   logger,
		recorder: nopRecorder{},
		opts:     opts,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Resolve returns a candidate for in. It never fails: every primary error
// degrades to the fallback path.
func (r *Resolver) Resolve(ctx context.Context, in model.RawInput, history []model.Exchange) model.Candidate {
	start := time.Now()

	var sender *EmailMessage
	if in.Source == model.SourceEmail {
		msg := ParseEmail(in.Text)
		in.Text = msg.Text()
		sender = &msg
	}

	cand, reason := r.tryPrimary(ctx, in, history)
	if reason != ReasonOK {
		cand = r.runFallback(ctx, in)
		cand.FallbackReason = reason
		r.logger.Warn("extraction fell back to patterns",
			"session_id", in.SessionID,
			"reason", reason,
			"kind", cand.Kind)
	} else {
		r.logger.Info("extraction resolved",
			"session_id", in.SessionID,
			"path", cand.Path,
			"kind", cand.Kind,
			"confidence", cand.Confidence)
	}

	if sender != nil {
		seedFromSender(&cand, *sender)
	}

	r.recorder.ExtractionResolved(cand.Path, reason, time.Since(start))
	return cand
}

func (r *Resolver) tryPrimary(ctx context.Context, in model.RawInput, history []model.Exchange) (model.Candidate, string) {
	if r.primary == nil {
		return model.Candidate{}, ReasonDisabled
	}
	if !r.breaker.allow() {
		return model.Candidate{}, ReasonCircuitOpen
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	type result struct {
		err  error
		cand model.Candidate
	}
	done := make(chan result, 1)
	go func() {
		cand, err := r.primary.Extract(ctx, in, history)
		done <- result{cand: cand, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		// The primary ignored its deadline; abandon it.
		res = result{err: &common.ExtractionFailure{Reason: ReasonTimeout, Err: ctx.Err()}}
	}

	if res.err != nil {
		r.breaker.failure()
		r.logger.Debug("primary extractor failed", "error", res.err)
		return model.Candidate{}, failureReason(res.err)
	}

	r.breaker.success()
	res.cand.Path = model.PathInference
	return res.cand, ReasonOK
}

func (r *Resolver) runFallback(ctx context.Context, in model.RawInput) model.Candidate {
	// The fallback is local; run it even if the caller's deadline passed.
	cand, err := r.fallback.Extract(context.WithoutCancel(ctx), in, nil)
	if err != nil {
		r.logger.Error("pattern extraction failed", "error", err)
		cand = model.Candidate{}
	}
	cand.Path = model.PathPattern
	cand.Confidence = r.opts.PatternConfidence
	cand.FieldConfidence = nil
	return cand
}

func failureReason(err error) string {
	var ef *common.ExtractionFailure
	if errors.As(err, &ef) && ef.Reason != "" {
		return ef.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonUnavailable
}

// BreakerOpen reports whether the primary is currently being skipped.
func (r *Resolver) BreakerOpen() bool {
	return r.breaker.isOpen()
}

// seedFromSender fills client name and email from the email's From header
// when a create-client candidate lacks them. Seeded fields are flagged as
// low confidence so the user is asked to check them.
func seedFromSender(cand *model.Candidate, msg EmailMessage) {
	if cand.Kind != model.KindCreateClient || cand.Params.Client == nil {
		return
	}
	seeded := map[string]string{}
	if cand.Params.Get(model.FieldEmail) == "" && msg.FromAddress != "" {
		seeded[model.FieldEmail] = msg.FromAddress
	}
	if cand.Params.Get(model.FieldFirstName) == "" && cand.Params.Get(model.FieldLastName) == "" && msg.FromName != "" {
		first, last, _ := strings.Cut(msg.FromName, " ")
		seeded[model.FieldFirstName] = first
		seeded[model.FieldLastName] = strings.TrimSpace(last)
	}
	if len(seeded) == 0 {
		return
	}

	if cand.FieldConfidence == nil {
		cand.FieldConfidence = map[string]float64{}
	} else {
		fc := make(map[string]float64, len(cand.FieldConfidence)+len(seeded))
		for k, v := range cand.FieldConfidence {
			fc[k] = v
		}
		cand.FieldConfidence = fc
	}
	for field, value := range seeded {
		if value == "" {
			continue
		}
		_ = cand.Params.Set(field, value)
		cand.FieldConfidence[field] = 0.5
	}
}
