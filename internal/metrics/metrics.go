// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Veraticus/parcel/internal/model"
)

const namespace = "parcel"

// Collectors holds every pipeline metric. It satisfies extract.Recorder,
// proposal.Observer and service.Notifier so one value can be handed to each.
type Collectors struct {
	// Extractions counts resolutions by path and fallback reason.
	// Labels: path (inference, pattern), reason
	Extractions *prometheus.CounterVec

	// ExtractionDuration tracks time spent resolving a candidate.
	// Labels: path
	ExtractionDuration *prometheus.HistogramVec

	// Transitions counts operation status changes.
	// Labels: from, to
	Transitions *prometheus.CounterVec

	// Pending is the number of operations awaiting a decision.
	Pending prometheus.Gauge

	// Proposals counts proposals offered, by kind.
	Proposals *prometheus.CounterVec

	// Executions counts executed operations by kind and outcome.
	// Labels: kind, outcome (success, conflict, failure)
	Executions *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collectors{
		Extractions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extraction_total",
				Help:      "Total number of extractions by path and fallback reason",
			},
			[]string{"path", "reason"},
		),
		ExtractionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "extraction_duration_seconds",
				Help:      "Duration of extraction in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
			},
			[]string{"path"},
		),
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "operations",
				Name:      "transitions_total",
				Help:      "Total number of operation status transitions",
			},
			[]string{"from", "to"},
		),
		Pending: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "operations",
				Name:      "pending",
				Help:      "Number of operations awaiting a decision",
			},
		),
		Proposals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "operations",
				Name:      "proposed_total",
				Help:      "Total number of proposals offered",
			},
			[]string{"kind"},
		),
		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "operations",
				Name:      "executed_total",
				Help:      "Total number of executed operations by outcome",
			},
			[]string{"kind", "outcome"},
		),
	}
}

// ExtractionResolved implements extract.Recorder.
func (c *Collectors) ExtractionResolved(path model.ExtractionPath, reason string, elapsed time.Duration) {
	c.Extractions.WithLabelValues(string(path), reason).Inc()
	c.ExtractionDuration.WithLabelValues(string(path)).Observe(elapsed.Seconds())
}

// OperationTransitioned implements proposal.Observer.
func (c *Collectors) OperationTransitioned(from, to model.Status) {
	c.Transitions.WithLabelValues(string(from), string(to)).Inc()
	if from == model.StatusPending {
		c.Pending.Dec()
	}
}

// ProposalReady implements service.Notifier. Every proposal enters the store
// as pending.
func (c *Collectors) ProposalReady(_ context.Context, op model.PendingOperation) {
	c.Proposals.WithLabelValues(string(op.Kind)).Inc()
	c.Pending.Inc()
}

// ExecutionComplete implements service.Notifier.
func (c *Collectors) ExecutionComplete(_ context.Context, op model.PendingOperation, result model.ExecutionResult) {
	outcome := "success"
	switch {
	case result.Conflict != nil:
		outcome = "conflict"
	case !result.Success:
		outcome = "failure"
	}
	c.Executions.WithLabelValues(string(op.Kind), outcome).Inc()
}
