// Package metrics exports service metrics to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/Haku929/Amiro-sub000/internal/domain"
	"github.com/Haku929/Amiro-sub000/internal/llm"
	"github.com/Haku929/Amiro-sub000/internal/persona"
	"github.com/Haku929/Amiro-sub000/internal/slot"
)

const namespace = "amiro"

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Observer implements the completion, extraction and slot observer
// interfaces on top of Prometheus collectors.
type Observer struct {
	completionRequests *promclient.CounterVec
	completionDuration *promclient.HistogramVec
	extractionAttempts *promclient.HistogramVec
	slotOperations     *promclient.CounterVec
}

// New registers the collectors with reg, reusing any already registered.
func New(reg promclient.Registerer) (*Observer, error) {
	if reg == nil {
		reg = promclient.DefaultRegisterer
	}

	o := &Observer{
		completionRequests: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "completion_requests_total",
			Help:      "Completion service calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		completionDuration: promclient.NewHistogramVec(promclient.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Latency of completion service calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"operation"}),
		extractionAttempts: promclient.NewHistogramVec(promclient.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_attempts",
			Help:      "Attempts used per persona extraction.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}, []string{"outcome"}),
		slotOperations: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "slot_operations_total",
			Help:      "Persona slot writes by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}

	var err error
	if o.completionRequests, err = register(reg, o.completionRequests); err != nil {
		return nil, fmt.Errorf("register completion counter: %w", err)
	}
	if o.completionDuration, err = register(reg, o.completionDuration); err != nil {
		return nil, fmt.Errorf("register completion histogram: %w", err)
	}
	if o.extractionAttempts, err = register(reg, o.extractionAttempts); err != nil {
		return nil, fmt.Errorf("register extraction histogram: %w", err)
	}
	if o.slotOperations, err = register(reg, o.slotOperations); err != nil {
		return nil, fmt.Errorf("register slot counter: %w", err)
	}
	return o, nil
}

func register[C promclient.Collector](reg promclient.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are promclient.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

// ObserveCompletion records one completion call.
func (o *Observer) ObserveCompletion(operation string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.completionDuration.WithLabelValues(operation).Observe(duration.Seconds())
	o.completionRequests.WithLabelValues(operation, outcome(err)).Inc()
}

// ObserveExtraction records how many attempts one extraction used.
func (o *Observer) ObserveExtraction(attempts int, err error) {
	if o == nil {
		return
	}
	o.extractionAttempts.WithLabelValues(outcome(err)).Observe(float64(attempts))
}

// ObserveSlotOperation records a slot write.
func (o *Observer) ObserveSlotOperation(operation string, err error) {
	if o == nil {
		return
	}
	o.slotOperations.WithLabelValues(operation, slotOutcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

func slotOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, slot.ErrNoSlotAvailable):
		return "no_slot_available"
	case errors.Is(err, slot.ErrInvalidIndex):
		return "invalid_index"
	case errors.Is(err, slot.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidContent):
		return "invalid_content"
	default:
		return OutcomeError
	}
}

var (
	_ llm.Recorder               = (*Observer)(nil)
	_ persona.ExtractionObserver = (*Observer)(nil)
	_ slot.Observer              = (*Observer)(nil)
)
