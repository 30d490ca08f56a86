package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/pulse/pkg/monitor"
	"github.com/platinummonkey/pulse/pkg/observability"
	"github.com/platinummonkey/pulse/pkg/ratelimit"
	"github.com/platinummonkey/pulse/pkg/stats"
	"github.com/sirupsen/logrus"
)

// Event is one inbound unit of work from the dispatch layer.
type Event struct {
	Actor     int64
	Action    string
	Scope     string
	Timestamp time.Time
}

// Handler executes the business logic for an admitted event.
type Handler func(ctx context.Context, ev Event) error

// Result reports what the pipeline did with an event.
type Result struct {
	// RequestID correlates log lines for one event.
	RequestID string
	// Admitted is false when the rate limiter rejected the event; the
	// handler was not run and no counters were incremented.
	Admitted bool
	// RetryAfter is the wait hint on rejection.
	RetryAfter time.Duration
	// Err is the handler's error, if any. Reporting failures are
	// contained and never surface here.
	Err error
	// Latency is the handler execution time.
	Latency time.Duration
}

// Pipeline runs each event through the explicit stages: admission
// filter, handler execution, outcome reporting. Composing the stages
// here instead of wrapping handlers keeps the ordering and the
// error-containment boundaries visible.
type Pipeline struct {
	log     *logrus.Logger
	limiter *ratelimit.Limiter
	store   *stats.Store
	monitor *monitor.Monitor
	metrics *observability.Metrics
}

// New creates a pipeline over the given collaborators.
func New(limiter *ratelimit.Limiter, store *stats.Store, mon *monitor.Monitor, log *logrus.Logger, metrics *observability.Metrics) *Pipeline {
	if log == nil {
		log = logrus.New()
	}
	return &Pipeline{
		log:     log,
		limiter: limiter,
		store:   store,
		monitor: mon,
		metrics: metrics,
	}
}

// Process admits, executes, and reports one event. A rejected event
// never reaches the handler or the activity increments. A handler
// error is reported as an outcome and returned; reporting itself never
// fails the call.
func (p *Pipeline) Process(ctx context.Context, ev Event, handler Handler) Result {
	requestID := uuid.NewString()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	log := p.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"actor":      ev.Actor,
		"action":     ev.Action,
	})

	decision := p.limiter.Check(ev.Actor, ev.Timestamp)
	if !decision.Allowed {
		// Expected and frequent: user-visible, not an error.
		log.Debug("event rejected by rate limit")
		p.countAdmission(false)
		return Result{
			RequestID:  requestID,
			Admitted:   false,
			RetryAfter: decision.RetryAfter,
		}
	}
	p.countAdmission(true)

	start := time.Now()
	err := handler(ctx, ev)
	latency := time.Since(start)

	errorMessage := ""
	if err != nil {
		errorMessage = err.Error()
		log.WithError(err).Error("event handler failed")
	}

	// Counters are keyed to the event's timestamp: the same instant the
	// admission window was evaluated against.
	p.monitor.RecordOutcomeAt(ev.Timestamp, latency, err != nil, errorMessage)
	p.store.RecordActivityAt(ev.Timestamp, ev.Actor, ev.Action, ev.Scope)

	if p.metrics != nil {
		p.metrics.EventsTotal.WithLabelValues(ev.Action, ev.Scope).Inc()
		p.metrics.EventDuration.Observe(latency.Seconds())
	}

	return Result{
		RequestID: requestID,
		Admitted:  true,
		Err:       err,
		Latency:   latency,
	}
}

func (p *Pipeline) countAdmission(allowed bool) {
	if p.metrics == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "rejected"
	}
	p.metrics.AdmissionsTotal.WithLabelValues(decision).Inc()
}
