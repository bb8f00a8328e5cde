// Package metrics exposes Prometheus collectors fed by domain events.
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/remediator/service/event"
)

const namespace = "remediator"

// Collector holds engine metrics.
type Collector struct {
	started       prometheus.Counter
	finished      *prometheus.CounterVec
	steps         *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	approvals     *prometheus.CounterVec
	compensations *prometheus.CounterVec
	active        prometheus.GaugeFunc
}

// New creates collectors; active reports the number of active executions.
func New(active func() int) *Collector {
	if active == nil {
		active = func() int { return 0 }
	}
	return &Collector{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_started_total",
			Help:      "Workflow executions started.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_finished_total",
			Help:      "Workflow executions reaching a terminal status.",
		}, []string{"status"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Executed steps by kind and status.",
		}, []string{"kind", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step execution time including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"kind"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_decisions_total",
			Help:      "Approval decisions by verdict.",
		}, []string{"decision"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_total",
			Help:      "Compensation attempts by outcome.",
		}, []string{"outcome"}),
		active: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_executions",
			Help:      "Executions currently running or awaiting approval.",
		}, func() float64 { return float64(active()) }),
	}
}

// Register adds every collector to registerer.
func (c *Collector) Register(registerer prometheus.Registerer) error {
	var errs []error
	for _, collector := range []prometheus.Collector{c.started, c.finished, c.steps, c.stepDuration, c.approvals, c.compensations, c.active} {
		if err := registerer.Register(collector); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Observe updates collectors from a domain event.
func (c *Collector) Observe(e *event.Event) {
	switch payload := e.Payload.(type) {
	case *event.ExecutionStarted:
		c.started.Inc()
	case *event.ExecutionFinished:
		c.finished.WithLabelValues(string(payload.Status)).Inc()
	case *event.ExecutionCancelled:
		c.finished.WithLabelValues("cancelled").Inc()
	case *event.StepOutcome:
		c.steps.WithLabelValues(string(payload.Kind), string(payload.Status)).Inc()
		if payload.Duration > 0 {
			c.stepDuration.WithLabelValues(string(payload.Kind)).Observe(payload.Duration.Seconds())
		}
	case *event.ApprovalResolved:
		c.approvals.WithLabelValues(string(payload.Decision)).Inc()
	case *event.StepRolledBack:
		outcome := "success"
		if payload.Error != "" {
			outcome = "failure"
		}
		c.compensations.WithLabelValues(outcome).Inc()
	}
}

// Subscriber returns an event handler feeding the collector.
func (c *Collector) Subscriber() event.Handler {
	return func(_ context.Context, e *event.Event) error {
		c.Observe(e)
		return nil
	}
}
