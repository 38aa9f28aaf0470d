// Package metrics exposes Prometheus collectors for the protocol runtime.
// Collectors are bound to a caller-supplied registry so several clients can
// coexist in one process. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bidi"

// Outcome labels for CommandsCompleted.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
	OutcomeClosed   = "closed"
	OutcomeCanceled = "canceled"
)

// Metrics groups the runtime collectors.
type Metrics struct {
	registry *prometheus.Registry

	commandsSent      *prometheus.CounterVec
	commandsCompleted *prometheus.CounterVec
	commandLatency    *prometheus.HistogramVec
	pendingCommands   prometheus.Gauge
	orphanedOutcomes  prometheus.Counter
	malformedMessages prometheus.Counter
	eventsReceived    *prometheus.CounterVec
	eventsDropped     prometheus.Counter
	handlerPanics     prometheus.Counter
}

// New registers the collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		commandsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "sent_total",
			Help:      "Commands written to the transport.",
		}, []string{"method"}),
		commandsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "completed_total",
			Help:      "Commands finished, by outcome.",
		}, []string{"method", "outcome"}),
		commandLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "latency_seconds",
			Help:      "Time from send to outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"method"}),
		pendingCommands: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "pending",
			Help:      "Commands awaiting an outcome.",
		}),
		orphanedOutcomes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_outcomes_total",
			Help:      "Command outcomes that matched no pending command.",
		}),
		malformedMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_messages_total",
			Help:      "Inbound frames that could not be parsed.",
		}),
		eventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "event",
			Name:      "received_total",
			Help:      "Events received from the remote end.",
		}, []string{"method"}),
		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "event",
			Name:      "dropped_total",
			Help:      "Events dropped because the dispatch queue was full.",
		}),
		handlerPanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "event",
			Name:      "handler_panics_total",
			Help:      "Event handlers that panicked.",
		}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) CommandSent(method string) {
	if m == nil {
		return
	}
	m.commandsSent.WithLabelValues(method).Inc()
	m.pendingCommands.Inc()
}

func (m *Metrics) CommandCompleted(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.pendingCommands.Dec()
	m.commandsCompleted.WithLabelValues(method, outcome).Inc()
	m.commandLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) OrphanedOutcome() {
	if m == nil {
		return
	}
	m.orphanedOutcomes.Inc()
}

func (m *Metrics) MalformedMessage() {
	if m == nil {
		return
	}
	m.malformedMessages.Inc()
}

func (m *Metrics) EventReceived(method string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(method).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) HandlerPanicked() {
	if m == nil {
		return
	}
	m.handlerPanics.Inc()
}
