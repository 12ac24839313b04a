// Package telemetry exposes Prometheus metrics for the map lifecycle.
// Collectors live on a private registry and are fed from the event bus and
// from rollback outcomes, so instrumented packages do not import Prometheus.
package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/event"
	"github.com/bft-labs/mapkit/pkg/rollback"
)

const namespace = "mapkit"

// statusValues maps resource statuses to gauge values.
var statusValues = map[string]float64{
	"pending": 0,
	"loading": 1,
	"ready":   2,
	"error":   3,
}

// Metrics holds the lifecycle collectors.
type Metrics struct {
	registry *prometheus.Registry

	transitions     *prometheus.CounterVec
	resourceStatus  *prometheus.GaugeVec
	acquireDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	recoveries      *prometheus.CounterVec
	locationUpdates prometheus.Counter

	mu           sync.Mutex
	loadingSince map[domain.ResourceKind]time.Time
	subs         map[*event.Bus]string
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Lifecycle transitions by source and target state",
			},
			[]string{"from", "to"},
		),
		resourceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resource_status",
				Help:      "Resource status (0=pending, 1=loading, 2=ready, 3=error)",
			},
			[]string{"resource"},
		),
		acquireDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resource_acquire_duration_seconds",
				Help:      "Time from loading to ready or error",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"resource", "status"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Error events by source and phase",
			},
			[]string{"source", "phase"},
		),
		recoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recovery_attempts_total",
				Help:      "Rollback attempts by level and outcome",
			},
			[]string{"level", "outcome"},
		),
		locationUpdates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "location_updates_total",
				Help:      "Viewport settle events",
			},
		),
		loadingSince: make(map[domain.ResourceKind]time.Time),
		subs:         make(map[*event.Bus]string),
	}

	m.registry.MustRegister(
		m.transitions,
		m.resourceStatus,
		m.acquireDuration,
		m.errors,
		m.recoveries,
		m.locationUpdates,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Attach subscribes to every event on bus. Attaching twice is a no-op.
func (m *Metrics) Attach(bus *event.Bus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[bus]; ok {
		return
	}
	m.subs[bus] = bus.SubscribeAll(m.observe)
}

// Detach removes the subscription from bus.
func (m *Metrics) Detach(bus *event.Bus) {
	m.mu.Lock()
	id, ok := m.subs[bus]
	delete(m.subs, bus)
	m.mu.Unlock()
	if ok {
		bus.Unsubscribe(id)
	}
}

func (m *Metrics) observe(e event.Event) {
	switch ev := e.(type) {
	case event.StateChangeEvent:
		m.transitions.WithLabelValues(ev.Previous, ev.Current).Inc()
	case event.ResourceUpdateEvent:
		m.observeResource(ev)
	case event.ErrorEvent:
		m.errors.WithLabelValues(ev.Source, ev.Phase).Inc()
	case event.LocationUpdateEvent:
		m.locationUpdates.Inc()
	}
}

func (m *Metrics) observeResource(ev event.ResourceUpdateEvent) {
	kind := ev.Kind.String()
	if v, ok := statusValues[ev.Status]; ok {
		m.resourceStatus.WithLabelValues(kind).Set(v)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch ev.Status {
	case "loading":
		m.loadingSince[ev.Kind] = ev.Timestamp()
	case "ready", "error":
		if start, ok := m.loadingSince[ev.Kind]; ok {
			m.acquireDuration.WithLabelValues(kind, ev.Status).Observe(ev.Timestamp().Sub(start).Seconds())
			delete(m.loadingSince, ev.Kind)
		}
	default:
		delete(m.loadingSince, ev.Kind)
	}
}

// ObserveRecovery implements rollback.Observer.
func (m *Metrics) ObserveRecovery(level rollback.Level, outcome string) {
	m.recoveries.WithLabelValues(level.String(), outcome).Inc()
}

var _ rollback.Observer = (*Metrics)(nil)
