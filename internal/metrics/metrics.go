// Package metrics exposes Prometheus collectors for editing sessions and
// script generation.
package metrics

import (
	"errors"
	"time"
	"tinking/backend/internal/protocol"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tinking"

type Metrics struct {
	sessionsActive  prometheus.Gauge
	eventsDropped   *prometheus.CounterVec
	draftSaves      *prometheus.CounterVec
	scripts         *prometheus.CounterVec
	compileDuration prometheus.Histogram
	sessionsExpired prometheus.Counter
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered. Other registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "sessions_active",
			Help:      "Number of open recipe editing sessions.",
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "events_dropped_total",
			Help:      "Page events discarded because they did not match the editor focus.",
		}, []string{"event"}),
		draftSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "draft_saves_total",
			Help:      "Debounced draft writes by outcome.",
		}, []string{"status"}),
		scripts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compiler",
			Name:      "scripts_total",
			Help:      "Scripts compiled by driver and outcome.",
		}, []string{"driver", "status"}),
		compileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compiler",
			Name:      "compile_duration_seconds",
			Help:      "Time spent compiling a recipe.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "janitor",
			Name:      "sessions_expired_total",
			Help:      "Idle editing sessions closed by the janitor.",
		}),
	}

	m.sessionsActive = register(reg, m.sessionsActive)
	m.eventsDropped = register(reg, m.eventsDropped)
	m.draftSaves = register(reg, m.draftSaves)
	m.scripts = register(reg, m.scripts)
	m.compileDuration = register(reg, m.compileDuration)
	m.sessionsExpired = register(reg, m.sessionsExpired)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) SessionsActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) EventDropped(kind protocol.EventType) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) DraftSaved(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.draftSaves.WithLabelValues(status).Inc()
}

// ObserveCompile records one compilation.
func (m *Metrics) ObserveCompile(driver string, err error, took time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.scripts.WithLabelValues(driver, status).Inc()
	m.compileDuration.Observe(took.Seconds())
}

func (m *Metrics) SessionsExpired(n int) {
	if m == nil {
		return
	}
	m.sessionsExpired.Add(float64(n))
}
