// Package metrics records the outcome of a registration run and optionally
// pushes it to a Prometheus Pushgateway when the job finishes.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "pageserver_registrar"

// Metrics holds all Prometheus metrics for a registration run.
type Metrics struct {
	registry *prometheus.Registry

	LookupsTotal       *prometheus.CounterVec
	RegistrationsTotal *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	LastRunSuccess     prometheus.Gauge
	PageserverVersion  prometheus.Gauge
}

// New creates a Metrics instance backed by its own registry. A one-shot job
// pushes everything it recorded, so the process-wide default registry is not used.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		LookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lookups_total",
				Help:      "Total number of pageserver lookups by service and outcome",
			},
			[]string{"service", "outcome"},
		),
		RegistrationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Total number of registration decisions by service and result",
			},
			[]string{"service", "result"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP calls to the console and control planes",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "method"},
		),
		LastRunSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_success",
				Help:      "1 if the last registration run succeeded, 0 otherwise",
			},
		),
		PageserverVersion: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pageserver_version",
				Help:      "Pageserver version discovered from the console",
			},
		),
	}
}

// ObserveRequest records the duration of one HTTP call.
func (m *Metrics) ObserveRequest(service, method string, d time.Duration) {
	m.RequestDuration.WithLabelValues(service, method).Observe(d.Seconds())
}

// Lookup counts one lookup outcome.
func (m *Metrics) Lookup(service, outcome string) {
	m.LookupsTotal.WithLabelValues(service, outcome).Inc()
}

// Registration counts one registration decision, e.g. "registered" or "skipped".
func (m *Metrics) Registration(service, result string) {
	m.RegistrationsTotal.WithLabelValues(service, result).Inc()
}

// Version records the pageserver version discovered from the console.
func (m *Metrics) Version(v int64) {
	m.PageserverVersion.Set(float64(v))
}

// Finish records the run result.
func (m *Metrics) Finish(success bool) {
	if success {
		m.LastRunSuccess.Set(1)
		return
	}
	m.LastRunSuccess.Set(0)
}

// Push sends all recorded metrics to the Pushgateway at url, grouped by host.
func (m *Metrics) Push(ctx context.Context, url, job, host string) error {
	pusher := push.New(url, job).
		Gatherer(m.registry).
		Grouping("instance", host)
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
