// Package metrics holds the Prometheus collectors for solver and audit
// activity. Collectors live on a private registry so concurrent runs and
// tests never collide on the global one.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "recourse"

// Metrics is a set of collectors bound to one registry.
type Metrics struct {
	Registry *prometheus.Registry

	SolverCalls    *prometheus.CounterVec
	SolverDuration *prometheus.HistogramVec
	SolverNodes    *prometheus.HistogramVec
	AuditRows      *prometheus.CounterVec
	FlipsetItems   prometheus.Histogram
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SolverCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "calls_total",
			Help:      "Solver invocations by backend and result status",
		}, []string{"backend", "status"}),
		SolverDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "duration_seconds",
			Help:      "Wall time of a single solve",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"backend"}),
		SolverNodes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "nodes",
			Help:      "Search nodes explored per solve",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 12),
		}, []string{"backend"}),
		AuditRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "rows_total",
			Help:      "Audited rows by outcome",
		}, []string{"outcome"}),
		FlipsetItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "flipset",
			Name:      "items",
			Help:      "Actions returned per populated flipset",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
	}
	m.Registry.MustRegister(
		m.SolverCalls,
		m.SolverDuration,
		m.SolverNodes,
		m.AuditRows,
		m.FlipsetItems,
		collectors.NewGoCollector(),
	)
	return m
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
