package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics for graph execution.
//
// Metrics exposed (all namespaced with "csflow_"):
//
// 1. inflight_nodes (gauge): Nodes executing right now across all runs.
//
// 2. step_latency_ms (histogram): Node execution duration in milliseconds.
// Labels: graph, node_id, status (success/error/timeout).
//
// 3. retries_total (counter): Retry attempts.
// Labels: graph, node_id, reason (error/timeout).
//
// 4. interrupts_total (counter): Runs halted at an approval gate.
// Labels: graph, node_id.
//
// 5. runs_total (counter): Engine calls by how they ended.
// Labels: graph, outcome (complete/pending/failed/cancelled).
//
// Labels never include run IDs, which are unbounded.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine, _ := graph.New(def, st, emitter, graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	inflightNodes prometheus.Gauge
	stepLatency   *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	interrupts    *prometheus.CounterVec
	runs          *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all graph execution metrics
// with the provided registry (prometheus.DefaultRegisterer when nil).
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "csflow",
			Name:      "inflight_nodes",
			Help:      "Current number of nodes executing across all runs",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "csflow",
			Name:      "step_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"graph", "node_id", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csflow",
			Name:      "retries_total",
			Help:      "Cumulative count of node retry attempts",
		}, []string{"graph", "node_id", "reason"}),
		interrupts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csflow",
			Name:      "interrupts_total",
			Help:      "Runs halted before an approval-gated node",
		}, []string{"graph", "node_id"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csflow",
			Name:      "runs_total",
			Help:      "Engine calls by outcome",
		}, []string{"graph", "outcome"}),
	}
}

func (pm *PrometheusMetrics) on() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordStepLatency records one node attempt.
func (pm *PrometheusMetrics) RecordStepLatency(graph, nodeID string, latency time.Duration, status string) {
	if !pm.on() {
		return
	}
	pm.stepLatency.WithLabelValues(graph, nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries counts a retry of nodeID.
func (pm *PrometheusMetrics) IncrementRetries(graph, nodeID, reason string) {
	if !pm.on() {
		return
	}
	pm.retries.WithLabelValues(graph, nodeID, reason).Inc()
}

// IncrementInterrupts counts a halt before nodeID.
func (pm *PrometheusMetrics) IncrementInterrupts(graph, nodeID string) {
	if !pm.on() {
		return
	}
	pm.interrupts.WithLabelValues(graph, nodeID).Inc()
}

// IncrementRuns counts an engine call that ended with outcome.
func (pm *PrometheusMetrics) IncrementRuns(graph, outcome string) {
	if !pm.on() {
		return
	}
	pm.runs.WithLabelValues(graph, outcome).Inc()
}

func (pm *PrometheusMetrics) nodeStarted() {
	if !pm.on() {
		return
	}
	pm.inflightNodes.Inc()
}

func (pm *PrometheusMetrics) nodeFinished() {
	if !pm.on() {
		return
	}
	pm.inflightNodes.Dec()
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable().
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
