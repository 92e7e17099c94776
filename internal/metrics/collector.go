// Package metrics provides internal Prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records the engine's Prometheus metrics.
type Collector struct {
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	nodeExecutionsTotal   *prometheus.CounterVec
	nodeExecutionDuration *prometheus.HistogramVec
	nodeRetriesTotal      *prometheus.CounterVec

	pausesTotal  *prometheus.CounterVec
	resumesTotal *prometheus.CounterVec

	checkpointOpsTotal  *prometheus.CounterVec
	checkpointOpLatency *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a Collector registered against reg. Passing a fresh
// prometheus.NewRegistry keeps tests isolated; pass
// prometheus.DefaultRegisterer in production.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of graph run legs",
		},
		[]string{"graph_id", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Graph run leg duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
		[]string{"graph_id", "status"},
	)

	c.nodeExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions",
		},
		[]string{"graph_id", "node_id", "status"},
	)

	c.nodeExecutionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_execution_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"graph_id", "node_id"},
	)

	c.nodeRetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_retries_total",
			Help:      "Total number of node retry attempts",
		},
		[]string{"graph_id", "node_id"},
	)

	c.pausesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_pauses_total",
			Help:      "Total number of runs paused for human input",
		},
		[]string{"graph_id", "node_id"},
	)

	c.resumesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_resumes_total",
			Help:      "Total number of resumed runs",
		},
		[]string{"graph_id"},
	)

	c.checkpointOpsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_operations_total",
			Help:      "Total number of checkpoint store operations",
		},
		[]string{"operation", "status"},
	)

	c.checkpointOpLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_operation_duration_seconds",
			Help:      "Checkpoint store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordRun records one execute/resume leg.
func (c *Collector) RecordRun(graphID, status string, duration time.Duration) {
	c.runsTotal.WithLabelValues(graphID, status).Inc()
	c.runDuration.WithLabelValues(graphID, status).Observe(duration.Seconds())
}

// RecordNodeExecution records one node invocation.
func (c *Collector) RecordNodeExecution(graphID, nodeID, status string, duration time.Duration) {
	c.nodeExecutionsTotal.WithLabelValues(graphID, nodeID, status).Inc()
	c.nodeExecutionDuration.WithLabelValues(graphID, nodeID).Observe(duration.Seconds())
}

// RecordNodeRetry records one retry attempt.
func (c *Collector) RecordNodeRetry(graphID, nodeID string) {
	c.nodeRetriesTotal.WithLabelValues(graphID, nodeID).Inc()
}

// RecordPause records a run pausing at a human-interaction node.
func (c *Collector) RecordPause(graphID, nodeID string) {
	c.pausesTotal.WithLabelValues(graphID, nodeID).Inc()
}

// RecordResume records a run resuming from a checkpoint.
func (c *Collector) RecordResume(graphID string) {
	c.resumesTotal.WithLabelValues(graphID).Inc()
}

// RecordCheckpointOp records one checkpoint store operation.
func (c *Collector) RecordCheckpointOp(operation, status string, duration time.Duration) {
	c.checkpointOpsTotal.WithLabelValues(operation, status).Inc()
	c.checkpointOpLatency.WithLabelValues(operation).Observe(duration.Seconds())
}
