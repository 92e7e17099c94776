package runner

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/checkpoint"
	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/internal/metrics"
	"github.com/BaSui01/agentgraph/types"
)

// MetricsMiddleware records Prometheus metrics for run legs, node
// executions, retries, pauses, and resumes. Wrap the checkpoint store with
// InstrumentStore to cover store operations with the same collector.
type MetricsMiddleware struct {
	BaseMiddleware
	collector *metrics.Collector

	mu     sync.Mutex
	starts map[string]time.Time
}

// NewMetricsMiddleware creates the middleware with its collector registered
// against reg.
func NewMetricsMiddleware(namespace string, reg prometheus.Registerer, logger *zap.Logger) *MetricsMiddleware {
	return &MetricsMiddleware{
		collector: metrics.NewCollector(namespace, reg, logger),
		starts:    make(map[string]time.Time),
	}
}

func (m *MetricsMiddleware) Name() string { return "metrics" }

func (m *MetricsMiddleware) OnRunStart(_ context.Context, msg types.ExecutionMessage) {
	m.mu.Lock()
	m.starts[msg.RunID] = time.Now()
	m.mu.Unlock()
}

func (m *MetricsMiddleware) OnRunEnd(_ context.Context, msg types.ExecutionMessage, err error) {
	m.mu.Lock()
	start, ok := m.starts[msg.RunID]
	delete(m.starts, msg.RunID)
	m.mu.Unlock()
	if !ok {
		return
	}

	status := "completed"
	switch {
	case err != nil:
		status = "failed"
	case msg.State == types.StateWaiting:
		status = "paused"
		m.collector.RecordPause(msg.GraphID, msg.NodeID)
	}
	m.collector.RecordRun(msg.GraphID, status, time.Since(start))
}

func (m *MetricsMiddleware) WrapNode(next NodeHandler, node graph.Node) NodeHandler {
	return func(ctx context.Context, msg types.ExecutionMessage) (graph.NodeResult, error) {
		start := time.Now()
		res, err := next(ctx, msg)
		status := "success"
		if err != nil {
			status = "error"
		}
		m.collector.RecordNodeExecution(msg.GraphID, node.ID(), status, time.Since(start))
		return res, err
	}
}

// OnError is observe-only: it counts the extra attempts other interceptors
// cause and never makes a decision itself.
func (m *MetricsMiddleware) OnError(_ context.Context, _ error, ec ErrorContext) ErrorAction {
	if ec.Attempt > 1 {
		m.collector.RecordNodeRetry(ec.GraphID, ec.NodeID)
	}
	return Pass()
}

// OnRunResume counts legs continued from a checkpoint.
func (m *MetricsMiddleware) OnRunResume(_ context.Context, graphID, _ string) {
	m.collector.RecordResume(graphID)
}

// InstrumentStore wraps a checkpoint store so every operation is recorded
// against this middleware's collector.
func (m *MetricsMiddleware) InstrumentStore(store checkpoint.Store) checkpoint.Store {
	return &instrumentedStore{inner: store, collector: m.collector}
}

type instrumentedStore struct {
	inner     checkpoint.Store
	collector *metrics.Collector
}

func (s *instrumentedStore) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	start := time.Now()
	err := s.inner.Save(ctx, cp)
	s.collector.RecordCheckpointOp("save", opStatus(err), time.Since(start))
	return err
}

func (s *instrumentedStore) Load(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	start := time.Now()
	cp, err := s.inner.Load(ctx, id)
	s.collector.RecordCheckpointOp("load", opStatus(err), time.Since(start))
	return cp, err
}

func (s *instrumentedStore) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, id)
	s.collector.RecordCheckpointOp("delete", opStatus(err), time.Since(start))
	return err
}

func (s *instrumentedStore) ListByRun(ctx context.Context, runID string) ([]*checkpoint.Checkpoint, error) {
	start := time.Now()
	cps, err := s.inner.ListByRun(ctx, runID)
	s.collector.RecordCheckpointOp("list_by_run", opStatus(err), time.Since(start))
	return cps, err
}

func opStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
