package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/types"
)

// LoggingMiddleware emits structured logs around run and node boundaries.
// Register it first so its WrapNode scope encloses every other interceptor
// and the logged durations include their overhead.
type LoggingMiddleware struct {
	BaseMiddleware
	logger *zap.Logger
}

// NewLoggingMiddleware creates the middleware.
func NewLoggingMiddleware(logger *zap.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingMiddleware{logger: logger.With(zap.String("component", "logging_middleware"))}
}

func (m *LoggingMiddleware) Name() string { return "logging" }

func (m *LoggingMiddleware) OnRunStart(_ context.Context, msg types.ExecutionMessage) {
	m.logger.Info("run leg started",
		zap.String("graph_id", msg.GraphID),
		zap.String("run_id", msg.RunID),
		zap.String("message_id", msg.ID),
	)
}

func (m *LoggingMiddleware) OnRunEnd(_ context.Context, msg types.ExecutionMessage, err error) {
	if err != nil {
		m.logger.Warn("run leg ended with error",
			zap.String("graph_id", msg.GraphID),
			zap.String("run_id", msg.RunID),
			zap.String("state", string(msg.State)),
			zap.Error(err),
		)
		return
	}
	m.logger.Info("run leg ended",
		zap.String("graph_id", msg.GraphID),
		zap.String("run_id", msg.RunID),
		zap.String("state", string(msg.State)),
	)
}

func (m *LoggingMiddleware) WrapNode(next NodeHandler, node graph.Node) NodeHandler {
	return func(ctx context.Context, msg types.ExecutionMessage) (graph.NodeResult, error) {
		start := time.Now()
		m.logger.Debug("node started",
			zap.String("node_id", node.ID()),
			zap.String("run_id", msg.RunID),
		)

		res, err := next(ctx, msg)
		if err != nil {
			m.logger.Warn("node failed",
				zap.String("node_id", node.ID()),
				zap.String("run_id", msg.RunID),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return res, err
		}

		m.logger.Debug("node completed",
			zap.String("node_id", node.ID()),
			zap.String("run_id", msg.RunID),
			zap.Duration("duration", time.Since(start)),
			zap.Bool("pausing", res.Interaction != nil),
		)
		return res, nil
	}
}
