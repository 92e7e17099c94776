package runner

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/types"
)

const tracerName = "github.com/BaSui01/agentgraph/runner"

// TracingMiddleware wraps every node invocation in an OpenTelemetry span.
// Spans nest under whatever span is already on the context, so callers that
// start a per-run span get the full node breakdown beneath it.
type TracingMiddleware struct {
	BaseMiddleware
	tracer trace.Tracer
}

// NewTracingMiddleware creates the middleware using the global tracer
// provider.
func NewTracingMiddleware() *TracingMiddleware {
	return &TracingMiddleware{tracer: otel.Tracer(tracerName)}
}

func (m *TracingMiddleware) Name() string { return "tracing" }

func (m *TracingMiddleware) WrapNode(next NodeHandler, node graph.Node) NodeHandler {
	return func(ctx context.Context, msg types.ExecutionMessage) (graph.NodeResult, error) {
		ctx, span := m.tracer.Start(ctx, "node "+node.ID(),
			trace.WithAttributes(
				attribute.String("graph.id", msg.GraphID),
				attribute.String("graph.node_id", node.ID()),
				attribute.String("graph.run_id", msg.RunID),
				attribute.String("message.id", msg.ID),
			),
		)
		defer span.End()

		res, err := next(ctx, msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(types.GetErrorCode(err)))
			return res, err
		}
		if res.Interaction != nil {
			span.SetAttributes(attribute.Bool("graph.pausing", true))
		}
		span.SetStatus(codes.Ok, "")
		return res, nil
	}
}
