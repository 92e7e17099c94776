package runner

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/types"
)

// RateLimitMiddleware throttles node invocations across all runs sharing the
// Runner, typically to respect a downstream provider's request quota. It
// blocks until a token is available or the context is cancelled.
type RateLimitMiddleware struct {
	BaseMiddleware
	limiter *rate.Limiter
}

// NewRateLimitMiddleware allows rps invocations per second with the given
// burst.
func NewRateLimitMiddleware(rps float64, burst int) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (m *RateLimitMiddleware) Name() string { return "rate_limit" }

func (m *RateLimitMiddleware) WrapNode(next NodeHandler, node graph.Node) NodeHandler {
	return func(ctx context.Context, msg types.ExecutionMessage) (graph.NodeResult, error) {
		if err := m.limiter.Wait(ctx); err != nil {
			return graph.NodeResult{}, types.NewError(types.ErrCancelled, "cancelled while rate limited").
				WithNodeID(node.ID()).
				WithCause(err)
		}
		return next(ctx, msg)
	}
}
