package runner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/types"
)

// RetryMiddleware re-invokes failed nodes with a fixed delay between
// attempts. It only retries errors the framework marks retryable, and it
// respects a node's NonRetryable declaration.
type RetryMiddleware struct {
	BaseMiddleware
	maxRetries int
	delay      time.Duration
	logger     *zap.Logger
}

// RetryOption configures a RetryMiddleware.
type RetryOption func(*RetryMiddleware)

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) RetryOption {
	return func(m *RetryMiddleware) {
		m.delay = d
	}
}

// WithRetryLogger sets the middleware's logger.
func WithRetryLogger(logger *zap.Logger) RetryOption {
	return func(m *RetryMiddleware) {
		m.logger = logger
	}
}

// NewRetryMiddleware retries a failing node up to maxRetries extra attempts.
func NewRetryMiddleware(maxRetries int, opts ...RetryOption) *RetryMiddleware {
	m := &RetryMiddleware{
		maxRetries: maxRetries,
		delay:      time.Second,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "retry_middleware"))
	return m
}

func (m *RetryMiddleware) Name() string { return "retry" }

func (m *RetryMiddleware) OnError(ctx context.Context, err error, ec ErrorContext) ErrorAction {
	// Attempt 1 is the original invocation, so attempt N has consumed N-1
	// retries of the budget.
	if ec.Attempt > m.maxRetries {
		return Pass()
	}
	if ec.Node != nil {
		if n, ok := ec.Node.(graph.NonRetryable); ok && n.NonRetryable() {
			return Pass()
		}
	}
	// Node-level failures are treated as transient unless the error says
	// otherwise; errors explicitly marked retryable always qualify.
	if e, ok := asFrameworkError(err); ok && !e.Retryable {
		switch e.Code {
		case types.ErrNodeExecutionFailed, types.ErrNodeTimeout:
		default:
			return Pass()
		}
	}

	if m.delay > 0 {
		timer := time.NewTimer(m.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Pass()
		case <-timer.C:
		}
	}

	m.logger.Debug("retrying node",
		zap.String("node_id", ec.NodeID),
		zap.Int("attempt", ec.Attempt),
	)
	return Retry()
}

func asFrameworkError(err error) (*types.Error, bool) {
	var e *types.Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
