package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/types"
)

// CircuitState is the state of a per-node circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets invocations through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects invocations until the recovery timeout elapses.
	CircuitOpen
	// CircuitHalfOpen admits a bounded number of probe invocations.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes the per-node breakers.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that trips the breaker.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
	// RecoveryTimeout is how long an open breaker waits before probing.
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout"`
	// HalfOpenMaxProbes bounds concurrent probes while half-open.
	HalfOpenMaxProbes int `json:"half_open_max_probes" yaml:"half_open_max_probes"`
	// SuccessThreshold is the consecutive successes that close a half-open breaker.
	SuccessThreshold int `json:"success_threshold" yaml:"success_threshold"`
}

// DefaultCircuitBreakerConfig returns production-safe defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:  5,
		RecoveryTimeout:   30 * time.Second,
		HalfOpenMaxProbes: 3,
		SuccessThreshold:  2,
	}
}

// circuitBreaker tracks one node's failure window.
type circuitBreaker struct {
	nodeID          string
	config          CircuitBreakerConfig
	state           CircuitState
	failures        int
	successes       int
	probeCount      int
	lastFailureTime time.Time
	logger          *zap.Logger
	mu              sync.Mutex
}

func (cb *circuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		if time.Since(cb.lastFailureTime) >= cb.config.RecoveryTimeout {
			cb.transitionTo(CircuitHalfOpen, "recovery timeout elapsed")
			cb.probeCount = 1
			cb.successes = 0
			return nil
		}
		return types.NewError(types.ErrNodeExecutionFailed,
			fmt.Sprintf("circuit breaker open after %d consecutive failures", cb.failures)).
			WithNodeID(cb.nodeID)

	case CircuitHalfOpen:
		if cb.probeCount < cb.config.HalfOpenMaxProbes {
			cb.probeCount++
			return nil
		}
		return types.NewError(types.ErrNodeExecutionFailed,
			fmt.Sprintf("circuit breaker half-open, max probes (%d) in flight", cb.config.HalfOpenMaxProbes)).
			WithNodeID(cb.nodeID)

	default:
		return types.NewError(types.ErrNodeExecutionFailed,
			fmt.Sprintf("circuit breaker in unknown state %d", cb.state)).
			WithNodeID(cb.nodeID)
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.releaseProbe()
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed, fmt.Sprintf("%d consecutive successes in half-open", cb.successes))
			cb.failures = 0
			cb.successes = 0
		}
	}
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen, fmt.Sprintf("%d consecutive failures", cb.failures))
		}
	case CircuitHalfOpen:
		// Any failure while probing re-opens immediately.
		cb.releaseProbe()
		cb.successes = 0
		cb.transitionTo(CircuitOpen, "failure in half-open state")
	}
}

// releaseProbe frees the in-flight probe slot taken by allow. Must be called
// with cb.mu held; without it a breaker whose SuccessThreshold exceeds
// HalfOpenMaxProbes would stay half-open rejecting forever.
func (cb *circuitBreaker) releaseProbe() {
	if cb.probeCount > 0 {
		cb.probeCount--
	}
}

// transitionTo must be called with cb.mu held.
func (cb *circuitBreaker) transitionTo(newState CircuitState, reason string) {
	oldState := cb.state
	cb.state = newState
	cb.logger.Info("circuit breaker state change",
		zap.String("node_id", cb.nodeID),
		zap.String("old_state", oldState.String()),
		zap.String("new_state", newState.String()),
		zap.String("reason", reason),
		zap.Int("failures", cb.failures),
	)
}

// CircuitBreakerMiddleware short-circuits nodes that keep failing, giving a
// flaky downstream time to recover instead of hammering it on every run.
// Breakers are keyed by node id and shared across all runs through the same
// Runner.
type CircuitBreakerMiddleware struct {
	BaseMiddleware
	config   CircuitBreakerConfig
	breakers map[string]*circuitBreaker
	logger   *zap.Logger
	mu       sync.RWMutex
}

// CircuitBreakerOption configures the middleware.
type CircuitBreakerOption func(*CircuitBreakerMiddleware)

// WithCircuitBreakerLogger sets the middleware's logger.
func WithCircuitBreakerLogger(logger *zap.Logger) CircuitBreakerOption {
	return func(m *CircuitBreakerMiddleware) {
		m.logger = logger
	}
}

// NewCircuitBreakerMiddleware creates the middleware with the given config.
func NewCircuitBreakerMiddleware(config CircuitBreakerConfig, opts ...CircuitBreakerOption) *CircuitBreakerMiddleware {
	m := &CircuitBreakerMiddleware{
		config:   config,
		breakers: make(map[string]*circuitBreaker),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "circuit_breaker_middleware"))
	return m
}

func (m *CircuitBreakerMiddleware) Name() string { return "circuit_breaker" }

func (m *CircuitBreakerMiddleware) WrapNode(next NodeHandler, node graph.Node) NodeHandler {
	return func(ctx context.Context, msg types.ExecutionMessage) (graph.NodeResult, error) {
		cb := m.breakerFor(node.ID())
		if err := cb.allow(); err != nil {
			return graph.NodeResult{}, err
		}

		res, err := next(ctx, msg)
		if err != nil {
			cb.recordFailure()
			return graph.NodeResult{}, err
		}
		cb.recordSuccess()
		return res, nil
	}
}

// State reports a node's current breaker state, for introspection and tests.
func (m *CircuitBreakerMiddleware) State(nodeID string) CircuitState {
	return m.breakerFor(nodeID).stateSnapshot()
}

// Reset closes all breakers.
func (m *CircuitBreakerMiddleware) Reset() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cb := range m.breakers {
		cb.mu.Lock()
		cb.state = CircuitClosed
		cb.failures = 0
		cb.successes = 0
		cb.probeCount = 0
		cb.mu.Unlock()
	}
}

func (cb *circuitBreaker) stateSnapshot() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (m *CircuitBreakerMiddleware) breakerFor(nodeID string) *circuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[nodeID]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[nodeID]; ok {
		return cb
	}
	cb = &circuitBreaker{
		nodeID: nodeID,
		config: m.config,
		state:  CircuitClosed,
		logger: m.logger,
	}
	m.breakers[nodeID] = cb
	return cb
}
