package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/checkpoint"
	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/types"
)

// flakyNode fails the first failures invocations, then succeeds.
type flakyNode struct {
	id       string
	failures int32
	calls    atomic.Int32
}

func (n *flakyNode) ID() string { return n.id }

func (n *flakyNode) Run(_ context.Context, msg types.ExecutionMessage) (graph.NodeResult, error) {
	if n.calls.Add(1) <= n.failures {
		return graph.NodeResult{}, errors.New("transient downstream failure")
	}
	return graph.NodeResult{Message: msg.WithData("recovered", true)}, nil
}

func singleNodeGraph(t *testing.T, n graph.Node) *graph.Graph {
	t.Helper()
	return mustBuild(t, graph.NewBuilder("single").Then(n))
}

func TestRetryMiddleware_RetriesUntilSuccess(t *testing.T) {
	node := &flakyNode{id: "flaky", failures: 2}
	r := New(WithMiddleware(NewRetryMiddleware(3, WithRetryDelay(0))))

	res, err := r.Execute(context.Background(), singleNodeGraph(t, node), types.NewMessage("go"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, int32(3), node.calls.Load())
}

func TestRetryMiddleware_ExhaustsBudget(t *testing.T) {
	node := &flakyNode{id: "flaky", failures: 10}
	r := New(WithMiddleware(NewRetryMiddleware(2, WithRetryDelay(0))))

	res, err := r.Execute(context.Background(), singleNodeGraph(t, node), types.NewMessage("go"))
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, types.IsCode(err, types.ErrNodeExecutionFailed))
	// Original attempt plus two retries.
	assert.Equal(t, int32(3), node.calls.Load())
}

func TestRetryMiddleware_RespectsNonRetryableNode(t *testing.T) {
	var calls atomic.Int32
	agent := agentFunc(func(_ context.Context, msg types.ExecutionMessage) (types.ExecutionMessage, error) {
		calls.Add(1)
		return msg, errors.New("side effect already happened")
	})
	node := graph.NewAgentNode("payer", agent, graph.WithAgentNonRetryable())
	r := New(WithMiddleware(NewRetryMiddleware(5, WithRetryDelay(0))))

	_, err := r.Execute(context.Background(), singleNodeGraph(t, node), types.NewMessage("go"))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

// agentFunc adapts a function to the graph.Agent interface.
type agentFunc func(ctx context.Context, msg types.ExecutionMessage) (types.ExecutionMessage, error)

func (f agentFunc) Name() string { return "agent-func" }

func (f agentFunc) ProcessMessage(ctx context.Context, msg types.ExecutionMessage) (types.ExecutionMessage, error) {
	return f(ctx, msg)
}

func TestErrorPipeline_SkipAdvancesWithInputMessage(t *testing.T) {
	failing := graph.NewFuncNode("failing", func(_ context.Context, _ types.ExecutionMessage) (graph.NodeResult, error) {
		return graph.NodeResult{}, errors.New("broken")
	})
	g := mustBuild(t, graph.NewBuilder("skip").
		Then(setData("before", "before", true)).
		Then(failing).
		Then(graph.NewPassthroughNode("end")))

	r := New(WithMiddleware(&decisionRecorder{action: Skip()}))
	res, err := r.Execute(context.Background(), g, types.NewMessage("go"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)

	v, ok := res.Message.GetData("before")
	require.True(t, ok)
	assert.Equal(t, true, v)
}

func TestErrorPipeline_ContinueWithFallback(t *testing.T) {
	failing := graph.NewFuncNode("failing", func(_ context.Context, _ types.ExecutionMessage) (graph.NodeResult, error) {
		return graph.NodeResult{}, errors.New("broken")
	})
	g := mustBuild(t, graph.NewBuilder("fallback").
		Then(failing).
		Then(graph.NewPassthroughNode("end")))

	fallback := types.NewMessage("fallback answer").WithData("fallback", true)
	running, err := fallback.Transition(types.StateRunning, "fallback prepared")
	require.NoError(t, err)

	r := New(WithMiddleware(&decisionRecorder{action: ContinueWith(running)}))
	res, err := r.Execute(context.Background(), g, types.NewMessage("go"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)

	v, ok := res.Message.GetData("fallback")
	require.True(t, ok)
	assert.Equal(t, true, v)
}

func TestErrorPipeline_DefaultPropagates(t *testing.T) {
	failing := graph.NewFuncNode("failing", func(_ context.Context, _ types.ExecutionMessage) (graph.NodeResult, error) {
		return graph.NodeResult{}, errors.New("broken")
	})

	res, err := New().Execute(context.Background(), singleNodeGraph(t, failing), types.NewMessage("go"))
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, types.StateFailed, res.Message.State)
}

func TestErrorPipeline_FirstDecisionWins(t *testing.T) {
	failing := graph.NewFuncNode("failing", func(_ context.Context, _ types.ExecutionMessage) (graph.NodeResult, error) {
		return graph.NodeResult{}, errors.New("broken")
	})

	skipper := &decisionRecorder{action: Skip()}
	propagator := &decisionRecorder{action: Propagate()}
	r := New(WithMiddleware(skipper, propagator))

	res, err := r.Execute(context.Background(), singleNodeGraph(t, failing), types.NewMessage("go"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, int32(1), skipper.calls.Load())
	assert.Zero(t, propagator.calls.Load(), "a decision upstream must short-circuit the pipeline")
}

func TestErrorPipeline_PassDefersDownstream(t *testing.T) {
	failing := graph.NewFuncNode("failing", func(_ context.Context, _ types.ExecutionMessage) (graph.NodeResult, error) {
		return graph.NodeResult{}, errors.New("broken")
	})

	passer := &decisionRecorder{action: Pass()}
	skipper := &decisionRecorder{action: Skip()}
	r := New(WithMiddleware(passer, skipper))

	res, err := r.Execute(context.Background(), singleNodeGraph(t, failing), types.NewMessage("go"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, int32(1), passer.calls.Load())
	assert.Equal(t, int32(1), skipper.calls.Load())
}

// orderRecorder appends its tag on entry so nesting order becomes visible.
type orderRecorder struct {
	BaseMiddleware
	tag   string
	order *[]string
}

func (o *orderRecorder) Name() string { return o.tag }

func (o *orderRecorder) WrapNode(next NodeHandler, _ graph.Node) NodeHandler {
	return func(ctx context.Context, msg types.ExecutionMessage) (graph.NodeResult, error) {
		*o.order = append(*o.order, o.tag)
		return next(ctx, msg)
	}
}

func TestMiddleware_FirstRegisteredIsOutermost(t *testing.T) {
	var order []string
	r := New(WithMiddleware(
		&orderRecorder{tag: "outer", order: &order},
		&orderRecorder{tag: "inner", order: &order},
	))

	_, err := r.Execute(context.Background(),
		singleNodeGraph(t, graph.NewPassthroughNode("only")), types.NewMessage("go"))
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	node := &flakyNode{id: "downstream", failures: 100}
	cb := NewCircuitBreakerMiddleware(CircuitBreakerConfig{
		FailureThreshold:  2,
		RecoveryTimeout:   time.Hour,
		HalfOpenMaxProbes: 1,
		SuccessThreshold:  1,
	})
	r := New(WithMiddleware(cb))
	g := singleNodeGraph(t, node)

	for range 2 {
		_, err := r.Execute(context.Background(), g, types.NewMessage("go"))
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, cb.State("downstream"))

	// The breaker now rejects without invoking the node.
	before := node.calls.Load()
	_, err := r.Execute(context.Background(), g, types.NewMessage("go"))
	require.Error(t, err)
	assert.Equal(t, before, node.calls.Load())
}

func TestCircuitBreaker_ClosesAfterRecovery(t *testing.T) {
	node := &flakyNode{id: "downstream", failures: 2}
	cb := NewCircuitBreakerMiddleware(CircuitBreakerConfig{
		FailureThreshold:  2,
		RecoveryTimeout:   time.Millisecond,
		HalfOpenMaxProbes: 1,
		SuccessThreshold:  1,
	})
	r := New(WithMiddleware(cb))
	g := singleNodeGraph(t, node)

	for range 2 {
		_, err := r.Execute(context.Background(), g, types.NewMessage("go"))
		require.Error(t, err)
	}
	require.Equal(t, CircuitOpen, cb.State("downstream"))

	time.Sleep(5 * time.Millisecond)
	res, err := r.Execute(context.Background(), g, types.NewMessage("go"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, CircuitClosed, cb.State("downstream"))
}

func TestCircuitBreaker_SuccessThresholdAboveProbeLimit(t *testing.T) {
	// Closing needs two successes but only one probe may be in flight, so
	// the probe slot must be released as each sequential probe completes.
	node := &flakyNode{id: "downstream", failures: 1}
	cb := NewCircuitBreakerMiddleware(CircuitBreakerConfig{
		FailureThreshold:  1,
		RecoveryTimeout:   time.Millisecond,
		HalfOpenMaxProbes: 1,
		SuccessThreshold:  2,
	})
	r := New(WithMiddleware(cb))
	g := singleNodeGraph(t, node)

	_, err := r.Execute(context.Background(), g, types.NewMessage("go"))
	require.Error(t, err)
	require.Equal(t, CircuitOpen, cb.State("downstream"))

	time.Sleep(5 * time.Millisecond)
	res, err := r.Execute(context.Background(), g, types.NewMessage("go"))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	require.Equal(t, CircuitHalfOpen, cb.State("downstream"))

	res, err = r.Execute(context.Background(), g, types.NewMessage("go"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, CircuitClosed, cb.State("downstream"))
}

func TestRateLimitMiddleware_CancelledWhileWaiting(t *testing.T) {
	// Burst of one: the first node consumes the token and the second waits
	// far longer than the context allows.
	rl := NewRateLimitMiddleware(0.01, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	g := mustBuild(t, graph.NewBuilder("limited").
		Then(graph.NewPassthroughNode("a")).
		Then(graph.NewPassthroughNode("end")))

	r := New(WithMiddleware(rl))
	_, err := r.Execute(ctx, g, types.NewMessage("go"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCancelled))
}

func TestMetricsMiddleware_RecordsRunAndNodes(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw := NewMetricsMiddleware("agentgraph", reg, nil)
	r := New(WithMiddleware(mw))

	g := mustBuild(t, graph.NewBuilder("metered").
		Then(graph.NewPassthroughNode("a")).
		Then(graph.NewPassthroughNode("end")))

	_, err := r.Execute(context.Background(), g, types.NewMessage("go"))
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg,
		"agentgraph_runs_total",
		"agentgraph_node_executions_total",
	)
	require.NoError(t, err)
	// One run series plus one node series per node.
	assert.Equal(t, 3, count)
}

func TestMetricsMiddleware_RecordsResume(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw := NewMetricsMiddleware("agentgraph", reg, nil)
	store := checkpoint.NewMemoryStore()
	r := New(WithStore(store), WithMiddleware(mw))
	g := approvalGraph(t)

	paused, err := r.Execute(context.Background(), g, types.NewMessage("request"))
	require.NoError(t, err)
	require.Equal(t, StatusPaused, paused.Status)

	resp := types.NewHumanResponse("review", "approve", "")
	_, err = r.Resume(context.Background(), g, paused.CheckpointID, &resp)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "agentgraph_run_resumes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetricsMiddleware_InstrumentStoreRecordsOps(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw := NewMetricsMiddleware("agentgraph", reg, nil)
	store := mw.InstrumentStore(checkpoint.NewMemoryStore())

	ctx := context.Background()
	cp := checkpoint.New("run-1", "metered", "a", types.NewMessage("x"), checkpoint.StatusRunning)
	require.NoError(t, store.Save(ctx, cp))
	_, err := store.Load(ctx, cp.ID)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, cp.ID))

	// One series per operation, all with status success.
	count, err := testutil.GatherAndCount(reg, "agentgraph_checkpoint_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
