package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/checkpoint"
	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/types"
)

// Status describes how an execute/resume call ended.
type Status string

const (
	// StatusCompleted means the run reached the graph's exit node.
	StatusCompleted Status = "completed"
	// StatusPaused means the run checkpointed at a human-interaction node.
	StatusPaused Status = "paused"
	// StatusFailed means the run aborted; Result.Message carries the FAILED
	// message with its full transition history for post-mortem inspection.
	StatusFailed Status = "failed"
)

// Result is the outcome of one execute/resume leg.
type Result struct {
	Message      types.ExecutionMessage
	Status       Status
	CheckpointID string
	Interaction  *types.HumanInteraction
}

// Config bounds a runner's traversal.
type Config struct {
	// MaxSteps caps node executions per execute/resume leg, guaranteeing
	// termination for cyclic graphs.
	MaxSteps int
	// NodeTimeout bounds a single node invocation (0 = no timeout).
	NodeTimeout time.Duration
	// CheckpointEvery persists a running checkpoint after every N routed
	// nodes (0 = checkpoint only on pause).
	CheckpointEvery int
	// DeleteOnComplete removes the run's checkpoints after successful
	// terminal completion.
	DeleteOnComplete bool
}

// DefaultConfig returns the default traversal bounds.
func DefaultConfig() Config {
	return Config{MaxSteps: 1000}
}

// Runner executes graphs. A single Runner is safe for concurrent use by any
// number of runs; all per-run state lives on the stack of Execute/Resume.
type Runner struct {
	cfg        Config
	store      checkpoint.Store
	middleware []Middleware
	publisher  EventPublisher
	logger     *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithConfig replaces the runner's traversal bounds.
func WithConfig(cfg Config) Option {
	return func(r *Runner) {
		r.cfg = cfg
	}
}

// WithStore attaches the checkpoint store used for pause and resume. Without
// a store, human-interaction nodes fail the run.
func WithStore(store checkpoint.Store) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithMiddleware appends interceptors; the first registered is outermost.
func WithMiddleware(mw ...Middleware) Option {
	return func(r *Runner) {
		r.middleware = append(r.middleware, mw...)
	}
}

// WithPublisher attaches a lifecycle event sink.
func WithPublisher(p EventPublisher) Option {
	return func(r *Runner) {
		r.publisher = p
	}
}

// WithLogger sets the runner's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		cfg:       DefaultConfig(),
		publisher: NopPublisher{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg.MaxSteps <= 0 {
		r.cfg.MaxSteps = DefaultConfig().MaxSteps
	}
	r.logger = r.logger.With(zap.String("component", "graph_runner"))
	return r
}

// Execute runs the graph from its start node with a fresh run id. The
// message must be in READY state.
func (r *Runner) Execute(ctx context.Context, g *graph.Graph, msg types.ExecutionMessage) (Result, error) {
	runID := uuid.NewString()
	msg = msg.WithGraphContext(g.ID(), g.Start(), runID)

	running, err := msg.Transition(types.StateRunning, "submitted to runner")
	if err != nil {
		return Result{Message: msg, Status: StatusFailed}, err
	}

	r.logger.Info("run started",
		zap.String("graph_id", g.ID()),
		zap.String("run_id", runID),
		zap.String("start_node", g.Start()),
	)

	return r.run(ctx, g, running, g.Start())
}

// Resume reloads a checkpoint and continues the run. For a checkpoint paused
// at a human-interaction node, response is validated against the pending
// interaction, merged into the message, and traversal continues at the
// paused node's edge-successor. For periodic (running) checkpoints, response
// must be nil and traversal restarts at the checkpointed node.
func (r *Runner) Resume(ctx context.Context, g *graph.Graph, checkpointID string, response *types.HumanResponse) (Result, error) {
	if r.store == nil {
		return Result{Status: StatusFailed},
			types.NewError(types.ErrCheckpointNotFound, "no checkpoint store configured")
	}

	cp, err := r.store.Load(ctx, checkpointID)
	if err != nil {
		return Result{Status: StatusFailed}, err
	}
	if cp.GraphID != g.ID() {
		return Result{Status: StatusFailed}, types.NewError(types.ErrInvalidGraph,
			fmt.Sprintf("checkpoint %s belongs to graph %q, not %q", checkpointID, cp.GraphID, g.ID()))
	}

	msg := cp.Message
	var next string

	switch cp.Status {
	case checkpoint.StatusWaitingHuman:
		if response == nil {
			return Result{Message: msg, Status: StatusFailed},
				types.NewError(types.ErrInvalidHumanResponse, "human response required").WithNodeID(cp.NodeID)
		}
		if cp.Pending != nil {
			if err := cp.Pending.Validate(*response); err != nil {
				return Result{Message: msg, Status: StatusFailed}, err
			}
		}
		msg = MergeHumanResponse(msg, cp.NodeID, *response)

		msg, err = msg.Transition(types.StateRunning, "resumed with human response")
		if err != nil {
			return Result{Message: msg, Status: StatusFailed}, err
		}

		edge, rerr := r.nextEdge(g, cp.NodeID, msg)
		if rerr != nil {
			return r.fail(ctx, g, msg, rerr)
		}
		msg = edge.Apply(msg).WithNodeID(edge.To)
		next = edge.To

		// Record the resume durably so the response survives a later crash.
		resumed := checkpoint.New(cp.RunID, g.ID(), next, msg, checkpoint.StatusRunning)
		resumed.Response = response
		if err := r.store.Save(ctx, resumed); err != nil {
			r.logger.Warn("failed to persist resume checkpoint",
				zap.String("run_id", cp.RunID),
				zap.Error(err),
			)
		}

	case checkpoint.StatusRunning:
		if response != nil {
			return Result{Message: msg, Status: StatusFailed}, types.NewError(types.ErrInvalidHumanResponse,
				"checkpoint is not waiting for human input").WithNodeID(cp.NodeID)
		}
		next = cp.NodeID

	default:
		return Result{Message: msg, Status: StatusFailed}, types.NewError(types.ErrInvalidStateTransition,
			fmt.Sprintf("checkpoint %s has status %q and cannot be resumed", checkpointID, cp.Status))
	}

	r.logger.Info("run resumed",
		zap.String("graph_id", g.ID()),
		zap.String("run_id", cp.RunID),
		zap.String("checkpoint_id", checkpointID),
		zap.String("next_node", next),
	)
	r.publish(Event{Type: EventRunResumed, GraphID: g.ID(), NodeID: next, RunID: msg.RunID, Timestamp: time.Now().UTC()})
	for _, mw := range r.middleware {
		if ro, ok := mw.(ResumeObserver); ok {
			ro.OnRunResume(ctx, g.ID(), next)
		}
	}

	return r.run(ctx, g, msg, next)
}

// MergeHumanResponse writes a human response into the message's data map
// under flat keys routable by edge predicates:
//
//	human:<node>:option — the selected option id
//	human:<node>:text   — the free-text answer
func MergeHumanResponse(msg types.ExecutionMessage, nodeID string, resp types.HumanResponse) types.ExecutionMessage {
	if resp.OptionID != "" {
		msg = msg.WithData(fmt.Sprintf("human:%s:option", nodeID), resp.OptionID)
	}
	if resp.FreeText != "" {
		msg = msg.WithData(fmt.Sprintf("human:%s:text", nodeID), resp.FreeText)
	}
	return msg
}

// run is the traversal loop shared by Execute and Resume. msg must already be
// RUNNING and current must name the node to execute first.
func (r *Runner) run(ctx context.Context, g *graph.Graph, msg types.ExecutionMessage, current string) (result Result, err error) {
	for _, mw := range r.middleware {
		mw.OnRunStart(ctx, msg)
	}
	defer func() {
		for i := len(r.middleware) - 1; i >= 0; i-- {
			r.middleware[i].OnRunEnd(ctx, result.Message, err)
		}
	}()

	for steps := 0; ; steps++ {
		if steps >= r.cfg.MaxSteps {
			return r.fail(ctx, g, msg, types.NewError(types.ErrStepLimitExceeded,
				fmt.Sprintf("run exceeded %d steps", r.cfg.MaxSteps)))
		}

		node, ok := g.Node(current)
		if !ok {
			return r.fail(ctx, g, msg, types.NewError(types.ErrNoRouteFound,
				fmt.Sprintf("node %q not present in graph", current)))
		}

		res, nerr := r.invokeNode(ctx, g, node, msg)
		if nerr != nil {
			return r.fail(ctx, g, msg, nerr)
		}
		msg = res.Message.WithNodeID(node.ID())

		if res.Interaction != nil {
			return r.pause(ctx, g, node.ID(), msg, res.Interaction)
		}

		if node.ID() == g.Exit() {
			return r.complete(ctx, g, msg)
		}

		edge, rerr := r.nextEdge(g, node.ID(), msg)
		if rerr != nil {
			return r.fail(ctx, g, msg, rerr)
		}
		msg = edge.Apply(msg).WithNodeID(edge.To)
		current = edge.To

		if r.cfg.CheckpointEvery > 0 && r.store != nil && (steps+1)%r.cfg.CheckpointEvery == 0 {
			cp := checkpoint.New(msg.RunID, g.ID(), current, msg, checkpoint.StatusRunning)
			if serr := r.store.Save(ctx, cp); serr != nil {
				r.logger.Warn("periodic checkpoint save failed",
					zap.String("run_id", msg.RunID),
					zap.String("node_id", current),
					zap.Error(serr),
				)
			}
		}
	}
}

// nextEdge resolves routing for a just-completed node: predicates are
// evaluated in declaration order and the first match wins.
func (r *Runner) nextEdge(g *graph.Graph, nodeID string, msg types.ExecutionMessage) (graph.Edge, error) {
	for _, edge := range g.EdgesFrom(nodeID) {
		if edge.Matches(msg) {
			return edge, nil
		}
	}
	return graph.Edge{}, types.NewError(types.ErrNoRouteFound,
		fmt.Sprintf("no edge from node %q matched the message", nodeID)).WithNodeID(nodeID)
}

// invokeNode runs one node through the middleware chain and, on failure,
// through the error-handling pipeline. Structural errors never reach this
// path; everything returned here is either a node result or a terminal
// node-level failure.
func (r *Runner) invokeNode(ctx context.Context, g *graph.Graph, node graph.Node, msg types.ExecutionMessage) (graph.NodeResult, error) {
	handler := r.baseHandler(node)
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i].WrapNode(handler, node)
	}

	for attempt := 1; ; attempt++ {
		start := time.Now()
		r.publish(Event{Type: EventNodeStarted, GraphID: g.ID(), NodeID: node.ID(), RunID: msg.RunID, Timestamp: start})

		res, err := handler(ctx, msg)
		duration := time.Since(start)

		if err == nil {
			r.publish(Event{Type: EventNodeCompleted, GraphID: g.ID(), NodeID: node.ID(), RunID: msg.RunID,
				Timestamp: time.Now().UTC(), Duration: duration})
			return res, nil
		}

		r.publish(Event{Type: EventNodeFailed, GraphID: g.ID(), NodeID: node.ID(), RunID: msg.RunID,
			Timestamp: time.Now().UTC(), Duration: duration, ErrorCode: types.GetErrorCode(err)})
		r.logger.Warn("node execution failed",
			zap.String("graph_id", g.ID()),
			zap.String("node_id", node.ID()),
			zap.String("run_id", msg.RunID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		// Caller cancellation aborts immediately; the pipeline is not asked.
		if types.IsCode(err, types.ErrCancelled) {
			return graph.NodeResult{}, err
		}

		action := r.decide(ctx, err, ErrorContext{
			GraphID: g.ID(),
			RunID:   msg.RunID,
			NodeID:  node.ID(),
			Node:    node,
			Attempt: attempt,
			Message: msg,
		})
		switch action.kind {
		case actionRetry:
			continue
		case actionSkip:
			return graph.NodeResult{Message: msg}, nil
		case actionContinue:
			return graph.NodeResult{Message: action.fallback}, nil
		default:
			return graph.NodeResult{}, err
		}
	}
}

// decide asks each interceptor in registration order; the first non-Pass
// decision wins and the pipeline default is Propagate.
func (r *Runner) decide(ctx context.Context, err error, ec ErrorContext) ErrorAction {
	for _, mw := range r.middleware {
		if action := mw.OnError(ctx, err, ec); !action.IsPass() {
			r.logger.Debug("error pipeline decision",
				zap.String("middleware", mw.Name()),
				zap.String("node_id", ec.NodeID),
				zap.Int("attempt", ec.Attempt),
			)
			return action
		}
	}
	return Propagate()
}

// baseHandler is the innermost handler: it applies the node timeout and
// normalizes failures into the framework's error taxonomy.
func (r *Runner) baseHandler(node graph.Node) NodeHandler {
	return func(ctx context.Context, msg types.ExecutionMessage) (graph.NodeResult, error) {
		nodeCtx := ctx
		if r.cfg.NodeTimeout > 0 {
			var cancel context.CancelFunc
			nodeCtx, cancel = context.WithTimeout(ctx, r.cfg.NodeTimeout)
			defer cancel()
		}

		res, err := node.Run(nodeCtx, msg)
		if err == nil {
			return res, nil
		}

		switch {
		case ctx.Err() != nil:
			return graph.NodeResult{}, types.NewError(types.ErrCancelled, "run cancelled").
				WithNodeID(node.ID()).
				WithCause(ctx.Err())
		case errors.Is(err, context.DeadlineExceeded):
			return graph.NodeResult{}, types.NewError(types.ErrNodeTimeout,
				fmt.Sprintf("node exceeded %s", r.cfg.NodeTimeout)).
				WithNodeID(node.ID()).
				WithRetryable(true).
				WithCause(err)
		case types.GetErrorCode(err) != "":
			return graph.NodeResult{}, err
		default:
			return graph.NodeResult{}, types.NewError(types.ErrNodeExecutionFailed, "node execution failed").
				WithNodeID(node.ID()).
				WithCause(err)
		}
	}
}

// pause snapshots the run at a human-interaction node and returns control to
// the caller. No resources stay held between pause and resume.
func (r *Runner) pause(ctx context.Context, g *graph.Graph, nodeID string, msg types.ExecutionMessage, interaction *types.HumanInteraction) (Result, error) {
	if r.store == nil {
		return r.fail(ctx, g, msg, types.NewError(types.ErrNodeExecutionFailed,
			"human interaction requires a checkpoint store").WithNodeID(nodeID))
	}

	waiting, err := msg.Transition(types.StateWaiting, "human interaction at "+nodeID)
	if err != nil {
		return Result{Message: msg, Status: StatusFailed}, err
	}

	cp := checkpoint.New(waiting.RunID, g.ID(), nodeID, waiting, checkpoint.StatusWaitingHuman)
	cp.Pending = interaction
	if err := r.store.Save(ctx, cp); err != nil {
		// The WAITING copy never left this function, so fail the original
		// RUNNING message: WAITING only ever transitions back to RUNNING,
		// and a pause without a checkpoint could never resume.
		return r.fail(ctx, g, msg, types.NewError(types.ErrNodeExecutionFailed,
			"failed to persist pause checkpoint").WithNodeID(nodeID).WithCause(err))
	}

	r.logger.Info("run paused for human input",
		zap.String("graph_id", g.ID()),
		zap.String("run_id", waiting.RunID),
		zap.String("node_id", nodeID),
		zap.String("checkpoint_id", cp.ID),
	)
	r.publish(Event{Type: EventRunPaused, GraphID: g.ID(), NodeID: nodeID, RunID: waiting.RunID, Timestamp: time.Now().UTC()})

	return Result{
		Message:      waiting,
		Status:       StatusPaused,
		CheckpointID: cp.ID,
		Interaction:  interaction,
	}, nil
}

func (r *Runner) complete(ctx context.Context, g *graph.Graph, msg types.ExecutionMessage) (Result, error) {
	completed, err := msg.Transition(types.StateCompleted, "exit node reached")
	if err != nil {
		return Result{Message: msg, Status: StatusFailed}, err
	}

	if r.cfg.DeleteOnComplete && r.store != nil {
		if cps, lerr := r.store.ListByRun(ctx, completed.RunID); lerr == nil {
			for _, cp := range cps {
				if derr := r.store.Delete(ctx, cp.ID); derr != nil {
					r.logger.Warn("failed to delete checkpoint on completion",
						zap.String("checkpoint_id", cp.ID),
						zap.Error(derr),
					)
				}
			}
		}
	}

	r.logger.Info("run completed",
		zap.String("graph_id", g.ID()),
		zap.String("run_id", completed.RunID),
	)
	r.publish(Event{Type: EventRunCompleted, GraphID: g.ID(), RunID: completed.RunID, Timestamp: time.Now().UTC()})

	return Result{Message: completed, Status: StatusCompleted}, nil
}

// fail transitions the message to FAILED and surfaces the originating error
// together with the terminal message, so callers can inspect the full
// transition history without extra logging.
func (r *Runner) fail(ctx context.Context, g *graph.Graph, msg types.ExecutionMessage, cause error) (Result, error) {
	failed, terr := msg.Transition(types.StateFailed, fmt.Sprintf("error: %s", types.GetErrorCode(cause)))
	if terr != nil {
		// The message was not in a failable state; report the original cause
		// with the message as-is.
		failed = msg
	}

	r.logger.Error("run failed",
		zap.String("graph_id", g.ID()),
		zap.String("run_id", msg.RunID),
		zap.String("node_id", msg.NodeID),
		zap.Error(cause),
	)
	r.publish(Event{Type: EventRunFailed, GraphID: g.ID(), NodeID: msg.NodeID, RunID: msg.RunID,
		Timestamp: time.Now().UTC(), ErrorCode: types.GetErrorCode(cause)})

	return Result{Message: failed, Status: StatusFailed}, cause
}

func (r *Runner) publish(event Event) {
	if r.publisher == nil {
		return
	}
	r.publisher.Publish(event)
}
