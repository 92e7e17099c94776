package runner

import (
	"context"

	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/types"
)

// NodeHandler is the invocation signature middleware wraps around a node.
type NodeHandler func(ctx context.Context, msg types.ExecutionMessage) (graph.NodeResult, error)

// ErrorContext carries the failure site offered to OnError.
type ErrorContext struct {
	GraphID string
	RunID   string
	NodeID  string
	Node    graph.Node
	// Attempt counts invocations of the failing node within this visit,
	// starting at 1. Retry decisions consume the same counter, so an
	// interceptor can bound its retry budget without keeping state.
	Attempt int
	Message types.ExecutionMessage
}

// Middleware intercepts run and node execution. Interceptors compose like
// nested scopes: the first registered is outermost, both for WrapNode and for
// the run hooks.
type Middleware interface {
	// Name identifies the middleware in logs.
	Name() string
	// WrapNode wraps a single node invocation.
	WrapNode(next NodeHandler, node graph.Node) NodeHandler
	// OnRunStart is called before the first node of an execute/resume leg.
	OnRunStart(ctx context.Context, msg types.ExecutionMessage)
	// OnRunEnd is called after the leg finishes, with the terminal message.
	OnRunEnd(ctx context.Context, msg types.ExecutionMessage, err error)
	// OnError is asked for a decision after a node failure. Returning Pass
	// defers to the next interceptor; if every interceptor passes, the
	// pipeline propagates the failure.
	OnError(ctx context.Context, err error, ec ErrorContext) ErrorAction
}

// ResumeObserver is an optional middleware extension. A middleware that also
// implements it is notified when a run continues from a checkpoint, before
// the leg's OnRunStart fires. nodeID is the node the leg continues at.
type ResumeObserver interface {
	OnRunResume(ctx context.Context, graphID, nodeID string)
}

// BaseMiddleware provides no-op implementations for embedding, so concrete
// middlewares only declare the hooks they care about.
type BaseMiddleware struct{}

func (BaseMiddleware) WrapNode(next NodeHandler, _ graph.Node) NodeHandler { return next }

func (BaseMiddleware) OnRunStart(context.Context, types.ExecutionMessage) {}

func (BaseMiddleware) OnRunEnd(context.Context, types.ExecutionMessage, error) {}

func (BaseMiddleware) OnError(context.Context, error, ErrorContext) ErrorAction { return Pass() }

// actionKind discriminates ErrorAction values.
type actionKind int

const (
	actionPass actionKind = iota
	actionRetry
	actionSkip
	actionContinue
	actionPropagate
)

// ErrorAction is an interceptor's decision for a node failure.
type ErrorAction struct {
	kind     actionKind
	fallback types.ExecutionMessage
}

// Pass defers the decision to the next interceptor in the pipeline.
func Pass() ErrorAction { return ErrorAction{kind: actionPass} }

// Retry re-invokes the failing node.
func Retry() ErrorAction { return ErrorAction{kind: actionRetry} }

// Skip advances past the node as if it had returned its input unchanged.
func Skip() ErrorAction { return ErrorAction{kind: actionSkip} }

// ContinueWith substitutes fallback as the node's output and proceeds.
func ContinueWith(fallback types.ExecutionMessage) ErrorAction {
	return ErrorAction{kind: actionContinue, fallback: fallback}
}

// Propagate aborts the run with the node's error.
func Propagate() ErrorAction { return ErrorAction{kind: actionPropagate} }

// IsPass reports whether the action defers to the next interceptor.
func (a ErrorAction) IsPass() bool { return a.kind == actionPass }
