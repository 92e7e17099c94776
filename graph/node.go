package graph

import (
	"context"

	"github.com/BaSui01/agentgraph/types"
)

// NodeResult is the outcome of a successful node execution. A non-nil
// Interaction signals that the run must pause for human input before the
// traversal continues.
type NodeResult struct {
	Message     types.ExecutionMessage
	Interaction *types.HumanInteraction
}

// Node is a named unit of work in a graph. Run must be stateless with
// respect to the message: any memory a node needs across a run belongs in the
// message's data map, not in node fields, because the same node instance
// serves many concurrent runs.
type Node interface {
	// ID returns the node's unique identifier within its graph.
	ID() string
	// Run executes the node against the current message and returns a new
	// message (or an interaction request) without mutating the input.
	Run(ctx context.Context, msg types.ExecutionMessage) (NodeResult, error)
}

// NonRetryable is an optional marker for nodes whose side effects make
// re-invocation unsafe. The retry middleware refuses to retry such nodes and
// leaves the default PROPAGATE decision in place.
type NonRetryable interface {
	NonRetryable() bool
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc func(ctx context.Context, msg types.ExecutionMessage) (NodeResult, error)

// FuncNode wraps a plain function as a graph node.
type FuncNode struct {
	id string
	fn NodeFunc
}

// NewFuncNode creates a node from a function.
func NewFuncNode(id string, fn NodeFunc) *FuncNode {
	return &FuncNode{id: id, fn: fn}
}

func (n *FuncNode) ID() string { return n.id }

func (n *FuncNode) Run(ctx context.Context, msg types.ExecutionMessage) (NodeResult, error) {
	return n.fn(ctx, msg)
}

// PassthroughNode forwards the message unchanged. Useful as a start or exit
// marker in graphs whose boundary nodes carry no logic of their own.
type PassthroughNode struct {
	id string
}

// NewPassthroughNode creates a node that returns its input untouched.
func NewPassthroughNode(id string) *PassthroughNode {
	return &PassthroughNode{id: id}
}

func (n *PassthroughNode) ID() string { return n.id }

func (n *PassthroughNode) Run(ctx context.Context, msg types.ExecutionMessage) (NodeResult, error) {
	return NodeResult{Message: msg}, nil
}
