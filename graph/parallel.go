package graph

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentgraph/types"
)

// ParallelNode fans the message out to several child nodes concurrently and
// joins their results before returning. The runner's own loop stays strictly
// sequential; concurrency is contained entirely inside this node.
//
// Each child receives the same input message. Merged output: data maps of all
// children applied onto the input in child declaration order, so later
// children win on key conflicts. A child requesting human interaction is a
// configuration mistake and fails the node.
type ParallelNode struct {
	id       string
	children []Node
	limit    int
}

// ParallelNodeOption configures a ParallelNode.
type ParallelNodeOption func(*ParallelNode)

// WithConcurrencyLimit bounds how many children run at once (0 = unbounded).
func WithConcurrencyLimit(limit int) ParallelNodeOption {
	return func(n *ParallelNode) {
		n.limit = limit
	}
}

// NewParallelNode creates a fan-out node over the given children.
func NewParallelNode(id string, children []Node, opts ...ParallelNodeOption) *ParallelNode {
	n := &ParallelNode{id: id, children: children}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *ParallelNode) ID() string { return n.id }

func (n *ParallelNode) Run(ctx context.Context, msg types.ExecutionMessage) (NodeResult, error) {
	if len(n.children) == 0 {
		return NodeResult{Message: msg.WithNodeID(n.id)}, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	if n.limit > 0 {
		g.SetLimit(n.limit)
	}

	var mu sync.Mutex
	outputs := make([]types.ExecutionMessage, len(n.children))

	for i, child := range n.children {
		g.Go(func() error {
			res, err := child.Run(ctx, msg)
			if err != nil {
				return fmt.Errorf("child %s: %w", child.ID(), err)
			}
			if res.Interaction != nil {
				return types.NewError(types.ErrNodeExecutionFailed,
					fmt.Sprintf("child %s requested human interaction inside parallel fan-out", child.ID())).
					WithNodeID(n.id)
			}
			mu.Lock()
			outputs[i] = res.Message
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return NodeResult{}, types.NewError(types.ErrNodeExecutionFailed, "parallel fan-out failed").
			WithNodeID(n.id).
			WithCause(err)
	}

	merged := msg
	for _, out := range outputs {
		merged = merged.WithDataMap(out.Data)
	}
	return NodeResult{Message: merged.WithNodeID(n.id)}, nil
}
