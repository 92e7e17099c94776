package graph

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentgraph/types"
)

// ExtractNode promotes a value from the message's data map into its content,
// turning structured intermediate results into the run's human-readable
// output. Typically placed just before the exit node.
type ExtractNode struct {
	id       string
	key      string
	required bool
}

// ExtractNodeOption configures an ExtractNode.
type ExtractNodeOption func(*ExtractNode)

// WithRequired makes the node fail when the key is absent instead of passing
// the message through unchanged.
func WithRequired() ExtractNodeOption {
	return func(n *ExtractNode) {
		n.required = true
	}
}

// NewExtractNode creates an output-extraction node reading the given data key.
func NewExtractNode(id, key string, opts ...ExtractNodeOption) *ExtractNode {
	n := &ExtractNode{id: id, key: key}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *ExtractNode) ID() string { return n.id }

func (n *ExtractNode) Run(ctx context.Context, msg types.ExecutionMessage) (NodeResult, error) {
	value, ok := msg.GetData(n.key)
	if !ok {
		if n.required {
			return NodeResult{}, types.NewError(types.ErrNodeExecutionFailed,
				fmt.Sprintf("data key %q not present", n.key)).WithNodeID(n.id)
		}
		return NodeResult{Message: msg.WithNodeID(n.id)}, nil
	}

	content := fmt.Sprintf("%v", value)
	if s, ok := value.(string); ok {
		content = s
	}
	return NodeResult{Message: msg.WithContent(content).WithNodeID(n.id)}, nil
}
