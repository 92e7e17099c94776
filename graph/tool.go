package graph

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentgraph/types"
)

// Tool is the collaborator contract for external tool implementations.
type Tool interface {
	Name() string
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// ParamsMapper extracts tool parameters from the current message. The default
// mapper passes the message's data map through unchanged.
type ParamsMapper func(msg types.ExecutionMessage) (map[string]any, error)

// ToolNode wraps a Tool as a graph node. The tool's result is written into
// the message data under the configured key (default: "tool:<name>").
type ToolNode struct {
	id           string
	tool         Tool
	mapper       ParamsMapper
	resultKey    string
	nonRetryable bool
}

// ToolNodeOption configures a ToolNode.
type ToolNodeOption func(*ToolNode)

// WithParamsMapper sets the function extracting tool parameters from the
// message.
func WithParamsMapper(mapper ParamsMapper) ToolNodeOption {
	return func(n *ToolNode) {
		n.mapper = mapper
	}
}

// WithResultKey sets the data key receiving the tool's result.
func WithResultKey(key string) ToolNodeOption {
	return func(n *ToolNode) {
		n.resultKey = key
	}
}

// WithToolNonRetryable marks the tool call as unsafe to re-invoke.
func WithToolNonRetryable() ToolNodeOption {
	return func(n *ToolNode) {
		n.nonRetryable = true
	}
}

// NewToolNode creates a tool-invocation node.
func NewToolNode(id string, tool Tool, opts ...ToolNodeOption) *ToolNode {
	n := &ToolNode{
		id:        id,
		tool:      tool,
		resultKey: fmt.Sprintf("tool:%s", tool.Name()),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *ToolNode) ID() string { return n.id }

// NonRetryable implements the retry marker interface.
func (n *ToolNode) NonRetryable() bool { return n.nonRetryable }

func (n *ToolNode) Run(ctx context.Context, msg types.ExecutionMessage) (NodeResult, error) {
	params := msg.Data
	if n.mapper != nil {
		var err error
		params, err = n.mapper(msg)
		if err != nil {
			return NodeResult{}, types.NewError(types.ErrNodeExecutionFailed,
				fmt.Sprintf("param mapping for tool %s failed", n.tool.Name())).
				WithNodeID(n.id).
				WithCause(err)
		}
	}

	result, err := n.tool.Execute(ctx, params)
	if err != nil {
		return NodeResult{}, types.NewError(types.ErrNodeExecutionFailed,
			fmt.Sprintf("tool %s failed", n.tool.Name())).
			WithNodeID(n.id).
			WithCause(err)
	}

	return NodeResult{Message: msg.WithData(n.resultKey, result).WithNodeID(n.id)}, nil
}
