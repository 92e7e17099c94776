package graph

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentgraph/types"
)

// Agent is the collaborator contract implemented by LLM agents outside the
// core. The adapter keeps the engine free of any model- or provider-specific
// dependency.
type Agent interface {
	// Name returns the agent's name, used for attribution.
	Name() string
	// ProcessMessage runs the agent against the message and returns its reply.
	ProcessMessage(ctx context.Context, msg types.ExecutionMessage) (types.ExecutionMessage, error)
}

// AgentNode wraps an Agent as a graph node.
type AgentNode struct {
	id           string
	agent        Agent
	nonRetryable bool
}

// AgentNodeOption configures an AgentNode.
type AgentNodeOption func(*AgentNode)

// WithAgentNonRetryable marks the node's agent call as unsafe to re-invoke,
// so the retry middleware leaves failures to the PROPAGATE default.
func WithAgentNonRetryable() AgentNodeOption {
	return func(n *AgentNode) {
		n.nonRetryable = true
	}
}

// NewAgentNode creates an agent-invocation node.
func NewAgentNode(id string, agent Agent, opts ...AgentNodeOption) *AgentNode {
	n := &AgentNode{id: id, agent: agent}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *AgentNode) ID() string { return n.id }

// NonRetryable implements the retry marker interface.
func (n *AgentNode) NonRetryable() bool { return n.nonRetryable }

func (n *AgentNode) Run(ctx context.Context, msg types.ExecutionMessage) (NodeResult, error) {
	reply, err := n.agent.ProcessMessage(ctx, msg)
	if err != nil {
		return NodeResult{}, types.NewError(types.ErrNodeExecutionFailed,
			fmt.Sprintf("agent %s failed", n.agent.Name())).
			WithNodeID(n.id).
			WithCause(err)
	}
	return NodeResult{Message: reply.WithNodeID(n.id)}, nil
}
