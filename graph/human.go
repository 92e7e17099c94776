package graph

import (
	"context"
	"time"

	"github.com/BaSui01/agentgraph/types"
)

// HumanNode pauses the run pending human input. Run never blocks waiting for
// a response: it packages the interaction descriptor into the result and
// returns immediately, leaving the checkpoint-and-return pause protocol to
// the runner.
type HumanNode struct {
	id            string
	prompt        string
	options       []types.InteractionOption
	allowFreeText bool
	timeout       time.Duration
}

// HumanNodeOption configures a HumanNode.
type HumanNodeOption func(*HumanNode)

// WithOptions sets the selectable choices presented to the human.
func WithOptions(options ...types.InteractionOption) HumanNodeOption {
	return func(n *HumanNode) {
		n.options = options
	}
}

// WithFreeText allows a free-text answer in place of an option selection.
func WithFreeText() HumanNodeOption {
	return func(n *HumanNode) {
		n.allowFreeText = true
	}
}

// WithInteractionTimeout sets how long the interaction stays answerable.
func WithInteractionTimeout(d time.Duration) HumanNodeOption {
	return func(n *HumanNode) {
		n.timeout = d
	}
}

// NewHumanNode creates a human-interaction node.
func NewHumanNode(id, prompt string, opts ...HumanNodeOption) *HumanNode {
	n := &HumanNode{id: id, prompt: prompt}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *HumanNode) ID() string { return n.id }

// Interaction builds the interaction descriptor for this node.
func (n *HumanNode) Interaction() *types.HumanInteraction {
	interaction := &types.HumanInteraction{
		NodeID:        n.id,
		Prompt:        n.prompt,
		Options:       append([]types.InteractionOption(nil), n.options...),
		AllowFreeText: n.allowFreeText,
	}
	if n.timeout > 0 {
		interaction.ExpiresAt = time.Now().UTC().Add(n.timeout)
	}
	return interaction
}

func (n *HumanNode) Run(ctx context.Context, msg types.ExecutionMessage) (NodeResult, error) {
	return NodeResult{
		Message:     msg.WithNodeID(n.id),
		Interaction: n.Interaction(),
	}, nil
}
