package graph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/types"
)

// ---------------------------------------------------------------------------
// Mock collaborators
// ---------------------------------------------------------------------------

type mockAgent struct {
	name  string
	reply string
	err   error
}

func (a *mockAgent) Name() string { return a.name }

func (a *mockAgent) ProcessMessage(ctx context.Context, msg types.ExecutionMessage) (types.ExecutionMessage, error) {
	if a.err != nil {
		return types.ExecutionMessage{}, a.err
	}
	return msg.Reply(a.reply), nil
}

type mockTool struct {
	name   string
	result any
	err    error
	params map[string]any
}

func (t *mockTool) Name() string { return t.name }

func (t *mockTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	t.params = params
	if t.err != nil {
		return nil, t.err
	}
	return t.result, nil
}

// ---------------------------------------------------------------------------

func TestAgentNode_Run(t *testing.T) {
	node := NewAgentNode("plan", &mockAgent{name: "planner", reply: "the plan"})

	msg := types.NewMessage("make a plan").WithGraphContext("g", "", "r")
	res, err := node.Run(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, "the plan", res.Message.Content)
	assert.Equal(t, "plan", res.Message.NodeID)
	assert.Equal(t, msg.CorrelationID, res.Message.CorrelationID)
	assert.Equal(t, msg.ID, res.Message.CausationID)
	assert.Nil(t, res.Interaction)
}

func TestAgentNode_RunError(t *testing.T) {
	node := NewAgentNode("plan", &mockAgent{name: "planner", err: errors.New("model overloaded")})

	_, err := node.Run(context.Background(), types.NewMessage("x"))
	require.Error(t, err)
	assert.Equal(t, types.ErrNodeExecutionFailed, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestAgentNode_NonRetryable(t *testing.T) {
	retryable := NewAgentNode("a", &mockAgent{name: "a"})
	assert.False(t, retryable.NonRetryable())

	pinned := NewAgentNode("b", &mockAgent{name: "b"}, WithAgentNonRetryable())
	assert.True(t, pinned.NonRetryable())
}

func TestToolNode_Run(t *testing.T) {
	tool := &mockTool{name: "search", result: []string{"hit-1", "hit-2"}}
	node := NewToolNode("lookup", tool)

	msg := types.NewMessage("query").WithData("q", "golang")
	res, err := node.Run(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, "golang", tool.params["q"], "default mapper passes message data")
	got, ok := res.Message.GetData("tool:search")
	require.True(t, ok)
	assert.Equal(t, []string{"hit-1", "hit-2"}, got)
}

func TestToolNode_CustomMapperAndKey(t *testing.T) {
	tool := &mockTool{name: "fetch", result: "body"}
	node := NewToolNode("fetch", tool,
		WithParamsMapper(func(msg types.ExecutionMessage) (map[string]any, error) {
			return map[string]any{"url": msg.Content}, nil
		}),
		WithResultKey("page"),
	)

	res, err := node.Run(context.Background(), types.NewMessage("https://example.com"))
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", tool.params["url"])
	got, _ := res.Message.GetData("page")
	assert.Equal(t, "body", got)
}

func TestToolNode_MapperError(t *testing.T) {
	node := NewToolNode("fetch", &mockTool{name: "fetch"},
		WithParamsMapper(func(msg types.ExecutionMessage) (map[string]any, error) {
			return nil, errors.New("missing url")
		}),
	)

	_, err := node.Run(context.Background(), types.NewMessage(""))
	assert.Equal(t, types.ErrNodeExecutionFailed, types.GetErrorCode(err))
}

func TestHumanNode_RunSignalsInteraction(t *testing.T) {
	node := NewHumanNode("approve", "Approve the plan?",
		WithOptions(
			types.InteractionOption{ID: "yes", Label: "Approve"},
			types.InteractionOption{ID: "no", Label: "Reject"},
		),
		WithInteractionTimeout(time.Hour),
	)

	res, err := node.Run(context.Background(), types.NewMessage("plan ready"))
	require.NoError(t, err)

	require.NotNil(t, res.Interaction)
	assert.Equal(t, "approve", res.Interaction.NodeID)
	assert.Equal(t, "Approve the plan?", res.Interaction.Prompt)
	assert.Len(t, res.Interaction.Options, 2)
	assert.False(t, res.Interaction.AllowFreeText)
	assert.False(t, res.Interaction.ExpiresAt.IsZero())
	assert.Equal(t, "plan ready", res.Message.Content, "message passes through untouched")
}

func TestExtractNode_Run(t *testing.T) {
	node := NewExtractNode("out", "answer")

	res, err := node.Run(context.Background(), types.NewMessage("x").WithData("answer", "42"))
	require.NoError(t, err)
	assert.Equal(t, "42", res.Message.Content)

	// Missing key passes through by default.
	res, err = node.Run(context.Background(), types.NewMessage("keep me"))
	require.NoError(t, err)
	assert.Equal(t, "keep me", res.Message.Content)

	// Required mode fails on missing key.
	strict := NewExtractNode("out", "answer", WithRequired())
	_, err = strict.Run(context.Background(), types.NewMessage("x"))
	assert.Equal(t, types.ErrNodeExecutionFailed, types.GetErrorCode(err))
}

func TestParallelNode_Run(t *testing.T) {
	var calls atomic.Int32
	child := func(id, key string) Node {
		return NewFuncNode(id, func(ctx context.Context, msg types.ExecutionMessage) (NodeResult, error) {
			calls.Add(1)
			return NodeResult{Message: msg.WithData(key, id)}, nil
		})
	}

	node := NewParallelNode("fan", []Node{
		child("c1", "r1"),
		child("c2", "r2"),
		child("c3", "r3"),
	}, WithConcurrencyLimit(2))

	res, err := node.Run(context.Background(), types.NewMessage("in").WithData("seed", 1))
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	for key, want := range map[string]string{"r1": "c1", "r2": "c2", "r3": "c3"} {
		got, ok := res.Message.GetData(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got)
	}
	seed, _ := res.Message.GetData("seed")
	assert.Equal(t, 1, seed, "input data preserved")
}

func TestParallelNode_ChildFailureFailsNode(t *testing.T) {
	node := NewParallelNode("fan", []Node{
		NewFuncNode("ok", func(ctx context.Context, msg types.ExecutionMessage) (NodeResult, error) {
			return NodeResult{Message: msg}, nil
		}),
		NewFuncNode("bad", func(ctx context.Context, msg types.ExecutionMessage) (NodeResult, error) {
			return NodeResult{}, errors.New("child exploded")
		}),
	})

	_, err := node.Run(context.Background(), types.NewMessage("x"))
	require.Error(t, err)
	assert.Equal(t, types.ErrNodeExecutionFailed, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "child exploded")
}

func TestParallelNode_RejectsInteractionFromChild(t *testing.T) {
	node := NewParallelNode("fan", []Node{
		NewHumanNode("ask", "really?"),
	})

	_, err := node.Run(context.Background(), types.NewMessage("x"))
	assert.Equal(t, types.ErrNodeExecutionFailed, types.GetErrorCode(err))
}
