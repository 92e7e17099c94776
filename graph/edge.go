package graph

import (
	"github.com/BaSui01/agentgraph/types"
)

// Predicate guards an edge. A nil predicate always matches.
type Predicate func(msg types.ExecutionMessage) bool

// Transformer rewrites the message before the edge's target node runs.
type Transformer func(msg types.ExecutionMessage) types.ExecutionMessage

// Edge is a directed, conditionally guarded link between two node ids.
// Among several edges sharing the same From, the runner evaluates predicates
// in declaration order and follows the first that matches.
type Edge struct {
	From      string
	To        string
	When      Predicate
	Transform Transformer
}

// Matches evaluates the edge's predicate against the message.
func (e Edge) Matches(msg types.ExecutionMessage) bool {
	return e.When == nil || e.When(msg)
}

// Apply runs the edge's transformer, if any.
func (e Edge) Apply(msg types.ExecutionMessage) types.ExecutionMessage {
	if e.Transform == nil {
		return msg
	}
	return e.Transform(msg)
}

// WhenDataEquals returns a predicate matching messages whose data map holds
// the given value under key.
func WhenDataEquals(key string, value any) Predicate {
	return func(msg types.ExecutionMessage) bool {
		v, ok := msg.GetData(key)
		return ok && v == value
	}
}

// Always returns a predicate that matches every message. Equivalent to a nil
// predicate; declared for readability in graphs mixing guarded and default
// edges.
func Always() Predicate {
	return func(types.ExecutionMessage) bool { return true }
}
