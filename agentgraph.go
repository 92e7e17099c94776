// Package agentgraph provides a top-level convenience entry point for
// assembling and running workflow graphs with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/agentgraph"
//
//	g, err := agentgraph.NewGraph("pipeline").
//	    Then(firstNode).
//	    Then(secondNode).
//	    Build()
//	r := agentgraph.NewRunner(agentgraph.WithStore(store))
//	res, err := r.Execute(ctx, g, agentgraph.NewMessage("input"))
//
// These are thin aliases over the graph, runner, and types packages; use the
// subpackages directly when you need their full surface.
package agentgraph

import (
	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/runner"
	"github.com/BaSui01/agentgraph/types"
)

// Message is the immutable unit of data threaded through a graph.
type Message = types.ExecutionMessage

// Runner drives graph execution.
type Runner = runner.Runner

// Result is the outcome of one execute/resume leg.
type Result = runner.Result

// RunnerOption configures a Runner.
type RunnerOption = runner.Option

// NewMessage creates a new READY message with the given content.
func NewMessage(content string) Message {
	return types.NewMessage(content)
}

// NewGraph creates a graph builder.
func NewGraph(id string) *graph.Builder {
	return graph.NewBuilder(id)
}

// NewRunner creates a Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	return runner.New(opts...)
}

// Runner construction shortcuts re-exported so simple callers never import
// runner/ directly.

// WithStore attaches the checkpoint store used for pause and resume.
var WithStore = runner.WithStore

// WithMiddleware appends node interceptors; first registered is outermost.
var WithMiddleware = runner.WithMiddleware

// WithLogger sets the runner's logger.
var WithLogger = runner.WithLogger

// WithConfig replaces the runner's traversal bounds.
var WithConfig = runner.WithConfig
