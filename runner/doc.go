// Package runner drives graph execution: it walks a graph node by node,
// resolves conditional routing, wraps every node invocation in the middleware
// pipeline, persists checkpoints, and implements the pause/resume protocol
// for human-in-the-loop nodes.
//
// One run progresses strictly sequentially; the runner holds no shared
// mutable state between runs, so a single Runner value serves any number of
// concurrent runs against any number of graphs.
package runner
