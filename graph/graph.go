package graph

import (
	"fmt"

	"github.com/BaSui01/agentgraph/types"
)

// Graph is an immutable workflow definition: a set of uniquely named nodes,
// an ordered list of edges, and designated start and exit nodes. Build a
// Graph with a Builder; once built it never changes.
type Graph struct {
	id    string
	nodes map[string]Node
	edges []Edge
	start string
	exit  string
}

// ID returns the graph identifier.
func (g *Graph) ID() string { return g.id }

// Node retrieves a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Start returns the id of the entry node.
func (g *Graph) Start() string { return g.start }

// Exit returns the id of the exit node.
func (g *Graph) Exit() string { return g.exit }

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgesFrom returns the outgoing edges of a node in declaration order.
func (g *Graph) EdgesFrom(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Builder assembles a Graph. Nodes can be wired explicitly with AddEdge /
// AddConditionalEdge, or sequentially with Then, which records an automatic
// edge from the previously chained node.
//
// When a node has both an automatic sequential edge and explicit edges, the
// explicit edges win and the automatic edge is dropped entirely at Build
// time. Without that rule the automatic edge would shadow every condition
// declared on the node.
type Builder struct {
	id       string
	nodes    map[string]Node
	order    []string
	edges    []Edge
	autoNext map[string]string
	lastNode string
	start    string
	exit     string
	errs     []error
}

// NewBuilder creates a builder for a graph with the given id.
func NewBuilder(id string) *Builder {
	return &Builder{
		id:       id,
		nodes:    make(map[string]Node),
		autoNext: make(map[string]string),
	}
}

// AddNode registers a node without wiring it.
func (b *Builder) AddNode(n Node) *Builder {
	b.addNode(n)
	b.lastNode = ""
	return b
}

// Then registers a node and records an automatic edge from the previously
// chained node, giving plain pipelines sequential wiring for free.
func (b *Builder) Then(n Node) *Builder {
	prev := b.lastNode
	if !b.addNode(n) {
		return b
	}
	if prev != "" {
		b.autoNext[prev] = n.ID()
	}
	b.lastNode = n.ID()
	return b
}

func (b *Builder) addNode(n Node) bool {
	if n == nil || n.ID() == "" {
		b.errs = append(b.errs, types.NewError(types.ErrInvalidNode, "node is nil or has empty id"))
		return false
	}
	if _, exists := b.nodes[n.ID()]; exists {
		b.errs = append(b.errs, types.NewError(types.ErrInvalidNode,
			fmt.Sprintf("duplicate node id %q", n.ID())))
		return false
	}
	b.nodes[n.ID()] = n
	b.order = append(b.order, n.ID())
	return true
}

// AddEdge wires an unconditional edge between two node ids.
func (b *Builder) AddEdge(from, to string) *Builder {
	b.edges = append(b.edges, Edge{From: from, To: to})
	return b
}

// AddConditionalEdge wires an edge guarded by a predicate. Predicates on
// edges sharing a source are evaluated in the order the edges were added.
func (b *Builder) AddConditionalEdge(from, to string, when Predicate) *Builder {
	b.edges = append(b.edges, Edge{From: from, To: to, When: when})
	return b
}

// AddTransformEdge wires an edge that rewrites the message before the target
// node runs.
func (b *Builder) AddTransformEdge(from, to string, when Predicate, transform Transformer) *Builder {
	b.edges = append(b.edges, Edge{From: from, To: to, When: when, Transform: transform})
	return b
}

// SetStart designates the entry node.
func (b *Builder) SetStart(nodeID string) *Builder {
	b.start = nodeID
	return b
}

// SetExit designates the exit node.
func (b *Builder) SetExit(nodeID string) *Builder {
	b.exit = nodeID
	return b
}

// Build validates the definition and returns the immutable Graph.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, types.NewError(types.ErrInvalidGraph, "graph definition invalid").WithCause(b.errs[0])
	}
	if b.id == "" {
		return nil, types.NewError(types.ErrInvalidGraph, "graph id is empty")
	}
	if len(b.nodes) == 0 {
		return nil, types.NewError(types.ErrInvalidGraph, "graph has no nodes")
	}

	start, exit := b.start, b.exit
	// A bare sequential chain may omit start/exit; default to the chain ends.
	if start == "" {
		start = b.order[0]
	}
	if exit == "" {
		exit = b.order[len(b.order)-1]
	}
	if _, ok := b.nodes[start]; !ok {
		return nil, types.NewError(types.ErrInvalidGraph, fmt.Sprintf("start node %q does not exist", start))
	}
	if _, ok := b.nodes[exit]; !ok {
		return nil, types.NewError(types.ErrInvalidGraph, fmt.Sprintf("exit node %q does not exist", exit))
	}

	for _, e := range b.edges {
		if _, ok := b.nodes[e.From]; !ok {
			return nil, types.NewError(types.ErrInvalidGraph,
				fmt.Sprintf("edge references unknown source node %q", e.From))
		}
		if _, ok := b.nodes[e.To]; !ok {
			return nil, types.NewError(types.ErrInvalidGraph,
				fmt.Sprintf("edge references unknown target node %q", e.To))
		}
	}

	explicit := make(map[string]bool, len(b.edges))
	for _, e := range b.edges {
		explicit[e.From] = true
	}

	edges := append([]Edge(nil), b.edges...)
	// Automatic edges apply only to nodes with no explicit outgoing edges.
	for _, from := range b.order {
		to, ok := b.autoNext[from]
		if !ok || explicit[from] {
			continue
		}
		edges = append(edges, Edge{From: from, To: to})
	}

	nodes := make(map[string]Node, len(b.nodes))
	for id, n := range b.nodes {
		nodes[id] = n
	}

	return &Graph{
		id:    b.id,
		nodes: nodes,
		edges: edges,
		start: start,
		exit:  exit,
	}, nil
}
