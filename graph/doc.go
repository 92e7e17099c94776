// Package graph defines the workflow model executed by the runner: an
// immutable Graph of named Nodes connected by conditionally guarded Edges,
// plus the built-in node kinds (agent invocation, tool invocation, human
// interaction, output extraction, parallel fan-out).
//
// Graphs are assembled with a Builder and validated once at Build time; after
// that the definition never changes, so one Graph value can safely drive any
// number of concurrent runs.
package graph
