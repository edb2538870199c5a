// Package graph builds a dependency DAG of resolved task instances from a
// root target, and produces a topological order. Adapted from the
// teacher's scheduler.DAG: a node map plus a dependents index, validated
// with github.com/gammazero/toposort.
package graph

import (
	"github.com/gammazero/toposort"

	"github.com/aristath/rote/internal/rerr"
	"github.com/aristath/rote/internal/task"
)

// Graph is a directed acyclic graph of tasks, keyed by name.
type Graph struct {
	nodes      map[string]*task.Task
	order      []string // insertion order, for deterministic tie-breaking
	dependents map[string][]string
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		nodes:      make(map[string]*task.Task),
		dependents: make(map[string][]string),
	}
}

// Contains reports whether name is already a node in the graph.
func (g *Graph) Contains(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Add inserts t as a node. It is the caller's responsibility to ensure
// every edge's tail will eventually be present (Resolve guarantees this).
func (g *Graph) Add(t *task.Task) {
	if g.Contains(t.Name) {
		return
	}
	g.nodes[t.Name] = t
	g.order = append(g.order, t.Name)

	for _, dep := range t.DependsOn {
		g.dependents[dep] = append(g.dependents[dep], t.Name)
	}
}

// Get returns the node named name.
func (g *Graph) Get(name string) (*task.Task, bool) {
	t, ok := g.nodes[name]
	return t, ok
}

// Nodes returns every task in the graph, in insertion order.
func (g *Graph) Nodes() []*task.Task {
	out := make([]*task.Task, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

// InsertionIndex returns the position name was added to the graph, used
// by the schedule builder to break ties deterministically.
func (g *Graph) InsertionIndex(name string) int {
	for i, n := range g.order {
		if n == name {
			return i
		}
	}
	return -1
}

// Validate runs a topological sort over the graph and returns the
// resulting order, or a *rerr.UnknownTask / *rerr.Cycle error if a
// dangling edge or a cycle is found. Called from graph.Resolve as a
// second, independent check over the freshly built graph (Resolve's own
// DFS already rejects cycles reachable from its roots; Validate catches
// anything that construction missed, e.g. a graph assembled by hand
// rather than through Resolve).
func (g *Graph) Validate() ([]string, error) {
	for _, t := range g.nodes {
		for _, dep := range t.DependsOn {
			if !g.Contains(dep) {
				return nil, &rerr.UnknownTask{Name: dep}
			}
		}
	}

	var edges []toposort.Edge
	for name, t := range g.nodes {
		if len(t.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, name})
			continue
		}
		for _, dep := range t.DependsOn {
			edges = append(edges, toposort.Edge{dep, name})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &rerr.Cycle{Path: g.remaining(sorted)}
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(g.nodes) {
		return nil, &rerr.Cycle{Path: g.remaining(sorted)}
	}

	return order, nil
}

// remaining reports the node names from sorted (toposort's best-effort,
// possibly partial, output) that never made it into the order, i.e. the
// nodes still tangled in a cycle. Used to shape a *rerr.Cycle's Path when
// toposort reports failure or an incomplete order.
func (g *Graph) remaining(sorted []interface{}) []string {
	found := make(map[string]bool, len(sorted))
	for _, id := range sorted {
		if id != nil {
			found[id.(string)] = true
		}
	}

	var missing []string
	for _, name := range g.order {
		if !found[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
