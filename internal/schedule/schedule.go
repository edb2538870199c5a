// Package schedule linearises a dependency graph into an ordered,
// dependency-respecting queue of tasks, optionally restricted to the
// subset the freshness oracle says must run.
package schedule

import (
	"github.com/aristath/rote/internal/graph"
	"github.com/aristath/rote/internal/rerr"
	"github.com/aristath/rote/internal/task"
)

// Oracle decides whether a task may be skipped given its declared inputs
// and outputs. freshness.Oracle satisfies this.
type Oracle interface {
	IsUpToDate(inputs, outputs []string) bool
}

// Schedule is an ordered, FIFO sequence of tasks: if A depends on B, B
// precedes A. Elements near the front have satisfied dependencies
// earliest.
type Schedule struct {
	tasks []*task.Task
	names map[string]bool
}

// Len returns the number of tasks remaining in the schedule.
func (s *Schedule) Len() int { return len(s.tasks) }

// Empty reports whether the schedule has been drained.
func (s *Schedule) Empty() bool { return len(s.tasks) == 0 }

// Front returns the task at the head of the schedule without removing it.
func (s *Schedule) Front() *task.Task {
	if len(s.tasks) == 0 {
		return nil
	}
	return s.tasks[0]
}

// PopFront removes and returns the task at the head of the schedule.
func (s *Schedule) PopFront() *task.Task {
	if len(s.tasks) == 0 {
		return nil
	}
	t := s.tasks[0]
	s.tasks = s.tasks[1:]
	delete(s.names, t.Name)
	return t
}

// Contains reports whether name is still queued in the schedule.
func (s *Schedule) Contains(name string) bool {
	return s.names[name]
}

// Names returns the set of task names still queued, for dependency
// membership checks during dispatch.
func (s *Schedule) Names() map[string]bool {
	return s.names
}

// Solve computes the topological order of g by iterative zero-in-degree
// peeling (ties broken by g's insertion order, for deterministic replay),
// then, if respectFreshness is true, restricts the result to the "dirty"
// subset: a node is dirty iff the oracle says it must run, or any of its
// declared dependencies is dirty. If respectFreshness is false, every
// node in topological order is retained (used for "always run").
func Solve(g *graph.Graph, oracle Oracle, respectFreshness bool) (*Schedule, error) {
	order, err := topoOrder(g)
	if err != nil {
		return nil, err
	}

	if !respectFreshness {
		return newSchedule(order), nil
	}

	dirty := make(map[string]bool, len(order))
	var included []*task.Task
	for _, t := range order {
		isDirty := !oracle.IsUpToDate(t.Inputs, t.Outputs)
		if !isDirty {
			for _, dep := range t.DependsOn {
				if dirty[dep] {
					isDirty = true
					break
				}
			}
		}
		if isDirty {
			dirty[t.Name] = true
			included = append(included, t)
		}
	}

	return newSchedule(included), nil
}

func newSchedule(tasks []*task.Task) *Schedule {
	names := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		names[t.Name] = true
	}
	return &Schedule{tasks: tasks, names: names}
}

// topoOrder performs the Kahn-style peel described in spec §4.4: repeated
// sweeps over the graph's nodes in insertion order, removing every node
// whose remaining dependencies have already been removed, until nothing
// remains or a sweep makes no progress (a cycle).
func topoOrder(g *graph.Graph) ([]*task.Task, error) {
	nodes := g.Nodes()

	indegree := make(map[string]int, len(nodes))
	for _, t := range nodes {
		indegree[t.Name] = len(t.DependsOn)
	}

	dependents := make(map[string][]string, len(nodes))
	for _, t := range nodes {
		for _, dep := range t.DependsOn {
			dependents[dep] = append(dependents[dep], t.Name)
		}
	}

	removed := make(map[string]bool, len(nodes))
	var order []*task.Task

	for len(order) < len(nodes) {
		progressed := false

		for _, t := range nodes {
			if removed[t.Name] {
				continue
			}
			if indegree[t.Name] != 0 {
				continue
			}

			removed[t.Name] = true
			order = append(order, t)
			progressed = true

			for _, dependent := range dependents[t.Name] {
				indegree[dependent]--
			}
		}

		if !progressed {
			var remaining []string
			for _, t := range nodes {
				if !removed[t.Name] {
					remaining = append(remaining, t.Name)
				}
			}
			return nil, &rerr.Cycle{Path: remaining}
		}
	}

	return order, nil
}
