package graph

import (
	"github.com/aristath/rote/internal/rerr"
	"github.com/aristath/rote/internal/task"
)

// Lookup resolves a task by name, returning rerr.UnknownTask on miss. The
// registry.Registry type satisfies this directly.
type Lookup interface {
	Get(name string) (*task.Task, error)
}

// Resolve expands the dependency graph reachable from the given root
// target names by depth-first traversal, preserving declared dependency
// order and registry rule order (the resolver is deterministic). A name
// already expanding on the current path is reported as a Cycle; a name
// matching no task or rule is reported as UnknownTask. Before returning,
// the assembled graph is passed through Validate as a second, independent
// check.
func Resolve(lookup Lookup, rootNames []string) (*Graph, error) {
	g := New()
	expanding := make(map[string]bool)
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		if expanding[name] {
			return &rerr.Cycle{Path: append(append([]string(nil), path...), name)}
		}

		if g.Contains(name) {
			return nil
		}

		t, err := lookup.Get(name)
		if err != nil {
			return err
		}

		expanding[name] = true
		path = append(path, name)

		g.Add(t)

		for _, dep := range t.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		delete(expanding, name)
		return nil
	}

	for _, root := range rootNames {
		if err := visit(root); err != nil {
			return nil, err
		}
	}

	if _, err := g.Validate(); err != nil {
		return nil, err
	}

	return g, nil
}
