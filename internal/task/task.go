// Package task defines the unit of execution and its pattern-based
// template, shared by the registry, graph, schedule, and executor
// packages.
package task

import "context"

// Action performs a task's work. It is invoked by the executor and is
// considered idempotent from the core's perspective; the TaskSource is
// free to re-invoke it.
type Action func(ctx context.Context, name string) error

// Task is a named unit of work with declared dependencies, file inputs
// and outputs, and an action supplied by a TaskSource.
type Task struct {
	// Name is unique within the registry that produced this task.
	Name string

	// Description is an optional human-readable summary, shown by
	// the task-list printer.
	Description string

	// DependsOn is the ordered, possibly-duplicated list of task
	// names this task depends on. Semantically a set, but resolution
	// order follows declaration order.
	DependsOn []string

	// Inputs and Outputs are filesystem paths consulted by the
	// freshness oracle. Either may be empty.
	Inputs  []string
	Outputs []string

	// Action performs the task's work. Nil actions are permitted for
	// tasks that exist only to express dependency structure.
	Action Action
}

// Clone returns a deep copy of t, safe to hand to a caller that might
// mutate slice fields.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.DependsOn = append([]string(nil), t.DependsOn...)
	cp.Inputs = append([]string(nil), t.Inputs...)
	cp.Outputs = append([]string(nil), t.Outputs...)
	return &cp
}

// Rule is a pattern-matched task template, materialised into a concrete
// Task on demand by the registry.
type Rule struct {
	// Pattern is a glob-style matcher over task names: '*' matches any
	// substring within a name segment. The first '*' capture is
	// available to templates as "$1".
	Pattern string

	// DependsOn, Inputs, and Outputs are templates: occurrences of
	// "$1" are substituted with the rule's capture for the name being
	// materialised.
	DependsOn []string
	Inputs    []string
	Outputs   []string

	// Action is shared by every task materialised from this rule.
	Action Action
}
