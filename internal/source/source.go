// Package source defines the core's upward interface to the scripting
// layer: an opaque TaskSource that produces tasks, rules, and executable
// actions. The core never inspects how a TaskSource is implemented; see
// internal/script for this repo's concrete implementation.
package source

import (
	"context"

	"github.com/aristath/rote/internal/task"
)

// Variable is an ordered key/value pair exposed to scripts as a global.
type Variable struct {
	Name  string
	Value string
}

// EnvironmentSpec is immutable configuration cloned into each worker's
// script context at startup. It carries no live state -- only paths,
// strings, and flags -- so passing it by value across goroutines is safe.
type EnvironmentSpec struct {
	// Path is the build file to load.
	Path string

	// Directory is the build file's containing directory; the
	// TaskSource resolves relative paths against it.
	Directory string

	// IncludePaths are additional module search paths.
	IncludePaths []string

	// Variables are exposed to scripts as globals, in declaration
	// order.
	Variables []Variable

	// DryRun, when true, tells the executor to skip invoking actions.
	DryRun bool

	// AlwaysRun, when true, tells the schedule builder to retain every
	// resolved task regardless of freshness.
	AlwaysRun bool
}

// Clone returns a deep copy, safe to hand to a new worker.
func (s EnvironmentSpec) Clone() EnvironmentSpec {
	cp := s
	cp.IncludePaths = append([]string(nil), s.IncludePaths...)
	cp.Variables = append([]Variable(nil), s.Variables...)
	return cp
}

// Context is a single, thread-local evaluation of a build file: a fresh
// script state populated with the file's registered tasks, rules, and
// optional default target.
type Context interface {
	// Tasks returns every task registered directly (not materialised
	// from a rule) by the build file.
	Tasks() []*task.Task

	// Rules returns every pattern rule registered by the build file,
	// in registration order.
	Rules() []*task.Rule

	// Default returns the build file's designated default target, if
	// any.
	Default() (string, bool)

	// GetTask resolves name to a task, matching a registered task
	// first, then a matching rule.
	GetTask(name string) (*task.Task, error)

	// Close releases any resources (VM state, open files) held by the
	// context.
	Close() error
}

// TaskSource parses and evaluates a build file, producing a fresh Context
// each time it is asked to. Load is called once per worker (and once on
// the coordinator, for resolution) with a cloned EnvironmentSpec, so two
// contexts from the same TaskSource never share mutable state.
type TaskSource interface {
	Load(ctx context.Context, spec EnvironmentSpec) (Context, error)
}
