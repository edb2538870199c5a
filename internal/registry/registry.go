// Package registry stores named tasks and pattern rules produced by a
// TaskSource, and answers name lookups: exact task names first, then
// pattern rules in insertion order, materialising and caching the result.
package registry

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/aristath/rote/internal/rerr"
	"github.com/aristath/rote/internal/task"
)

// compiledRule pairs a Rule with its pre-compiled matcher, built once at
// InsertRule time per spec: "compile each rule's pattern once at registry
// insertion; cache the compiled matcher."
type compiledRule struct {
	rule    task.Rule
	matcher *regexp.Regexp
}

// Registry maps task names to tasks, and holds an ordered list of rules
// for materialising tasks on miss.
type Registry struct {
	mu      sync.RWMutex
	tasks   map[string]*task.Task
	rules   []compiledRule
	order   []string // insertion order of concrete task names, for Tasks()
	dflt    string
	hasDflt bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{tasks: make(map[string]*task.Task)}
}

// Insert adds a concrete task. Returns an error if the name is already
// present.
func (r *Registry) Insert(t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(t)
}

func (r *Registry) insertLocked(t *task.Task) error {
	if _, exists := r.tasks[t.Name]; exists {
		return fmt.Errorf("duplicate task %q", t.Name)
	}
	r.tasks[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// InsertRule appends a pattern rule, compiling its matcher immediately.
func (r *Registry) InsertRule(rule task.Rule) error {
	matcher, err := compilePattern(rule.Pattern)
	if err != nil {
		return fmt.Errorf("invalid rule pattern %q: %w", rule.Pattern, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, compiledRule{rule: rule, matcher: matcher})
	return nil
}

// SetDefault records the TaskSource's designated default target name.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dflt = name
	r.hasDflt = true
}

// Default returns the designated default target, if any.
func (r *Registry) Default() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dflt, r.hasDflt
}

// Get returns the task named name, materialising it from the first
// matching rule (in insertion order) on miss. A materialised task is
// inserted under its concrete name so subsequent lookups are cheap and
// identity-stable.
func (r *Registry) Get(name string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tasks[name]; ok {
		return t, nil
	}

	for _, cr := range r.rules {
		capture, ok := match(cr.matcher, name)
		if !ok {
			continue
		}

		t, err := materialize(cr.rule, name, capture)
		if err != nil {
			return nil, &rerr.RuleInstantiationFailed{Pattern: cr.rule.Pattern, Name: name, Cause: err}
		}

		if err := r.insertLocked(t); err != nil {
			// Another call already materialised this name; use that one.
			return r.tasks[name], nil
		}
		return t, nil
	}

	return nil, &rerr.UnknownTask{Name: name}
}

// Tasks returns a snapshot of every currently materialised task, in
// insertion order.
func (r *Registry) Tasks() []*task.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*task.Task, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tasks[name])
	}
	return out
}

// materialize builds a concrete Task from a Rule template and a concrete
// matching name, substituting "$1" in dependency/input/output templates
// with the rule's capture.
func materialize(rule task.Rule, name, capture string) (*task.Task, error) {
	substitute := func(templates []string) []string {
		out := make([]string, len(templates))
		for i, tmpl := range templates {
			out[i] = strings.ReplaceAll(tmpl, "$1", capture)
		}
		return out
	}

	return &task.Task{
		Name:      name,
		DependsOn: substitute(rule.DependsOn),
		Inputs:    substitute(rule.Inputs),
		Outputs:   substitute(rule.Outputs),
		Action:    rule.Action,
	}, nil
}

// compilePattern turns a glob-style pattern ('*' matches any substring
// within a name segment) into an anchored regexp whose first capture
// group is the matched substring, for "$1" substitution.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")

	seenStar := false
	for _, r := range pattern {
		if r == '*' {
			if seenStar {
				b.WriteString("(?:[^/]*)")
			} else {
				b.WriteString("([^/]*)")
				seenStar = true
			}
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	b.WriteString("$")

	return regexp.Compile(b.String())
}

// match reports whether name fully matches the compiled pattern, and
// returns the first capture group (the "$1" substitution value), which is
// empty if the pattern has no wildcard.
func match(re *regexp.Regexp, name string) (string, bool) {
	groups := re.FindStringSubmatch(name)
	if groups == nil {
		return "", false
	}
	if len(groups) > 1 {
		return groups[1], true
	}
	return "", true
}
