package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/rote/internal/graph"
	"github.com/aristath/rote/internal/schedule"
	"github.com/aristath/rote/internal/source"
	"github.com/aristath/rote/internal/task"
)

// fakeContext answers GetTask from a fixed map and is otherwise inert.
type fakeContext struct {
	tasks map[string]*task.Task
}

func (c *fakeContext) Tasks() []*task.Task   { return nil }
func (c *fakeContext) Rules() []*task.Rule   { return nil }
func (c *fakeContext) Default() (string, bool) { return "", false }
func (c *fakeContext) Close() error          { return nil }
func (c *fakeContext) GetTask(name string) (*task.Task, error) {
	t, ok := c.tasks[name]
	if !ok {
		return nil, errors.New("no such task")
	}
	return t, nil
}

// fakeSource hands every worker a context over the same task map and
// records which task names actually ran.
type fakeSource struct {
	tasks map[string]*task.Task

	mu  sync.Mutex
	ran []string
}

func (s *fakeSource) Load(_ context.Context, _ source.EnvironmentSpec) (source.Context, error) {
	return &fakeContext{tasks: s.tasks}, nil
}

func (s *fakeSource) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ran = append(s.ran, name)
}

// newScheduleOf builds a schedule over a linear chain a -> b -> c (each
// depending on the previous name given), restricted to the requested
// names, using the real Solve path so ordering is exercised end to end.
func newScheduleOf(names ...string) *schedule.Schedule {
	g := graph.New()
	for i, name := range names {
		deps := []string(nil)
		if i > 0 {
			deps = []string{names[i-1]}
		}
		g.Add(&task.Task{Name: name, DependsOn: deps})
	}

	sched, err := schedule.Solve(g, alwaysRun{}, false)
	if err != nil {
		panic(err)
	}
	return sched
}

type alwaysRun struct{}

func (alwaysRun) IsUpToDate(inputs, outputs []string) bool { return false }

func TestRunExecutesEveryScheduledTask(t *testing.T) {
	tasks := map[string]*task.Task{
		"a": {Name: "a"},
		"b": {Name: "b", DependsOn: []string{"a"}},
	}

	src := &fakeSource{tasks: tasks}
	for _, tk := range tasks {
		tk.Action = func(ctx context.Context, n string) error {
			src.record(n)
			return nil
		}
	}

	sched := newScheduleOf("a", "b")
	exec := New(src, 2, WithProgress(func(index, total int, name string) {}))

	if err := exec.Run(context.Background(), sched, source.EnvironmentSpec{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(src.ran) != 2 {
		t.Fatalf("expected 2 tasks to run, got %d: %v", len(src.ran), src.ran)
	}
}

func TestRunPropagatesActionFailure(t *testing.T) {
	tasks := map[string]*task.Task{
		"a": {Name: "a", Action: func(ctx context.Context, n string) error {
			return errors.New("boom")
		}},
	}

	src := &fakeSource{tasks: tasks}
	sched := newScheduleOf("a")
	exec := New(src, 1, WithProgress(func(index, total int, name string) {}))

	err := exec.Run(context.Background(), sched, source.EnvironmentSpec{})
	if err == nil {
		t.Fatalf("expected an error from a failing action")
	}
}

func TestRunDryRunSkipsActions(t *testing.T) {
	invoked := false
	tasks := map[string]*task.Task{
		"a": {Name: "a", Action: func(ctx context.Context, n string) error {
			invoked = true
			return nil
		}},
	}

	src := &fakeSource{tasks: tasks}
	sched := newScheduleOf("a")
	exec := New(src, 1, WithProgress(func(index, total int, name string) {}))

	spec := source.EnvironmentSpec{DryRun: true}
	if err := exec.Run(context.Background(), sched, spec); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if invoked {
		t.Fatalf("dry run must not invoke the task action")
	}
}

func TestRunCompletionCallbackReportsOutcome(t *testing.T) {
	tasks := map[string]*task.Task{
		"a": {Name: "a", Action: func(ctx context.Context, n string) error { return errors.New("boom") }},
	}

	src := &fakeSource{tasks: tasks}
	sched := newScheduleOf("a")

	var mu sync.Mutex
	var gotName string
	var gotErr error
	var gotDuration time.Duration

	exec := New(src, 1,
		WithProgress(func(index, total int, name string) {}),
		WithCompletion(func(name string, duration time.Duration, err error) {
			mu.Lock()
			defer mu.Unlock()
			gotName, gotErr, gotDuration = name, err, duration
		}),
	)

	if err := exec.Run(context.Background(), sched, source.EnvironmentSpec{}); err == nil {
		t.Fatalf("expected the run to fail")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotName != "a" {
		t.Fatalf("completion callback name = %q, want %q", gotName, "a")
	}
	if gotErr == nil || gotErr.Error() != "boom" {
		t.Fatalf("completion callback err = %v, want boom", gotErr)
	}
	if gotDuration < 0 {
		t.Fatalf("completion callback duration should be non-negative, got %v", gotDuration)
	}
}

// TestRunRespectsDependencyOrderUnderConcurrency drives a fanout (root
// depends on x, y, z) through a multi-worker pool and asserts root never
// starts before all three of its dependencies have finished, even though
// x/y/z may race each other freely. This is the scheduler's core
// happens-before guarantee (spec §8, "Dependency respect").
func TestRunRespectsDependencyOrderUnderConcurrency(t *testing.T) {
	var mu sync.Mutex
	var finished []string

	leaf := func(name string) *task.Task {
		return &task.Task{Name: name, Action: func(ctx context.Context, n string) error {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			finished = append(finished, n)
			mu.Unlock()
			return nil
		}}
	}

	tasks := map[string]*task.Task{
		"x":    leaf("x"),
		"y":    leaf("y"),
		"z":    leaf("z"),
		"root": {Name: "root", DependsOn: []string{"x", "y", "z"}, Action: func(ctx context.Context, n string) error {
			mu.Lock()
			defer mu.Unlock()
			if len(finished) != 3 {
				t.Errorf("root started before all leaves finished: finished=%v", finished)
			}
			finished = append(finished, "root")
			return nil
		}},
	}

	src := &fakeSource{tasks: tasks}
	sched := rebuildFanoutSchedule(tasks)

	exec := New(src, 3, WithProgress(func(index, total int, name string) {}))
	if err := exec.Run(context.Background(), sched, source.EnvironmentSpec{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(finished) != 4 || finished[3] != "root" {
		t.Fatalf("expected root to finish last, got %v", finished)
	}
}

// rebuildFanoutSchedule builds the x/y/z -> root fanout graph directly,
// since newScheduleOf only models a linear chain.
func rebuildFanoutSchedule(tasks map[string]*task.Task) *schedule.Schedule {
	g := graph.New()
	g.Add(tasks["x"])
	g.Add(tasks["y"])
	g.Add(tasks["z"])
	g.Add(tasks["root"])

	sched, err := schedule.Solve(g, alwaysRun{}, false)
	if err != nil {
		panic(err)
	}
	return sched
}
