// Package runner is the external entry point: it loads a build file via a
// TaskSource, resolves a requested target into a dependency graph,
// schedules it, and runs it through the executor, propagating
// configuration (job count, dry-run, force-run, variables, include
// paths). Adapted from original_source's runner::Runner and the
// teacher's cmd/orchestrator/main.go wiring style.
package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/aristath/rote/internal/events"
	"github.com/aristath/rote/internal/executor"
	"github.com/aristath/rote/internal/freshness"
	"github.com/aristath/rote/internal/graph"
	"github.com/aristath/rote/internal/history"
	"github.com/aristath/rote/internal/registry"
	"github.com/aristath/rote/internal/rerr"
	"github.com/aristath/rote/internal/schedule"
	"github.com/aristath/rote/internal/source"
	"github.com/aristath/rote/internal/task"
)

// Runner holds the state for a single build-file run: its environment
// specification, job budget, and the TaskSource that produces tasks.
type Runner struct {
	spec       source.EnvironmentSpec
	jobs       int
	taskSource source.TaskSource
	bus        *events.Bus    // optional; nil disables publishing
	hist       *history.Store // optional; nil disables history recording
	log        *rerr.Logger

	coordinatorCtx source.Context // lazily created by Load
}

// New creates a Runner for the build file at path, using taskSource to
// parse and evaluate it. The job budget defaults to
// max(1, runtime.NumCPU()-1), per spec §5.
func New(path string, taskSource source.TaskSource) (*Runner, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &rerr.LoadFailure{Reason: "failed to resolve build file path", Cause: err}
	}

	dir := filepath.Dir(abs)

	return &Runner{
		spec: source.EnvironmentSpec{
			Path:      abs,
			Directory: dir,
		},
		jobs:       defaultJobBudget(),
		taskSource: taskSource,
		log:        rerr.NewLogger(rerr.LevelNormal),
	}, nil
}

func defaultJobBudget() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// SetEventBus attaches an event bus; Run and its sub-stages publish
// progress events to it. Passing nil disables publishing.
func (r *Runner) SetEventBus(bus *events.Bus) { r.bus = bus }

// SetHistory attaches a history store; each call to Run that executes a
// non-empty schedule records its outcome and per-task timings there.
// Runs that fail before execution or have nothing to run are not
// recorded. Passing nil disables recording.
func (r *Runner) SetHistory(h *history.Store) { r.hist = h }

// SetLogger replaces the default LevelNormal logger, so the CLI's -q and
// -v flags can gate progress and warning output.
func (r *Runner) SetLogger(l *rerr.Logger) {
	if l != nil {
		r.log = l
	}
}

// DryRun sets dry-run mode: tasks are scheduled and reported but their
// actions are never invoked.
func (r *Runner) DryRun() { r.spec.DryRun = true }

// AlwaysRun causes every resolved task to run regardless of freshness.
func (r *Runner) AlwaysRun() { r.spec.AlwaysRun = true }

// Jobs sets the worker-thread budget.
func (r *Runner) Jobs(n int) {
	if n < 1 {
		n = 1
	}
	r.jobs = n
}

// IncludePath adds a module search path passed to the TaskSource.
func (r *Runner) IncludePath(path string) {
	r.spec.IncludePaths = append(r.spec.IncludePaths, path)
}

// SetVar sets a variable exposed to the build file as a global.
func (r *Runner) SetVar(name, value string) {
	r.spec.Variables = append(r.spec.Variables, source.Variable{Name: name, Value: value})
}

// Path returns the resolved build file path.
func (r *Runner) Path() string { return r.spec.Path }

// Directory returns the build file's containing directory.
func (r *Runner) Directory() string { return r.spec.Directory }

// Load evaluates the build file once, on the coordinator's own thread.
// Subsequent calls are no-ops.
func (r *Runner) Load(ctx context.Context) error {
	if r.coordinatorCtx != nil {
		return nil
	}

	ctxt, err := r.taskSource.Load(ctx, r.spec.Clone())
	if err != nil {
		return &rerr.LoadFailure{Reason: "TaskSource rejected the build file", Cause: err}
	}

	r.coordinatorCtx = ctxt
	return nil
}

// TaskList returns every named task (not pattern rule) defined by the
// build file, for the task-list printer (`-l`).
func (r *Runner) TaskList() []*task.Task {
	if r.coordinatorCtx == nil {
		return nil
	}

	tasks := append([]*task.Task(nil), r.coordinatorCtx.Tasks()...)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks
}

// DefaultTask returns the build file's designated default target, if
// any.
func (r *Runner) DefaultTask() (string, bool) {
	if r.coordinatorCtx == nil {
		return "", false
	}
	return r.coordinatorCtx.Default()
}

// RunDefault resolves and runs the build file's default task.
func (r *Runner) RunDefault(ctx context.Context) error {
	name, ok := r.DefaultTask()
	if !ok {
		return fmt.Errorf("no default task defined")
	}
	return r.Run(ctx, []string{name})
}

// Run resolves the given target names into a dependency graph, computes a
// schedule, and executes it. Resolver and scheduler errors abort the run
// before any worker starts, with no side effects.
func (r *Runner) Run(ctx context.Context, names []string) error {
	if err := r.Load(ctx); err != nil {
		return err
	}

	reg, err := buildRegistry(r.coordinatorCtx)
	if err != nil {
		return err
	}

	g, err := graph.Resolve(reg, names)
	if err != nil {
		return err
	}

	sched, err := schedule.Solve(g, freshness.New(), !r.spec.AlwaysRun)
	if err != nil {
		return err
	}

	r.publish(events.ScheduleComputedEvent{Total: sched.Len()})

	if sched.Empty() {
		return nil
	}

	started := time.Now()

	var mu sync.Mutex
	var records []history.TaskRecord

	onComplete := func(name string, duration time.Duration, taskErr error) {
		mu.Lock()
		rec := history.TaskRecord{Name: name, DurationMS: duration.Milliseconds()}
		if taskErr != nil {
			rec.Status = "failed"
			rec.Error = taskErr.Error()
		} else {
			rec.Status = "completed"
		}
		records = append(records, rec)
		mu.Unlock()

		if taskErr != nil {
			r.publish(events.TaskFailedEvent{Name: name, Err: taskErr, DurationMS: duration.Milliseconds()})
		} else {
			r.publish(events.TaskCompletedEvent{Name: name, DurationMS: duration.Milliseconds()})
		}
	}

	exec := executor.New(r.taskSource, r.jobs,
		executor.WithProgress(r.progressFn(sched.Len())),
		executor.WithCompletion(onComplete))

	runErr := exec.Run(ctx, sched, r.spec)

	r.publish(events.RunFinishedEvent{Succeeded: runErr == nil, Err: runErr})

	if r.hist != nil {
		if _, recErr := r.hist.RecordRun(ctx, r.spec.Path, names, runErr == nil, started, time.Now(), records); recErr != nil {
			r.log.Warnf("failed to record run history: %v", recErr)
		}
	}

	return runErr
}

func (r *Runner) publish(e events.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

func (r *Runner) progressFn(total int) executor.Progress {
	return func(index, total int, name string) {
		r.log.Infof("[%d/%d] %s", index, total, name)
		r.publish(events.TaskStartedEvent{Name: name, Index: index, Total: total})
	}
}

// buildRegistry materialises a registry.Registry from a freshly loaded
// source.Context: every directly-registered task and rule, plus the
// default target, if any.
func buildRegistry(ctxt source.Context) (*registry.Registry, error) {
	reg := registry.New()

	for _, t := range ctxt.Tasks() {
		if err := reg.Insert(t); err != nil {
			return nil, err
		}
	}

	for _, rule := range ctxt.Rules() {
		if err := reg.InsertRule(*rule); err != nil {
			return nil, err
		}
	}

	if name, ok := ctxt.Default(); ok {
		reg.SetDefault(name)
	}

	return reg, nil
}
