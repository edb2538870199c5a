// Package executor runs a schedule with a bounded worker pool and a
// single coordinator, dispatching ready tasks to idle workers over
// channels and tracking completions. See spec §4.5 and §5.
package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/rote/internal/rerr"
	"github.com/aristath/rote/internal/schedule"
	"github.com/aristath/rote/internal/source"
)

// dispatch is sent from the coordinator to a worker's private work
// channel: the concrete task name to run, and its 1-based position in the
// overall run for the progress line.
type dispatch struct {
	name  string
	index int
}

// Progress is invoked once per dispatch, before the worker looks up and
// (unless dry-run) runs the task. The default progress function prints
// "[i/N] name" to stdout, per spec §6.
type Progress func(index, total int, name string)

// DefaultProgress prints the standard "[i/N] name" progress line.
func DefaultProgress(index, total int, name string) {
	fmt.Printf("[%d/%d] %s\n", index, total, name)
}

// Completion is invoked after a task's action returns (or would have,
// were this not a dry run), reporting its outcome and wall-clock
// duration.
type Completion func(name string, duration time.Duration, err error)

// Executor runs a Schedule against a TaskSource with a bounded number of
// worker goroutines.
type Executor struct {
	taskSource source.TaskSource
	jobBudget  int
	progress   Progress
	onComplete Completion
}

// Option configures an Executor.
type Option func(*Executor)

// WithProgress overrides the progress reporter.
func WithProgress(p Progress) Option {
	return func(e *Executor) { e.progress = p }
}

// WithCompletion registers a callback invoked after every task attempt.
func WithCompletion(c Completion) Option {
	return func(e *Executor) { e.onComplete = c }
}

// New creates an Executor. jobBudget is clamped to at least 1 by the
// caller (see runner.Runner.Jobs); the actual worker count used by Run is
// further clamped to the schedule length.
func New(taskSource source.TaskSource, jobBudget int, opts ...Option) *Executor {
	e := &Executor{
		taskSource: taskSource,
		jobBudget:  jobBudget,
		progress:   DefaultProgress,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drains sched, dispatching ready tasks to a pool of
// min(jobBudget, sched.Len()) workers. It returns the first fatal error
// reported by any worker (ContextInitFailure, UnknownTask or
// ActionFailure), if any.
//
// Ordering: a task is dispatched only after every dependency that
// appears in the schedule has been marked completed by its worker's
// ready signal. Tasks not present in the schedule (already up to date)
// impose no ordering constraint. Fairness: the schedule is consumed
// strictly front-to-back.
func (e *Executor) Run(ctx context.Context, sched *schedule.Schedule, spec source.EnvironmentSpec) error {
	total := sched.Len()
	if total == 0 {
		return nil
	}

	workerCount := e.jobBudget
	if workerCount > total {
		workerCount = total
	}
	if workerCount < 1 {
		workerCount = 1
	}

	workChans := make([]chan dispatch, workerCount)
	for i := range workChans {
		workChans[i] = make(chan dispatch)
	}
	ready := make(chan int, workerCount)

	group, gctx := errgroup.WithContext(ctx)

	for id := 0; id < workerCount; id++ {
		id := id
		group.Go(func() error {
			return e.runWorker(gctx, id, workChans[id], ready, spec, total)
		})
	}

	// Snapshot the scheduled names: PopFront removes names from the
	// schedule's own set, but a dispatched, still-running dependency must
	// keep blocking its dependents until it completes.
	scheduledNames := make(map[string]bool, total)
	for name := range sched.Names() {
		scheduledNames[name] = true
	}
	completed := make(map[string]bool, total)
	inFlight := make(map[int]string, workerCount)
	free := make(map[int]bool, workerCount)
	for id := 0; id < workerCount; id++ {
		free[id] = true
	}

	var fatal error

	dispatchReady := func() {
		for len(free) > 0 && !sched.Empty() {
			head := sched.Front()

			blocked := false
			for _, dep := range head.DependsOn {
				if scheduledNames[dep] && !completed[dep] {
					blocked = true
					break
				}
			}
			if blocked {
				break
			}

			t := sched.PopFront()

			var workerID int
			for id := range free {
				workerID = id
				break
			}
			delete(free, workerID)

			idx := total - sched.Len()
			inFlight[workerID] = t.Name

			select {
			case workChans[workerID] <- dispatch{name: t.Name, index: idx}:
			case <-gctx.Done():
				// Worker pool is shutting down; stop dispatching.
				return
			}
		}
	}

	for !sched.Empty() && fatal == nil {
		select {
		case workerID, ok := <-ready:
			if !ok {
				goto drain
			}
			if name, wasRunning := inFlight[workerID]; wasRunning {
				completed[name] = true
				delete(inFlight, workerID)
			}
			free[workerID] = true
			dispatchReady()
		case <-gctx.Done():
			goto drain
		}
	}

drain:
	for _, ch := range workChans {
		close(ch)
	}

	if err := group.Wait(); err != nil {
		fatal = err
	}

	if fatal != nil {
		log.Printf("run aborted: %v", fatal)
	}

	return fatal
}

func (e *Executor) runWorker(ctx context.Context, id int, work <-chan dispatch, ready chan<- int, spec source.EnvironmentSpec, total int) error {
	ctxt, err := e.taskSource.Load(ctx, spec.Clone())
	if err != nil {
		return &rerr.ContextInitFailure{WorkerID: id, Cause: err}
	}
	defer ctxt.Close()

	announce := func() bool {
		select {
		case ready <- id:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !announce() {
		return nil
	}

	for d := range work {
		e.progress(d.index, total, d.name)

		t, err := ctxt.GetTask(d.name)
		if err != nil {
			return &rerr.UnknownTask{Name: d.name}
		}

		start := time.Now()
		var runErr error
		if !spec.DryRun && t.Action != nil {
			runErr = t.Action(ctx, t.Name)
		}

		if e.onComplete != nil {
			e.onComplete(t.Name, time.Since(start), runErr)
		}

		if runErr != nil {
			return &rerr.ActionFailure{TaskName: t.Name, Cause: runErr}
		}

		if !announce() {
			return nil
		}
	}

	return nil
}
