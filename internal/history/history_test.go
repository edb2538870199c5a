package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecentRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	started := time.Now().Add(-time.Second)
	finished := time.Now()

	runID, err := s.RecordRun(ctx, "ROTEFILE.js", []string{"build"}, true, started, finished, []TaskRecord{
		{Name: "fetch", Status: "completed", DurationMS: 10},
		{Name: "build", Status: "completed", DurationMS: 20},
	})
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if runID == "" {
		t.Fatalf("expected a non-empty run ID")
	}

	runs, err := s.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 recorded run, got %d", len(runs))
	}
	if runs[0].ID != runID || !runs[0].Succeeded || runs[0].Targets != "build" {
		t.Fatalf("unexpected run summary: %+v", runs[0])
	}

	tasks, err := s.TasksForRun(ctx, runID)
	if err != nil {
		t.Fatalf("TasksForRun: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 task records, got %d", len(tasks))
	}
}

func TestRecordRunWithFailure(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.RecordRun(ctx, "ROTEFILE.js", []string{"build"}, false, time.Now(), time.Now(), []TaskRecord{
		{Name: "build", Status: "failed", Error: "exit status 1", DurationMS: 5},
	})
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := s.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if runs[0].Succeeded {
		t.Fatalf("expected Succeeded = false")
	}

	tasks, err := s.TasksForRun(ctx, runs[0].ID)
	if err != nil {
		t.Fatalf("TasksForRun: %v", err)
	}
	if tasks[0].Error != "exit status 1" {
		t.Fatalf("Error = %q, want %q", tasks[0].Error, "exit status 1")
	}
}

func TestRecentRunsOrderedNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"first", "second", "third"} {
		started := base.Add(time.Duration(i) * time.Minute)
		if _, err := s.RecordRun(ctx, "ROTEFILE.js", []string{name}, true, started, started.Add(time.Second), nil); err != nil {
			t.Fatalf("RecordRun(%s): %v", name, err)
		}
	}

	runs, err := s.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 3 || runs[0].Targets != "third" || runs[2].Targets != "first" {
		t.Fatalf("expected newest-first order, got %v", runs)
	}
}
