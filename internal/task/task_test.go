package task

import "testing"

func TestTaskCloneIsIndependent(t *testing.T) {
	orig := &Task{
		Name:      "build",
		DependsOn: []string{"fetch"},
		Inputs:    []string{"src/main.go"},
		Outputs:   []string{"bin/app"},
	}

	cp := orig.Clone()
	cp.DependsOn[0] = "mutated"
	cp.Inputs[0] = "mutated"
	cp.Outputs[0] = "mutated"

	if orig.DependsOn[0] != "fetch" {
		t.Fatalf("mutating clone's DependsOn affected original: %v", orig.DependsOn)
	}
	if orig.Inputs[0] != "src/main.go" {
		t.Fatalf("mutating clone's Inputs affected original: %v", orig.Inputs)
	}
	if orig.Outputs[0] != "bin/app" {
		t.Fatalf("mutating clone's Outputs affected original: %v", orig.Outputs)
	}
}

func TestTaskCloneNil(t *testing.T) {
	var t0 *Task
	if t0.Clone() != nil {
		t.Fatalf("cloning a nil *Task should return nil")
	}
}
