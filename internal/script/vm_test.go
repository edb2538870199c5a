package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/rote/internal/source"
)

func writeBuildFile(t *testing.T, content string) source.EnvironmentSpec {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ROTEFILE.js")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing build file: %v", err)
	}
	return source.EnvironmentSpec{Path: path, Directory: dir}
}

func TestLoadRegistersTasksAndDefault(t *testing.T) {
	spec := writeBuildFile(t, `
		task("build", { description: "builds the thing", dependsOn: ["fetch"] });
		task("fetch", {});
		defaultTask("build");
	`)

	ctxt, err := New().Load(context.Background(), spec)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer ctxt.Close()

	tasks := ctxt.Tasks()
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}

	build, err := ctxt.GetTask("build")
	if err != nil {
		t.Fatalf("GetTask(build): %v", err)
	}
	if build.Description != "builds the thing" {
		t.Fatalf("Description = %q", build.Description)
	}
	if len(build.DependsOn) != 1 || build.DependsOn[0] != "fetch" {
		t.Fatalf("DependsOn = %v", build.DependsOn)
	}

	name, ok := ctxt.Default()
	if !ok || name != "build" {
		t.Fatalf("Default() = (%q, %v), want (\"build\", true)", name, ok)
	}
}

func TestTaskRunCallbackInvokesJSFunction(t *testing.T) {
	spec := writeBuildFile(t, `
		var ran = false;
		task("build", {
			run: function(name) {
				ran = true;
			}
		});
	`)

	ctxt, err := New().Load(context.Background(), spec)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer ctxt.Close()

	build, err := ctxt.GetTask("build")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if build.Action == nil {
		t.Fatalf("expected a task with a run function to get a non-nil Action")
	}
	if err := build.Action(context.Background(), "build"); err != nil {
		t.Fatalf("Action: %v", err)
	}
}

func TestRuleMaterializesWithCapture(t *testing.T) {
	spec := writeBuildFile(t, `
		var lastName = "";
		rule("obj/*.o", {
			inputs: ["src/$1.c"],
			run: function(name) {
				lastName = name;
			}
		});
	`)

	ctxt, err := New().Load(context.Background(), spec)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer ctxt.Close()

	got, err := ctxt.GetTask("obj/main.o")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if len(got.Inputs) != 1 || got.Inputs[0] != "src/main.c" {
		t.Fatalf("Inputs = %v, want [src/main.c]", got.Inputs)
	}
	if got.Action == nil {
		t.Fatalf("expected the materialised task to carry the rule's action")
	}
	if err := got.Action(context.Background(), "obj/main.o"); err != nil {
		t.Fatalf("Action: %v", err)
	}
}

func TestLoadMissingBuildFileIsIOFailure(t *testing.T) {
	spec := source.EnvironmentSpec{Path: filepath.Join(t.TempDir(), "missing.js"), Directory: t.TempDir()}
	_, err := New().Load(context.Background(), spec)
	if err == nil {
		t.Fatalf("expected an error loading a missing build file")
	}
}

func TestLoadSyntaxErrorIsLoadFailure(t *testing.T) {
	spec := writeBuildFile(t, `this is not valid javascript {{{`)
	_, err := New().Load(context.Background(), spec)
	if err == nil {
		t.Fatalf("expected an error evaluating invalid JavaScript")
	}
}

func TestVariablesExposedAsGlobals(t *testing.T) {
	spec := writeBuildFile(t, `
		task("show", {
			run: function(name) {
				if (VERSION !== "1.2.3") {
					throw new Error("VERSION global not set");
				}
			}
		});
	`)
	spec.Variables = []source.Variable{{Name: "VERSION", Value: "1.2.3"}}

	ctxt, err := New().Load(context.Background(), spec)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer ctxt.Close()

	got, err := ctxt.GetTask("show")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if err := got.Action(context.Background(), "show"); err != nil {
		t.Fatalf("Action: %v (expected VERSION to be visible as a global)", err)
	}
}
