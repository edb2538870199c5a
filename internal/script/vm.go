// Package script implements the concrete source.TaskSource: build files
// are plain JavaScript, evaluated by an embedded otto interpreter. Each
// Load call creates a fresh, private VM, so a TaskSource backed by this
// package is safe to share across workers (source.TaskSource.Load is
// already documented as being called once per worker).
//
// Grounded on original_source's runtime/mod.rs (Runtime/Environment
// setup, OS global, variable globals, module loading order) and
// modules/fs.rs (the fs.* function table), translated from the Lua/C
// embedding idiom into otto's Go-native one: a native callback closes
// over the owning Context directly, so the process-wide weak-reference
// registry runtime/mod.rs needs for the Lua C API has no counterpart
// here.
package script

import (
	stdctx "context"
	"fmt"

	"github.com/robertkrimen/otto"

	"github.com/aristath/rote/internal/registry"
	"github.com/aristath/rote/internal/rerr"
	"github.com/aristath/rote/internal/source"
	"github.com/aristath/rote/internal/task"
)

// Source is a source.TaskSource that evaluates JavaScript build files.
type Source struct{}

// New creates a JavaScript-backed TaskSource.
func New() *Source { return &Source{} }

// Context is one private evaluation of a build file: its own otto VM,
// its own registry of declared tasks and rules.
type Context struct {
	vm  *otto.Otto
	dir string

	reg        *registry.Registry
	declared   []*task.Task
	ruleOrder  []task.Rule
	runFuncs   map[string]otto.Value // name/pattern -> run callback
	defaultVal string
	hasDefault bool
}

// Load parses and evaluates the build file named by spec.Path, returning
// a populated Context. See spec §6.2 for the global surface exposed to
// the script.
func (s *Source) Load(_ stdctx.Context, spec source.EnvironmentSpec) (source.Context, error) {
	ctxt := &Context{
		vm:       otto.New(),
		dir:      spec.Directory,
		reg:      registry.New(),
		runFuncs: make(map[string]otto.Value),
	}

	if err := ctxt.install(spec); err != nil {
		return nil, err
	}

	src, err := readFile(spec.Path)
	if err != nil {
		return nil, &rerr.IOFailure{Path: spec.Path, Cause: err}
	}

	if _, err := ctxt.vm.Run(src); err != nil {
		return nil, &rerr.LoadFailure{Reason: fmt.Sprintf("error evaluating %s", spec.Path), Cause: err}
	}

	return ctxt, nil
}

// install registers the global functions, modules, and variables a
// build file may reference, before it is evaluated.
func (c *Context) install(spec source.EnvironmentSpec) error {
	if err := c.vm.Set("OS", hostOS()); err != nil {
		return err
	}

	for _, v := range spec.Variables {
		if err := c.vm.Set(v.Name, v.Value); err != nil {
			return &rerr.LoadFailure{Reason: fmt.Sprintf("setting variable %q", v.Name), Cause: err}
		}
	}

	if err := c.vm.Set("task", c.jsTask); err != nil {
		return err
	}
	if err := c.vm.Set("rule", c.jsRule); err != nil {
		return err
	}
	if err := c.vm.Set("defaultTask", c.jsDefaultTask); err != nil {
		return err
	}

	if err := installFS(c.vm); err != nil {
		return err
	}
	if err := installSH(c.vm, c.dir); err != nil {
		return err
	}

	return nil
}

// jsTask implements the global task(name, options) function.
func (c *Context) jsTask(call otto.FunctionCall) otto.Value {
	name := call.Argument(0).String()
	opts := call.Argument(1)

	t := &task.Task{Name: name}
	if opts.IsObject() {
		obj := opts.Object()
		t.Description = stringProp(obj, "description")
		t.DependsOn = stringSliceProp(obj, "dependsOn")
		t.Inputs = stringSliceProp(obj, "inputs")
		t.Outputs = stringSliceProp(obj, "outputs")

		if fn := funcProp(obj, "run"); fn != nil {
			c.runFuncs[name] = *fn
			t.Action = c.makeAction(name)
		}
	}

	if err := c.reg.Insert(t); err != nil {
		panic(call.Otto.MakeCustomError("RoteError", err.Error()))
	}
	c.declared = append(c.declared, t)

	return otto.UndefinedValue()
}

// jsRule implements the global rule(pattern, options) function.
func (c *Context) jsRule(call otto.FunctionCall) otto.Value {
	pattern := call.Argument(0).String()
	opts := call.Argument(1)

	r := task.Rule{Pattern: pattern}
	if opts.IsObject() {
		obj := opts.Object()
		r.DependsOn = stringSliceProp(obj, "dependsOn")
		r.Inputs = stringSliceProp(obj, "inputs")
		r.Outputs = stringSliceProp(obj, "outputs")

		if fn := funcProp(obj, "run"); fn != nil {
			c.runFuncs[pattern] = *fn
			r.Action = c.makeAction(pattern)
		}
	}

	if err := c.reg.InsertRule(r); err != nil {
		panic(call.Otto.MakeCustomError("RoteError", err.Error()))
	}
	c.ruleOrder = append(c.ruleOrder, r)

	return otto.UndefinedValue()
}

// jsDefaultTask implements the global defaultTask(name) function.
func (c *Context) jsDefaultTask(call otto.FunctionCall) otto.Value {
	name := call.Argument(0).String()
	c.reg.SetDefault(name)
	c.defaultVal = name
	c.hasDefault = true
	return otto.UndefinedValue()
}

// makeAction returns a task.Action that invokes the run callback stored
// under key (a task name or a rule pattern), in this Context's own VM.
// taskName is passed as the callback's sole argument so a rule's run
// function can re-derive the captured portion of the pattern if needed.
func (c *Context) makeAction(key string) task.Action {
	return func(_ stdctx.Context, taskName string) error {
		fn, ok := c.runFuncs[key]
		if !ok {
			return nil
		}
		_, err := fn.Call(otto.UndefinedValue(), taskName)
		if err != nil {
			return err
		}
		return nil
	}
}

// Tasks returns every directly declared task, in declaration order.
// Tasks that GetTask materialises from a rule are not included.
func (c *Context) Tasks() []*task.Task {
	return append([]*task.Task(nil), c.declared...)
}

// Rules returns every declared pattern rule, in declaration order.
func (c *Context) Rules() []*task.Rule {
	rules := make([]*task.Rule, len(c.ruleOrder))
	for i := range c.ruleOrder {
		rules[i] = &c.ruleOrder[i]
	}
	return rules
}

// Default returns the build file's designated default target.
func (c *Context) Default() (string, bool) { return c.reg.Default() }

// GetTask resolves name against the declared tasks, then the declared
// rules, materialising a rule match on demand.
func (c *Context) GetTask(name string) (*task.Task, error) {
	return c.reg.Get(name)
}

// Close releases the VM. otto holds no OS resources directly, but
// Close is part of the source.Context contract for TaskSources that do
// (e.g. one backed by a persistent subprocess interpreter).
func (c *Context) Close() error { return nil }

func stringProp(obj *otto.Object, key string) string {
	v, err := obj.Get(key)
	if err != nil || !v.IsString() {
		return ""
	}
	return v.String()
}

func stringSliceProp(obj *otto.Object, key string) []string {
	v, err := obj.Get(key)
	if err != nil || v.IsUndefined() || v.IsNull() {
		return nil
	}
	exported, err := v.Export()
	if err != nil {
		return nil
	}
	raw, ok := exported.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		out = append(out, fmt.Sprintf("%v", item))
	}
	return out
}

func funcProp(obj *otto.Object, key string) *otto.Value {
	v, err := obj.Get(key)
	if err != nil || !v.IsFunction() {
		return nil
	}
	return &v
}
