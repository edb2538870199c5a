package script

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"

	"github.com/robertkrimen/otto"
)

// installSH registers the sh.* module: sh.run(command, args) runs a
// subprocess rooted at dir and returns its stdout as-is, throwing on a
// non-zero exit. command is a string; args is an optional array of
// strings. Adapted from the teacher's internal/backend/process.go
// concurrent-pipe-draining pattern and process-group isolation, since
// original_source has no direct equivalent (rote's Lua embedding relies
// on os.execute from the Lua standard library instead).
func installSH(vm *otto.Otto, dir string) error {
	sh, err := vm.Object(`({})`)
	if err != nil {
		return err
	}

	if err := sh.Set("run", func(call otto.FunctionCall) otto.Value {
		return shRun(call, dir)
	}); err != nil {
		return err
	}

	return vm.Set("sh", sh)
}

func shRun(call otto.FunctionCall, dir string) otto.Value {
	commandArg := call.Argument(0)
	if !commandArg.IsString() {
		panic(call.Otto.MakeCustomError("ShError", "sh.run requires a command string"))
	}

	parts := []string{commandArg.String()}

	argsArg := call.Argument(1)
	if argsArg.IsDefined() {
		exported, err := argsArg.Export()
		if err != nil {
			panic(call.Otto.MakeCustomError("ShError", fmt.Sprintf("sh.run: invalid args: %v", err)))
		}
		items, ok := exported.([]interface{})
		if !ok {
			panic(call.Otto.MakeCustomError("ShError", "sh.run: args must be an array"))
		}
		for _, item := range items {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, stderr, err := runCommand(cmd)
	if err != nil {
		panic(call.Otto.MakeCustomError("ShError", fmt.Sprintf("%v (stderr: %s)", err, stderr)))
	}

	v, _ := call.Otto.ToValue(string(stdout))
	return v
}

// runCommand drains a command's stdout and stderr pipes concurrently
// before calling cmd.Wait, so output larger than the pipe buffer never
// deadlocks the subprocess.
func runCommand(cmd *exec.Cmd) (stdout, stderr []byte, err error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start command: %w", err)
	}

	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf bytes.Buffer
	wg.Add(2)

	go func() {
		defer wg.Done()
		io.Copy(&stdoutBuf, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderrPipe)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	stdout, stderr = stdoutBuf.Bytes(), stderrBuf.Bytes()

	if waitErr != nil {
		return stdout, stderr, fmt.Errorf("command failed: %w", waitErr)
	}
	return stdout, stderr, nil
}
