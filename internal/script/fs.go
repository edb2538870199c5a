package script

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/robertkrimen/otto"
)

// hostOS returns the OS global value exposed to build files, mirroring
// original_source's runtime/mod.rs EnvironmentSpec::create, which
// exposes only "windows" or "unix".
func hostOS() string {
	if runtime.GOOS == "windows" {
		return "windows"
	}
	return "unix"
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// installFS registers the fs.* module, a 1:1 port of original_source's
// modules/fs.rs function table (exists, isDir, isFile, isSymlink, mkdir,
// copy, rename, remove, get, put, append, combine), plus fs.glob, which
// the original embedding didn't have but which spec's pattern-rule
// instantiation needs for discovering concrete targets from disk.
func installFS(vm *otto.Otto) error {
	fs, err := vm.Object(`({})`)
	if err != nil {
		return err
	}

	set := func(name string, fn func(otto.FunctionCall) otto.Value) error {
		return fs.Set(name, fn)
	}

	if err := set("exists", fsExists); err != nil {
		return err
	}
	if err := set("isDir", fsIsDir); err != nil {
		return err
	}
	if err := set("isFile", fsIsFile); err != nil {
		return err
	}
	if err := set("isSymlink", fsIsSymlink); err != nil {
		return err
	}
	if err := set("mkdir", fsMkdir); err != nil {
		return err
	}
	if err := set("copy", fsCopy); err != nil {
		return err
	}
	if err := set("rename", fsRename); err != nil {
		return err
	}
	if err := set("remove", fsRemove); err != nil {
		return err
	}
	if err := set("get", fsGet); err != nil {
		return err
	}
	if err := set("put", fsPut); err != nil {
		return err
	}
	if err := set("append", fsAppend); err != nil {
		return err
	}
	if err := set("combine", fsCombine); err != nil {
		return err
	}
	if err := set("glob", fsGlob); err != nil {
		return err
	}

	return vm.Set("fs", fs)
}

func throwf(call otto.FunctionCall, format string, args ...interface{}) otto.Value {
	panic(call.Otto.MakeCustomError("FsError", fmt.Sprintf(format, args...)))
}

func fsExists(call otto.FunctionCall) otto.Value {
	path := call.Argument(0).String()
	_, err := os.Stat(path)
	v, _ := call.Otto.ToValue(err == nil)
	return v
}

func fsIsDir(call otto.FunctionCall) otto.Value {
	path := call.Argument(0).String()
	info, err := os.Stat(path)
	v, _ := call.Otto.ToValue(err == nil && info.IsDir())
	return v
}

func fsIsFile(call otto.FunctionCall) otto.Value {
	path := call.Argument(0).String()
	info, err := os.Stat(path)
	v, _ := call.Otto.ToValue(err == nil && info.Mode().IsRegular())
	return v
}

func fsIsSymlink(call otto.FunctionCall) otto.Value {
	path := call.Argument(0).String()
	info, err := os.Lstat(path)
	v, _ := call.Otto.ToValue(err == nil && info.Mode()&os.ModeSymlink != 0)
	return v
}

func fsMkdir(call otto.FunctionCall) otto.Value {
	path := call.Argument(0).String()
	if err := os.MkdirAll(path, 0o755); err != nil {
		return throwf(call, "failed to create directory %q: %v", path, err)
	}
	return otto.UndefinedValue()
}

func fsCopy(call otto.FunctionCall) otto.Value {
	src := call.Argument(0).String()
	dst := call.Argument(1).String()

	in, err := os.Open(src)
	if err != nil {
		return throwf(call, "failed to copy %q: %v", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return throwf(call, "failed to copy %q: %v", src, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return throwf(call, "failed to copy %q: %v", src, err)
	}
	return otto.UndefinedValue()
}

func fsRename(call otto.FunctionCall) otto.Value {
	src := call.Argument(0).String()
	dst := call.Argument(1).String()
	if err := os.Rename(src, dst); err != nil {
		return throwf(call, "no such file or directory: %q", src)
	}
	return otto.UndefinedValue()
}

func fsRemove(call otto.FunctionCall) otto.Value {
	path := call.Argument(0).String()
	info, err := os.Stat(path)
	if err != nil {
		return otto.UndefinedValue()
	}
	if info.IsDir() {
		if err := os.Remove(path); err != nil {
			return throwf(call, "failed to remove directory %q: %v", path, err)
		}
	} else if err := os.Remove(path); err != nil {
		return throwf(call, "failed to remove file %q: %v", path, err)
	}
	return otto.UndefinedValue()
}

func fsGet(call otto.FunctionCall) otto.Value {
	path := call.Argument(0).String()
	data, err := os.ReadFile(path)
	if err != nil {
		return throwf(call, "failed to open file %q", path)
	}
	v, _ := call.Otto.ToValue(string(data))
	return v
}

func fsPut(call otto.FunctionCall) otto.Value {
	path := call.Argument(0).String()
	contents := call.Argument(1).String()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return throwf(call, "failed to write to file %q: %v", path, err)
	}
	return otto.UndefinedValue()
}

func fsAppend(call otto.FunctionCall) otto.Value {
	path := call.Argument(0).String()
	contents := call.Argument(1).String()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return throwf(call, "failed to open file %q", path)
	}
	defer f.Close()

	if _, err := f.WriteString(contents); err != nil {
		return throwf(call, "failed to write to file %q: %v", path, err)
	}
	return otto.UndefinedValue()
}

func fsCombine(call otto.FunctionCall) otto.Value {
	sourcesVal := call.Argument(0)
	dest := call.Argument(1).String()

	exported, err := sourcesVal.Export()
	if err != nil {
		return throwf(call, "first argument must be an array")
	}
	sources, ok := exported.([]interface{})
	if !ok {
		return throwf(call, "first argument must be an array")
	}

	out, err := os.Create(dest)
	if err != nil {
		return throwf(call, "failed to open file %q", dest)
	}
	defer out.Close()

	for _, s := range sources {
		path, _ := s.(string)
		in, err := os.Open(path)
		if err != nil {
			return throwf(call, "failed to open file %q", path)
		}
		_, copyErr := io.Copy(out, in)
		in.Close()
		if copyErr != nil {
			return throwf(call, "failed to write to file %q: %v", dest, copyErr)
		}
	}
	return otto.UndefinedValue()
}

func fsGlob(call otto.FunctionCall) otto.Value {
	pattern := call.Argument(0).String()
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return throwf(call, "bad glob pattern %q: %v", pattern, err)
	}
	v, _ := call.Otto.ToValue(matches)
	return v
}
