package starpy

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.starlark.net/starlark"
)

// moduleLoader resolves load() statements against the invocation's search
// paths. Modules are executed once per invocation.
type moduleLoader struct {
	fs       afero.Fs
	paths    []string
	universe starlark.StringDict
	print    func(string)
	modules  map[string]*loadEntry
}

type loadEntry struct {
	globals starlark.StringDict
	err     error
}

func newModuleLoader(fs afero.Fs, paths []string, universe starlark.StringDict, print func(string)) *moduleLoader {
	return &moduleLoader{
		fs:       fs,
		paths:    paths,
		universe: universe,
		print:    print,
		modules:  make(map[string]*loadEntry),
	}
}

func (l *moduleLoader) load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	file, err := l.find(module)
	if err != nil {
		return nil, err
	}

	entry, seen := l.modules[file]
	if seen {
		if entry == nil {
			return nil, fmt.Errorf("cycle in load graph at %s", module)
		}
		return entry.globals, entry.err
	}

	l.modules[file] = nil
	src, err := afero.ReadFile(l.fs, file)
	if err != nil {
		l.modules[file] = &loadEntry{err: err}
		return nil, err
	}

	child := &starlark.Thread{
		Name:  thread.Name + ":" + module,
		Print: func(_ *starlark.Thread, msg string) { l.print(msg) },
		Load:  l.load,
	}
	globals, err := starlark.ExecFileOptions(fileOptions, child, file, src, l.universe)
	l.modules[file] = &loadEntry{globals: globals, err: err}
	return globals, err
}

func (l *moduleLoader) find(module string) (string, error) {
	name := filepath.FromSlash(module)
	if path.Ext(module) == "" {
		name += ".py"
	}
	if filepath.IsAbs(name) {
		if ok, _ := afero.Exists(l.fs, name); ok {
			return name, nil
		}
		return "", fmt.Errorf("module %s not found", module)
	}
	for _, dir := range l.paths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if ok, _ := afero.Exists(l.fs, candidate); ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("module %s not found in %s", module, strings.Join(l.paths, string(filepath.ListSeparator)))
}
