// Package starpy serves the IronPython engine tag with an embedded,
// in-process Python dialect interpreter.
package starpy

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/nfrund/hostscript/internal/script"
	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Version identifies the embedded interpreter.
const Version = "starlark-go/2023.11"

const traceHeader = "IronPython Traceback:"

var fileOptions = &syntax.FileOptions{
	Set:               true,
	While:             true,
	TopLevelControl:   true,
	GlobalReassign:    true,
	LoadBindsGlobally: true,
	Recursion:         true,
}

// Engine runs .py scripts. One instance is cached per extension; its
// interpreter state is bootstrapped once and rebound on every invocation.
type Engine struct {
	script.BaseEngine

	bootstraps int
	universe   starlark.StringDict
	baseline   []string

	// scopes holds the globals of persistent scripts between runs, keyed by
	// ScopeKey. Only the script that stored a scope ever sees it again.
	scopes      map[string]starlark.StringDict
	predeclared starlark.StringDict
	result      *starlark.Dict
	thread      *starlark.Thread
	loader      *moduleLoader
	output      io.Writer
}

// New returns an engine that has not been bootstrapped yet.
func New() *Engine {
	return &Engine{}
}

func (e *Engine) bootstrap(sc *script.ScriptContext) {
	e.universe = starlark.StringDict{
		"json": json.Module,
		"math": math.Module,
		"time": time.Module,
	}
	e.baseline = sc.Env().ReferencedAssemblies
	e.bootstraps++
	slog.Debug("Bootstrapped interpreter", "component", "starpy", "engine_id", e.ID())
}

// Start implements script.ScriptEngine.
func (e *Engine) Start(sc *script.ScriptContext) error {
	if !e.RecoveredFromCache() || e.universe == nil {
		e.bootstrap(sc)
	}

	e.output = sc.Output()
	e.result = starlark.NewDict(4)

	// The search path is rebuilt from the baseline on each call.
	paths := append(sc.SearchPaths(), sc.ScriptDir())
	paths = append(paths, e.baseline...)
	e.loader = newModuleLoader(sc.Fs(), paths, e.universe, e.print)

	var scope starlark.StringDict
	if sc.Persistent() {
		scope = e.scopes[sc.ScopeKey()]
	}
	predeclared := make(starlark.StringDict, len(e.universe)+len(scope)+24)
	maps.Copy(predeclared, e.universe)
	maps.Copy(predeclared, scope)
	for _, b := range script.Builtins(sc, e) {
		if b.Name == script.BuiltinResult {
			predeclared[b.Name] = e.result
			continue
		}
		predeclared[b.Name] = toValue(b.Value)
	}
	predeclared["exit"] = starlark.NewBuiltin("exit", exit)
	e.predeclared = predeclared

	e.thread = &starlark.Thread{
		Name:  sc.ExecID,
		Print: func(_ *starlark.Thread, msg string) { e.print(msg) },
		Load:  e.loader.load,
	}
	return nil
}

func (e *Engine) print(msg string) {
	if e.output != nil {
		fmt.Fprintln(e.output, msg)
	}
}

// Execute implements script.ScriptEngine.
func (e *Engine) Execute(sc *script.ScriptContext) script.ResultCode {
	src, err := sc.ReadSource()
	if err != nil {
		sc.SetTrace(script.FormatTrace(traceHeader, err.Error(), ""))
		return script.ExecutionException
	}

	globals, err := starlark.ExecFileOptions(fileOptions, e.thread, sc.ResolvedSourceFile(), src, e.predeclared)
	e.collectResults(sc)

	if err != nil {
		var sysExit *script.SysExit
		if errors.As(err, &sysExit) {
			return script.SysExited
		}
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			sc.SetTrace(script.FormatTrace(traceHeader, evalErr.Backtrace(), ""))
		} else {
			sc.SetTrace(script.FormatTrace(traceHeader, err.Error(), ""))
		}
		return script.ExecutionException
	}

	if sc.Persistent() {
		if e.scopes == nil {
			e.scopes = make(map[string]starlark.StringDict)
		}
		key := sc.ScopeKey()
		scope := e.scopes[key]
		if scope == nil {
			scope = make(starlark.StringDict, len(globals))
			e.scopes[key] = scope
		}
		maps.Copy(scope, globals)
	}
	return script.Succeeded
}

func (e *Engine) collectResults(sc *script.ScriptContext) {
	if e.result == nil {
		return
	}
	for _, item := range e.result.Items() {
		sc.SetResult(asString(item[0]), asString(item[1]))
	}
}

// Stop drops the per-run state. A non-persistent run also forgets any scope
// its own script stored earlier.
func (e *Engine) Stop(sc *script.ScriptContext) {
	if !sc.Persistent() {
		delete(e.scopes, sc.ScopeKey())
	}
	e.predeclared = nil
	e.result = nil
	e.thread = nil
	e.loader = nil
	e.output = nil
}

// Shutdown implements script.ScriptEngine.
func (e *Engine) Shutdown() {
	e.scopes = nil
	e.predeclared = nil
	e.result = nil
	e.thread = nil
	e.loader = nil
	e.output = nil
	e.universe = nil
	e.baseline = nil
}

func exit(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	code := 0
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "code?", &code); err != nil {
		return nil, err
	}
	return nil, &script.SysExit{Code: code}
}

func asString(v starlark.Value) string {
	if s, ok := starlark.AsString(v); ok {
		return s
	}
	return v.String()
}
