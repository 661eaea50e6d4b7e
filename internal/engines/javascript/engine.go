// Package javascript runs .js scripts on an embedded ECMAScript runtime.
package javascript

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dop251/goja"
	"github.com/nfrund/hostscript/internal/script"
)

// Version identifies the embedded runtime.
const Version = "goja/es5.1"

const traceHeader = "JavaScript Traceback:"

type programUnit struct {
	signature string
	program   *goja.Program
}

// Engine runs every non-persistent script in a fresh runtime. A persistent
// script keeps its own runtime across runs, keyed by ScopeKey.
type Engine struct {
	script.BaseEngine

	runtime    *goja.Runtime
	persistent map[string]*goja.Runtime
	programs map[string]programUnit
	compiles int
	runtimes int
	results  map[string]any
	output   io.Writer
}

// New returns an engine with no runtime yet.
func New() *Engine {
	return &Engine{
		programs:   make(map[string]programUnit),
		persistent: make(map[string]*goja.Runtime),
	}
}

func (e *Engine) newRuntime() *goja.Runtime {
	rt := goja.New()
	rt.SetFieldNameMapper(goja.UncapFieldNameMapper())
	e.runtimes++
	return rt
}

// Start implements script.ScriptEngine.
func (e *Engine) Start(sc *script.ScriptContext) error {
	if sc.Persistent() {
		key := sc.ScopeKey()
		rt, ok := e.persistent[key]
		if !ok {
			rt = e.newRuntime()
			e.persistent[key] = rt
		}
		e.runtime = rt
	} else {
		e.runtime = e.newRuntime()
	}
	e.output = sc.Output()

	e.results = make(map[string]any)
	for k, v := range sc.Results() {
		e.results[k] = v
	}

	for _, b := range script.Builtins(sc, e) {
		value := b.Value
		if b.Name == script.BuiltinResult {
			value = e.results
		}
		if err := e.runtime.Set(b.Name, value); err != nil {
			return fmt.Errorf("binding %s: %w", b.Name, err)
		}
	}

	console := e.runtime.NewObject()
	if err := console.Set("log", e.log); err != nil {
		return err
	}
	if err := e.runtime.Set("console", console); err != nil {
		return err
	}
	return e.runtime.Set("exit", exit)
}

func (e *Engine) log(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		parts[i] = arg.String()
	}
	if e.output != nil {
		fmt.Fprintln(e.output, strings.Join(parts, " "))
	}
	return goja.Undefined()
}

func exit(code int) error {
	return &script.SysExit{Code: code}
}

// Execute implements script.ScriptEngine.
func (e *Engine) Execute(sc *script.ScriptContext) script.ResultCode {
	program, err := e.program(sc)
	if err != nil {
		sc.SetTrace(script.FormatTrace(traceHeader, err.Error(), ""))
		var compileErr *script.CompileError
		if errors.As(err, &compileErr) {
			return script.CompileException
		}
		return script.ExecutionException
	}

	_, err = e.runtime.RunProgram(program)
	for k, v := range e.results {
		sc.SetResult(k, fmt.Sprint(v))
	}
	if err == nil {
		return script.Succeeded
	}

	var sysExit *script.SysExit
	if errors.As(err, &sysExit) {
		return script.SysExited
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		sc.SetTrace(script.FormatTrace(traceHeader, exception.String(), ""))
	} else {
		sc.SetTrace(script.FormatTrace(traceHeader, err.Error(), ""))
	}
	return script.ExecutionException
}

func (e *Engine) program(sc *script.ScriptContext) (*goja.Program, error) {
	file := sc.ResolvedSourceFile()
	signature, err := sc.SourceSignature()
	if err != nil {
		return nil, err
	}
	if unit, ok := e.programs[file]; ok && unit.signature == signature {
		return unit.program, nil
	}
	delete(e.programs, file)

	src, err := sc.ReadSource()
	if err != nil {
		return nil, err
	}
	program, err := goja.Compile(file, string(src), false)
	if err != nil {
		return nil, &script.CompileError{Cause: err}
	}
	e.compiles++
	e.programs[file] = programUnit{signature: signature, program: program}
	return program, nil
}

// Stop releases the run's runtime. A non-persistent run also drops the
// runtime its own script kept earlier.
func (e *Engine) Stop(sc *script.ScriptContext) {
	e.output = nil
	e.results = nil
	e.runtime = nil
	if !sc.Persistent() {
		delete(e.persistent, sc.ScopeKey())
	}
}

// Shutdown implements script.ScriptEngine.
func (e *Engine) Shutdown() {
	if e.runtime != nil {
		e.runtime.Interrupt("engine shut down")
	}
	for _, rt := range e.persistent {
		rt.Interrupt("engine shut down")
	}
	e.runtime = nil
	e.persistent = make(map[string]*goja.Runtime)
	e.programs = make(map[string]programUnit)
	e.output = nil
	e.results = nil
}
