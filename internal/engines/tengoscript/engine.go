// Package tengoscript runs .tengo scripts on the embedded Tengo VM.
package tengoscript

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/nfrund/hostscript/internal/script"
)

// Version identifies the embedded VM.
const Version = "tengo/v2.17.0"

const traceHeader = "Tengo Traceback:"

// Limits constrain what a script may do.
type Limits struct {
	// MaxAllocs caps object allocations per run. Negative means unlimited.
	MaxAllocs int64
	// AllowedModules lists the stdlib modules scripts may import.
	AllowedModules []string
}

// DefaultLimits leaves out the os module and fmt, which prints to the
// process stdout.
func DefaultLimits() Limits {
	return Limits{
		MaxAllocs:      -1,
		AllowedModules: []string{"math", "text", "times", "rand", "json", "base64", "hex", "enum"},
	}
}

type compiledUnit struct {
	signature string
	compiled  *tengo.Compiled
}

// Engine compiles each script once per source signature and runs a clone of
// the compiled program on every invocation.
type Engine struct {
	script.BaseEngine

	limits   Limits
	modules  *tengo.ModuleMap
	compiled map[string]compiledUnit
	compiles int
	output   io.Writer
}

// New returns an engine with DefaultLimits.
func New() *Engine {
	return NewWithLimits(DefaultLimits())
}

// NewWithLimits returns an engine with custom limits.
func NewWithLimits(limits Limits) *Engine {
	return &Engine{
		limits:   limits,
		modules:  stdlib.GetModuleMap(limits.AllowedModules...),
		compiled: make(map[string]compiledUnit),
	}
}

// Start implements script.ScriptEngine.
func (e *Engine) Start(sc *script.ScriptContext) error {
	e.output = sc.Output()
	return nil
}

// Execute implements script.ScriptEngine.
func (e *Engine) Execute(sc *script.ScriptContext) script.ResultCode {
	desc := sc.Descriptor()
	program, err := e.program(sc)
	if err != nil {
		sc.SetTrace(script.FormatTrace(traceHeader, err.Error(), ""))
		var compileErr *script.CompileError
		if errors.As(err, &compileErr) {
			slog.Debug("Tengo compilation failed", "extension", desc.ExtensionName, "command", desc.Name, "error", err)
			return script.CompileException
		}
		return script.ExecutionException
	}

	run := program.Clone()
	for _, b := range script.Builtins(sc, e) {
		if err := run.Set(b.Name, toObject(b.Value)); err != nil {
			sc.SetTrace(script.FormatTrace(traceHeader, fmt.Sprintf("failed to set %s: %v", b.Name, err), ""))
			return script.ExecutionException
		}
	}

	err = run.Run()
	e.collectResults(sc, run)
	if err != nil {
		var sysExit *script.SysExit
		if errors.As(err, &sysExit) {
			return script.SysExited
		}
		sc.SetTrace(script.FormatTrace(traceHeader, err.Error(), ""))
		return script.ExecutionException
	}
	return script.Succeeded
}

// program returns the compiled program for the invocation's source,
// recompiling only when the source signature changed. Only compiler failures
// come back as *script.CompileError.
func (e *Engine) program(sc *script.ScriptContext) (*tengo.Compiled, error) {
	file := sc.ResolvedSourceFile()
	signature, err := sc.SourceSignature()
	if err != nil {
		return nil, err
	}
	if unit, ok := e.compiled[file]; ok && unit.signature == signature {
		return unit.compiled, nil
	}
	delete(e.compiled, file)

	src, err := sc.ReadSource()
	if err != nil {
		return nil, err
	}
	s := tengo.NewScript(src)
	s.SetImports(e.modules)
	s.SetMaxAllocs(e.limits.MaxAllocs)
	for _, name := range script.BuiltinNames() {
		if err := s.Add(name, nil); err != nil {
			return nil, err
		}
	}
	if err := s.Add("log", e.logFunc()); err != nil {
		return nil, err
	}
	if err := s.Add("exit", &tengo.UserFunction{Name: "exit", Value: exit}); err != nil {
		return nil, err
	}

	compiled, err := s.Compile()
	if err != nil {
		return nil, &script.CompileError{Cause: err}
	}
	e.compiles++
	e.compiled[file] = compiledUnit{signature: signature, compiled: compiled}
	return compiled, nil
}

func (e *Engine) logFunc() *tengo.UserFunction {
	return &tengo.UserFunction{
		Name: "log",
		Value: func(args ...tengo.Object) (tengo.Object, error) {
			if len(args) != 1 {
				return nil, tengo.ErrWrongNumArguments
			}
			message, ok := tengo.ToString(args[0])
			if !ok {
				message = args[0].String()
			}
			if e.output != nil {
				fmt.Fprintln(e.output, message)
			}
			return tengo.UndefinedValue, nil
		},
	}
}

func exit(args ...tengo.Object) (tengo.Object, error) {
	code := 0
	if len(args) > 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	if len(args) == 1 {
		n, ok := tengo.ToInt(args[0])
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: "code", Expected: "int", Found: args[0].TypeName()}
		}
		code = n
	}
	return nil, &script.SysExit{Code: code}
}

func (e *Engine) collectResults(sc *script.ScriptContext, run *tengo.Compiled) {
	result := run.Get(script.BuiltinResult)
	if result.IsUndefined() {
		return
	}
	for key, value := range result.Map() {
		if s, ok := value.(string); ok {
			sc.SetResult(key, s)
			continue
		}
		sc.SetResult(key, fmt.Sprint(value))
	}
}

// Stop implements script.ScriptEngine.
func (e *Engine) Stop(sc *script.ScriptContext) {
	e.output = nil
}

// Shutdown drops every compiled program.
func (e *Engine) Shutdown() {
	e.compiled = make(map[string]compiledUnit)
	e.output = nil
}
