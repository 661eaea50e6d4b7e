// Package clr serves compiled .NET languages: C# and Visual Basic sources
// and prebuilt assemblies.
package clr

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nfrund/hostscript/internal/script"
)

// Version identifies the toolchain family.
const Version = "dotnet"

const traceHeader = "CLR Traceback:"

type compiledUnit struct {
	signature string
	unit      Unit
}

// Engine compiles each source once per signature and runs the resulting
// assembly on every invocation.
type Engine struct {
	script.BaseEngine

	toolchain Toolchain
	compiled  map[string]compiledUnit
	compiles  int
}

// New returns an engine driving toolchain.
func New(toolchain Toolchain) *Engine {
	return &Engine{toolchain: toolchain, compiled: make(map[string]compiledUnit)}
}

func languageFor(engine script.EngineType) Language {
	if engine == script.EngineVisualBasic {
		return VisualBasic
	}
	return CSharp
}

// Execute implements script.ScriptEngine.
func (e *Engine) Execute(sc *script.ScriptContext) script.ResultCode {
	unit, err := e.unit(sc)
	if err != nil {
		var compileErr *script.CompileError
		if errors.As(err, &compileErr) {
			sc.SetTrace(script.FormatTrace(traceHeader, compileErr.Error(), ""))
			return script.CompileException
		}
		sc.SetTrace(script.FormatTrace(traceHeader, err.Error(), ""))
		return script.ExecutionException
	}
	return run(e.toolchain, unit, sc, e)
}

// unit returns the compiled assembly, compiling only when the source
// signature changed. A failed compile forgets both the unit and its signature.
func (e *Engine) unit(sc *script.ScriptContext) (Unit, error) {
	file := sc.ResolvedSourceFile()
	signature, err := sc.SourceSignature()
	if err != nil {
		return Unit{}, err
	}
	if cu, ok := e.compiled[file]; ok {
		if cu.signature == signature {
			return cu.unit, nil
		}
		e.release(cu.unit)
		delete(e.compiled, file)
	}

	src, err := sc.ReadSource()
	if err != nil {
		return Unit{}, err
	}
	e.compiles++
	unit, err := e.toolchain.Compile(sc.Context(), CompileRequest{
		SourceFile: file,
		Source:     src,
		Language:   languageFor(sc.EngineType()),
		References: sc.Env().ReferencedAssemblies,
		Debug:      sc.Config().DebugMode,
	})
	if err != nil {
		var compileErr *script.CompileError
		if !errors.As(err, &compileErr) {
			err = &script.CompileError{Cause: err}
		}
		return Unit{}, err
	}
	e.compiled[file] = compiledUnit{signature: signature, unit: unit}
	return unit, nil
}

// Shutdown releases every compiled unit.
func (e *Engine) Shutdown() {
	for _, cu := range e.compiled {
		e.release(cu.unit)
	}
	e.compiled = make(map[string]compiledUnit)
}

func (e *Engine) release(unit Unit) {
	if err := e.toolchain.Release(unit); err != nil {
		slog.Debug("Failed to release compiled unit", "component", "clr", "assembly", unit.Assembly, "error", err)
	}
}

func run(toolchain Toolchain, unit Unit, sc *script.ScriptContext, engine script.ScriptEngine) script.ResultCode {
	res, err := toolchain.Run(sc.Context(), unit, RunRequest{
		Argv:     sc.Argv(),
		Builtins: encodeBuiltins(script.Builtins(sc, engine)),
		Output:   sc.Output(),
	})
	if err != nil {
		sc.SetTrace(script.FormatTrace(traceHeader, err.Error(), ""))
		return script.ExecutionException
	}
	for k, v := range res.Results {
		sc.SetResult(k, v)
	}
	if res.ExitCode != 0 {
		slog.Debug("Assembly exited with error", "component", "clr", "exit_code", res.ExitCode)
		guest := strings.TrimSpace(res.Stderr)
		if guest == "" {
			guest = fmt.Sprintf("process exited with status %d", res.ExitCode)
		}
		sc.SetTrace(script.FormatTrace(traceHeader, guest, ""))
		return script.ExecutionException
	}
	return script.Succeeded
}

func encodeBuiltins(builtins []script.Builtin) map[string]any {
	out := make(map[string]any, len(builtins))
	for _, b := range builtins {
		switch v := b.Value.(type) {
		case nil, string, bool, int, int64, float64, []string, map[string]string:
			out[b.Name] = v
		case script.DocumentIdentity:
			out[b.Name] = map[string]string{"title": v.Title(), "path_name": v.PathName()}
		default:
			out[b.Name] = fmt.Sprintf("%T", v)
		}
	}
	return out
}
