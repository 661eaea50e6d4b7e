// Package cpython runs python3 scripts in a warm external interpreter.
package cpython

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nfrund/hostscript/internal/script"
)

// DefaultVersion is reported until the worker has announced its version.
const DefaultVersion = "cpython3"

const traceHeader = "CPython Traceback:"

// Engine owns one interpreter process. The process is spawned on first use
// and kept across invocations while the engine stays cached.
type Engine struct {
	script.BaseEngine

	// Python is the interpreter command.
	Python string
	// Grace bounds how long Shutdown waits for the worker to exit.
	Grace time.Duration

	worker *worker
	spawns int
}

// New returns an engine using python3 from PATH.
func New() *Engine {
	return &Engine{Python: "python3", Grace: 2 * time.Second}
}

// Version reports the interpreter version once known.
func (e *Engine) Version() string {
	if e.worker != nil && e.worker.version != "" {
		return "cpython " + e.worker.version
	}
	return e.BaseEngine.Version()
}

// Start implements script.ScriptEngine.
func (e *Engine) Start(sc *script.ScriptContext) error {
	if e.worker != nil {
		return nil
	}
	w, err := spawn(e.Python)
	if err != nil {
		return &script.ExternalInterfaceError{Interface: e.Python, Cause: err}
	}
	e.worker = w
	e.spawns++
	slog.Debug("Started python worker", "component", "cpython", "engine_id", e.ID(), "version", w.version)
	return nil
}

// Execute implements script.ScriptEngine.
func (e *Engine) Execute(sc *script.ScriptContext) script.ResultCode {
	src, err := sc.ReadSource()
	if err != nil {
		sc.SetTrace(script.FormatTrace(traceHeader, err.Error(), ""))
		return script.ExecutionException
	}

	paths := append(sc.SearchPaths(), sc.ScriptDir())
	r, err := e.worker.call(request{
		Op:         "exec",
		File:       sc.ResolvedSourceFile(),
		Source:     string(src),
		Argv:       sc.Argv(),
		Paths:      paths,
		Persistent: sc.Persistent(),
		Scope:      sc.ScopeKey(),
		Builtins:   encodeBuiltins(script.Builtins(sc, e)),
	})
	if err != nil {
		e.abandon()
		sc.SetTrace(script.FormatTrace(traceHeader, "python worker died: "+err.Error(), ""))
		return script.UnknownException
	}

	if r.Output != "" {
		fmt.Fprint(sc.Output(), r.Output)
	}
	for k, v := range r.Results {
		sc.SetResult(k, v)
	}

	switch r.Status {
	case "ok":
		return script.Succeeded
	case "exit":
		return script.SysExited
	default:
		sc.SetTrace(script.FormatTrace(traceHeader, r.Trace, ""))
		return script.ExecutionException
	}
}

// abandon kills a broken worker and asks for the instance to be discarded.
func (e *Engine) abandon() {
	if e.worker != nil {
		e.worker.kill()
		e.worker = nil
	}
	e.RequestDiscard()
}

// Stop drops the script's kept scope unless the run is persistent.
func (e *Engine) Stop(sc *script.ScriptContext) {
	if sc.Persistent() || e.worker == nil {
		return
	}
	if _, err := e.worker.call(request{Op: "clear", Scope: sc.ScopeKey()}); err != nil {
		slog.Debug("Python worker failed to clear scope", "component", "cpython", "error", err)
		e.abandon()
	}
}

// Shutdown stops the worker process.
func (e *Engine) Shutdown() {
	if e.worker == nil {
		return
	}
	if err := e.worker.stop(e.Grace); err != nil {
		slog.Debug("Python worker did not stop cleanly", "component", "cpython", "error", err)
	}
	e.worker = nil
}

// encodeBuiltins renders builtins as JSON values. Host handles become opaque
// descriptions.
func encodeBuiltins(builtins []script.Builtin) map[string]any {
	out := make(map[string]any, len(builtins))
	for _, b := range builtins {
		switch v := b.Value.(type) {
		case nil, string, bool, int, int64, float64, []string, map[string]string:
			out[b.Name] = v
		case script.DocumentIdentity:
			out[b.Name] = map[string]any{
				"__host__":  fmt.Sprintf("%T", v),
				"title":     v.Title(),
				"path_name": v.PathName(),
			}
		default:
			out[b.Name] = map[string]any{"__host__": fmt.Sprintf("%T", v)}
		}
	}
	return out
}
