package script

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

// EngineState tracks where an engine is in its lifecycle.
type EngineState int

const (
	StateUninitialized EngineState = iota
	StateInitialized
	StateStarted
	StateExecuted
	StateStopped
	StateShutdown
)

func (s EngineState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateExecuted:
		return "executed"
	case StateStopped:
		return "stopped"
	case StateShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("EngineState(%d)", int(s))
	}
}

// BaseEngine holds the bookkeeping shared by all engines. Engines that
// override Init must call BaseEngine.Init first.
type BaseEngine struct {
	mu        sync.Mutex
	id        string
	typeKey   EngineType
	version   string
	state     EngineState
	recovered bool
	fresh     bool
}

// Init assigns the instance id on first use and resets the per-invocation flags.
func (b *BaseEngine) Init(sc *ScriptContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateShutdown {
		return fmt.Errorf("engine %s was shut down", b.id)
	}
	if b.id == "" {
		b.id = uuid.NewString()
	}
	b.typeKey = sc.EngineType()
	b.recovered = false
	b.fresh = sc.RequiresFreshEngine()
	b.state = StateInitialized
	return nil
}

// Start is a no-op by default.
func (b *BaseEngine) Start(sc *ScriptContext) error { return nil }

// Stop is a no-op by default.
func (b *BaseEngine) Stop(sc *ScriptContext) {}

// Shutdown is a no-op by default.
func (b *BaseEngine) Shutdown() {}

// ID implements ScriptEngine.
func (b *BaseEngine) ID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

// TypeKey implements ScriptEngine.
func (b *BaseEngine) TypeKey() EngineType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.typeKey
}

// Version implements ScriptEngine.
func (b *BaseEngine) Version() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// RecoveredFromCache implements ScriptEngine.
func (b *BaseEngine) RecoveredFromCache() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recovered
}

// RequiresFreshInstance implements ScriptEngine.
func (b *BaseEngine) RequiresFreshInstance() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fresh
}

// RequestDiscard asks the executor to shut the instance down after the
// current invocation instead of keeping it cached. Engines call it when their
// runtime is no longer usable.
func (b *BaseEngine) RequestDiscard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fresh = true
}

// State returns the lifecycle state.
func (b *BaseEngine) State() EngineState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BaseEngine) base() *BaseEngine { return b }

func (b *BaseEngine) setState(state EngineState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateShutdown {
		b.state = state
	}
}

func (b *BaseEngine) markRecovered() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recovered = true
}

func (b *BaseEngine) setDefaultVersion(version string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.version == "" {
		b.version = version
	}
}

// ShutdownEngine calls Shutdown once per instance. Uninitialized and already
// shut down engines are skipped. It reports whether Shutdown ran.
func ShutdownEngine(engine ScriptEngine) bool {
	b := engine.base()
	b.mu.Lock()
	if b.state == StateUninitialized || b.state == StateShutdown {
		b.mu.Unlock()
		return false
	}
	b.state = StateShutdown
	b.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine shutdown panicked",
				"component", "script_engine",
				"engine_id", engine.ID(),
				"engine_type", engine.TypeKey(),
				"panic", r)
		}
	}()
	engine.Shutdown()
	return true
}

// SafeExecute runs Execute and converts a panic into UnknownException.
func SafeExecute(engine ScriptEngine, sc *ScriptContext) (code ResultCode) {
	defer func() {
		if r := recover(); r != nil {
			sc.SetTrace(FormatTrace("Engine Failure:", fmt.Sprint(r), string(debug.Stack())))
			code = UnknownException
		}
	}()
	code = engine.Execute(sc)
	engine.base().setState(StateExecuted)
	return code
}
