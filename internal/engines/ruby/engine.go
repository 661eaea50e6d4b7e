// Package ruby reserves the Ruby engine tag. No Ruby runtime is embedded yet,
// so every invocation reports EngineNotImplemented.
package ruby

import "github.com/nfrund/hostscript/internal/script"

// Engine is the placeholder for .rb scripts.
type Engine struct {
	script.BaseEngine
}

// New returns a placeholder engine.
func New() *Engine { return &Engine{} }

// Start always fails.
func (e *Engine) Start(sc *script.ScriptContext) error {
	return &script.EngineNotImplementedError{Engine: script.EngineRuby}
}

// Execute is never reached through the executor.
func (e *Engine) Execute(sc *script.ScriptContext) script.ResultCode {
	return script.EngineNotImplemented
}
