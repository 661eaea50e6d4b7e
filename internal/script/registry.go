package script

import (
	"fmt"
	"sort"
	"sync"
)

// Launcher obtains an engine for an invocation, from the cache or new.
type Launcher func(cache *EngineCache, sc *ScriptContext) (ScriptEngine, error)

type registration struct {
	launch  Launcher
	version string
}

// EngineRegistry maps engine tags to the constructors that serve them.
type EngineRegistry struct {
	mu      sync.RWMutex
	engines map[EngineType]registration
}

// NewEngineRegistry creates an empty registry.
func NewEngineRegistry() *EngineRegistry {
	return &EngineRegistry{
		engines: make(map[EngineType]registration),
	}
}

// Register binds tag to engines of concrete type T built by newT. Instances are
// obtained through the cache with GetOrCreate[T].
func Register[T ScriptEngine](r *EngineRegistry, tag EngineType, version string, newT func() T) {
	launch := func(cache *EngineCache, sc *ScriptContext) (ScriptEngine, error) {
		engine, err := GetOrCreate(cache, sc, newT)
		if err != nil {
			return nil, err
		}
		engine.base().setDefaultVersion(version)
		return engine, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[tag] = registration{launch: launch, version: version}
}

// Lookup returns the launcher for tag.
func (r *EngineRegistry) Lookup(tag EngineType) (Launcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.engines[tag]
	if !ok {
		return nil, false
	}
	return reg.launch, true
}

// MustLookup returns the launcher for tag or panics. Used when wiring tests.
func (r *EngineRegistry) MustLookup(tag EngineType) Launcher {
	launch, ok := r.Lookup(tag)
	if !ok {
		panic(fmt.Sprintf("engine not registered: %s", tag))
	}
	return launch
}

// Types returns the registered engine tags in sorted order.
func (r *EngineRegistry) Types() []EngineType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]EngineType, 0, len(r.engines))
	for tag := range r.engines {
		types = append(types, tag)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Version returns the version registered for tag.
func (r *EngineRegistry) Version(tag EngineType) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[tag].version
}
