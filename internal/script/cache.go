package script

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// EngineCache keeps one warm engine per session, engine type and extension.
type EngineCache struct {
	// mu serializes read-modify-write sequences. Reads of the store alone do
	// not need it.
	mu      sync.Mutex
	engines *xsync.MapOf[string, ScriptEngine]
	logger  *ScriptLogger
}

// NewEngineCache creates an empty cache.
func NewEngineCache() *EngineCache {
	return &EngineCache{
		engines: xsync.NewMapOf[string, ScriptEngine](),
		logger:  NewScriptLogger(),
	}
}

// CacheKey builds the key an invocation's engine is stored under.
func CacheKey(sc *ScriptContext) string {
	return fmt.Sprintf("%s:%s:%s", sc.Env().SessionID, sc.EngineType(), sc.Descriptor().ExtensionName)
}

// GetOrCreate returns the engine of concrete type T serving sc. A fresh
// engine is requested when sc requires it; the old entry is then shut down and
// the new one is not cached. A cached entry of a different concrete type counts
// as a miss. Init errors are returned unchanged.
func GetOrCreate[T ScriptEngine](c *EngineCache, sc *ScriptContext, newT func() T) (T, error) {
	var zero T
	key := CacheKey(sc)

	c.mu.Lock()
	defer c.mu.Unlock()

	if sc.RequiresFreshEngine() {
		if old, ok := c.engines.LoadAndDelete(key); ok {
			c.logger.LogCacheEvent("Evicting cached engine for fresh instance", key, old.ID())
			ShutdownEngine(old)
		}
		engine := newT()
		if err := engine.Init(sc); err != nil {
			return zero, err
		}
		return engine, nil
	}

	if cached, ok := c.engines.Load(key); ok {
		if engine, ok := cached.(T); ok {
			if err := engine.Init(sc); err != nil {
				return zero, err
			}
			engine.base().markRecovered()
			return engine, nil
		}
		c.logger.LogCacheEvent("Replacing cached engine of stale type", key, cached.ID(),
			slog.String("cached_type", fmt.Sprintf("%T", cached)))
		c.engines.Delete(key)
		ShutdownEngine(cached)
	}

	engine := newT()
	if err := engine.Init(sc); err != nil {
		return zero, err
	}
	c.engines.Store(key, engine)
	c.logger.LogCacheEvent("Cached new engine", key, engine.ID())
	return engine, nil
}

// ClearAll shuts down and drops every cached engine whose key is not in
// exclude. Excluded engines stay cached. It returns the number of engines shut
// down.
func (c *EngineCache) ClearAll(exclude ...string) int {
	excluded := mapset.NewThreadUnsafeSet(exclude...)

	c.mu.Lock()
	defer c.mu.Unlock()

	cleared := 0
	c.engines.Range(func(key string, engine ScriptEngine) bool {
		if excluded.Contains(key) {
			return true
		}
		ShutdownEngine(engine)
		c.engines.Delete(key)
		cleared++
		return true
	})
	c.logger.LogSystemEvent(slog.LevelInfo, "Cleared engine cache",
		slog.Int("cleared", cleared),
		slog.Int("kept", c.engines.Size()))
	return cleared
}

// Evict shuts down and removes the engine under key, if any.
func (c *EngineCache) Evict(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	engine, ok := c.engines.LoadAndDelete(key)
	if !ok {
		return false
	}
	ShutdownEngine(engine)
	return true
}

// Discard shuts engine down and removes it from key if it is still the
// cached instance there.
func (c *EngineCache) Discard(key string, engine ScriptEngine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.engines.Load(key); ok && cached == engine {
		c.engines.Delete(key)
		c.logger.LogCacheEvent("Discarded engine", key, engine.ID())
	}
	ShutdownEngine(engine)
}

// Get returns the engine cached under key.
func (c *EngineCache) Get(key string) (ScriptEngine, bool) {
	return c.engines.Load(key)
}

// Size returns the number of cached engines.
func (c *EngineCache) Size() int {
	return c.engines.Size()
}

// Keys returns the cache keys in sorted order.
func (c *EngineCache) Keys() []string {
	keys := make([]string, 0, c.engines.Size())
	c.engines.Range(func(key string, _ ScriptEngine) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	return keys
}

// Shutdown clears every engine. It is called when the process tears down.
func (c *EngineCache) Shutdown() {
	c.ClearAll()
}
