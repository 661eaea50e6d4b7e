package script

import (
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateReusesEngineForSameKey(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeScript(t, fs, "/ext/a.py", "print('a')\n")
	cache := NewEngineCache()
	desc := testDescriptor("/ext/a.py", "tools")

	first, err := GetOrCreate(cache, newTestContext(t, fs, desc, nil), newFakeEngine)
	require.NoError(t, err)
	assert.False(t, first.RecoveredFromCache())

	second, err := GetOrCreate(cache, newTestContext(t, fs, desc, nil), newFakeEngine)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.True(t, second.RecoveredFromCache())
	assert.Equal(t, first.ID(), second.ID(), "reuse keeps the instance id")
	assert.Equal(t, 1, cache.Size())
}

func TestGetOrCreateSeparatesExtensions(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeScript(t, fs, "/ext/a.py", "")
	cache := NewEngineCache()

	a, err := GetOrCreate(cache, newTestContext(t, fs, testDescriptor("/ext/a.py", "one"), nil), newFakeEngine)
	require.NoError(t, err)
	b, err := GetOrCreate(cache, newTestContext(t, fs, testDescriptor("/ext/a.py", "two"), nil), newFakeEngine)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, []string{
		testSession + ":ironpython:one",
		testSession + ":ironpython:two",
	}, cache.Keys())
}

func TestGetOrCreateFreshInstance(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeScript(t, fs, "/ext/a.py", "")
	cache := NewEngineCache()
	desc := testDescriptor("/ext/a.py", "tools")

	cached, err := GetOrCreate(cache, newTestContext(t, fs, desc, nil), newFakeEngine)
	require.NoError(t, err)

	tests := []struct {
		name string
		rc   *RuntimeConfig
	}{
		{"refresh flag", &RuntimeConfig{RefreshEngine: true}},
		{"clean engine", &RuntimeConfig{EngineConfigs: `{"clean": true}`}},
		{"full frame", &RuntimeConfig{EngineConfigs: `{"full_frame": true}`}},
	}

	seen := map[*fakeEngine]bool{cached: true}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fresh, err := GetOrCreate(cache, newTestContext(t, fs, desc, tt.rc), newFakeEngine)
			require.NoError(t, err)

			assert.False(t, seen[fresh], "fresh request returned a previous instance")
			seen[fresh] = true
			assert.True(t, fresh.RequiresFreshInstance())
			assert.False(t, fresh.RecoveredFromCache())
			assert.Equal(t, 0, cache.Size(), "fresh instances are not cached")
		})
	}

	assert.Equal(t, 1, cached.shutdownCount(), "evicted engine is shut down exactly once")
}

func TestGetOrCreateStaleTypeIsMiss(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeScript(t, fs, "/ext/a.py", "")
	cache := NewEngineCache()
	desc := testDescriptor("/ext/a.py", "tools")

	stale, err := GetOrCreate(cache, newTestContext(t, fs, desc, nil), func() *otherEngine { return &otherEngine{} })
	require.NoError(t, err)

	current, err := GetOrCreate(cache, newTestContext(t, fs, desc, nil), newFakeEngine)
	require.NoError(t, err)

	assert.False(t, current.RecoveredFromCache())
	assert.Equal(t, 1, stale.shutdowns)
	got, ok := cache.Get(CacheKey(newTestContext(t, fs, desc, nil)))
	require.True(t, ok)
	assert.Same(t, current, got)
}

func TestGetOrCreatePropagatesInitError(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeScript(t, fs, "/ext/a.py", "")
	cache := NewEngineCache()
	initErr := errors.New("boom")

	_, err := GetOrCreate(cache, newTestContext(t, fs, testDescriptor("/ext/a.py", "tools"), nil), func() *fakeEngine {
		e := newFakeEngine()
		e.initErr = initErr
		return e
	})

	assert.ErrorIs(t, err, initErr)
	assert.Equal(t, 0, cache.Size())
}

func TestClearAllShutsDownEveryEngine(t *testing.T) {
	fs := afero.NewMemMapFs()
	cache := NewEngineCache()

	var fakes []*fakeEngine
	var others []*otherEngine
	for i := 0; i < 5; i++ {
		path := fmt.Sprintf("/ext/s%d.py", i)
		writeScript(t, fs, path, "")
		sc := newTestContext(t, fs, testDescriptor(path, fmt.Sprintf("ext%d", i)), nil)
		if i%2 == 0 {
			e, err := GetOrCreate(cache, sc, newFakeEngine)
			require.NoError(t, err)
			fakes = append(fakes, e)
		} else {
			e, err := GetOrCreate(cache, sc, func() *otherEngine { return &otherEngine{} })
			require.NoError(t, err)
			others = append(others, e)
		}
	}
	require.Equal(t, 5, cache.Size())

	cleared := cache.ClearAll()

	assert.Equal(t, 5, cleared)
	assert.Equal(t, 0, cache.Size())
	total := 0
	for _, e := range fakes {
		total += e.shutdownCount()
	}
	for _, e := range others {
		total += e.shutdowns
	}
	assert.Equal(t, 5, total)

	assert.Equal(t, 0, cache.ClearAll(), "second clear finds nothing")
}

func TestClearAllKeepsExcludedEngine(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeScript(t, fs, "/ext/a.py", "")
	cache := NewEngineCache()

	keepCtx := newTestContext(t, fs, testDescriptor("/ext/a.py", "keep"), nil)
	kept, err := GetOrCreate(cache, keepCtx, newFakeEngine)
	require.NoError(t, err)
	dropped, err := GetOrCreate(cache, newTestContext(t, fs, testDescriptor("/ext/a.py", "drop"), nil), newFakeEngine)
	require.NoError(t, err)

	cleared := cache.ClearAll(CacheKey(keepCtx))

	assert.Equal(t, 1, cleared)
	assert.Equal(t, 0, kept.shutdownCount())
	assert.Equal(t, 1, dropped.shutdownCount())
	assert.Equal(t, []string{CacheKey(keepCtx)}, cache.Keys())
}

func TestShutdownEngineIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeScript(t, fs, "/ext/a.py", "")
	engine := newFakeEngine()

	assert.False(t, ShutdownEngine(engine), "uninitialized engines are skipped")

	require.NoError(t, engine.Init(newTestContext(t, fs, testDescriptor("/ext/a.py", "tools"), nil)))
	assert.True(t, ShutdownEngine(engine))
	assert.False(t, ShutdownEngine(engine))
	assert.Equal(t, 1, engine.shutdownCount())
	assert.Equal(t, StateShutdown, engine.State())
}
