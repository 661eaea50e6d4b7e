package script

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nfrund/hostscript/internal/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type executorFixture struct {
	fs        afero.Fs
	executor  *Executor
	registry  *EngineRegistry
	cache     *EngineCache
	mu        sync.Mutex
	summaries []ExecutionSummary
	built     []*fakeEngine
	configure func(*fakeEngine)
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	f := &executorFixture{
		fs:       afero.NewMemMapFs(),
		registry: NewEngineRegistry(),
		cache:    NewEngineCache(),
	}
	Register(f.registry, EngineIronPython, "fake-1.0", func() *fakeEngine {
		e := newFakeEngine()
		if f.configure != nil {
			f.configure(e)
		}
		f.built = append(f.built, e)
		return e
	})
	f.executor = NewExecutor(Dependencies{
		Cache:    f.cache,
		Registry: f.registry,
		Env:      config.Static(testEnv()),
		Fs:       f.fs,
		Reporter: ReporterFunc(func(s ExecutionSummary) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.summaries = append(f.summaries, s)
		}),
	})
	return f
}

func (f *executorFixture) reported() []ExecutionSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ExecutionSummary(nil), f.summaries...)
}

func TestExecuteRunsLifecycleAndReusesEngine(t *testing.T) {
	f := newExecutorFixture(t)
	writeScript(t, f.fs, "/ext/a.py", "print('hello')\n")
	desc := testDescriptor("/ext/a.py", "tools")

	code := f.executor.Execute(context.Background(), desc, &RuntimeConfig{})
	require.Equal(t, Succeeded, code)
	code = f.executor.Execute(context.Background(), desc, &RuntimeConfig{})
	require.Equal(t, Succeeded, code)

	require.Len(t, f.built, 1)
	engine := f.built[0]
	assert.Equal(t, 2, engine.starts)
	assert.Equal(t, 1, engine.bootstraps, "bootstrap runs once across both calls")
	assert.Equal(t, 2, engine.executes)
	assert.Equal(t, 2, engine.stops)
	assert.Equal(t, 0, engine.shutdownCount())

	summaries := f.reported()
	require.Len(t, summaries, 2)
	assert.False(t, summaries[0].Engine.Recovered)
	assert.True(t, summaries[1].Engine.Recovered)
	assert.Equal(t, "fake-1.0", summaries[1].Engine.Version)
	assert.Equal(t, EngineIronPython, summaries[1].Engine.Type)
}

func TestExecuteMissingScript(t *testing.T) {
	f := newExecutorFixture(t)

	code := f.executor.Execute(context.Background(), testDescriptor("/ext/gone.py", "tools"), &RuntimeConfig{})

	assert.Equal(t, MissingTargetScript, code)
	assert.Empty(t, f.built, "no engine is constructed")
	assert.Equal(t, 0, f.cache.Size())
	assert.Empty(t, f.reported())
}

func TestExecuteUnknownEngineNeverExecutes(t *testing.T) {
	f := newExecutorFixture(t)
	writeScript(t, f.fs, "/ext/notes.txt", "hello")

	code := f.executor.Execute(context.Background(), testDescriptor("/ext/notes.txt", "tools"), &RuntimeConfig{})

	assert.Equal(t, UnknownException, code)
	assert.Empty(t, f.built)
	summaries := f.reported()
	require.Len(t, summaries, 1)
	assert.Contains(t, summaries[0].Trace, ErrUnknownEngine.Error())
}

func TestExecuteUnregisteredEngine(t *testing.T) {
	f := newExecutorFixture(t)
	writeScript(t, f.fs, "/ext/a.rb", "puts 1")

	code := f.executor.Execute(context.Background(), testDescriptor("/ext/a.rb", "tools"), &RuntimeConfig{})

	assert.Equal(t, EngineNotImplemented, code)
}

func TestExecuteRejectsHalfEvent(t *testing.T) {
	f := newExecutorFixture(t)
	writeScript(t, f.fs, "/ext/a.py", "")

	code := f.executor.Execute(context.Background(), testDescriptor("/ext/a.py", "tools"), &RuntimeConfig{EventSender: "app"})
	assert.Equal(t, BadCommandArguments, code)

	code = f.executor.Execute(context.Background(), ScriptDescriptor{ScriptPath: "/ext/a.py"}, &RuntimeConfig{})
	assert.Equal(t, BadCommandArguments, code, "descriptor without identity")
	assert.Empty(t, f.built)
}

func TestExecuteIgnoresHelpURLOfOtherEngines(t *testing.T) {
	f := newExecutorFixture(t)
	writeScript(t, f.fs, "/ext/a.py", "")

	desc := testDescriptor("/ext/a.py", "tools")
	desc.HelpURL = "not a url"
	assert.Equal(t, Succeeded, f.executor.Execute(context.Background(), desc, &RuntimeConfig{}))
	assert.Len(t, f.built, 1)
}

func TestExecuteContainsPanics(t *testing.T) {
	f := newExecutorFixture(t)
	writeScript(t, f.fs, "/ext/a.py", "")
	f.configure = func(e *fakeEngine) { e.panicWith = "guest runtime exploded" }

	var code ResultCode
	require.NotPanics(t, func() {
		code = f.executor.Execute(context.Background(), testDescriptor("/ext/a.py", "tools"), &RuntimeConfig{})
	})

	assert.Equal(t, UnknownException, code)
	require.Len(t, f.built, 1)
	assert.Equal(t, 1, f.built[0].stops, "stop still runs after a failed execute")
	summaries := f.reported()
	require.Len(t, summaries, 1)
	assert.Contains(t, summaries[0].Trace, "guest runtime exploded")
}

func TestExecuteMapsStartErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ResultCode
	}{
		{"not supported", &NotSupportedFeatureError{Feature: "dynamo"}, NotSupportedFeature},
		{"external interface", &ExternalInterfaceError{Interface: "content loader"}, ExternalInterfaceNotImplemented},
		{"not implemented", &EngineNotImplementedError{Engine: EngineRuby}, EngineNotImplemented},
		{"content", &ContentLoadError{Path: "a.rfa", Cause: errors.New("locked")}, FailedLoadingContent},
		{"other", errors.New("bootstrap failed"), UnknownException},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExecutorFixture(t)
			writeScript(t, f.fs, "/ext/a.py", "")
			f.configure = func(e *fakeEngine) { e.startErr = tt.err }

			code := f.executor.Execute(context.Background(), testDescriptor("/ext/a.py", "tools"), &RuntimeConfig{})

			assert.Equal(t, tt.want, code)
			require.Len(t, f.built, 1)
			assert.Equal(t, 0, f.built[0].executes)
		})
	}
}

func TestExecuteShutsDownFreshEngine(t *testing.T) {
	f := newExecutorFixture(t)
	writeScript(t, f.fs, "/ext/a.py", "")
	desc := testDescriptor("/ext/a.py", "tools")

	require.Equal(t, Succeeded, f.executor.Execute(context.Background(), desc, &RuntimeConfig{}))
	require.Equal(t, Succeeded, f.executor.Execute(context.Background(), desc, &RuntimeConfig{RefreshEngine: true}))

	require.Len(t, f.built, 2)
	assert.Equal(t, 1, f.built[0].shutdownCount(), "cached engine evicted")
	assert.Equal(t, 1, f.built[1].shutdownCount(), "uncached engine shut down after stop")
	assert.Equal(t, 0, f.cache.Size())
}

func TestExecuteDiscardsEngineOnRequest(t *testing.T) {
	f := newExecutorFixture(t)
	f.configure = func(e *fakeEngine) {
		e.code = UnknownException
		e.onExecute = func(*ScriptContext) { e.RequestDiscard() }
	}
	writeScript(t, f.fs, "/ext/a.py", "")
	desc := testDescriptor("/ext/a.py", "tools")

	assert.Equal(t, UnknownException, f.executor.Execute(context.Background(), desc, &RuntimeConfig{}))

	require.Len(t, f.built, 1)
	assert.Equal(t, 1, f.built[0].shutdownCount())
	assert.Equal(t, 0, f.cache.Size(), "a broken engine is not reused")
}

type fakeDocument struct{}

func (fakeDocument) Title() string    { return "Model.rvt" }
func (fakeDocument) PathName() string { return "/projects/Model.rvt" }

func TestExecuteInjectsEventBuiltinsOnlyForEvents(t *testing.T) {
	f := newExecutorFixture(t)
	writeScript(t, f.fs, "/ext/a.py", "")
	desc := testDescriptor("/ext/a.py", "tools")

	code := f.executor.ExecuteWith(context.Background(), Invocation{
		Descriptor: desc,
		Config:     &RuntimeConfig{EventSender: "sender", EventArgs: "args"},
		Host:       HostHandles{Application: "app", Document: fakeDocument{}},
	})
	require.Equal(t, Succeeded, code)
	bound := f.built[0].lastBind
	assert.Equal(t, "sender", bound[BuiltinEventSender])
	assert.Equal(t, "args", bound[BuiltinEventArgs])
	assert.Equal(t, "app", bound[BuiltinHost])

	code = f.executor.Execute(context.Background(), desc, &RuntimeConfig{})
	require.Equal(t, Succeeded, code)
	bound = f.built[0].lastBind
	assert.NotContains(t, bound, BuiltinEventSender)
	assert.NotContains(t, bound, BuiltinEventArgs)

	summaries := f.reported()
	assert.Equal(t, "Model.rvt", summaries[0].DocumentTitle)
}

func TestExecuteReleasesContext(t *testing.T) {
	f := newExecutorFixture(t)
	writeScript(t, f.fs, "/ext/a.py", "")
	var seen *ScriptContext
	f.configure = func(e *fakeEngine) {
		e.onExecute = func(sc *ScriptContext) {
			seen = sc
			sc.SetResult("status", "ok")
		}
	}

	code := f.executor.ExecuteWith(context.Background(), Invocation{
		Descriptor: testDescriptor("/ext/a.py", "tools"),
		Config:     &RuntimeConfig{EventSender: "sender", EventArgs: "args"},
		Host:       HostHandles{Application: "app"},
	})

	require.Equal(t, Succeeded, code)
	require.NotNil(t, seen)
	assert.True(t, seen.Released())
	assert.Nil(t, seen.Host().Application)
	assert.Nil(t, seen.Config().EventSender)
	assert.Equal(t, map[string]string{"status": "ok"}, f.reported()[0].Results)
}

func TestExecuteIgnoresReporterFailure(t *testing.T) {
	f := newExecutorFixture(t)
	writeScript(t, f.fs, "/ext/a.py", "")
	f.executor.reporter = ReporterFunc(func(ExecutionSummary) { panic("collector down") })

	code := f.executor.Execute(context.Background(), testDescriptor("/ext/a.py", "tools"), &RuntimeConfig{})

	assert.Equal(t, Succeeded, code)
}

func TestExecuteReturnsEngineCode(t *testing.T) {
	f := newExecutorFixture(t)
	writeScript(t, f.fs, "/ext/a.py", "")
	f.configure = func(e *fakeEngine) { e.code = ExecutionException }

	code := f.executor.Execute(context.Background(), testDescriptor("/ext/a.py", "tools"), &RuntimeConfig{})

	assert.Equal(t, ExecutionException, code)
	summary := f.executor.Errors()
	assert.Equal(t, 1, summary.TotalErrors)
	assert.Equal(t, 1, summary.ErrorsByType[ErrorTypeExecution])
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchdogReportsLongRunningScript(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeScript(t, fs, "/ext/a.py", "")
	clock := clockwork.NewFakeClock()
	logs := &syncBuffer{}
	registry := NewEngineRegistry()
	Register(registry, EngineIronPython, "fake", func() *fakeEngine {
		e := newFakeEngine()
		e.onExecute = func(sc *ScriptContext) {
			clock.Advance(2 * time.Minute)
			assert.Eventually(t, func() bool {
				return bytes.Contains([]byte(logs.String()), []byte("Script is still running"))
			}, time.Second, 5*time.Millisecond)
		}
		return e
	})
	executor := NewExecutor(Dependencies{
		Registry:          registry,
		Env:               config.Static(testEnv()),
		Fs:                fs,
		Clock:             clock,
		Logger:            slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		WatchdogThreshold: time.Minute,
	})

	code := executor.Execute(context.Background(), testDescriptor("/ext/a.py", "tools"), &RuntimeConfig{})

	assert.Equal(t, Succeeded, code, "the watchdog never aborts a script")
}
