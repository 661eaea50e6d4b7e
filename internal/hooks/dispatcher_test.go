package hooks

import (
	"context"
	"testing"

	"github.com/nfrund/hostscript/internal/config"
	"github.com/nfrund/hostscript/internal/engines/tengoscript"
	"github.com/nfrund/hostscript/internal/script"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	calls []script.Invocation
	code  script.ResultCode
}

func (r *recordingRunner) ExecuteWith(_ context.Context, inv script.Invocation) script.ResultCode {
	r.calls = append(r.calls, inv)
	return r.code
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(NewFileStorage(afero.NewMemMapFs(), tablePath))
}

func TestDispatcherRunsHooksForEvent(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	require.NoError(t, r.RegisterHook(ctx, "h2", "doc-opened", "/ext/hooks/second.py", []string{"/lib"}, "tools"))
	require.NoError(t, r.RegisterHook(ctx, "h1", "doc-opened", "/ext/hooks/first.py", nil, "tools"))
	require.NoError(t, r.RegisterHook(ctx, "h3", "doc-saved", "/ext/hooks/saved.py", nil, "tools"))

	runner := &recordingRunner{}
	d := NewDispatcher(r, runner, nil)

	outcomes := d.Raise(ctx, Event{Name: "doc-opened", Sender: "app", Args: "doc.rvt"})

	assert.Equal(t, []Outcome{{HookID: "h1"}, {HookID: "h2"}}, outcomes)
	require.Len(t, runner.calls, 2)
	first := runner.calls[0]
	assert.Equal(t, "first", first.Descriptor.Name)
	assert.Equal(t, "h1", first.Descriptor.UniqueID)
	assert.Equal(t, script.BundleNoButton, first.Descriptor.BundleType)
	assert.Equal(t, "app", first.Config.EventSender)
	assert.Equal(t, "doc.rvt", first.Config.EventArgs)
	assert.Equal(t, []string{"/lib"}, runner.calls[1].Config.SearchPaths)
}

func TestDispatcherIgnoresEventsWithoutHooks(t *testing.T) {
	runner := &recordingRunner{}
	d := NewDispatcher(newRegistry(t), runner, nil)

	assert.Nil(t, d.Raise(context.Background(), Event{Name: "doc-opened", Sender: 1, Args: 2}))
	assert.Empty(t, runner.calls)
}

func TestDispatcherFollowsRegistry(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	d := NewDispatcher(r, &recordingRunner{}, nil)

	require.NoError(t, r.RegisterHook(ctx, "h1", "doc-opened", "/a.py", nil, "tools"))
	assert.True(t, d.Subscribed("doc-opened"))

	require.NoError(t, r.RegisterHook(ctx, "h1", "doc-closed", "/a.py", nil, "tools"))
	assert.False(t, d.Subscribed("doc-opened"))
	assert.True(t, d.Subscribed("doc-closed"))

	d.Close()
	assert.False(t, d.Subscribed("doc-closed"))
}

func TestDispatcherReportsFailures(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	require.NoError(t, r.RegisterHook(ctx, "h1", "doc-opened", "/a.py", nil, "tools"))
	d := NewDispatcher(r, &recordingRunner{code: script.ExecutionException}, nil)

	outcomes := d.Raise(ctx, Event{Name: "doc-opened", Sender: "s", Args: "a"})

	require.Len(t, outcomes, 1)
	assert.Equal(t, script.ExecutionException, outcomes[0].Code)
}

func TestDispatcherRunsHookScripts(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ext/hooks/doc-opened.tengo",
		[]byte("__result__[\"sender\"] = __eventsender__\n__result__[\"args\"] = __eventargs__\n"), 0o644))

	registry := script.NewEngineRegistry()
	script.Register(registry, script.EngineTengo, tengoscript.Version, tengoscript.New)
	var last script.ExecutionSummary
	executor := script.NewExecutor(script.Dependencies{
		Registry: registry,
		Env:      config.Static{SessionID: "s1"},
		Fs:       fs,
		Reporter: script.ReporterFunc(func(s script.ExecutionSummary) { last = s }),
	})

	r := newRegistry(t)
	require.NoError(t, r.RegisterHook(ctx, "tools-doc-opened", "doc-opened", "/ext/hooks/doc-opened.tengo", nil, "tools"))
	d := NewDispatcher(r, executor, nil)

	outcomes := d.Raise(ctx, Event{Name: "doc-opened", Sender: "app", Args: "model.rvt"})

	require.Len(t, outcomes, 1)
	assert.Equal(t, script.Succeeded, outcomes[0].Code)
	assert.Equal(t, "app", last.Results["sender"])
	assert.Equal(t, "model.rvt", last.Results["args"])
	assert.Equal(t, "doc-opened", last.Descriptor.Name)
}
