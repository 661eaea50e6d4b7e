package starpy

import (
	"bytes"
	"context"
	"testing"

	"github.com/nfrund/hostscript/internal/config"
	"github.com/nfrund/hostscript/internal/script"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	fs       afero.Fs
	executor *script.Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	registry := script.NewEngineRegistry()
	script.Register(registry, script.EngineIronPython, Version, New)
	return &fixture{
		fs: fs,
		executor: script.NewExecutor(script.Dependencies{
			Registry: registry,
			Env:      config.Static{SessionID: "s1", HostVersion: "2024.1.0"},
			Fs:       fs,
		}),
	}
}

func (f *fixture) write(t *testing.T, path, src string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.fs, path, []byte(src), 0644))
}

func (f *fixture) run(path string, rc *script.RuntimeConfig, out *bytes.Buffer) script.ResultCode {
	if rc == nil {
		rc = &script.RuntimeConfig{}
	}
	return f.executor.ExecuteWith(context.Background(), script.Invocation{
		Descriptor: script.ScriptDescriptor{
			ScriptPath:    path,
			UniqueID:      "tools-" + path,
			Name:          "Command",
			BundleType:    script.BundlePushButton,
			ExtensionName: "tools",
		},
		Config: rc,
		Output: out,
	})
}

func (f *fixture) cached(t *testing.T) *Engine {
	t.Helper()
	keys := f.executor.Cache().Keys()
	require.Len(t, keys, 1)
	engine, ok := f.executor.Cache().Get(keys[0])
	require.True(t, ok)
	return engine.(*Engine)
}

func TestEngineBootstrapsOnce(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/ext/a.py", `print("cached" if __cachedengine__ else "new")`)

	var out bytes.Buffer
	assert.Equal(t, script.Succeeded, f.run("/ext/a.py", nil, &out))
	assert.Equal(t, script.Succeeded, f.run("/ext/a.py", nil, &out))

	assert.Equal(t, "new\ncached\n", out.String())
	assert.Equal(t, 1, f.cached(t).bootstraps)
}

func TestEngineScopeIsolation(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/ext/set.py", "shared = 42\n")
	f.write(t, "/ext/get.py", "print(shared)\n")

	var out bytes.Buffer
	require.Equal(t, script.Succeeded, f.run("/ext/set.py", nil, &out))
	assert.Equal(t, script.ExecutionException, f.run("/ext/get.py", nil, &out))

	persistent := &script.RuntimeConfig{EngineConfigs: `{"persistent": true}`}
	require.Equal(t, script.Succeeded, f.run("/ext/set.py", persistent, &out))
	assert.Equal(t, script.ExecutionException, f.run("/ext/get.py", persistent, &out),
		"a persistent scope belongs to the script that stored it")
	assert.Empty(t, out.String())
}

func TestEnginePersistentScopeSurvivesOtherScripts(t *testing.T) {
	f := newFixture(t)
	persistent := &script.RuntimeConfig{EngineConfigs: `{"persistent": true}`}
	f.write(t, "/ext/keep.py", "secret = 'kept'\n")
	f.write(t, "/ext/other.py", "print(secret)\n")

	var out bytes.Buffer
	require.Equal(t, script.Succeeded, f.run("/ext/keep.py", persistent, &out))
	assert.Equal(t, script.ExecutionException, f.run("/ext/other.py", nil, &out))

	f.write(t, "/ext/keep.py", "print(secret)\n")
	require.Equal(t, script.Succeeded, f.run("/ext/keep.py", persistent, &out))
	assert.Equal(t, "kept\n", out.String())

	f.write(t, "/ext/keep.py", "print('plain')\n")
	require.Equal(t, script.Succeeded, f.run("/ext/keep.py", nil, &out))
	f.write(t, "/ext/keep.py", "print(secret)\n")
	assert.Equal(t, script.ExecutionException, f.run("/ext/keep.py", persistent, &out),
		"a non-persistent run forgets the script's scope")
	assert.Equal(t, "kept\nplain\n", out.String())
}

func TestEngineBindsBuiltins(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/ext/b.py", `
print(__name__)
print(__commandname__)
print(__file__)
print(len(__argv__))
__result__["answer"] = "yes"
`)

	var out bytes.Buffer
	rc := &script.RuntimeConfig{Arguments: []string{"one"}}
	require.Equal(t, script.Succeeded, f.run("/ext/b.py", rc, &out))

	assert.Equal(t, "__main__\nCommand\n/ext/b.py\n2\n", out.String())
}

func TestEngineResultCodes(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/ext/exit.py", "exit(3)\n")
	f.write(t, "/ext/fail.py", "def boom():\n    return 1 // 0\nboom()\n")
	f.write(t, "/ext/syntax.py", "def (\n")

	var out bytes.Buffer
	assert.Equal(t, script.SysExited, f.run("/ext/exit.py", nil, &out))
	assert.Equal(t, script.ExecutionException, f.run("/ext/fail.py", nil, &out))
	assert.Equal(t, script.ExecutionException, f.run("/ext/syntax.py", nil, &out))
	assert.Equal(t, 3, f.executor.Errors().TotalErrors, "every non-zero code is recorded")
}

func TestEngineLoadsFromSearchPaths(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/lib/helpers.py", "def greet(name):\n    return \"hello \" + name\n")
	f.write(t, "/ext/main.py", `load("helpers", "greet")
print(greet("host"))
`)

	var out bytes.Buffer
	rc := &script.RuntimeConfig{SearchPaths: []string{"/lib"}}
	require.Equal(t, script.Succeeded, f.run("/ext/main.py", rc, &out))
	assert.Equal(t, "hello host\n", out.String())

	assert.Equal(t, script.ExecutionException, f.run("/ext/main.py", nil, &out),
		"search paths do not accumulate across invocations")
}

func TestEngineExposesDocumentAttributes(t *testing.T) {
	doc := &hostValue{obj: document{}}
	title, err := doc.Attr("title")
	require.NoError(t, err)
	assert.Equal(t, `"Model"`, title.String())
	assert.Equal(t, []string{"path_name", "title"}, doc.AttrNames())

	_, err = doc.Hash()
	assert.Error(t, err)
}

type document struct{}

func (document) Title() string    { return "Model" }
func (document) PathName() string { return "/models/model.rvt" }
