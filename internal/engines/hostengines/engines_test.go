package hostengines

import (
	"context"
	"errors"
	"testing"

	"github.com/nfrund/hostscript/internal/config"
	"github.com/nfrund/hostscript/internal/host"
	"github.com/nfrund/hostscript/internal/script"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	graphs      []host.DynamoRequest
	definitions []string
	loaded      []string
	opened      []string
	err         error
}

func (r *recorder) RunGraph(_ context.Context, req host.DynamoRequest) error {
	r.graphs = append(r.graphs, req)
	return r.err
}

func (r *recorder) RunDefinition(_ context.Context, path string, _ any) error {
	r.definitions = append(r.definitions, path)
	return r.err
}

func (r *recorder) LoadContent(_ context.Context, _ any, path string) error {
	r.loaded = append(r.loaded, path)
	return r.err
}

func (r *recorder) OpenURL(_ context.Context, url string) error {
	r.opened = append(r.opened, url)
	return r.err
}

type fixture struct {
	fs       afero.Fs
	executor *script.Executor
	last     script.ExecutionSummary
}

func newFixture(t *testing.T, c host.Collaborators, hostVersion string) *fixture {
	t.Helper()
	f := &fixture{fs: afero.NewMemMapFs()}
	registry := script.NewEngineRegistry()
	script.Register(registry, script.EngineDynamoBIM, Version, func() *DynamoEngine { return NewDynamo(c) })
	script.Register(registry, script.EngineGrasshopper, Version, func() *GrasshopperEngine { return NewGrasshopper(c) })
	script.Register(registry, script.EngineContent, Version, func() *ContentEngine { return NewContent(c) })
	script.Register(registry, script.EngineHyperlink, Version, func() *HyperlinkEngine { return NewHyperlink(c) })
	f.executor = script.NewExecutor(script.Dependencies{
		Registry: registry,
		Env:      config.Static{SessionID: "s1", HostVersion: hostVersion},
		Fs:       f.fs,
		Reporter: script.ReporterFunc(func(s script.ExecutionSummary) { f.last = s }),
	})
	return f
}

func (f *fixture) run(t *testing.T, desc script.ScriptDescriptor, rc *script.RuntimeConfig, content string) script.ResultCode {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.fs, desc.ScriptPath, []byte(content), 0644))
	if rc == nil {
		rc = &script.RuntimeConfig{}
	}
	return f.executor.ExecuteWith(context.Background(), script.Invocation{
		Descriptor: desc,
		Config:     rc,
		Host:       script.HostHandles{UIApplication: "uiapp", Document: "doc"},
	})
}

func descriptor(path string, bundle script.BundleType) script.ScriptDescriptor {
	return script.ScriptDescriptor{
		ScriptPath:    path,
		UniqueID:      "tools-" + path,
		Name:          "Command",
		BundleType:    bundle,
		ExtensionName: "tools",
	}
}

func TestDynamoEngine(t *testing.T) {
	r := &recorder{}
	f := newFixture(t, host.Collaborators{Dynamo: r}, "2024.2")

	code := f.run(t, descriptor("/ext/Run.pushbutton/graph.dyn", script.BundlePushButton), nil, "{}")
	require.Equal(t, script.Succeeded, code)

	rc := &script.RuntimeConfig{EngineConfigs: `{"dynamo_path": "other.dyn", "dynamo_path_exec": false, "dynamo_force_manual_run": true}`}
	code = f.run(t, descriptor("/ext/Run.pushbutton/graph.dyn", script.BundlePushButton), rc, "{}")
	require.Equal(t, script.Succeeded, code)

	require.Len(t, r.graphs, 2)
	assert.Equal(t, "/ext/Run.pushbutton/graph.dyn", r.graphs[0].GraphPath)
	assert.Equal(t, "doc", r.graphs[0].Document)
	assert.Equal(t, "/ext/Run.pushbutton/other.dyn", r.graphs[1].GraphPath)
	assert.False(t, r.graphs[1].Automate)
	assert.True(t, r.graphs[1].ForceManualRun)
}

func TestHostEnginesNeedCollaborators(t *testing.T) {
	f := newFixture(t, host.Collaborators{}, "2024")

	assert.Equal(t, script.ExternalInterfaceNotImplemented,
		f.run(t, descriptor("/ext/a.dyn", script.BundlePushButton), nil, "{}"))
	assert.Equal(t, script.ExternalInterfaceNotImplemented,
		f.run(t, descriptor("/ext/a.gh", script.BundlePushButton), nil, ""))
	assert.Equal(t, script.ExternalInterfaceNotImplemented,
		f.run(t, descriptor("/ext/a.rfa", script.BundleContentButton), nil, ""))
}

func TestGraphRunnersAreVersionGated(t *testing.T) {
	r := &recorder{}
	f := newFixture(t, host.Collaborators{Dynamo: r, Grasshopper: r}, "2016.1")

	assert.Equal(t, script.NotSupportedFeature, f.run(t, descriptor("/ext/a.dyn", script.BundlePushButton), nil, "{}"))
	assert.Equal(t, script.NotSupportedFeature, f.run(t, descriptor("/ext/a.gh", script.BundlePushButton), nil, ""))
	assert.Empty(t, r.graphs)
	assert.Empty(t, r.definitions)
}

func TestContentEngine(t *testing.T) {
	r := &recorder{}
	f := newFixture(t, host.Collaborators{Content: r}, "2024")

	assert.Equal(t, script.Succeeded, f.run(t, descriptor("/ext/Door.content/Door.rfa", script.BundleContentButton), nil, "rfa"))
	assert.Equal(t, []string{"/ext/Door.content/Door.rfa"}, r.loaded)

	r.err = errors.New("family is corrupt")
	assert.Equal(t, script.FailedLoadingContent, f.run(t, descriptor("/ext/Door.content/Door.rfa", script.BundleContentButton), nil, "rfa"))
	assert.Contains(t, f.last.Trace, "family is corrupt")
}

func TestHyperlinkEngine(t *testing.T) {
	r := &recorder{}
	f := newFixture(t, host.Collaborators{Browser: r}, "2024")

	desc := descriptor("/ext/Docs.urlbutton/bundle.yaml", script.BundleURLButton)
	require.Equal(t, script.Succeeded, f.run(t, desc, nil, "title: Docs\n  https://example.com/docs\n"))

	desc.HelpURL = "https://example.com/help"
	require.Equal(t, script.Succeeded, f.run(t, desc, nil, "title: Docs\n"))

	desc.HelpURL = ""
	assert.Equal(t, script.ExecutionException, f.run(t, desc, nil, "title: Docs\n"))

	desc.HelpURL = "not a link"
	assert.Equal(t, script.ExecutionException, f.run(t, desc, nil, "title: Docs\n"))
	assert.Contains(t, f.last.Trace, "invalid link")
	assert.Equal(t, []string{"https://example.com/docs", "https://example.com/help"}, r.opened)
}

func TestFirstURL(t *testing.T) {
	assert.Equal(t, "HTTPS://Example.com", FirstURL([]byte("# links\nHTTPS://Example.com\nhttp://second")))
	assert.Empty(t, FirstURL([]byte("no links here")))
}
