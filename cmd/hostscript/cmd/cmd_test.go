package cmd

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/nfrund/hostscript/internal/app"
	"github.com/nfrund/hostscript/internal/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type harness struct {
	fs afero.Fs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{fs: afero.NewMemMapFs()}
}

func (h *harness) factory(cmd *cobra.Command) (*app.App, error) {
	return app.New(app.Options{
		Config: config.Static{SessionID: "s1", HostVersion: "2024.1.0", HooksFile: "/state/hooks.json"},
		Fs:     h.fs,
		Host:   cliHost(cmd.OutOrStdout()),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}), nil
}

func (h *harness) write(t *testing.T, path, src string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(h.fs, path, []byte(src), 0o644))
}

func (h *harness) run(args ...string) (string, error) {
	root := NewRootCmd(h.factory)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	h := newHarness(t)
	h.write(t, "/ext/hello.tengo", `log("hello " + __argv__[1])`)

	out, err := h.run("run", "/ext/hello.tengo", "--", "world")

	require.NoError(t, err)
	assert.Contains(t, out, "hello world\n")
}

func TestRunCommandReportsFailure(t *testing.T) {
	h := newHarness(t)
	h.write(t, "/ext/broken.tengo", `exit(3)`)

	_, err := h.run("run", "/ext/broken.tengo")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken finished with")
}

func TestRunCommandMissingScript(t *testing.T) {
	_, err := newHarness(t).run("run", "/ext/nothing.tengo")

	assert.Error(t, err)
}

func TestRunHyperlinkCommand(t *testing.T) {
	h := newHarness(t)
	h.write(t, "/ext/Docs.urlbutton/bundle.yaml", "url: https://example.com/docs\n")

	out, err := h.run("run", "--bundle", "urlbutton", "--help-url", "https://example.com/docs", "/ext/Docs.urlbutton/bundle.yaml")

	require.NoError(t, err)
	assert.Contains(t, out, "open: https://example.com/docs")
}

func TestResolveCommand(t *testing.T) {
	h := newHarness(t)
	h.write(t, "/ext/a.py", "#! python3\nprint(1)\n")
	h.write(t, "/ext/b.py", "print(1)\n")

	out, err := h.run("resolve", "/ext/a.py")
	require.NoError(t, err)
	assert.Contains(t, out, "cpython\t")

	out, err = h.run("resolve", "/ext/b.py")
	require.NoError(t, err)
	assert.Contains(t, out, "ironpython\tstarlark-go")

	_, err = h.run("resolve", "/ext/readme.txt")
	assert.Error(t, err)
}

func TestEnginesCommand(t *testing.T) {
	out, err := newHarness(t).run("engines", "--format", "json")

	require.NoError(t, err)
	doc := gjson.Parse(out)
	assert.Equal(t, int64(12), doc.Get("count").Int())
	assert.Equal(t, "Tengo", doc.Get(`engines.#(tag=="tengo").name`).String())
	assert.Equal(t, ".js", doc.Get(`engines.#(tag=="javascript").extension`).String())
}

func TestHooksCommands(t *testing.T) {
	h := newHarness(t)
	h.write(t, "/ext/hooks/opened.tengo", `log("opened " + __eventargs__)`)

	out, err := h.run("hooks", "add", "tools-opened", "doc-opened", "/ext/hooks/opened.tengo", "--extension", "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "registered tools-opened for doc-opened")

	out, err = h.run("hooks", "list", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, "tools-opened", gjson.Get(out, "hooks.0.id").String())

	out, err = h.run("hooks", "raise", "doc-opened", "--args", "model.rvt")
	require.NoError(t, err)
	assert.Contains(t, out, "opened model.rvt")
	assert.Contains(t, out, "tools-opened: Succeeded")

	require.NoError(t, func() error { _, err := h.run("hooks", "remove", "tools-opened"); return err }())
	_, err = h.run("hooks", "remove", "tools-opened")
	assert.Error(t, err)

	_, err = h.run("hooks", "add", "x", "doc-saved", "/ext/hooks/opened.tengo")
	require.NoError(t, err)
	_, err = h.run("hooks", "clear")
	require.NoError(t, err)
	out, err = h.run("hooks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No hooks registered")
}

func TestVersionCommand(t *testing.T) {
	out, err := newHarness(t).run("version")

	require.NoError(t, err)
	assert.Contains(t, out, "hostscript v"+version)
}
