// Package hostengines serves bundle types whose work is done by host
// application features rather than a script interpreter.
package hostengines

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nfrund/hostscript/internal/host"
	"github.com/nfrund/hostscript/internal/script"
)

// Host version ranges in which the graph runners exist.
var (
	DynamoGate      = host.MustVersionGate("Dynamo", ">= 2017")
	GrasshopperGate = host.MustVersionGate("Grasshopper", ">= 2021")
)

// Version is reported for every host backed engine.
const Version = "host"

func checkGate(gate *host.VersionGate, sc *script.ScriptContext) error {
	hostVersion := sc.Env().HostVersion
	if !gate.Allows(hostVersion) {
		return &script.NotSupportedFeatureError{Feature: gate.Feature, HostVersion: hostVersion}
	}
	return nil
}

func failed(sc *script.ScriptContext, header string, err error) script.ResultCode {
	sc.SetTrace(script.FormatTrace(header, err.Error(), ""))
	return script.ExecutionException
}

// DynamoEngine runs visual-scripting graphs.
type DynamoEngine struct {
	script.BaseEngine
	runner host.DynamoRunner
}

// NewDynamo returns an engine backed by c.Dynamo.
func NewDynamo(c host.Collaborators) *DynamoEngine {
	return &DynamoEngine{runner: c.Dynamo}
}

// Start checks the runner and host version.
func (e *DynamoEngine) Start(sc *script.ScriptContext) error {
	if e.runner == nil {
		return &script.ExternalInterfaceError{Interface: "Dynamo"}
	}
	return checkGate(DynamoGate, sc)
}

// Execute runs the bundled graph, or the one named by dynamo_path.
func (e *DynamoEngine) Execute(sc *script.ScriptContext) script.ResultCode {
	cfg := sc.EngineConfig()
	handles := sc.Host()
	req := host.DynamoRequest{
		GraphPath:      sc.ResolvedSourceFile(),
		Automate:       cfg.Automate,
		ForceManualRun: cfg.DynamoForceManualRun,
		CheckExisting:  cfg.DynamoPathCheckExisting,
		ModelNodesInfo: cfg.DynamoModelNodesInfo,
		Application:    handles.UIApplication,
		Document:       handles.Document,
	}
	if cfg.DynamoPath != "" {
		req.GraphPath = cfg.DynamoPath
		if !filepath.IsAbs(req.GraphPath) {
			req.GraphPath = filepath.Join(sc.ScriptDir(), req.GraphPath)
		}
		req.Automate = cfg.DynamoPathExec
	}
	if err := e.runner.RunGraph(sc.Context(), req); err != nil {
		return failed(sc, "Dynamo Failure:", err)
	}
	sc.SetResult("graph", req.GraphPath)
	return script.Succeeded
}

// GrasshopperEngine opens parametric definitions.
type GrasshopperEngine struct {
	script.BaseEngine
	runner host.GrasshopperRunner
}

// NewGrasshopper returns an engine backed by c.Grasshopper.
func NewGrasshopper(c host.Collaborators) *GrasshopperEngine {
	return &GrasshopperEngine{runner: c.Grasshopper}
}

// Start checks the runner and host version.
func (e *GrasshopperEngine) Start(sc *script.ScriptContext) error {
	if e.runner == nil {
		return &script.ExternalInterfaceError{Interface: "Grasshopper"}
	}
	return checkGate(GrasshopperGate, sc)
}

// Execute implements script.ScriptEngine.
func (e *GrasshopperEngine) Execute(sc *script.ScriptContext) script.ResultCode {
	if err := e.runner.RunDefinition(sc.Context(), sc.ResolvedSourceFile(), sc.Host().UIApplication); err != nil {
		return failed(sc, "Grasshopper Failure:", err)
	}
	return script.Succeeded
}

// ContentEngine loads content files into the active document.
type ContentEngine struct {
	script.BaseEngine
	loader host.ContentLoader
}

// NewContent returns an engine backed by c.Content.
func NewContent(c host.Collaborators) *ContentEngine {
	return &ContentEngine{loader: c.Content}
}

// Start implements script.ScriptEngine.
func (e *ContentEngine) Start(sc *script.ScriptContext) error {
	if e.loader == nil {
		return &script.ExternalInterfaceError{Interface: "content loader"}
	}
	return nil
}

// Execute implements script.ScriptEngine.
func (e *ContentEngine) Execute(sc *script.ScriptContext) script.ResultCode {
	path := sc.ResolvedSourceFile()
	doc := sc.Host().Document
	var err error
	if doc == nil {
		err = &script.ContentLoadError{Path: path, Cause: errors.New("no active document")}
	} else if loadErr := e.loader.LoadContent(sc.Context(), doc, path); loadErr != nil {
		err = &script.ContentLoadError{Path: path, Cause: loadErr}
	}
	if err != nil {
		sc.SetTrace(script.FormatTrace("Content Failure:", err.Error(), ""))
		return script.FailedLoadingContent
	}
	return script.Succeeded
}

// HyperlinkEngine opens the bundle's link in a browser.
type HyperlinkEngine struct {
	script.BaseEngine
	browser  host.URLOpener
	validate *validator.Validate
}

// NewHyperlink returns an engine backed by c.Browser.
func NewHyperlink(c host.Collaborators) *HyperlinkEngine {
	return &HyperlinkEngine{browser: c.Browser, validate: validator.New()}
}

// Start implements script.ScriptEngine.
func (e *HyperlinkEngine) Start(sc *script.ScriptContext) error {
	if e.browser == nil {
		return &script.ExternalInterfaceError{Interface: "browser"}
	}
	return nil
}

// Execute opens the descriptor's help URL, or the first URL line of the file.
func (e *HyperlinkEngine) Execute(sc *script.ScriptContext) script.ResultCode {
	url := sc.Descriptor().HelpURL
	if url == "" {
		src, err := sc.ReadSource()
		if err != nil {
			return failed(sc, "Hyperlink Failure:", err)
		}
		url = FirstURL(src)
	}
	if url == "" {
		return failed(sc, "Hyperlink Failure:", fmt.Errorf("no link found in %s", sc.ResolvedSourceFile()))
	}
	if err := e.validate.Var(url, "url"); err != nil {
		return failed(sc, "Hyperlink Failure:", fmt.Errorf("invalid link %q", url))
	}
	if err := e.browser.OpenURL(sc.Context(), url); err != nil {
		return failed(sc, "Hyperlink Failure:", err)
	}
	sc.SetResult("url", url)
	return script.Succeeded
}

// FirstURL returns the first line of src that is an http(s) link.
func FirstURL(src []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(src))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			return line
		}
	}
	return ""
}
