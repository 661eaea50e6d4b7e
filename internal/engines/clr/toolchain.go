package clr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	"github.com/nfrund/hostscript/internal/script"
	"github.com/tidwall/gjson"
)

// Environment variables through which compiled scripts exchange data with
// the runtime.
const (
	EnvBuiltins = "HOSTSCRIPT_BUILTINS"
	EnvResults  = "HOSTSCRIPT_RESULTS"
)

// Language is a compiled script language.
type Language string

const (
	CSharp      Language = "csharp"
	VisualBasic Language = "vb"
)

// CompileRequest describes one compilation.
type CompileRequest struct {
	SourceFile string
	Source     []byte
	Language   Language
	References []string
	Debug      bool
}

// Unit is a compiled assembly ready to run. Dir is the build tree the
// toolchain created for it; prebuilt assemblies have none.
type Unit struct {
	Assembly string
	Dir      string
}

// RunRequest carries the per-invocation inputs of an assembly run.
type RunRequest struct {
	Argv     []string
	Builtins map[string]any
	Output   io.Writer
}

// RunResult is what an assembly run produced.
type RunResult struct {
	ExitCode int
	Stderr   string
	Results  map[string]string
}

// Toolchain compiles and runs assemblies.
type Toolchain interface {
	Compile(ctx context.Context, req CompileRequest) (Unit, error)
	Run(ctx context.Context, unit Unit, req RunRequest) (RunResult, error)
	// Release removes what Compile left behind for unit.
	Release(unit Unit) error
}

var diagnosticPattern = regexp.MustCompile(`error (CS|BC)\d+:.*`)

// ParseDiagnostics extracts compiler error lines from build output.
func ParseDiagnostics(output string) []string {
	seen := make(map[string]bool)
	var diagnostics []string
	for _, match := range diagnosticPattern.FindAllString(output, -1) {
		if !seen[match] {
			seen[match] = true
			diagnostics = append(diagnostics, match)
		}
	}
	return diagnostics
}

// DotnetToolchain drives the dotnet SDK.
type DotnetToolchain struct {
	Dotnet  string
	WorkDir string
}

// NewDotnetToolchain uses dotnet from PATH and the system temp directory.
func NewDotnetToolchain() *DotnetToolchain {
	return &DotnetToolchain{Dotnet: "dotnet", WorkDir: os.TempDir()}
}

const projectTemplate = `<Project Sdk="Microsoft.NET.Sdk">
  <PropertyGroup>
    <OutputType>Exe</OutputType>
    <TargetFramework>net8.0</TargetFramework>
    <AssemblyName>HostScript</AssemblyName>
    <Nullable>disable</Nullable>
  </PropertyGroup>
  <ItemGroup>
%s  </ItemGroup>
</Project>
`

// Compile writes a project next to a copy of the source and builds it.
func (d *DotnetToolchain) Compile(ctx context.Context, req CompileRequest) (Unit, error) {
	dir, err := os.MkdirTemp(d.WorkDir, "hostscript-clr-")
	if err != nil {
		return Unit{}, err
	}

	sourceName, projectName := "Script.cs", "HostScript.csproj"
	if req.Language == VisualBasic {
		sourceName, projectName = "Script.vb", "HostScript.vbproj"
	}
	if err := os.WriteFile(filepath.Join(dir, sourceName), req.Source, 0o644); err != nil {
		return Unit{}, err
	}

	var refs bytes.Buffer
	for _, ref := range req.References {
		fmt.Fprintf(&refs, "    <Reference Include=%q><HintPath>%s</HintPath></Reference>\n",
			filepath.Base(ref), ref)
	}
	project := fmt.Sprintf(projectTemplate, refs.String())
	if err := os.WriteFile(filepath.Join(dir, projectName), []byte(project), 0o644); err != nil {
		return Unit{}, err
	}

	configuration := "Release"
	if req.Debug {
		configuration = "Debug"
	}
	out := filepath.Join(dir, "out")
	cmd := exec.CommandContext(ctx, d.Dotnet, "build", projectName, "-c", configuration, "-o", out, "--nologo")
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.RemoveAll(dir)
		return Unit{}, &script.CompileError{Diagnostics: ParseDiagnostics(string(output)), Cause: err}
	}
	return Unit{Assembly: filepath.Join(out, "HostScript.dll"), Dir: dir}, nil
}

// Release deletes the build tree of unit.
func (d *DotnetToolchain) Release(unit Unit) error {
	if unit.Dir == "" {
		return nil
	}
	return os.RemoveAll(unit.Dir)
}

// Run executes the assembly. Builtins go in through EnvBuiltins and results
// come back through the file named by EnvResults.
func (d *DotnetToolchain) Run(ctx context.Context, unit Unit, req RunRequest) (RunResult, error) {
	builtins, err := json.Marshal(req.Builtins)
	if err != nil {
		return RunResult{}, err
	}
	resultsFile, err := os.CreateTemp(d.WorkDir, "hostscript-results-*.json")
	if err != nil {
		return RunResult{}, err
	}
	resultsPath := resultsFile.Name()
	_ = resultsFile.Close()
	defer os.Remove(resultsPath)

	var stderr bytes.Buffer
	args := append([]string{unit.Assembly}, req.Argv...)
	cmd := exec.CommandContext(ctx, d.Dotnet, args...)
	cmd.Env = append(os.Environ(), EnvBuiltins+"="+string(builtins), EnvResults+"="+resultsPath)
	cmd.Stdout = req.Output
	cmd.Stderr = &stderr

	result := RunResult{}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return RunResult{}, err
		}
		result.ExitCode = exitErr.ExitCode()
	}
	result.Stderr = stderr.String()

	data, err := os.ReadFile(resultsPath)
	if err == nil {
		result.Results = ReadResults(data)
	}
	return result, nil
}

// ReadResults decodes a flat JSON object written by a script.
func ReadResults(data []byte) map[string]string {
	results := make(map[string]string)
	if !gjson.ValidBytes(data) {
		return results
	}
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		results[key.String()] = value.String()
		return true
	})
	return results
}
