package script

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/hostscript/internal/config"
	"github.com/spf13/afero"
)

// ContextOptions holds everything needed to build a ScriptContext.
type ContextOptions struct {
	Descriptor ScriptDescriptor
	Config     *RuntimeConfig
	Host       HostHandles
	Env        config.Environment
	Fs         afero.Fs
	// Output receives the script's output. The context does not own it.
	Output io.Writer
	Now    time.Time
	// Context bounds calls engines make into the host or external tools.
	Context context.Context
}

// EngineInfo describes the engine instance that served an invocation.
type EngineInfo struct {
	Type      EngineType
	Version   string
	ID        string
	Recovered bool
}

// ScriptContext binds one invocation: what to run, how it was configured and
// the host objects it may see. It is created at invocation start and released
// at the end.
type ScriptContext struct {
	ExecID    string
	Timestamp time.Time

	ctx          context.Context
	desc         ScriptDescriptor
	cfg          *RuntimeConfig
	engineConfig EngineConfig
	env          config.Environment
	fs           afero.Fs
	engineType   EngineType

	mu         sync.Mutex
	host       HostHandles
	output     io.Writer
	signature  string
	results    map[string]string
	trace      string
	resultCode ResultCode
	engine     EngineInfo
	released   bool
}

// NewScriptContext builds a context and resolves its engine type.
func NewScriptContext(opts ContextOptions) (*ScriptContext, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}

	sc := &ScriptContext{
		ExecID:    uuid.NewString(),
		Timestamp: opts.Now,
		ctx:       opts.Context,
		desc:      opts.Descriptor,
		cfg:       opts.Config.Clone(),
		env:       opts.Env,
		fs:        opts.Fs,
		host:      opts.Host,
		output:    opts.Output,
		results:   make(map[string]string),
	}
	sc.engineConfig = ParseEngineConfig(sc.cfg.EngineConfigs)
	sc.engineType = ResolveEngineType(sc.fs, sc.ResolvedSourceFile(), sc.desc.BundleType)
	return sc, nil
}

// Context returns the context of the invocation.
func (sc *ScriptContext) Context() context.Context { return sc.ctx }

// Descriptor returns the command identity.
func (sc *ScriptContext) Descriptor() ScriptDescriptor { return sc.desc }

// Config returns the runtime configuration of this invocation.
func (sc *ScriptContext) Config() *RuntimeConfig { return sc.cfg }

// EngineConfig returns the decoded engine configuration.
func (sc *ScriptContext) EngineConfig() EngineConfig { return sc.engineConfig }

// Env returns the environment snapshot taken when the context was built.
func (sc *ScriptContext) Env() config.Environment { return sc.env }

// Fs returns the filesystem scripts are read from.
func (sc *ScriptContext) Fs() afero.Fs { return sc.fs }

// EngineType returns the resolved engine tag.
func (sc *ScriptContext) EngineType() EngineType { return sc.engineType }

// ResolvedSourceFile is the file that will run. Config mode prefers the config
// script when the command has one.
func (sc *ScriptContext) ResolvedSourceFile() string {
	if sc.cfg.ConfigMode && sc.desc.ConfigScriptPath != "" {
		return sc.desc.ConfigScriptPath
	}
	return sc.desc.ScriptPath
}

// ScriptDir is the directory holding the resolved source file.
func (sc *ScriptContext) ScriptDir() string {
	return filepath.Dir(sc.ResolvedSourceFile())
}

// SourceExists reports whether the resolved source file is present.
func (sc *ScriptContext) SourceExists() bool {
	ok, err := afero.Exists(sc.fs, sc.ResolvedSourceFile())
	return err == nil && ok
}

// ReadSource returns the content of the resolved source file.
func (sc *ScriptContext) ReadSource() ([]byte, error) {
	return afero.ReadFile(sc.fs, sc.ResolvedSourceFile())
}

// SourceSignature is a content hash of the resolved source file. It changes
// whenever the script is edited.
func (sc *ScriptContext) SourceSignature() (string, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.signature != "" {
		return sc.signature, nil
	}
	content, err := afero.ReadFile(sc.fs, sc.ResolvedSourceFile())
	if err != nil {
		return "", err
	}
	sc.signature = fmt.Sprintf("%x", sha256.Sum256(content))
	return sc.signature, nil
}

// RequiresFreshEngine reports whether the invocation asked for an engine that
// must not come from, or go into, the cache.
func (sc *ScriptContext) RequiresFreshEngine() bool {
	return sc.cfg.RefreshEngine || sc.engineConfig.Clean || sc.engineConfig.FullFrame
}

// Persistent reports whether the script keeps its globals between runs.
func (sc *ScriptContext) Persistent() bool {
	return sc.engineConfig.Persistent
}

// ScopeKey identifies the command whose persistent state an engine may keep
// between runs.
func (sc *ScriptContext) ScopeKey() string {
	return sc.desc.UniqueID + "|" + sc.ResolvedSourceFile()
}

// SearchPaths returns the module search paths of the invocation.
func (sc *ScriptContext) SearchPaths() []string {
	return slices.Clone(sc.cfg.SearchPaths)
}

// Argv returns the invocation arguments with the script path as argument zero.
func (sc *ScriptContext) Argv() []string {
	return append([]string{sc.ResolvedSourceFile()}, sc.cfg.Arguments...)
}

// Host returns the host handles. They are zero after Release.
func (sc *ScriptContext) Host() HostHandles {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.host
}

// DocumentTitle names the active document when the handle can identify itself.
func (sc *ScriptContext) DocumentTitle() (title, path string) {
	doc, ok := sc.Host().Document.(DocumentIdentity)
	if !ok {
		return "", ""
	}
	return doc.Title(), doc.PathName()
}

// Output returns the writer that receives script output.
func (sc *ScriptContext) Output() io.Writer {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.output == nil {
		return io.Discard
	}
	return sc.output
}

// SetResult records a value in the results mapping.
func (sc *ScriptContext) SetResult(key, value string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.results[key] = value
}

// Results returns a copy of the results mapping.
func (sc *ScriptContext) Results() map[string]string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return maps.Clone(sc.results)
}

// SetTrace records the display trace of a failed run.
func (sc *ScriptContext) SetTrace(trace string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.trace = trace
}

// Trace returns the display trace of a failed run.
func (sc *ScriptContext) Trace() string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.trace
}

// SetResultCode records the outcome of the invocation.
func (sc *ScriptContext) SetResultCode(code ResultCode) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.resultCode = code
}

// ResultCode returns the recorded outcome.
func (sc *ScriptContext) ResultCode() ResultCode {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.resultCode
}

// SetEngineInfo records which engine instance served the invocation.
func (sc *ScriptContext) SetEngineInfo(info EngineInfo) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.engine = info
}

// EngineInfo returns the engine instance that served the invocation.
func (sc *ScriptContext) EngineInfo() EngineInfo {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.engine
}

// Release drops every host reference held by the context.
func (sc *ScriptContext) Release() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.released {
		return
	}
	sc.host = HostHandles{}
	sc.cfg.EventSender = nil
	sc.cfg.EventArgs = nil
	sc.output = nil
	sc.released = true
}

// Released reports whether Release has run.
func (sc *ScriptContext) Released() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.released
}
