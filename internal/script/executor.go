package script

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/nfrund/hostscript/internal/config"
	"github.com/spf13/afero"
)

// Dependencies holds all the services that the Executor requires to operate
type Dependencies struct {
	Cache    *EngineCache
	Registry *EngineRegistry
	Env      config.Provider
	Reporter Reporter
	Fs       afero.Fs
	Clock    clockwork.Clock
	Logger   *slog.Logger
	// WatchdogThreshold is how long a script may run before a warning is
	// logged. Zero disables the watchdog.
	WatchdogThreshold time.Duration
}

// Invocation is one request to run a command.
type Invocation struct {
	Descriptor ScriptDescriptor
	Config     *RuntimeConfig
	Host       HostHandles
	Output     io.Writer
}

// Executor resolves, obtains and drives the engine for each invocation.
// Scripts run synchronously on the calling goroutine.
type Executor struct {
	cache     *EngineCache
	registry  *EngineRegistry
	env       config.Provider
	reporter  Reporter
	fs        afero.Fs
	clock     clockwork.Clock
	watchdog  time.Duration
	validate  *validator.Validate
	logger    *ScriptLogger
	errorsLog *ErrorReporter
}

// NewExecutor creates a new executor with the given dependencies
func NewExecutor(deps Dependencies) *Executor {
	if deps.Cache == nil {
		deps.Cache = NewEngineCache()
	}
	if deps.Registry == nil {
		deps.Registry = NewEngineRegistry()
	}
	if deps.Env == nil {
		deps.Env = config.Static{}
	}
	if deps.Reporter == nil {
		deps.Reporter = ReporterFunc(func(ExecutionSummary) {})
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	logger := NewScriptLoggerWith(deps.Logger)

	return &Executor{
		cache:     deps.Cache,
		registry:  deps.Registry,
		env:       deps.Env,
		reporter:  deps.Reporter,
		fs:        deps.Fs,
		clock:     deps.Clock,
		watchdog:  deps.WatchdogThreshold,
		validate:  validator.New(),
		logger:    logger,
		errorsLog: NewErrorReporter(logger),
	}
}

// Cache returns the engine cache used by the executor.
func (x *Executor) Cache() *EngineCache { return x.cache }

// Registry returns the engine registry used by the executor.
func (x *Executor) Registry() *EngineRegistry { return x.registry }

// Errors returns the failure statistics collected so far.
func (x *Executor) Errors() ErrorSummary { return x.errorsLog.Summary() }

// Execute runs a command with no host handles and discarded output.
func (x *Executor) Execute(ctx context.Context, desc ScriptDescriptor, rc *RuntimeConfig) ResultCode {
	return x.ExecuteWith(ctx, Invocation{Descriptor: desc, Config: rc})
}

// ExecuteWith runs one invocation and returns its result code. It never
// panics.
func (x *Executor) ExecuteWith(ctx context.Context, inv Invocation) (code ResultCode) {
	defer func() {
		if r := recover(); r != nil {
			x.errorsLog.Report(inv.Descriptor, UnknownException, "script executor failure", fmt.Errorf("%v", r))
			code = UnknownException
		}
	}()

	start := x.clock.Now()
	if err := x.validate.Struct(inv.Descriptor); err != nil {
		x.errorsLog.Report(inv.Descriptor, BadCommandArguments, "invalid command descriptor", err)
		return BadCommandArguments
	}

	sc, err := NewScriptContext(ContextOptions{
		Descriptor: inv.Descriptor,
		Config:     inv.Config,
		Host:       inv.Host,
		Env:        x.env.Snapshot(),
		Fs:         x.fs,
		Output:     inv.Output,
		Now:        start,
		Context:    ctx,
	})
	if err != nil {
		x.errorsLog.Report(inv.Descriptor, BadCommandArguments, "invalid runtime configuration", err)
		return BadCommandArguments
	}
	defer sc.Release()

	if !sc.SourceExists() {
		x.errorsLog.Report(inv.Descriptor, MissingTargetScript, "target script not found",
			fmt.Errorf("%w: %s", ErrMissingScript, sc.ResolvedSourceFile()))
		return MissingTargetScript
	}

	code = x.dispatch(ctx, sc)
	sc.SetResultCode(code)
	if code.Failed() {
		x.errorsLog.Report(inv.Descriptor, code, sc.Trace(), nil)
	}

	summary := Summarize(sc, x.clock.Since(start))
	x.logger.LogPerformance(summary, x.clock.Since(start))
	x.hand(summary)
	return code
}

// dispatch obtains the engine and drives its lifecycle.
func (x *Executor) dispatch(ctx context.Context, sc *ScriptContext) (code ResultCode) {
	defer func() {
		if r := recover(); r != nil {
			sc.SetTrace(FormatTrace("Script Executor Failure:", fmt.Sprint(r), string(debug.Stack())))
			code = UnknownException
		}
	}()

	desc := sc.Descriptor()
	tag := sc.EngineType()
	sc.SetEngineInfo(EngineInfo{Type: tag})
	if tag == EngineUnknown {
		x.logger.LogSystemEvent(slog.LevelError, "Engine type resolution failed",
			slog.String("script", sc.ResolvedSourceFile()),
			slog.String("bundle_type", string(desc.BundleType)))
		sc.SetTrace(fmt.Sprintf("%v: %s", ErrUnknownEngine, sc.ResolvedSourceFile()))
		return UnknownException
	}

	launch, ok := x.registry.Lookup(tag)
	if !ok {
		sc.SetTrace((&EngineNotImplementedError{Engine: tag}).Error())
		return EngineNotImplemented
	}

	engine, err := launch(x.cache, sc)
	if err != nil {
		sc.SetTrace(err.Error())
		return CodeForError(err)
	}
	sc.SetEngineInfo(EngineInfo{
		Type:      tag,
		Version:   engine.Version(),
		ID:        engine.ID(),
		Recovered: engine.RecoveredFromCache(),
	})
	x.logger.LogEngineLifecycle(slog.LevelDebug, "Engine obtained", engine, slog.String("script", sc.ResolvedSourceFile()))

	defer func() {
		if engine.RequiresFreshInstance() {
			x.cache.Discard(CacheKey(sc), engine)
		}
	}()

	stopWatchdog := x.startWatchdog(ctx, sc)
	defer stopWatchdog()

	if err := engine.Start(sc); err != nil {
		code = CodeForError(err)
		sc.SetTrace(err.Error())
	} else {
		engine.base().setState(StateStarted)
		code = SafeExecute(engine, sc)
	}

	engine.Stop(sc)
	engine.base().setState(StateStopped)
	// Start may learn the runtime version.
	info := sc.EngineInfo()
	info.Version = engine.Version()
	sc.SetEngineInfo(info)
	return code
}

// startWatchdog logs a warning when the script outlives the threshold. Scripts
// cannot be interrupted, so this only reports.
func (x *Executor) startWatchdog(ctx context.Context, sc *ScriptContext) func() {
	if x.watchdog <= 0 {
		return func() {}
	}
	desc := sc.Descriptor()
	timer := x.clock.AfterFunc(x.watchdog, func() {
		x.logger.LogScriptExecution(slog.LevelWarn, "Script is still running", desc.ExtensionName, desc.Name,
			slog.String("exec_id", sc.ExecID),
			slog.Duration("threshold", x.watchdog))
	})
	return func() { timer.Stop() }
}

// hand passes the summary on. Reporter failures never reach the caller.
func (x *Executor) hand(summary ExecutionSummary) {
	defer func() {
		if r := recover(); r != nil {
			x.logger.LogSystemEvent(slog.LevelDebug, "Telemetry reporter failed", slog.Any("panic", r))
		}
	}()
	x.reporter.Report(summary)
}

// Summarize builds the host-free summary of an invocation.
func Summarize(sc *ScriptContext, elapsed time.Duration) ExecutionSummary {
	title, path := sc.DocumentTitle()
	cfg := sc.Config()
	return ExecutionSummary{
		ExecID:         sc.ExecID,
		Timestamp:      FormatTimestamp(sc.Timestamp),
		Descriptor:     sc.Descriptor(),
		SourceFile:     sc.ResolvedSourceFile(),
		Engine:         sc.EngineInfo(),
		SearchPaths:    sc.SearchPaths(),
		EngineConfig:   cfg.EngineConfigs,
		Arguments:      append([]string(nil), cfg.Arguments...),
		DebugMode:      cfg.DebugMode,
		ConfigMode:     cfg.ConfigMode,
		ExecutedFromUI: cfg.ExecutedFromUI,
		DocumentTitle:  title,
		DocumentPath:   path,
		ResultCode:     sc.ResultCode(),
		Results:        sc.Results(),
		Trace:          sc.Trace(),
		DurationMS:     elapsed.Milliseconds(),
	}
}
