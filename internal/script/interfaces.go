package script

// ScriptEngine is the lifecycle contract every language engine implements.
// Engines embed BaseEngine, which supplies identity, state and the defaults.
type ScriptEngine interface {
	// Init assigns identity. It must not touch the foreign runtime.
	Init(sc *ScriptContext) error

	// Start bootstraps the runtime when the engine is new and rebinds the
	// per-invocation state every time.
	Start(sc *ScriptContext) error

	// Execute runs the script body and converts every failure to a result code
	Execute(sc *ScriptContext) ResultCode

	// Stop clears the transient execution scope
	Stop(sc *ScriptContext)

	// Shutdown releases the runtime. Called once by the cache on eviction.
	Shutdown()

	// ID is the generated instance id
	ID() string

	// TypeKey is the engine type this instance serves
	TypeKey() EngineType

	// Version describes the embedded runtime
	Version() string

	// RecoveredFromCache reports whether the instance was reused for this invocation
	RecoveredFromCache() bool

	// RequiresFreshInstance reports whether the instance must stay out of the cache
	RequiresFreshInstance() bool

	base() *BaseEngine
}

// ExecutionSummary is the engine-independent description of a finished
// invocation. It holds no host references.
type ExecutionSummary struct {
	ExecID       string
	Timestamp    string
	Descriptor   ScriptDescriptor
	SourceFile   string
	Engine       EngineInfo
	SearchPaths  []string
	EngineConfig string
	Arguments    []string

	DebugMode      bool
	ConfigMode     bool
	ExecutedFromUI bool

	DocumentTitle string
	DocumentPath  string

	ResultCode ResultCode
	Results    map[string]string
	Trace      string
	DurationMS int64
}

// Reporter receives summaries of finished invocations. Implementations must
// not block the caller.
type Reporter interface {
	Report(summary ExecutionSummary)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(summary ExecutionSummary)

// Report implements Reporter.
func (f ReporterFunc) Report(summary ExecutionSummary) {
	f(summary)
}
