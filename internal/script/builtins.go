package script

import (
	"path/filepath"
	"time"
)

// Builtin names injected into every guest runtime. Scripts depend on these
// names, so they never change.
const (
	BuiltinExecID            = "__execid__"
	BuiltinTimestamp         = "__timestamp__"
	BuiltinCachedEngine      = "__cachedengine__"
	BuiltinCachedEngineID    = "__cachedengineid__"
	BuiltinHost              = "__host__"
	BuiltinUIHost            = "__uihost__"
	BuiltinDocument          = "__document__"
	BuiltinCommandPath       = "__commandpath__"
	BuiltinConfigCommandPath = "__configcommandpath__"
	BuiltinCommandName       = "__commandname__"
	BuiltinCommandBundle     = "__commandbundle__"
	BuiltinCommandExtension  = "__commandextension__"
	BuiltinCommandUniqueID   = "__commanduniqueid__"
	BuiltinCommandControlID  = "__commandcontrolid__"
	BuiltinForcedDebugMode   = "__forceddebugmode__"
	BuiltinShiftClick        = "__shiftclick__"
	BuiltinArgv              = "__argv__"
	BuiltinResult            = "__result__"
	BuiltinEventSender       = "__eventsender__"
	BuiltinEventArgs         = "__eventargs__"
	BuiltinFile              = "__file__"
	BuiltinName              = "__name__"
)

// TimestampLayout formats invocation timestamps for scripts and telemetry.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var builtinNames = []string{
	BuiltinExecID,
	BuiltinTimestamp,
	BuiltinCachedEngine,
	BuiltinCachedEngineID,
	BuiltinHost,
	BuiltinUIHost,
	BuiltinDocument,
	BuiltinCommandPath,
	BuiltinConfigCommandPath,
	BuiltinCommandName,
	BuiltinCommandBundle,
	BuiltinCommandExtension,
	BuiltinCommandUniqueID,
	BuiltinCommandControlID,
	BuiltinForcedDebugMode,
	BuiltinShiftClick,
	BuiltinArgv,
	BuiltinResult,
	BuiltinEventSender,
	BuiltinEventArgs,
	BuiltinFile,
	BuiltinName,
}

// Builtin is one name/value binding placed in a guest's global namespace.
type Builtin struct {
	Name  string
	Value any
}

// BuiltinNames lists every documented builtin name, including the event pair.
func BuiltinNames() []string {
	names := make([]string, len(builtinNames))
	copy(names, builtinNames)
	return names
}

// Builtins computes the bindings for an invocation served by engine. The
// __result__ value is a snapshot of the results mapping; engines bind a mutable
// guest mapping under that name and copy its entries back with SetResult.
func Builtins(sc *ScriptContext, engine ScriptEngine) []Builtin {
	desc := sc.Descriptor()
	cfg := sc.Config()
	host := sc.Host()

	configPath := ""
	if desc.ConfigScriptPath != "" {
		configPath = filepath.Dir(desc.ConfigScriptPath)
	}

	builtins := []Builtin{
		{BuiltinExecID, sc.ExecID},
		{BuiltinTimestamp, FormatTimestamp(sc.Timestamp)},
		{BuiltinCachedEngine, engine.RecoveredFromCache()},
		{BuiltinCachedEngineID, engine.ID()},
		{BuiltinHost, host.Application},
		{BuiltinUIHost, host.UIApplication},
		{BuiltinDocument, host.Document},
		{BuiltinCommandPath, filepath.Dir(desc.ScriptPath)},
		{BuiltinConfigCommandPath, configPath},
		{BuiltinCommandName, desc.Name},
		{BuiltinCommandBundle, desc.BundleName},
		{BuiltinCommandExtension, desc.ExtensionName},
		{BuiltinCommandUniqueID, desc.UniqueID},
		{BuiltinCommandControlID, desc.ControlID},
		{BuiltinForcedDebugMode, cfg.DebugMode},
		{BuiltinShiftClick, cfg.ConfigMode},
		{BuiltinArgv, sc.Argv()},
		{BuiltinResult, sc.Results()},
	}
	if cfg.HasEvent() {
		builtins = append(builtins,
			Builtin{BuiltinEventSender, cfg.EventSender},
			Builtin{BuiltinEventArgs, cfg.EventArgs},
		)
	}
	builtins = append(builtins,
		Builtin{BuiltinFile, sc.ResolvedSourceFile()},
		Builtin{BuiltinName, "__main__"},
	)
	return builtins
}

// BuiltinMap returns the bindings keyed by name.
func BuiltinMap(sc *ScriptContext, engine ScriptEngine) map[string]any {
	builtins := Builtins(sc, engine)
	m := make(map[string]any, len(builtins))
	for _, b := range builtins {
		m[b.Name] = b.Value
	}
	return m
}

// FormatTimestamp formats t the way builtins and telemetry expect.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
