package script

import (
	"context"
	"log/slog"
	"time"
)

// ScriptLogger provides centralized logging for the script runtime
type ScriptLogger struct {
	logger     *slog.Logger
	baseFields []slog.Attr
}

// NewScriptLogger creates a new script logger writing to the default slog logger
func NewScriptLogger() *ScriptLogger {
	return NewScriptLoggerWith(nil)
}

// NewScriptLoggerWith creates a script logger on top of logger. A nil logger
// means the slog default at the time of each call.
func NewScriptLoggerWith(logger *slog.Logger) *ScriptLogger {
	return &ScriptLogger{
		logger: logger,
		baseFields: []slog.Attr{
			slog.String("component", "script_engine"),
		},
	}
}

func (sl *ScriptLogger) log(level slog.Level, message string, fields []slog.Attr) {
	logger := sl.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(context.TODO(), level, message, fields...)
}

func (sl *ScriptLogger) fields(eventType string, extra int) []slog.Attr {
	fields := make([]slog.Attr, 0, len(sl.baseFields)+1+extra)
	fields = append(fields, sl.baseFields...)
	return append(fields, slog.String("event_type", eventType))
}

// LogScriptExecution logs script execution events with consistent structure
func (sl *ScriptLogger) LogScriptExecution(level slog.Level, message string, extensionName, commandName string, additionalFields ...slog.Attr) {
	fields := sl.fields("script_execution", 2+len(additionalFields))
	fields = append(fields,
		slog.String("extension", extensionName),
		slog.String("command", commandName),
	)
	fields = append(fields, additionalFields...)

	sl.log(level, message, fields)
}

// LogScriptError logs script errors with comprehensive context
func (sl *ScriptLogger) LogScriptError(err *ScriptError, additionalContext map[string]interface{}) {
	fields := sl.fields("script_error", 6+len(additionalContext))
	fields = append(fields,
		slog.String("extension", err.ExtensionName),
		slog.String("command", err.CommandName),
		slog.String("error_type", string(err.Type)),
		slog.String("error_message", err.Message),
		slog.Time("error_timestamp", err.Timestamp),
	)

	if err.Cause != nil {
		fields = append(fields, slog.String("cause", err.Cause.Error()))
	}

	for key, value := range additionalContext {
		fields = append(fields, slog.Any(key, value))
	}

	sl.log(slog.LevelError, "Script execution error", fields)
}

// LogEngineLifecycle logs engine lifecycle transitions
func (sl *ScriptLogger) LogEngineLifecycle(level slog.Level, message string, engine ScriptEngine, additionalFields ...slog.Attr) {
	fields := sl.fields("engine_lifecycle", 3+len(additionalFields))
	fields = append(fields,
		slog.String("engine_id", engine.ID()),
		slog.String("engine_type", string(engine.TypeKey())),
		slog.Bool("recovered", engine.RecoveredFromCache()),
	)
	fields = append(fields, additionalFields...)

	sl.log(level, message, fields)
}

// LogCacheEvent logs engine cache bookkeeping at debug level
func (sl *ScriptLogger) LogCacheEvent(message, key, engineID string, additionalFields ...slog.Attr) {
	fields := sl.fields("engine_cache", 2+len(additionalFields))
	fields = append(fields,
		slog.String("cache_key", key),
		slog.String("engine_id", engineID),
	)
	fields = append(fields, additionalFields...)

	sl.log(slog.LevelDebug, message, fields)
}

// LogSystemEvent logs runtime-level events
func (sl *ScriptLogger) LogSystemEvent(level slog.Level, message string, additionalFields ...slog.Attr) {
	fields := sl.fields("script_system", len(additionalFields))
	fields = append(fields, additionalFields...)

	sl.log(level, message, fields)
}

// LogPerformance logs the outcome and duration of one invocation
func (sl *ScriptLogger) LogPerformance(summary ExecutionSummary, elapsed time.Duration) {
	fields := sl.fields("script_performance", 6)
	fields = append(fields,
		slog.String("extension", summary.Descriptor.ExtensionName),
		slog.String("command", summary.Descriptor.Name),
		slog.String("engine_type", string(summary.Engine.Type)),
		slog.Duration("execution_time", elapsed),
		slog.Int("result_code", int(summary.ResultCode)),
		slog.Bool("recovered", summary.Engine.Recovered),
	)

	level := slog.LevelDebug
	if summary.ResultCode.Failed() {
		level = slog.LevelWarn
	}

	sl.log(level, "Script execution metrics", fields)
}
