package script

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrorSeverity categorizes the impact of errors
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "critical" // runtime bugs
	SeverityHigh     ErrorSeverity = "high"     // the command cannot run at all
	SeverityMedium   ErrorSeverity = "medium"   // the script itself failed
	SeverityLow      ErrorSeverity = "low"      // user-side issues
)

// ErrorReport describes one reported failure
type ErrorReport struct {
	Error           *ScriptError
	Code            ResultCode
	Severity        ErrorSeverity
	Occurrences     int
	FirstOccurrence bool
}

// ErrorSummary provides aggregated error information
type ErrorSummary struct {
	TotalErrors       int
	ErrorsByType      map[ErrorType]int
	ErrorsByExtension map[string]int
	LastErrorTime     time.Time
}

// ErrorReporter counts and logs failed invocations per command and error type
type ErrorReporter struct {
	mu         sync.Mutex
	counts     map[string]int
	lastErrors map[string]*ScriptError
	logger     *ScriptLogger
}

// NewErrorReporter creates a new error reporter
func NewErrorReporter(logger *ScriptLogger) *ErrorReporter {
	if logger == nil {
		logger = NewScriptLogger()
	}
	return &ErrorReporter{
		counts:     make(map[string]int),
		lastErrors: make(map[string]*ScriptError),
		logger:     logger,
	}
}

// ErrorTypeFor classifies a result code
func ErrorTypeFor(code ResultCode) ErrorType {
	switch code {
	case CompileException:
		return ErrorTypeCompilation
	case ExecutionException, SysExited:
		return ErrorTypeExecution
	case NotSupportedFeature:
		return ErrorTypeUnsupported
	case ExternalInterfaceNotImplemented, EngineNotImplemented:
		return ErrorTypeInterface
	case FailedLoadingContent:
		return ErrorTypeContent
	case BadCommandArguments:
		return ErrorTypeArguments
	case MissingTargetScript:
		return ErrorTypeNotFound
	default:
		return ErrorTypeInternal
	}
}

// Report records a failed invocation and logs it at a level matching its severity
func (er *ErrorReporter) Report(desc ScriptDescriptor, code ResultCode, message string, cause error) *ErrorReport {
	scriptErr := NewScriptError(ErrorTypeFor(code), desc.ExtensionName, desc.Name, message, cause)
	key := fmt.Sprintf("%s/%s/%s", desc.ExtensionName, desc.UniqueID, scriptErr.Type)

	er.mu.Lock()
	er.counts[key]++
	er.lastErrors[key] = scriptErr
	occurrences := er.counts[key]
	er.mu.Unlock()

	report := &ErrorReport{
		Error:           scriptErr,
		Code:            code,
		Severity:        determineSeverity(code),
		Occurrences:     occurrences,
		FirstOccurrence: occurrences == 1,
	}
	er.logError(report)
	return report
}

func determineSeverity(code ResultCode) ErrorSeverity {
	switch code {
	case UnknownException:
		return SeverityCritical
	case EngineNotImplemented, ExternalInterfaceNotImplemented, NotSupportedFeature, FailedLoadingContent:
		return SeverityHigh
	case CompileException, ExecutionException:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func (er *ErrorReporter) logError(report *ErrorReport) {
	context := map[string]interface{}{
		"result_code":      int(report.Code),
		"severity":         string(report.Severity),
		"occurrences":      report.Occurrences,
		"first_occurrence": report.FirstOccurrence,
	}

	switch report.Severity {
	case SeverityCritical, SeverityHigh:
		er.logger.LogScriptError(report.Error, context)
	case SeverityMedium:
		er.logger.LogScriptExecution(slog.LevelWarn, "Script failed", report.Error.ExtensionName, report.Error.CommandName,
			slog.String("error_type", string(report.Error.Type)),
			slog.String("error_message", report.Error.Message),
			slog.Int("result_code", int(report.Code)),
			slog.Int("occurrences", report.Occurrences))
	default:
		er.logger.LogScriptExecution(slog.LevelInfo, "Script was not run", report.Error.ExtensionName, report.Error.CommandName,
			slog.String("error_type", string(report.Error.Type)),
			slog.String("error_message", report.Error.Message),
			slog.Int("result_code", int(report.Code)))
	}
}

// Summary returns aggregated error statistics
func (er *ErrorReporter) Summary() ErrorSummary {
	er.mu.Lock()
	defer er.mu.Unlock()

	summary := ErrorSummary{
		ErrorsByType:      make(map[ErrorType]int),
		ErrorsByExtension: make(map[string]int),
	}
	for key, count := range er.counts {
		scriptErr := er.lastErrors[key]
		summary.TotalErrors += count
		summary.ErrorsByType[scriptErr.Type] += count
		summary.ErrorsByExtension[scriptErr.ExtensionName] += count
		if scriptErr.Timestamp.After(summary.LastErrorTime) {
			summary.LastErrorTime = scriptErr.Timestamp
		}
	}
	return summary
}
