package script

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBadArguments is returned when a RuntimeConfig or descriptor is not usable.
	ErrBadArguments = errors.New("bad command arguments")
	// ErrMissingScript is returned when the resolved source file does not exist.
	ErrMissingScript = errors.New("target script not found")
	// ErrUnknownEngine is returned when a script resolves to EngineUnknown.
	ErrUnknownEngine = errors.New("engine type could not be resolved")
)

// NotSupportedFeatureError reports a capability that does not exist under the
// running host version.
type NotSupportedFeatureError struct {
	Feature     string
	HostVersion string
}

var _ error = &NotSupportedFeatureError{}

func (e *NotSupportedFeatureError) Error() string {
	if e.HostVersion == "" {
		return fmt.Sprintf("%s is not supported by this host", e.Feature)
	}
	return fmt.Sprintf("%s is not supported by host version %s", e.Feature, e.HostVersion)
}

// ExternalInterfaceError reports a host collaborator or foreign runtime that is
// not available.
type ExternalInterfaceError struct {
	Interface string
	Cause     error
}

var _ error = &ExternalInterfaceError{}

func (e *ExternalInterfaceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("external interface %s is not available: %v", e.Interface, e.Cause)
	}
	return fmt.Sprintf("external interface %s is not available", e.Interface)
}

func (e *ExternalInterfaceError) Unwrap() error {
	return e.Cause
}

// EngineNotImplementedError is returned by engines that exist only as placeholders.
type EngineNotImplementedError struct {
	Engine EngineType
}

var _ error = &EngineNotImplementedError{}

func (e *EngineNotImplementedError) Error() string {
	return fmt.Sprintf("engine %s is not implemented", e.Engine)
}

// ContentLoadError wraps a failure of the host while loading content.
type ContentLoadError struct {
	Path  string
	Cause error
}

var _ error = &ContentLoadError{}

func (e *ContentLoadError) Error() string {
	return fmt.Sprintf("failed loading content %s: %v", e.Path, e.Cause)
}

func (e *ContentLoadError) Unwrap() error {
	return e.Cause
}

// CompileError carries every diagnostic reported by a compiler.
type CompileError struct {
	Diagnostics []string
	Cause       error
}

var _ error = &CompileError{}

func (e *CompileError) Error() string {
	if len(e.Diagnostics) == 0 && e.Cause != nil {
		return "compile failed: " + e.Cause.Error()
	}
	return "compile failed:\n" + strings.Join(e.Diagnostics, "\n")
}

func (e *CompileError) Unwrap() error {
	return e.Cause
}

// SysExit is raised by scripts that request an explicit exit.
type SysExit struct {
	Code int
}

var _ error = &SysExit{}

func (e *SysExit) Error() string {
	return fmt.Sprintf("script exited with status %d", e.Code)
}

// CodeForError maps an error raised outside of Execute to a result code.
func CodeForError(err error) ResultCode {
	if err == nil {
		return Succeeded
	}

	var (
		notSupported *NotSupportedFeatureError
		external     *ExternalInterfaceError
		notImpl      *EngineNotImplementedError
		content      *ContentLoadError
		compile      *CompileError
		exit         *SysExit
	)
	switch {
	case errors.As(err, &notSupported):
		return NotSupportedFeature
	case errors.As(err, &external):
		return ExternalInterfaceNotImplemented
	case errors.As(err, &notImpl):
		return EngineNotImplemented
	case errors.As(err, &content):
		return FailedLoadingContent
	case errors.As(err, &compile):
		return CompileException
	case errors.As(err, &exit):
		return SysExited
	case errors.Is(err, ErrBadArguments):
		return BadCommandArguments
	case errors.Is(err, ErrMissingScript):
		return MissingTargetScript
	default:
		return UnknownException
	}
}

// FormatTrace joins a guest-language traceback and an optional host runtime
// traceback under an engine specific header. The result is for display only.
func FormatTrace(header, guest, host string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(guest, "\n"))
	if host != "" {
		b.WriteString("\n\n")
		b.WriteString("Script Executor Traceback:\n")
		b.WriteString(strings.TrimRight(host, "\n"))
	}
	return b.String()
}
