package script

import (
	"time"
)

// EngineType is the tag a script resolves to. It selects the engine implementation.
type EngineType string

const (
	EngineIronPython  EngineType = "ironpython"
	EngineCPython     EngineType = "cpython"
	EngineCSharp      EngineType = "csharp"
	EngineVisualBasic EngineType = "vb"
	EngineInvoke      EngineType = "invoke"
	EngineRuby        EngineType = "ruby"
	EngineDynamoBIM   EngineType = "dynamobim"
	EngineGrasshopper EngineType = "grasshopper"
	EngineContent     EngineType = "content"
	EngineHyperlink   EngineType = "hyperlink"
	EngineTengo       EngineType = "tengo"
	EngineJavaScript  EngineType = "javascript"
	EngineUnknown     EngineType = "unknown"
)

// BundleType is the kind of UI bundle that owns a command.
type BundleType string

const (
	BundlePushButton    BundleType = "pushbutton"
	BundleSmartButton   BundleType = "smartbutton"
	BundleInvokeButton  BundleType = "invokebutton"
	BundleURLButton     BundleType = "urlbutton"
	BundleLinkButton    BundleType = "linkbutton"
	BundleContentButton BundleType = "contentbutton"
	BundleNoButton      BundleType = "nobutton"
)

// ScriptDescriptor is the static identity of a registered command.
type ScriptDescriptor struct {
	ScriptPath       string     `validate:"required"`
	ConfigScriptPath string     `validate:"omitempty"`
	UniqueID         string     `validate:"required"`
	Name             string     `validate:"required"`
	BundleName       string     `validate:"omitempty"`
	BundleType       BundleType `validate:"omitempty"`
	ExtensionName    string     `validate:"required"`
	HelpURL          string
	Tooltip          string
	ControlID        string
}

// HostHandles are the live host objects passed through to scripts. The core
// never looks inside them.
type HostHandles struct {
	Application   any
	UIApplication any
	Document      any
}

// DocumentIdentity is implemented by document handles that can name themselves
// for telemetry.
type DocumentIdentity interface {
	Title() string
	PathName() string
}

// ErrorType categorizes script errors for logging
type ErrorType string

const (
	ErrorTypeResolution  ErrorType = "resolution"
	ErrorTypeArguments   ErrorType = "arguments"
	ErrorTypeCompilation ErrorType = "compilation"
	ErrorTypeExecution   ErrorType = "execution"
	ErrorTypeUnsupported ErrorType = "unsupported"
	ErrorTypeInterface   ErrorType = "external_interface"
	ErrorTypeContent     ErrorType = "content"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeNotFound    ErrorType = "not_found"
)

// ScriptError represents script-related errors with context
type ScriptError struct {
	Type          ErrorType
	ExtensionName string
	CommandName   string
	Message       string
	Cause         error
	Timestamp     time.Time
}

func (e *ScriptError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ScriptError) Unwrap() error {
	return e.Cause
}

// NewScriptError creates a new ScriptError with the given parameters
func NewScriptError(errorType ErrorType, extensionName, commandName, message string, cause error) *ScriptError {
	return &ScriptError{
		Type:          errorType,
		ExtensionName: extensionName,
		CommandName:   commandName,
		Message:       message,
		Cause:         cause,
		Timestamp:     time.Now(),
	}
}
