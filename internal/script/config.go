package script

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/mitchellh/mapstructure"
	"github.com/tidwall/gjson"
)

// RuntimeConfig holds the per-invocation inputs of a command. It is built once
// by the caller and must not be changed while the invocation runs.
type RuntimeConfig struct {
	SearchPaths []string
	Arguments   []string
	// EngineConfigs is the engine specific configuration as raw JSON.
	EngineConfigs string

	RefreshEngine  bool
	ConfigMode     bool
	DebugMode      bool
	ExecutedFromUI bool

	// EventSender and EventArgs are set together when a host event triggered
	// the invocation.
	EventSender any
	EventArgs   any
}

// Validate checks the invariants of the configuration.
func (rc *RuntimeConfig) Validate() error {
	if rc == nil {
		return fmt.Errorf("%w: runtime config is nil", ErrBadArguments)
	}
	if (rc.EventSender == nil) != (rc.EventArgs == nil) {
		return fmt.Errorf("%w: event sender and event args must be provided together", ErrBadArguments)
	}
	return nil
}

// HasEvent reports whether the invocation was triggered by a host event.
func (rc *RuntimeConfig) HasEvent() bool {
	return rc.EventSender != nil && rc.EventArgs != nil
}

// Clone returns a copy with its own slices.
func (rc *RuntimeConfig) Clone() *RuntimeConfig {
	clone := *rc
	clone.SearchPaths = slices.Clone(rc.SearchPaths)
	clone.Arguments = slices.Clone(rc.Arguments)
	return &clone
}

// EngineConfig is the decoded form of RuntimeConfig.EngineConfigs.
type EngineConfig struct {
	Clean      bool `mapstructure:"clean"`
	FullFrame  bool `mapstructure:"full_frame"`
	Persistent bool `mapstructure:"persistent"`
	Automate   bool `mapstructure:"automate"`

	DynamoPath              string `mapstructure:"dynamo_path"`
	DynamoPathExec          bool   `mapstructure:"dynamo_path_exec"`
	DynamoPathCheckExisting bool   `mapstructure:"dynamo_path_check_existing"`
	DynamoForceManualRun    bool   `mapstructure:"dynamo_force_manual_run"`
	DynamoModelNodesInfo    string `mapstructure:"dynamo_model_nodes_info"`
}

// DefaultEngineConfig returns the configuration used when none is given.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DynamoPathExec: true,
	}
}

// ParseEngineConfig decodes raw engine configuration. Empty or malformed input
// yields the defaults; malformed input is logged at debug level only.
func ParseEngineConfig(raw string) EngineConfig {
	cfg := DefaultEngineConfig()
	if raw == "" {
		return cfg
	}
	if !gjson.Valid(raw) {
		slog.Debug("Ignoring malformed engine config", "component", "script_engine", "config", raw)
		return cfg
	}

	values, ok := gjson.Parse(raw).Value().(map[string]interface{})
	if !ok {
		slog.Debug("Ignoring non-object engine config", "component", "script_engine", "config", raw)
		return cfg
	}
	if err := mapstructure.WeakDecode(values, &cfg); err != nil {
		slog.Debug("Failed to decode engine config", "component", "script_engine", "error", err)
		return DefaultEngineConfig()
	}
	return cfg
}
