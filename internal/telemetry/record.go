// Package telemetry turns execution summaries into telemetry records and
// ships them to the configured sinks off the invocation path.
package telemetry

import (
	"encoding/json"
	"time"

	"github.com/nfrund/hostscript/internal/config"
	"github.com/nfrund/hostscript/internal/script"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// SchemaVersion is written into every record's meta block.
const SchemaVersion = "2.0"

// Record is one script telemetry record.
type Record struct {
	Meta              Meta              `json:"meta"`
	Timestamp         string            `json:"timestamp"`
	UserName          string            `json:"username"`
	HostUserName      string            `json:"host_username"`
	HostVersion       string            `json:"host_version"`
	HostBuild         string            `json:"host_build"`
	SessionID         string            `json:"session_id"`
	RuntimeVersion    string            `json:"runtime_version"`
	ExecID            string            `json:"exec_id"`
	ExecTimestamp     string            `json:"exec_timestamp"`
	DebugMode         bool              `json:"debug"`
	ConfigMode        bool              `json:"config"`
	FromUI            bool              `json:"from_gui"`
	CommandName       string            `json:"command_name"`
	CommandBundle     string            `json:"command_bundle"`
	CommandExtension  string            `json:"command_extension"`
	CommandUniqueName string            `json:"command_unique_name"`
	DocumentTitle     string            `json:"doc_name"`
	DocumentPath      string            `json:"doc_path"`
	ScriptPath        string            `json:"script_path"`
	ResultCode        int               `json:"result_code"`
	Results           map[string]string `json:"command_results"`
	DurationMS        int64             `json:"duration_ms"`
	Trace             Trace             `json:"trace"`
}

// Meta identifies the record layout.
type Meta struct {
	Schema string `json:"schema"`
}

// Trace describes the engine and any failure message.
type Trace struct {
	Engine  EngineTrace `json:"engine"`
	Message string      `json:"message"`
}

// EngineTrace describes the engine that served the invocation. Configs holds
// the raw engine configuration document and is spliced in on Marshal.
type EngineTrace struct {
	Type    string   `json:"type"`
	Version string   `json:"version"`
	SysPath []string `json:"syspath"`
	Configs string   `json:"-"`
}

// NewRecord builds a record from an execution summary and the environment at
// the time of reporting.
func NewRecord(s script.ExecutionSummary, env config.Environment, now time.Time) Record {
	results := s.Results
	if results == nil {
		results = map[string]string{}
	}
	syspath := s.SearchPaths
	if syspath == nil {
		syspath = []string{}
	}
	return Record{
		Meta:              Meta{Schema: SchemaVersion},
		Timestamp:         script.FormatTimestamp(now),
		UserName:          env.UserName,
		HostUserName:      env.HostUserName,
		HostVersion:       env.HostVersion,
		HostBuild:         env.HostBuild,
		SessionID:         env.SessionID,
		RuntimeVersion:    env.RuntimeVersion,
		ExecID:            s.ExecID,
		ExecTimestamp:     s.Timestamp,
		DebugMode:         s.DebugMode,
		ConfigMode:        s.ConfigMode,
		FromUI:            s.ExecutedFromUI,
		CommandName:       s.Descriptor.Name,
		CommandBundle:     s.Descriptor.BundleName,
		CommandExtension:  s.Descriptor.ExtensionName,
		CommandUniqueName: s.Descriptor.UniqueID,
		DocumentTitle:     s.DocumentTitle,
		DocumentPath:      s.DocumentPath,
		ScriptPath:        s.SourceFile,
		ResultCode:        int(s.ResultCode),
		Results:           results,
		DurationMS:        s.DurationMS,
		Trace: Trace{
			Engine: EngineTrace{
				Type:    string(s.Engine.Type),
				Version: s.Engine.Version,
				SysPath: syspath,
				Configs: s.EngineConfig,
			},
			Message: s.Trace,
		},
	}
}

// Marshal encodes the record. A valid JSON engine config is embedded as a
// document; anything else is embedded as a string.
func (r Record) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	configs := r.Trace.Engine.Configs
	if configs == "" {
		return sjson.SetRawBytes(data, "trace.engine.configs", []byte("{}"))
	}
	if gjson.Valid(configs) {
		return sjson.SetRawBytes(data, "trace.engine.configs", []byte(configs))
	}
	return sjson.SetBytes(data, "trace.engine.configs", configs)
}
