package config

import (
	"errors"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment is a read-only snapshot of the process environment seen by the
// scripting runtime.
type Environment struct {
	ProductName    string
	HostVersion    string
	HostBuild      string
	RuntimeVersion string
	SessionID      string
	UserName       string
	HostUserName   string

	TelemetryEnabled   bool
	TelemetryServerURL string
	TelemetryFilePath  string

	LogLevel    string
	LogFormat   string
	FileLogging bool
	LogFilePath string

	LoadedAssemblies     []string
	ReferencedAssemblies []string
	StyleSheetPath       string

	WatchdogThreshold time.Duration
	JournalPath       string
	HooksFile         string
	CollectorAddr     string
}

// Provider hands out environment snapshots.
type Provider interface {
	Snapshot() Environment
}

// Static is a Provider that always returns the same snapshot.
type Static Environment

// Snapshot implements Provider.
func (s Static) Snapshot() Environment {
	env := Environment(s)
	env.LoadedAssemblies = slices.Clone(env.LoadedAssemblies)
	env.ReferencedAssemblies = slices.Clone(env.ReferencedAssemblies)
	return env
}

// Loader reads configuration from the environment, an optional .env file and an
// optional hostscript.{yaml,json,toml} file. Every Snapshot re-reads the values
// so changes made by the host between invocations are picked up.
type Loader struct {
	v         *viper.Viper
	sessionID string
}

// New loads configuration sources and returns a Loader.
func New() *Loader {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	v := viper.New()
	v.SetEnvPrefix("HOSTSCRIPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.SetConfigName("hostscript")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Printf("Failed to read hostscript config file: %v", err)
		}
	}
	setDefaults(v)

	return &Loader{
		v:         v,
		sessionID: uuid.NewString(),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("product_name", "hostscript")
	v.SetDefault("host_version", "2025.0.0")
	v.SetDefault("host_build", "")
	v.SetDefault("runtime_version", "1.0.0")
	v.SetDefault("telemetry_enabled", false)
	v.SetDefault("telemetry_server_url", "")
	v.SetDefault("telemetry_file_path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("file_logging", false)
	v.SetDefault("log_file_path", "hostscript.log")
	v.SetDefault("watchdog_threshold", "30s")
	v.SetDefault("hooks_file", "hooks.json")
	v.SetDefault("collector_addr", ":8089")
}

// SessionID returns the id fixed for the lifetime of the process.
func (l *Loader) SessionID() string {
	return l.sessionID
}

// Viper exposes the underlying viper instance, used by the CLI to bind flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Snapshot implements Provider.
func (l *Loader) Snapshot() Environment {
	v := l.v
	return Environment{
		ProductName:          v.GetString("product_name"),
		HostVersion:          v.GetString("host_version"),
		HostBuild:            v.GetString("host_build"),
		RuntimeVersion:       v.GetString("runtime_version"),
		SessionID:            l.sessionID,
		UserName:             v.GetString("user_name"),
		HostUserName:         v.GetString("host_user_name"),
		TelemetryEnabled:     v.GetBool("telemetry_enabled"),
		TelemetryServerURL:   v.GetString("telemetry_server_url"),
		TelemetryFilePath:    v.GetString("telemetry_file_path"),
		LogLevel:             v.GetString("log_level"),
		LogFormat:            v.GetString("log_format"),
		FileLogging:          v.GetBool("file_logging"),
		LogFilePath:          v.GetString("log_file_path"),
		LoadedAssemblies:     v.GetStringSlice("loaded_assemblies"),
		ReferencedAssemblies: v.GetStringSlice("referenced_assemblies"),
		StyleSheetPath:       v.GetString("style_sheet_path"),
		WatchdogThreshold:    v.GetDuration("watchdog_threshold"),
		JournalPath:          v.GetString("journal_path"),
		HooksFile:            v.GetString("hooks_file"),
		CollectorAddr:        v.GetString("collector_addr"),
	}
}
