package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nfrund/hostscript/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the handler New installs.
type Options struct {
	Format   string // "text" or "json"
	Level    string
	FilePath string // empty disables the rotating file
	Stdout   io.Writer
}

// FromEnvironment derives Options from a config snapshot.
func FromEnvironment(env config.Environment) Options {
	opts := Options{Format: env.LogFormat, Level: env.LogLevel}
	if env.FileLogging {
		opts.FilePath = env.LogFilePath
	}
	return opts
}

// New initializes a new slog logger and sets it as the default.
// Text output with source locations is the default; "json" is meant for
// production. When FilePath is set, records also go to a rotating log file.
// The returned closer releases that file.
func New(opts Options) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stdout
	if opts.Stdout != nil {
		out = opts.Stdout
	}

	var closer io.Closer = nopCloser{}
	if opts.FilePath != "" {
		file := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
		}
		out = io.MultiWriter(out, file)
		closer = file
	}

	level := ParseLevel(opts.Level)
	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	default:
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closer
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
