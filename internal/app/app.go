// Package app wires the runtime services into one injector.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/nfrund/hostscript/internal/config"
	"github.com/nfrund/hostscript/internal/engines"
	"github.com/nfrund/hostscript/internal/engines/clr"
	"github.com/nfrund/hostscript/internal/hooks"
	"github.com/nfrund/hostscript/internal/host"
	"github.com/nfrund/hostscript/internal/journal"
	"github.com/nfrund/hostscript/internal/logging"
	"github.com/nfrund/hostscript/internal/pubsub"
	"github.com/nfrund/hostscript/internal/script"
	"github.com/nfrund/hostscript/internal/telemetry"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
)

// EventJournalCommand is the hook event raised for every journalled command.
// The event args are the journal.Entry.
const EventJournalCommand = "journal-command"

// Options are the host-provided pieces of the runtime. Zero values select
// the defaults.
type Options struct {
	Config    config.Provider
	Fs        afero.Fs
	Host      host.Collaborators
	Toolchain clr.Toolchain
	Python    string
	Clock     clockwork.Clock
	// Logger replaces the logger built from configuration.
	Logger *slog.Logger
}

// App owns the injector holding every runtime service.
type App struct {
	injector *do.RootScope
}

// New registers the runtime services. Services are built lazily on first use.
func New(opts Options) *App {
	if opts.Config == nil {
		opts.Config = config.New()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	i := do.New()
	do.ProvideValue(i, opts.Config)
	do.ProvideValue(i, opts.Fs)
	do.ProvideValue(i, opts.Clock)
	do.Provide(i, func(do.Injector) (*logSink, error) {
		if opts.Logger != nil {
			return &logSink{logger: opts.Logger}, nil
		}
		logger, closer := logging.New(logging.FromEnvironment(opts.Config.Snapshot()))
		return &logSink{logger: logger, closer: closer}, nil
	})
	do.Provide(i, func(i do.Injector) (*slog.Logger, error) {
		return do.MustInvoke[*logSink](i).logger, nil
	})
	do.Provide(i, func(do.Injector) (*script.EngineCache, error) {
		return script.NewEngineCache(), nil
	})
	do.Provide(i, func(do.Injector) (*script.EngineRegistry, error) {
		r := script.NewEngineRegistry()
		engines.RegisterAll(r, engines.Options{Host: opts.Host, Toolchain: opts.Toolchain, Python: opts.Python})
		return r, nil
	})
	do.Provide(i, newTelemetry)
	do.Provide(i, newExecutor)
	do.Provide(i, newHookRegistry)
	do.Provide(i, func(i do.Injector) (*hooks.Dispatcher, error) {
		return hooks.NewDispatcher(
			do.MustInvoke[*hooks.Registry](i),
			do.MustInvoke[*script.Executor](i),
			do.MustInvoke[*slog.Logger](i),
		), nil
	})
	do.Provide(i, func(do.Injector) (*host.MainThread, error) {
		return host.NewMainThread(16), nil
	})

	return &App{injector: i}
}

// logSink owns the rotating log file, if any.
type logSink struct {
	logger *slog.Logger
	closer io.Closer
}

func (s *logSink) Shutdown() {
	if s.closer == nil {
		return
	}
	if err := s.closer.Close(); err != nil {
		s.logger.Debug("Failed to close log file", "error", err)
	}
}

// telemetryService closes the delivery queue on shutdown.
type telemetryService struct {
	*telemetry.Service
	logger *slog.Logger
}

func (s telemetryService) Shutdown() {
	if err := s.Close(); err != nil {
		s.logger.Debug("Failed to close telemetry", "component", "telemetry", "error", err)
	}
}

func newTelemetry(i do.Injector) (telemetryService, error) {
	cfg := do.MustInvoke[config.Provider](i)
	logger := do.MustInvoke[*slog.Logger](i)
	svc := telemetry.NewService(telemetry.Options{
		Env:    cfg,
		Bus:    pubsub.NewWatermillBridge(logger, 256),
		Sinks:  telemetry.SinksFor(cfg.Snapshot(), do.MustInvoke[afero.Fs](i)),
		Clock:  do.MustInvoke[clockwork.Clock](i),
		Logger: logger,
	})
	if err := svc.Start(context.Background()); err != nil {
		return telemetryService{}, fmt.Errorf("failed to start telemetry: %w", err)
	}
	return telemetryService{Service: svc, logger: logger}, nil
}

func newExecutor(i do.Injector) (*script.Executor, error) {
	cfg := do.MustInvoke[config.Provider](i)
	return script.NewExecutor(script.Dependencies{
		Cache:             do.MustInvoke[*script.EngineCache](i),
		Registry:          do.MustInvoke[*script.EngineRegistry](i),
		Env:               cfg,
		Reporter:          do.MustInvoke[telemetryService](i).Service,
		Fs:                do.MustInvoke[afero.Fs](i),
		Clock:             do.MustInvoke[clockwork.Clock](i),
		Logger:            do.MustInvoke[*slog.Logger](i),
		WatchdogThreshold: cfg.Snapshot().WatchdogThreshold,
	}), nil
}

func newHookRegistry(i do.Injector) (*hooks.Registry, error) {
	path := do.MustInvoke[config.Provider](i).Snapshot().HooksFile
	r := hooks.NewRegistry(hooks.NewFileStorage(do.MustInvoke[afero.Fs](i), filepath.Clean(path)))
	if err := r.Load(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

// Executor returns the script executor.
func (a *App) Executor() (*script.Executor, error) {
	return do.Invoke[*script.Executor](a.injector)
}

// Hooks returns the hook registry.
func (a *App) Hooks() (*hooks.Registry, error) {
	return do.Invoke[*hooks.Registry](a.injector)
}

// Dispatcher returns the hook dispatcher.
func (a *App) Dispatcher() (*hooks.Dispatcher, error) {
	return do.Invoke[*hooks.Dispatcher](a.injector)
}

// MainThread returns the host main-thread dispatcher.
func (a *App) MainThread() *host.MainThread {
	return do.MustInvoke[*host.MainThread](a.injector)
}

// Logger returns the runtime logger.
func (a *App) Logger() *slog.Logger {
	return do.MustInvoke[*slog.Logger](a.injector)
}

// Config returns the configuration provider.
func (a *App) Config() config.Provider {
	return do.MustInvoke[config.Provider](a.injector)
}

// Fs returns the filesystem every component reads through.
func (a *App) Fs() afero.Fs {
	return do.MustInvoke[afero.Fs](a.injector)
}

// StartJournal follows the configured host journal and raises
// EventJournalCommand for each entry. It returns nil, nil when no journal is
// configured.
func (a *App) StartJournal(ctx context.Context) (*journal.Listener, error) {
	path := a.Config().Snapshot().JournalPath
	if path == "" {
		return nil, nil
	}
	dispatcher, err := a.Dispatcher()
	if err != nil {
		return nil, err
	}

	handler := func(ctx context.Context, entry journal.Entry) error {
		dispatcher.Raise(ctx, hooks.Event{
			Name:   EventJournalCommand,
			Sender: path,
			Args:   entry,
		})
		return nil
	}
	l := journal.NewListener(path, a.Fs(), a.MainThread(), handler, a.Logger())
	if err := l.Start(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload shuts down every cached engine, so the next invocation of each
// command starts from a fresh engine.
func (a *App) Reload() int {
	cache := do.MustInvoke[*script.EngineCache](a.injector)
	return cache.ClearAll()
}

// Shutdown stops every service that was started. Cached engines are shut
// down and queued telemetry is dropped.
func (a *App) Shutdown() {
	a.MainThread().Close()
	_ = a.injector.Shutdown()
}
