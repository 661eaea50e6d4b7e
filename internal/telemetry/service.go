package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nfrund/hostscript/internal/config"
	"github.com/nfrund/hostscript/internal/pubsub"
	"github.com/nfrund/hostscript/internal/script"
	"github.com/spf13/afero"
)

// TopicScriptRecords carries encoded script records.
const TopicScriptRecords = "telemetry.script.records"

// Options configure a Service.
type Options struct {
	Env    config.Provider
	Bus    *pubsub.WatermillBridge
	Sinks  []Sink
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Service implements script.Reporter. Reporting only encodes and enqueues;
// a background worker forwards records to the sinks.
type Service struct {
	env    config.Provider
	bus    *pubsub.WatermillBridge
	sinks  []Sink
	clock  clockwork.Clock
	logger *slog.Logger
	cancel context.CancelFunc
}

var _ script.Reporter = (*Service)(nil)

// NewService creates a service. Call Start to begin delivery.
func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Bus == nil {
		opts.Bus = pubsub.NewWatermillBridge(opts.Logger, 64)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Env == nil {
		opts.Env = config.Static{}
	}
	return &Service{
		env:    opts.Env,
		bus:    opts.Bus,
		sinks:  opts.Sinks,
		clock:  opts.Clock,
		logger: opts.Logger.With("component", "telemetry"),
	}
}

// SinksFor returns the sinks enabled by env.
func SinksFor(env config.Environment, fs afero.Fs) []Sink {
	var sinks []Sink
	if env.TelemetryServerURL != "" {
		sinks = append(sinks, NewHTTPSink(env.TelemetryServerURL))
	}
	if env.TelemetryFilePath != "" {
		sinks = append(sinks, NewFileSink(fs, env.TelemetryFilePath))
	}
	return sinks
}

// Start subscribes the delivery worker.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	return s.bus.Subscribe(ctx, TopicScriptRecords, s.deliver)
}

func (s *Service) deliver(ctx context.Context, msg pubsub.Message) error {
	for _, sink := range s.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := sink.Send(sendCtx, msg.Payload)
		cancel()
		if err != nil {
			s.logger.Debug("Telemetry sink failed", "exec_id", msg.Key, "sink", sinkName(sink), "error", err)
		}
	}
	return nil
}

// Report implements script.Reporter. It never fails the caller.
func (s *Service) Report(summary script.ExecutionSummary) {
	env := s.env.Snapshot()
	if !env.TelemetryEnabled || len(s.sinks) == 0 {
		return
	}
	record, err := NewRecord(summary, env, s.clock.Now()).Marshal()
	if err != nil {
		s.logger.Debug("Failed to encode telemetry record", "exec_id", summary.ExecID, "error", err)
		return
	}
	err = s.bus.Publish(context.Background(), pubsub.Message{
		Topic:    TopicScriptRecords,
		Key:      summary.ExecID,
		Payload:  record,
		Metadata: map[string]string{"schema": SchemaVersion},
	})
	if err != nil {
		s.logger.Debug("Failed to queue telemetry record", "exec_id", summary.ExecID, "error", err)
	}
}

// Close stops delivery. Records still queued are dropped.
func (s *Service) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.bus.Close()
}

func sinkName(sink Sink) string {
	switch sink.(type) {
	case *HTTPSink:
		return "http"
	case *FileSink:
		return "file"
	default:
		return "custom"
	}
}
