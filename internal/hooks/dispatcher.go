package hooks

import (
	"context"
	"io"
	"log/slog"
	"sync"

	evbus "github.com/asaskevich/EventBus"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/nfrund/hostscript/internal/script"
)

// Runner executes one script invocation.
type Runner interface {
	ExecuteWith(ctx context.Context, inv script.Invocation) script.ResultCode
}

// Event is one raised host event. Handlers append an Outcome per hook run.
type Event struct {
	Name   string
	Sender any
	Args   any
	Host   script.HostHandles
	Output io.Writer

	Outcomes []Outcome
}

// Outcome is the result of one hook run.
type Outcome struct {
	HookID string
	Code   script.ResultCode
}

// Dispatcher subscribes one bus topic per event name that has hooks and runs
// the hooks of a topic when the host raises it.
//
// Bus handlers run synchronously inside Raise while the bus holds its lock,
// so a hook must not change the registry while it runs.
type Dispatcher struct {
	bus      evbus.Bus
	registry *Registry
	runner   Runner
	logger   *slog.Logger
	handler  func(ctx context.Context, ev *Event)

	mu         sync.Mutex
	subscribed mapset.Set[string]
}

// NewDispatcher subscribes to the events currently in registry and follows
// its changes.
func NewDispatcher(registry *Registry, runner Runner, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		bus:        evbus.New(),
		registry:   registry,
		runner:     runner,
		logger:     logger.With("component", "hooks"),
		subscribed: mapset.NewThreadUnsafeSet[string](),
	}
	d.handler = d.handle
	registry.OnChange(d.Refresh)
	d.Refresh()
	return d
}

// Refresh aligns the bus subscriptions with the registry's event names.
func (d *Dispatcher) Refresh() {
	want := d.registry.EventNames()

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, name := range d.subscribed.Difference(want).ToSlice() {
		if err := d.bus.Unsubscribe(name, d.handler); err != nil {
			d.logger.Debug("Failed to unsubscribe event", "event", name, "error", err)
		}
		d.subscribed.Remove(name)
	}
	for _, name := range want.Difference(d.subscribed).ToSlice() {
		if err := d.bus.Subscribe(name, d.handler); err != nil {
			d.logger.Warn("Failed to subscribe event", "event", name, "error", err)
			continue
		}
		d.subscribed.Add(name)
	}
}

// Subscribed reports whether eventName currently has a bus subscription.
func (d *Dispatcher) Subscribed(eventName string) bool {
	return d.bus.HasCallback(eventName)
}

// Raise runs every hook registered for ev.Name and returns their outcomes in
// hook id order. Events with no hooks return nil.
func (d *Dispatcher) Raise(ctx context.Context, ev Event) []Outcome {
	if !d.bus.HasCallback(ev.Name) {
		return nil
	}
	ev.Outcomes = nil
	d.bus.Publish(ev.Name, ctx, &ev)
	return ev.Outcomes
}

func (d *Dispatcher) handle(ctx context.Context, ev *Event) {
	for _, h := range d.registry.ForEvent(ev.Name) {
		desc := script.ScriptDescriptor{
			ScriptPath:    h.ScriptPath,
			UniqueID:      h.ID,
			Name:          h.Name(),
			ExtensionName: h.ExtensionName,
			BundleType:    script.BundleNoButton,
		}
		rc := &script.RuntimeConfig{
			SearchPaths: h.SearchPaths,
			EventSender: ev.Sender,
			EventArgs:   ev.Args,
		}

		code := d.runner.ExecuteWith(ctx, script.Invocation{
			Descriptor: desc,
			Config:     rc,
			Host:       ev.Host,
			Output:     ev.Output,
		})
		if code.Failed() {
			d.logger.Warn("Hook script failed", "hook_id", h.ID, "event", ev.Name, "result_code", int(code), "result", code.String())
		}
		ev.Outcomes = append(ev.Outcomes, Outcome{HookID: h.ID, Code: code})
	}
}

// Close drops every subscription.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, name := range d.subscribed.ToSlice() {
		_ = d.bus.Unsubscribe(name, d.handler)
	}
	d.subscribed.Clear()
}
