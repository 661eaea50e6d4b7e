// Package hooks keeps the table of scripts registered against host events
// and runs them when an event is raised.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-playground/validator/v10"
)

// ErrHookNotFound is returned when unregistering an unknown hook id.
var ErrHookNotFound = errors.New("hook not found")

// Field names of a persisted hook entry.
const (
	fieldEvent       = "event"
	fieldScript      = "script"
	fieldSearchPaths = "search_paths"
	fieldExtension   = "extension"
)

// Hook is a script bound to a host event.
type Hook struct {
	ID            string `validate:"required"`
	EventName     string `validate:"required"`
	ScriptPath    string `validate:"required"`
	SearchPaths   []string
	ExtensionName string `validate:"required"`
}

// Name is the command name a hook runs under: the script file name without
// its extension.
func (h Hook) Name() string {
	base := filepath.Base(h.ScriptPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (h Hook) entry() map[string]string {
	return map[string]string{
		fieldEvent:       h.EventName,
		fieldScript:      h.ScriptPath,
		fieldSearchPaths: strings.Join(h.SearchPaths, string(filepath.ListSeparator)),
		fieldExtension:   h.ExtensionName,
	}
}

func hookFromEntry(id string, entry map[string]string) Hook {
	h := Hook{
		ID:            id,
		EventName:     entry[fieldEvent],
		ScriptPath:    entry[fieldScript],
		ExtensionName: entry[fieldExtension],
	}
	if paths := entry[fieldSearchPaths]; paths != "" {
		h.SearchPaths = filepath.SplitList(paths)
	}
	return h
}

// Registry is the process-wide hook table. Every change is written through
// to Storage; a failed write leaves the table unchanged.
type Registry struct {
	mu        sync.RWMutex
	hooks     map[string]Hook
	storage   Storage
	validate  *validator.Validate
	listeners []func()
}

// NewRegistry creates an empty registry backed by storage. Call Load to read
// previously registered hooks.
func NewRegistry(storage Storage) *Registry {
	return &Registry{
		hooks:    make(map[string]Hook),
		storage:  storage,
		validate: validator.New(),
	}
}

// Load replaces the in-memory table with the stored one. Entries missing
// required fields are skipped.
func (r *Registry) Load(ctx context.Context) error {
	entries, err := r.storage.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load hooks: %w", err)
	}

	loaded := make(map[string]Hook, len(entries))
	for id, entry := range entries {
		h := hookFromEntry(id, entry)
		if err := r.validate.Struct(h); err != nil {
			slog.Warn("Skipping invalid stored hook", "component", "hooks", "hook_id", id, "error", err)
			continue
		}
		loaded[id] = h
	}

	r.mu.Lock()
	r.hooks = loaded
	r.mu.Unlock()
	r.notify()
	return nil
}

// RegisterHook adds or replaces the hook with the given id.
func (r *Registry) RegisterHook(ctx context.Context, id, eventName, scriptPath string, searchPaths []string, extensionName string) error {
	h := Hook{
		ID:            id,
		EventName:     eventName,
		ScriptPath:    scriptPath,
		SearchPaths:   slices.Clone(searchPaths),
		ExtensionName: extensionName,
	}
	if err := r.validate.Struct(h); err != nil {
		return fmt.Errorf("invalid hook %q: %w", id, err)
	}

	r.mu.Lock()
	next := r.copyLocked()
	next[id] = h
	err := r.commitLocked(ctx, next)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	slog.Debug("Registered hook", "component", "hooks", "hook_id", id, "event", eventName, "script", scriptPath)
	r.notify()
	return nil
}

// UnRegisterHook removes the hook with the given id.
func (r *Registry) UnRegisterHook(ctx context.Context, id string) error {
	r.mu.Lock()
	if _, ok := r.hooks[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrHookNotFound, id)
	}
	next := r.copyLocked()
	delete(next, id)
	err := r.commitLocked(ctx, next)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	slog.Debug("Unregistered hook", "component", "hooks", "hook_id", id)
	r.notify()
	return nil
}

// UnRegisterAllHooks empties the table and clears the storage.
func (r *Registry) UnRegisterAllHooks(ctx context.Context) error {
	r.mu.Lock()
	if err := r.storage.Clear(ctx); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to clear hooks: %w", err)
	}
	r.hooks = make(map[string]Hook)
	r.mu.Unlock()

	r.notify()
	return nil
}

// Hooks returns every registered hook ordered by id.
func (r *Registry) Hooks() []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(Hook) bool { return true })
}

// ForEvent returns the hooks registered for eventName ordered by id.
func (r *Registry) ForEvent(eventName string) []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(h Hook) bool { return h.EventName == eventName })
}

// EventNames returns the set of events that have at least one hook.
func (r *Registry) EventNames() mapset.Set[string] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := mapset.NewThreadUnsafeSet[string]()
	for _, h := range r.hooks {
		names.Add(h.EventName)
	}
	return names
}

// OnChange registers fn to run after every change to the table. fn runs
// without the registry lock held.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) notify() {
	r.mu.RLock()
	listeners := slices.Clone(r.listeners)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

func (r *Registry) copyLocked() map[string]Hook {
	next := make(map[string]Hook, len(r.hooks)+1)
	for id, h := range r.hooks {
		next[id] = h
	}
	return next
}

func (r *Registry) commitLocked(ctx context.Context, next map[string]Hook) error {
	entries := make(Entries, len(next))
	for id, h := range next {
		entries[id] = h.entry()
	}
	if err := r.storage.Set(ctx, entries); err != nil {
		return fmt.Errorf("failed to persist hooks: %w", err)
	}
	r.hooks = next
	return nil
}

func (r *Registry) sortedLocked(keep func(Hook) bool) []Hook {
	out := make([]Hook, 0, len(r.hooks))
	for _, h := range r.hooks {
		if keep(h) {
			out = append(out, h)
		}
	}
	slices.SortFunc(out, func(a, b Hook) int { return strings.Compare(a.ID, b.ID) })
	return out
}
