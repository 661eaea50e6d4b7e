// Package journal follows the host journal file and reports each command the
// host journals on the host main thread.
package journal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// Invoker runs fn on the host main thread and waits for it.
// host.MainThread implements it.
type Invoker interface {
	Invoke(ctx context.Context, fn func() error) error
}

// Handler receives journalled commands on the main thread.
type Handler func(ctx context.Context, entry Entry) error

// Listener tails one journal file.
type Listener struct {
	path    string
	fs      afero.Fs
	invoker Invoker
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	offset  int64
	line    int
	pending []byte
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewListener creates a listener for the journal at path. Reads go through
// fs, which must be backed by the real filesystem for change notifications
// to arrive.
func NewListener(path string, fs afero.Fs, invoker Invoker, handler Handler, logger *slog.Logger) *Listener {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		path:    filepath.Clean(path),
		fs:      fs,
		invoker: invoker,
		handler: handler,
		logger:  logger.With("component", "journal", "journal", path),
	}
}

// Start skips what the journal already holds and begins following it. It
// returns once the watcher is in place; entries are delivered until ctx is
// done or Close is called.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher != nil {
		return errors.New("journal listener already started")
	}

	if info, err := l.fs.Stat(l.path); err == nil {
		l.offset = info.Size()
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat journal: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create journal watcher: %w", err)
	}
	// The directory is watched so a journal created after Start is seen.
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch journal directory: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	l.watcher = watcher
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.watch(ctx, watcher, l.done)
	l.logger.Debug("Started journal listener", "offset", l.offset)
	return nil
}

func (l *Listener) watch(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != l.path {
				continue
			}
			if event.Has(fsnotify.Create) {
				l.reset()
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := l.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
					l.logger.Warn("Failed to read journal", "error", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("Journal watcher error", "error", err)
		}
	}
}

func (l *Listener) reset() {
	l.mu.Lock()
	l.offset = 0
	l.line = 0
	l.pending = nil
	l.mu.Unlock()
}

// Poll reads whatever was appended since the last read and delivers each
// complete command line. The watcher calls it on every write; hosts without
// change notifications may call it directly.
func (l *Listener) Poll(ctx context.Context) error {
	entries, err := l.readNew()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		err := l.invoker.Invoke(ctx, func() error {
			return l.handler(ctx, entry)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("Journal handler failed", "command_id", entry.CommandID, "line", entry.Line, "error", err)
		}
	}
	return nil
}

func (l *Listener) readNew() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.fs.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < l.offset {
		// Truncated or replaced: start over.
		l.offset, l.line, l.pending = 0, 0, nil
	}
	if _, err := f.Seek(l.offset, io.SeekStart); err != nil {
		return nil, err
	}
	chunk, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	l.offset += int64(len(chunk))

	data := append(l.pending, chunk...)
	var entries []Entry
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		l.line++
		if entry, ok := ParseLine(string(bytes.TrimRight(data[:idx], "\r"))); ok {
			entry.Line = l.line
			entries = append(entries, entry)
		}
		data = data[idx+1:]
	}
	l.pending = bytes.Clone(data)
	return entries, nil
}

// Close stops following the journal and waits for the watch loop to exit.
func (l *Listener) Close() error {
	l.mu.Lock()
	watcher, cancel, done := l.watcher, l.cancel, l.done
	l.watcher = nil
	l.mu.Unlock()
	if watcher == nil {
		return nil
	}
	cancel()
	err := watcher.Close()
	<-done
	return err
}
