package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrMainThreadClosed is returned by Invoke after Close.
var ErrMainThreadClosed = errors.New("main thread dispatcher closed")

type call struct {
	fn   func() error
	done chan error
}

// MainThread runs closures on the goroutine that owns host API access. Other
// goroutines hand work over with Invoke and block until it has run.
type MainThread struct {
	queue     chan call
	closed    chan struct{}
	closeOnce sync.Once
}

// NewMainThread creates a dispatcher with room for buffer pending calls.
func NewMainThread(buffer int) *MainThread {
	return &MainThread{
		queue:  make(chan call, buffer),
		closed: make(chan struct{}),
	}
}

// Invoke queues fn for the main thread and waits for its result.
func (m *MainThread) Invoke(ctx context.Context, fn func() error) error {
	c := call{fn: fn, done: make(chan error, 1)}

	select {
	case m.queue <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closed:
		return ErrMainThreadClosed
	}

	select {
	case err := <-c.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closed:
		return ErrMainThreadClosed
	}
}

// Loop executes queued calls until ctx is done or Close is called. It must
// run on the host's main goroutine.
func (m *MainThread) Loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closed:
			return nil
		case c := <-m.queue:
			c.done <- runCall(c.fn)
		}
	}
}

// Drain runs every call queued so far and returns how many ran. Hosts that
// pump their own event loop call it from an idle handler instead of Loop.
func (m *MainThread) Drain() int {
	ran := 0
	for {
		select {
		case c := <-m.queue:
			c.done <- runCall(c.fn)
			ran++
		default:
			return ran
		}
	}
}

// Close stops the dispatcher. Pending and future Invoke calls fail.
func (m *MainThread) Close() {
	m.closeOnce.Do(func() {
		close(m.closed)
	})
}

func runCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("main thread call panicked: %v", r)
		}
	}()
	return fn()
}
