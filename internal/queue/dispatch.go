package queue

import (
	"context"
	"sync"
)

// Dispatcher delivers completion callbacks on the goroutine that owns the
// caller's state.
type Dispatcher interface {
	Post(fn func())
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(fn func())

// Post calls f(fn).
func (f DispatcherFunc) Post(fn func()) { f(fn) }

type inline struct{}

func (inline) Post(fn func()) { fn() }

// Inline runs callbacks directly on the worker that finished the request.
var Inline Dispatcher = inline{}

// Loop is a Dispatcher drained by a single owning goroutine.
type Loop struct {
	ch       chan func()
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewLoop returns a Loop buffering up to size callbacks.
func NewLoop(size int) *Loop {
	if size <= 0 {
		size = 16
	}
	return &Loop{
		ch:      make(chan func(), size),
		stopped: make(chan struct{}),
	}
}

// Post enqueues fn. After Stop, callbacks are dropped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.stopped:
		return
	default:
	}
	select {
	case l.ch <- fn:
	case <-l.stopped:
	}
}

// Run executes posted callbacks until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopped:
			return nil
		case fn := <-l.ch:
			fn()
		}
	}
}

// RunOnce waits for and executes a single callback.
func (l *Loop) RunOnce(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return nil
	case fn := <-l.ch:
		fn()
		return nil
	}
}

// Drain executes every callback already posted and returns how many ran.
func (l *Loop) Drain() int {
	n := 0
	for {
		select {
		case fn := <-l.ch:
			fn()
			n++
		default:
			return n
		}
	}
}

// Stop makes Run return and discards later posts. Safe to call twice.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopped) })
}
