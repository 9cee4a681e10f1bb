package xpost

import (
	"context"
	"sync"

	"github.com/blacktop/xshare/internal/logutil"
)

// Executor runs listener callbacks on the execution context chosen by the caller.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to an Executor.
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Execute(fn func()) { f(fn) }

// Inline runs callbacks on whichever goroutine delivers them.
var Inline Executor = ExecutorFunc(func(fn func()) { fn() })

// Loop is a single-goroutine execution context. Callbacks queued with Execute
// run in order on the goroutine that calls Run.
type Loop struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
}

// NewLoop creates a loop with the given queue capacity.
func NewLoop(capacity int) *Loop {
	if capacity < 1 {
		capacity = 1
	}
	return &Loop{
		queue: make(chan func(), capacity),
		done:  make(chan struct{}),
	}
}

// Execute queues fn. Callbacks queued after Close are dropped.
func (l *Loop) Execute(fn func()) {
	select {
	case <-l.done:
		logutil.Warnf("loop closed, dropping callback")
		return
	default:
	}
	select {
	case <-l.done:
		logutil.Warnf("loop closed, dropping callback")
	case l.queue <- fn:
	}
}

// Run drains the queue on the calling goroutine until ctx is done or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.queue:
			fn()
		}
	}
}

// Close stops Run.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.done) })
}
