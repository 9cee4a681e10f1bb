package xpost

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/blacktop/xshare/internal/logutil"
	"github.com/blacktop/xshare/internal/telemetry"
)

// State is the lifecycle state of a share operation.
type State int32

const (
	StateIdle State = iota
	StateStarted
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarted:
		return "started"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dispatcher owns the lifecycle of one share operation and delivers its
// events to a Listener. Adapters embed one to get the Idle, Started, and
// terminal transitions for free.
type Dispatcher struct {
	provider string
	reporter telemetry.Reporter
	state    atomic.Int32

	mu       sync.Mutex
	listener Listener
	exec     Executor
}

// NewDispatcher returns an idle dispatcher. A nil reporter uses telemetry.Default.
func NewDispatcher(provider string, reporter telemetry.Reporter) *Dispatcher {
	if reporter == nil {
		reporter = telemetry.Default()
	}
	return &Dispatcher{provider: provider, reporter: reporter}
}

// SetListener registers the listener and the executor terminal events are
// delivered on. A nil executor means Inline.
func (d *Dispatcher) SetListener(l Listener, exec Executor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listener = l
	d.exec = exec
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State { return State(d.state.Load()) }

// Start moves Idle to Started and calls OnSharingStarted on the calling
// goroutine. It returns false if the operation was already started.
func (d *Dispatcher) Start() bool {
	if !d.state.CompareAndSwap(int32(StateIdle), int32(StateStarted)) {
		logutil.Warnf("%s: share already started (state=%s), ignoring", d.provider, d.State())
		return false
	}
	l, _ := d.target()
	l.OnSharingStarted()
	return true
}

// Succeed delivers OnShared once.
func (d *Dispatcher) Succeed(postID string) {
	if !d.finish(StateSucceeded) {
		return
	}
	logutil.Debugf("%s: shared post_id=%s", d.provider, postID)
	l, exec := d.target()
	exec.Execute(func() { l.OnShared(postID) })
}

// Fail delivers OnError once with err's message. Unexpected errors are
// also reported to telemetry.
func (d *Dispatcher) Fail(ctx context.Context, err error) {
	if err == nil {
		err = UnexpectedError{}
	}
	if !d.finish(StateFailed) {
		return
	}
	if IsUnexpected(err) {
		d.reporter.Report(ctx, err)
	}
	logutil.Debugf("%s: share failed: %v", d.provider, err)
	msg := err.Error()
	l, exec := d.target()
	exec.Execute(func() { l.OnError(msg) })
}

// Recover converts a panic in the calling goroutine into a failure. It must
// be deferred directly.
func (d *Dispatcher) Recover(ctx context.Context) {
	r := recover()
	if r == nil {
		return
	}
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("%v", r)
	}
	d.Fail(ctx, UnexpectedError{Err: err})
}

func (d *Dispatcher) finish(to State) bool {
	if d.state.CompareAndSwap(int32(StateStarted), int32(to)) {
		return true
	}
	logutil.Warnf("%s: dropping %s transition from state %s", d.provider, to, d.State())
	return false
}

func (d *Dispatcher) target() (Listener, Executor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, exec := d.listener, d.exec
	if l == nil {
		l = nopListener{}
	}
	if exec == nil {
		exec = Inline
	}
	return l, exec
}
