package xpost

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/blacktop/xshare/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu     sync.Mutex
	events []Outcome
}

func (r *recordingListener) OnSharingStarted()  { r.add(Outcome{Kind: OutcomeStarted}) }
func (r *recordingListener) OnShared(id string) { r.add(Outcome{Kind: OutcomeShared, PostID: id}) }
func (r *recordingListener) OnError(msg string) { r.add(Outcome{Kind: OutcomeFailed, Message: msg}) }

func (r *recordingListener) add(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, o)
}

func (r *recordingListener) Events() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.events...)
}

type countingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (c *countingReporter) Report(_ context.Context, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func TestDispatcherSingleTerminal(t *testing.T) {
	l := &recordingListener{}
	d := NewDispatcher("test", telemetry.Nop)
	d.SetListener(l, nil)

	require.True(t, d.Start())
	assert.False(t, d.Start())
	d.Succeed("42")
	d.Fail(context.Background(), errors.New("late"))
	d.Succeed("43")

	assert.Equal(t, []Outcome{
		{Kind: OutcomeStarted},
		{Kind: OutcomeShared, PostID: "42"},
	}, l.Events())
	assert.Equal(t, StateSucceeded, d.State())
}

func TestDispatcherTerminalBeforeStartIsDropped(t *testing.T) {
	l := &recordingListener{}
	d := NewDispatcher("test", telemetry.Nop)
	d.SetListener(l, nil)

	d.Succeed("42")
	assert.Empty(t, l.Events())
	assert.Equal(t, StateIdle, d.State())
}

func TestDispatcherFailReportsOnlyUnexpected(t *testing.T) {
	rep := &countingReporter{}

	d := NewDispatcher("test", rep)
	d.Start()
	d.Fail(context.Background(), ProviderError{Message: "rate limited"})
	assert.Empty(t, rep.errs)

	l := &recordingListener{}
	d = NewDispatcher("test", rep)
	d.SetListener(l, nil)
	d.Start()
	d.Fail(context.Background(), UnexpectedError{Err: errors.New("nil pointer")})
	require.Len(t, rep.errs, 1)
	assert.Equal(t, "Unexpected exception: nil pointer", l.Events()[1].Message)
	assert.Equal(t, StateFailed, d.State())
}

func TestDispatcherRecover(t *testing.T) {
	rep := &countingReporter{}
	l := &recordingListener{}
	d := NewDispatcher("test", rep)
	d.SetListener(l, nil)
	d.Start()

	func() {
		defer d.Recover(context.Background())
		panic("kaboom")
	}()

	events := l.Events()
	require.Len(t, events, 2)
	assert.Equal(t, OutcomeFailed, events[1].Kind)
	assert.Equal(t, "Unexpected exception: kaboom", events[1].Message)
	assert.Len(t, rep.errs, 1)
}

func TestDispatcherWithoutListener(t *testing.T) {
	d := NewDispatcher("test", telemetry.Nop)
	assert.NotPanics(t, func() {
		d.Start()
		d.Succeed("1")
	})
}

func TestDispatcherUsesExecutorForTerminalOnly(t *testing.T) {
	var queued []func()
	exec := ExecutorFunc(func(fn func()) { queued = append(queued, fn) })

	l := &recordingListener{}
	d := NewDispatcher("test", telemetry.Nop)
	d.SetListener(l, exec)

	d.Start()
	assert.Equal(t, []Outcome{{Kind: OutcomeStarted}}, l.Events())

	d.Succeed("7")
	assert.Len(t, l.Events(), 1)
	require.Len(t, queued, 1)

	queued[0]()
	assert.Equal(t, Outcome{Kind: OutcomeShared, PostID: "7"}, l.Events()[1])
}
