package xpost

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsInOrder(t *testing.T) {
	loop := NewLoop(4)
	var got []int
	for i := range 3 {
		loop.Execute(func() { got = append(got, i) })
	}
	loop.Execute(loop.Close)

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestLoopStopsOnContext(t *testing.T) {
	loop := NewLoop(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, loop.Run(ctx), context.DeadlineExceeded)
}

func TestLoopDropsAfterClose(t *testing.T) {
	loop := NewLoop(1)
	loop.Close()
	loop.Close()

	done := make(chan struct{})
	go func() {
		loop.Execute(func() {})
		loop.Execute(func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Execute blocked on a closed loop")
	}
}

func TestOutcomeListenerWait(t *testing.T) {
	l := NewOutcomeListener()
	l.OnSharingStarted()
	l.OnError("nope")

	o, err := l.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Outcome{Kind: OutcomeFailed, Message: "nope"}, o)
	assert.Equal(t, "failed", o.Kind.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewOutcomeListener().Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
