package xpost

import "context"

// Listener receives the lifecycle events of one share operation.
//
// OnSharingStarted is always called first and exactly once. It is followed
// by exactly one call to either OnShared or OnError.
type Listener interface {
	OnSharingStarted()
	OnShared(postID string)
	OnError(message string)
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are ignored.
type ListenerFuncs struct {
	Started func()
	Shared  func(postID string)
	Error   func(message string)
}

func (f ListenerFuncs) OnSharingStarted() {
	if f.Started != nil {
		f.Started()
	}
}

func (f ListenerFuncs) OnShared(postID string) {
	if f.Shared != nil {
		f.Shared(postID)
	}
}

func (f ListenerFuncs) OnError(message string) {
	if f.Error != nil {
		f.Error(message)
	}
}

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	OutcomeStarted OutcomeKind = iota
	OutcomeShared
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeStarted:
		return "started"
	case OutcomeShared:
		return "shared"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is a single lifecycle event.
type Outcome struct {
	Kind    OutcomeKind
	PostID  string
	Message string
}

// Terminal reports whether no further events follow o.
func (o Outcome) Terminal() bool { return o.Kind != OutcomeStarted }

// OutcomeListener turns listener callbacks into a stream of Outcomes.
type OutcomeListener struct {
	ch chan Outcome
}

// NewOutcomeListener returns a listener whose channel holds a full operation
// without blocking the sender.
func NewOutcomeListener() *OutcomeListener {
	return &OutcomeListener{ch: make(chan Outcome, 2)}
}

// Outcomes returns the event stream.
func (l *OutcomeListener) Outcomes() <-chan Outcome { return l.ch }

func (l *OutcomeListener) OnSharingStarted() { l.ch <- Outcome{Kind: OutcomeStarted} }

func (l *OutcomeListener) OnShared(postID string) {
	l.ch <- Outcome{Kind: OutcomeShared, PostID: postID}
}

func (l *OutcomeListener) OnError(message string) {
	l.ch <- Outcome{Kind: OutcomeFailed, Message: message}
}

// Wait blocks until the terminal outcome arrives or ctx is done.
func (l *OutcomeListener) Wait(ctx context.Context) (Outcome, error) {
	for {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case o := <-l.ch:
			if o.Terminal() {
				return o, nil
			}
		}
	}
}

type nopListener struct{}

func (nopListener) OnSharingStarted() {}
func (nopListener) OnShared(string)   {}
func (nopListener) OnError(string)    {}
