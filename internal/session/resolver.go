package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blacktop/xshare/internal/logutil"
	"github.com/blacktop/xshare/internal/xpost"
	"golang.org/x/sync/singleflight"
)

// Resolver produces open sessions for one provider.
type Resolver struct {
	provider string
	store    Store
	dir      Directory
	opener   Opener

	group singleflight.Group
	mu    sync.RWMutex
	open  map[string]*Session
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDirectory enables page to owner resolution.
func WithDirectory(dir Directory) Option {
	return func(r *Resolver) { r.dir = dir }
}

// WithOpener sets how absent or closed sessions are opened.
func WithOpener(o Opener) Option {
	return func(r *Resolver) { r.opener = o }
}

// NewResolver returns a resolver for provider backed by store.
func NewResolver(provider string, store Store, opts ...Option) *Resolver {
	r := &Resolver{
		provider: provider,
		store:    store,
		open:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publisher returns the user identity whose session publishes for identity.
// Pages publish through their owner.
func (r *Resolver) Publisher(ctx context.Context, identity string) (string, error) {
	if r.dir == nil {
		return identity, nil
	}
	owner, ok, err := r.dir.PageOwner(ctx, identity)
	if err != nil {
		return "", r.sessionError(identity, fmt.Errorf("look up page owner: %w", err))
	}
	if !ok {
		return identity, nil
	}
	if owner == "" {
		return "", r.sessionError(identity, errors.New("page has no owner"))
	}
	logutil.Debugf("%s: page %s publishes as user %s", r.provider, identity, owner)
	return owner, nil
}

// Resolve returns an open session for identity, opening one if necessary.
// Repeated and concurrent calls share one open session per user.
func (r *Resolver) Resolve(ctx context.Context, identity string) (*Session, error) {
	user, err := r.Publisher(ctx, identity)
	if err != nil {
		return nil, err
	}

	if s := r.cached(user); s != nil {
		return s, nil
	}

	v, err, _ := r.group.Do(user, func() (any, error) {
		if s := r.cached(user); s != nil {
			return s, nil
		}
		return r.load(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Forget drops the cached session for a user and marks the stored copy
// invalid, so the next Resolve goes through the Opener. It is called after
// the provider rejected the session.
func (r *Resolver) Forget(ctx context.Context, user string) {
	r.mu.Lock()
	delete(r.open, user)
	r.mu.Unlock()

	if r.store == nil {
		return
	}
	stored, err := r.store.Session(ctx, r.provider, user)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logutil.Warnf("%s: load session for %s: %v", r.provider, user, err)
		}
		return
	}
	invalid := *stored
	invalid.State = StateInvalid
	if err := r.store.Save(ctx, &invalid); err != nil {
		logutil.Warnf("%s: invalidate session for %s: %v", r.provider, user, err)
	}
}

func (r *Resolver) cached(user string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.open[user]; s.IsOpen() {
		return s
	}
	return nil
}

func (r *Resolver) load(ctx context.Context, user string) (*Session, error) {
	var stored *Session
	if r.store != nil {
		s, err := r.store.Session(ctx, r.provider, user)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return nil, r.sessionError(user, fmt.Errorf("load session: %w", err))
		default:
			stored = s
		}
	}

	s := stored
	if !s.IsOpen() {
		if r.opener == nil {
			return nil, r.sessionError(user, nil)
		}
		logutil.Debugf("%s: opening session for %s", r.provider, user)
		opened, err := r.opener.Open(ctx, user, stored)
		if err != nil {
			return nil, r.sessionError(user, err)
		}
		s = opened
		if !s.IsOpen() {
			return nil, r.sessionError(user, nil)
		}
		if r.store != nil {
			if err := r.store.Save(ctx, s); err != nil {
				logutil.Warnf("%s: persist session for %s: %v", r.provider, user, err)
			}
		}
	}

	r.mu.Lock()
	r.open[user] = s
	r.mu.Unlock()
	return s, nil
}

func (r *Resolver) sessionError(identity string, err error) error {
	return xpost.SessionError{Provider: r.provider, Identity: identity, Err: err}
}
