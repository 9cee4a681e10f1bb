// Package session resolves user and page identities into open provider
// sessions. Token persistence lives behind the Store interface.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// ErrNotFound is returned by a Store with no session for an identity.
var ErrNotFound = errors.New("session not found")

// State is the authorization state of a Session.
type State int

const (
	StateUnopened State = iota
	StateOpen
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is a provider authorization bound to one user identity.
// Sessions handed out by a Resolver are shared and must not be modified.
type Session struct {
	Provider string
	Identity string
	// Subject is the provider's own account identifier, when it differs
	// from Identity (e.g. a Bluesky DID).
	Subject string

	AccessToken  string
	AccessSecret string
	RefreshToken string
	Expiry       time.Time

	State State
}

// IsOpen reports whether the session can authorize requests now.
func (s *Session) IsOpen() bool {
	if s == nil || s.State != StateOpen || s.AccessToken == "" {
		return false
	}
	return s.Expiry.IsZero() || time.Now().Before(s.Expiry)
}

// Token returns the session as an OAuth 2.0 bearer token.
func (s *Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.Expiry,
	}
}

// TokenSource returns a static source for the session token.
func (s *Session) TokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(s.Token())
}

// Store persists sessions.
type Store interface {
	Session(ctx context.Context, provider, identity string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

// Directory knows which identities are pages and who owns them.
type Directory interface {
	// PageOwner returns the owning user of a page identity. ok is false for
	// identities that are not pages.
	PageOwner(ctx context.Context, identity string) (owner string, ok bool, err error)
}

// Opener opens a session for publishing. existing may be nil.
type Opener interface {
	Open(ctx context.Context, identity string, existing *Session) (*Session, error)
}

// OpenerFunc adapts a function to an Opener.
type OpenerFunc func(ctx context.Context, identity string, existing *Session) (*Session, error)

func (f OpenerFunc) Open(ctx context.Context, identity string, existing *Session) (*Session, error) {
	return f(ctx, identity, existing)
}

// OAuth2Opener reopens sessions by refreshing their OAuth 2.0 token.
type OAuth2Opener struct {
	Provider string
	Config   *oauth2.Config
}

func (o OAuth2Opener) Open(ctx context.Context, identity string, existing *Session) (*Session, error) {
	if existing == nil || existing.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token for %s, authorize the account again", identity)
	}
	if o.Config == nil {
		return nil, errors.New("oauth2 client not configured")
	}
	tok := existing.Token()
	// Force a refresh; the stored session is not usable as-is.
	tok.Expiry = time.Now().Add(-time.Minute)
	fresh, err := o.Config.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return &Session{
		Provider:     o.Provider,
		Identity:     identity,
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		Expiry:       fresh.Expiry,
		State:        StateOpen,
	}, nil
}
