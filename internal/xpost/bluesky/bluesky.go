package bluesky

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/blacktop/xshare/internal/media"
	"github.com/blacktop/xshare/internal/session"
	"github.com/blacktop/xshare/internal/telemetry"
	"github.com/blacktop/xshare/internal/xpost"
	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
)

const (
	envPDSURL = "XSHARE_BLUESKY_PDS_URL"

	DefaultPDSURL = "https://bsky.social"

	providerName   = "bluesky"
	requestTimeout = 30 * time.Second
	userAgent      = "xshare/1"
)

// Config selects the personal data server.
type Config struct {
	PDSURL string
}

// LoadConfig merges base with the environment.
func LoadConfig(base Config) Config {
	cfg := Config{PDSURL: strings.TrimSpace(os.Getenv(envPDSURL))}
	if cfg.PDSURL == "" {
		cfg.PDSURL = strings.TrimSpace(base.PDSURL)
	}
	if cfg.PDSURL == "" {
		cfg.PDSURL = DefaultPDSURL
	}
	return cfg
}

func newXRPCClient(cfg Config) *xrpc.Client {
	ua := userAgent
	return &xrpc.Client{
		Client:    &http.Client{Timeout: requestTimeout},
		Host:      cfg.PDSURL,
		UserAgent: &ua,
	}
}

// Opener opens sessions with a handle and app password. The stored,
// unopened session carries the app password in AccessSecret.
type Opener struct {
	Config Config
}

func (o Opener) Open(ctx context.Context, identity string, existing *session.Session) (*session.Session, error) {
	if existing == nil || existing.AccessSecret == "" {
		return nil, fmt.Errorf("no app password stored for %s", identity)
	}

	out, err := atproto.ServerCreateSession(ctx, newXRPCClient(o.Config), &atproto.ServerCreateSession_Input{
		Identifier: identity,
		Password:   existing.AccessSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	return &session.Session{
		Provider:     providerName,
		Identity:     identity,
		Subject:      out.Did,
		AccessToken:  out.AccessJwt,
		AccessSecret: existing.AccessSecret,
		RefreshToken: out.RefreshJwt,
		State:        session.StateOpen,
	}, nil
}

// SessionResolver returns an open session for a handle.
type SessionResolver interface {
	Resolve(ctx context.Context, identity string) (*session.Session, error)
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDecoder overrides how images are loaded.
func WithDecoder(d media.Decoder) Option { return func(a *Adapter) { a.decoder = d } }

// WithReporter sets the telemetry reporter for unexpected failures.
func WithReporter(r telemetry.Reporter) Option {
	return func(a *Adapter) { a.events = xpost.NewDispatcher(providerName, r) }
}

// Adapter shares one post as a Bluesky feed post.
type Adapter struct {
	req      xpost.Request
	cfg      Config
	sessions SessionResolver
	decoder  media.Decoder
	events   *xpost.Dispatcher
}

// New validates req and returns a single-use adapter.
func New(req *xpost.Request, cfg Config, sessions SessionResolver, opts ...Option) (*Adapter, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if sessions == nil {
		return nil, errors.New("bluesky: session resolver is required")
	}
	if cfg.PDSURL == "" {
		cfg.PDSURL = DefaultPDSURL
	}

	a := &Adapter{
		req:      *req,
		cfg:      cfg,
		sessions: sessions,
		decoder:  media.FileDecoder{},
		events:   xpost.NewDispatcher(providerName, nil),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name identifies the provider.
func (a *Adapter) Name() string { return providerName }

// SetListener registers the share listener and the executor its callbacks run on.
func (a *Adapter) SetListener(l xpost.Listener, exec xpost.Executor) {
	a.events.SetListener(l, exec)
}

// ShareAsync signals start and creates the post in the background.
func (a *Adapter) ShareAsync(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if !a.events.Start() {
		return
	}
	go func() {
		defer a.events.Recover(ctx)
		uri, err := a.post(ctx)
		if err != nil {
			a.events.Fail(ctx, err)
			return
		}
		a.events.Succeed(uri)
	}()
}

func (a *Adapter) post(ctx context.Context) (string, error) {
	s, err := a.sessions.Resolve(ctx, a.req.User)
	if err != nil {
		return "", err
	}
	if s.Subject == "" {
		return "", xpost.SessionError{Provider: providerName, Identity: a.req.User, Err: errors.New("session has no DID")}
	}

	client := newXRPCClient(a.cfg)
	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  s.AccessToken,
		RefreshJwt: s.RefreshToken,
		Handle:     s.Identity,
		Did:        s.Subject,
	}

	text := a.req.Message
	if a.req.HasLink() {
		link := strings.TrimSpace(a.req.Link)
		if text == "" {
			text = link
		} else {
			text = text + "\n\n" + link
		}
	}

	post := &bsky.FeedPost{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Text:      text,
	}

	if a.req.HasImage() {
		blob, err := a.uploadImage(ctx, client)
		if err != nil {
			return "", err
		}
		post.Embed = &bsky.FeedPost_Embed{
			EmbedImages: &bsky.EmbedImages{
				Images: []*bsky.EmbedImages_Image{
					{
						Alt:   a.req.ImageAlt,
						Image: blob,
					},
				},
			},
		}
	}

	out, err := atproto.RepoCreateRecord(ctx, client, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       s.Subject,
		Record: &util.LexiconTypeDecoder{
			Val: post,
		},
	})
	if err != nil {
		return "", xpost.ProviderError{Provider: providerName, Message: fmt.Sprintf("create record: %v", err), Err: err}
	}
	if out.Uri == "" {
		return "", errors.New("create record: response has no uri")
	}

	return out.Uri, nil
}

func (a *Adapter) uploadImage(ctx context.Context, client *xrpc.Client) (*util.LexBlob, error) {
	img, err := a.decoder.Decode(a.req.Image)
	if err != nil {
		return nil, err
	}

	resp, err := atproto.RepoUploadBlob(ctx, client, bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	if resp.Blob == nil {
		return nil, errors.New("upload blob: empty response")
	}

	return resp.Blob, nil
}
