package mastodon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blacktop/xshare/internal/media"
	"github.com/blacktop/xshare/internal/session"
	"github.com/blacktop/xshare/internal/telemetry"
	"github.com/blacktop/xshare/internal/xpost"
	mastodonapi "github.com/mattn/go-mastodon"
)

const (
	envServer = "XSHARE_MASTODON_SERVER"

	providerName   = "mastodon"
	requestTimeout = 30 * time.Second
)

// Config contains the settings needed to reach a Mastodon server.
type Config struct {
	Server       string
	ClientID     string
	ClientSecret string
}

// Validate reports missing settings.
func (c Config) Validate() error {
	if c.Server == "" {
		return xpost.MissingEnvError{Provider: providerName, Variables: []string{envServer}}
	}
	return nil
}

// TokenResolver returns the access token of a user.
type TokenResolver interface {
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

// Adapter shares one post as a Mastodon status.
type Adapter struct {
	req     xpost.Request
	cfg     Config
	tokens  TokenResolver
	decoder media.Decoder
	events  *xpost.Dispatcher
}

// New validates req and returns a single-use adapter.
func New(req *xpost.Request, cfg Config, tokens TokenResolver, opts ...Option) (*Adapter, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, errors.New("mastodon: token resolver is required")
	}

	a := &Adapter{
		req:     *req,
		cfg:     cfg,
		tokens:  tokens,
		decoder: media.FileDecoder{},
		events:  xpost.NewDispatcher(providerName, nil),
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

// ShareAsync signals start and posts the status in the background.
func (a *Adapter) ShareAsync(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if !a.events.Start() {
		return
	}
	go func() {
		defer a.events.Recover(ctx)
		id, err := a.post(ctx)
		if err != nil {
			a.events.Fail(ctx, err)
			return
		}
		a.events.Succeed(id)
	}()
}

func (a *Adapter) post(ctx context.Context) (string, error) {
	s, err := a.tokens.Resolve(ctx, a.req.User)
	if err != nil {
		return "", err
	}

	client := mastodonapi.NewClient(&mastodonapi.Config{
		Server:       a.cfg.Server,
		AccessToken:  s.AccessToken,
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
	})
	client.Timeout = requestTimeout

	var mediaIDs []mastodonapi.ID
	if a.req.HasImage() {
		attachment, err := a.uploadMedia(ctx, client)
		if err != nil {
			return "", err
		}
		mediaIDs = append(mediaIDs, attachment.ID)
	}

	status := a.req.Message
	if a.req.HasLink() {
		link := strings.TrimSpace(a.req.Link)
		if status == "" {
			status = link
		} else {
			status = status + "\n\n" + link
		}
	}

	posted, err := client.PostStatus(ctx, &mastodonapi.Toot{
		Status:   status,
		MediaIDs: mediaIDs,
	})
	if err != nil {
		return "", xpost.ProviderError{Provider: providerName, Message: fmt.Sprintf("post status: %v", err), Err: err}
	}
	if posted == nil || posted.ID == "" {
		return "", errors.New("post status: response has no id")
	}

	return string(posted.ID), nil
}

func (a *Adapter) uploadMedia(ctx context.Context, client *mastodonapi.Client) (*mastodonapi.Attachment, error) {
	img, err := a.decoder.Decode(a.req.Image)
	if err != nil {
		return nil, err
	}

	attachment, err := client.UploadMediaFromMedia(ctx, &mastodonapi.Media{
		File:        bytes.NewReader(img.Data),
		Description: strings.TrimSpace(a.req.ImageAlt),
	})
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}

	return attachment, nil
}
