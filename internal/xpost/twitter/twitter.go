package twitter

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/blacktop/xshare/internal/logutil"
	"github.com/blacktop/xshare/internal/media"
	"github.com/blacktop/xshare/internal/session"
	"github.com/blacktop/xshare/internal/telemetry"
	"github.com/blacktop/xshare/internal/xpost"
)

const (
	providerName = "twitter"

	unknownMethodPrefix = "Unknown Twitter method, this should not happen: "
)

// TokenResolver returns the OAuth 1.0a tokens of a user.
type TokenResolver interface {
	Resolve(ctx context.Context, identity string) (*session.Session, error)
}

// ClientFactory builds a fresh client bound to a user's tokens.
type ClientFactory func(ctx context.Context, s *session.Session) (AsyncClient, error)

// NewClientFactory returns a factory backed by gotwi.
func NewClientFactory(cfg Config) ClientFactory {
	return func(_ context.Context, s *session.Session) (AsyncClient, error) {
		api, err := newGotwiAPI(cfg, s)
		if err != nil {
			return nil, err
		}
		return NewAsyncClient(api), nil
	}
}

// Option configures an Adapter.
type Option func(*options)

type options struct {
	factory  ClientFactory
	config   *Config
	decoder  media.Decoder
	reporter telemetry.Reporter
}

// WithConfig sets the consumer credentials for the default client factory.
func WithConfig(cfg Config) Option { return func(o *options) { o.config = &cfg } }

// WithClientFactory overrides how clients are built.
func WithClientFactory(f ClientFactory) Option { return func(o *options) { o.factory = f } }

// WithDecoder overrides how images are loaded.
func WithDecoder(d media.Decoder) Option { return func(o *options) { o.decoder = d } }

// WithReporter sets the telemetry reporter for unexpected failures.
func WithReporter(r telemetry.Reporter) Option { return func(o *options) { o.reporter = r } }

// Adapter shares one post as an X (Twitter) status.
type Adapter struct {
	req     xpost.Request
	tokens  TokenResolver
	factory ClientFactory
	decoder media.Decoder
	events  *xpost.Dispatcher
}

// New validates req and returns a single-use adapter. Without WithClientFactory,
// consumer credentials come from WithConfig or the environment.
func New(req *xpost.Request, tokens TokenResolver, opts ...Option) (*Adapter, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, errors.New("twitter: token resolver is required")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.factory == nil {
		cfg, err := resolveConfig(o.config)
		if err != nil {
			return nil, err
		}
		o.factory = NewClientFactory(cfg)
	}
	if o.decoder == nil {
		o.decoder = media.FileDecoder{}
	}

	return &Adapter{
		req:     *req,
		tokens:  tokens,
		factory: o.factory,
		decoder: o.decoder,
		events:  xpost.NewDispatcher(providerName, o.reporter),
	}, nil
}

func resolveConfig(cfg *Config) (Config, error) {
	if cfg != nil {
		return *cfg, cfg.Validate()
	}
	return LoadConfigFromEnv()
}

// Name returns the provider identifier.
func (a *Adapter) Name() string { return providerName }

// SetListener registers the share listener and the executor its callbacks run on.
func (a *Adapter) SetListener(l xpost.Listener, exec xpost.Executor) {
	a.events.SetListener(l, exec)
}

// State returns the lifecycle state.
func (a *Adapter) State() xpost.State { return a.events.State() }

// ShareAsync signals start and posts the status in the background.
func (a *Adapter) ShareAsync(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if !a.events.Start() {
		return
	}
	go a.share(ctx)
}

func (a *Adapter) share(ctx context.Context) {
	defer a.events.Recover(ctx)

	s, err := a.tokens.Resolve(ctx, a.req.User)
	if err != nil {
		a.events.Fail(ctx, err)
		return
	}

	update, err := a.buildStatus()
	if err != nil {
		a.events.Fail(ctx, err)
		return
	}

	client, err := a.factory(ctx, s)
	if err != nil {
		a.events.Fail(ctx, err)
		return
	}
	client.AddListener(&statusListener{ctx: ctx, events: a.events})

	logutil.Debugf("twitter: updating status for %s media=%t", a.req.User, update.Media != nil)
	client.UpdateStatus(ctx, update)
}

func (a *Adapter) buildStatus() (*StatusUpdate, error) {
	update := &StatusUpdate{Text: statusText(a.req)}
	if a.req.HasImage() {
		img, err := a.decoder.Decode(a.req.Image)
		if err != nil {
			return nil, err
		}
		update.Media = img
		update.MediaAlt = a.req.ImageAlt
	}
	return update, nil
}

// statusText joins the message and link with a single space.
func statusText(req xpost.Request) string {
	text := req.Message
	if req.HasLink() {
		link := strings.TrimSpace(req.Link)
		if text == "" {
			return link
		}
		text += " " + link
	}
	return text
}

type statusListener struct {
	ctx    context.Context
	events *xpost.Dispatcher
}

func (l *statusListener) UpdatedStatus(status *Status) {
	defer l.events.Recover(l.ctx)
	if status == nil {
		l.events.Fail(l.ctx, xpost.UnexpectedError{Err: errors.New("empty status")})
		return
	}
	l.events.Succeed(strconv.FormatInt(status.ID, 10))
}

func (l *statusListener) OnException(err error, method Method) {
	defer l.events.Recover(l.ctx)
	if err == nil {
		err = errors.New(method.String() + " failed")
	}
	if method == MethodUpdateStatus {
		l.events.Fail(l.ctx, err)
		return
	}
	l.events.Fail(l.ctx, xpost.UnexpectedError{Prefix: unknownMethodPrefix, Err: err})
}
