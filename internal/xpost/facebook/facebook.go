package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/blacktop/xshare/internal/logutil"
	"github.com/blacktop/xshare/internal/media"
	"github.com/blacktop/xshare/internal/session"
	"github.com/blacktop/xshare/internal/telemetry"
	"github.com/blacktop/xshare/internal/xpost"
)

const (
	providerName = "facebook"

	segmentFeed   = "feed"
	segmentPhotos = "photos"
)

// SessionResolver returns an open session able to publish for an identity.
// Page identities resolve to their owner's session.
type SessionResolver interface {
	Resolve(ctx context.Context, identity string) (*session.Session, error)
}

type forgetter interface {
	Forget(ctx context.Context, user string)
}

// Option configures an Adapter.
type Option func(*options)

type options struct {
	client   Client
	decoder  media.Decoder
	reporter telemetry.Reporter
}

// WithClient overrides the Graph client.
func WithClient(c Client) Option { return func(o *options) { o.client = c } }

// WithDecoder overrides how images are decoded.
func WithDecoder(d media.Decoder) Option { return func(o *options) { o.decoder = d } }

// WithReporter sets the telemetry reporter for unexpected failures.
func WithReporter(r telemetry.Reporter) Option { return func(o *options) { o.reporter = r } }

// Adapter shares one post to a Facebook user or page.
type Adapter struct {
	req      xpost.Request
	sessions SessionResolver
	client   Client
	decoder  media.Decoder
	events   *xpost.Dispatcher
}

// New validates req and returns a single-use adapter.
func New(req *xpost.Request, sessions SessionResolver, opts ...Option) (*Adapter, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if sessions == nil {
		return nil, errors.New("facebook: session resolver is required")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = NewGraphClient()
	}
	if o.decoder == nil {
		o.decoder = media.FileDecoder{}
	}

	return &Adapter{
		req:      *req,
		sessions: sessions,
		client:   o.client,
		decoder:  o.decoder,
		events:   xpost.NewDispatcher(providerName, o.reporter),
	}, nil
}

// Name returns the provider identifier.
func (a *Adapter) Name() string { return providerName }

// SetListener registers the share listener and the executor it runs on.
func (a *Adapter) SetListener(l xpost.Listener, exec xpost.Executor) {
	a.events.SetListener(l, exec)
}

// State returns the lifecycle state.
func (a *Adapter) State() xpost.State { return a.events.State() }

// ShareAsync signals start and publishes the post in the background.
func (a *Adapter) ShareAsync(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if !a.events.Start() {
		return
	}
	go a.share(ctx)
}

func (a *Adapter) share(ctx context.Context) {
	defer a.events.Recover(ctx)

	req, err := a.buildRequest(ctx)
	if err != nil {
		a.events.Fail(ctx, err)
		return
	}
	a.client.ExecuteAsync(ctx, req, func(resp *Response) {
		a.handleResponse(ctx, req, resp)
	})
}

func (a *Adapter) buildRequest(ctx context.Context) (*GraphRequest, error) {
	s, err := a.sessions.Resolve(ctx, a.req.User)
	if err != nil {
		return nil, err
	}
	if !s.IsOpen() {
		return nil, xpost.SessionError{Provider: providerName, Identity: a.req.User}
	}

	params := make(map[string]string)
	segment := segmentFeed
	var picture *media.Image

	switch {
	case a.req.HasImage():
		img, err := a.decoder.Decode(a.req.Image)
		if err != nil {
			return nil, err
		}
		if a.req.Message != "" {
			params["caption"] = a.req.Message
			params["description"] = a.req.Message
			params["name"] = a.req.Message
		}
		picture = img
		segment = segmentPhotos
	case a.req.HasLink():
		params["link"] = strings.TrimSpace(a.req.Link)
	}
	if a.req.Message != "" {
		params["message"] = a.req.Message
	}

	logutil.Debugf("facebook: publishing %s/%s as %s", a.req.User, segment, s.Identity)
	return &GraphRequest{
		Session: s,
		Path:    a.req.User + "/" + segment,
		Params:  params,
		Picture: picture,
	}, nil
}

func (a *Adapter) handleResponse(ctx context.Context, req *GraphRequest, resp *Response) {
	defer a.events.Recover(ctx)

	if resp != nil && resp.Error != nil && resp.Error.IsSessionError() {
		if f, ok := a.sessions.(forgetter); ok {
			f.Forget(ctx, req.Session.Identity)
		}
	}

	postID, err := parseResponse(resp)
	if err != nil {
		a.events.Fail(ctx, err)
		return
	}
	a.events.Succeed(postID)
}

func parseResponse(resp *Response) (string, error) {
	if resp == nil {
		return "", xpost.UnexpectedError{Err: errors.New("no graph response")}
	}
	if resp.Error != nil {
		if xpost.IsUnexpected(resp.Error.Err) {
			return "", resp.Error.Err
		}
		if resp.Error.ShouldNotifyUser() {
			return "", xpost.ProviderError{Provider: providerName, Message: resp.Error.ErrorMessage(), Err: resp.Error}
		}
		return "", xpost.UnexpectedError{Err: resp.Error}
	}
	if len(resp.Body) == 0 {
		return "", xpost.UnexpectedError{Err: errors.New("graph response has no body")}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &obj); err != nil {
		return "", fmt.Errorf("parse graph response: %w", err)
	}
	raw, ok := obj["id"]
	if !ok {
		return "", errors.New(`graph response has no "id"`)
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf(`graph response "id" is not a string: %w`, err)
	}
	if id == "" {
		return "", errors.New(`graph response "id" is empty`)
	}
	return id, nil
}
