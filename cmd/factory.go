package cmd

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/blacktop/xshare/internal/config"
	"github.com/blacktop/xshare/internal/session"
	"github.com/blacktop/xshare/internal/telemetry"
	"github.com/blacktop/xshare/internal/xpost"
	"github.com/blacktop/xshare/internal/xpost/bluesky"
	"github.com/blacktop/xshare/internal/xpost/facebook"
	"github.com/blacktop/xshare/internal/xpost/mastodon"
	"github.com/blacktop/xshare/internal/xpost/twitter"
	"golang.org/x/oauth2"
	fboauth "golang.org/x/oauth2/facebook"
)

type constructor func(req *xpost.Request, cfg *config.Config, store *session.MemoryStore, reporter telemetry.Reporter) (xpost.Adapter, error)

var constructors = map[string]constructor{
	"facebook": newFacebook,
	"twitter":  newTwitter,
	"mastodon": newMastodon,
	"bluesky":  newBluesky,
}

func supportedNetworks() []string {
	out := make([]string, 0, len(constructors))
	for name := range constructors {
		out = append(out, name)
	}
	return out
}

func buildAdapters(req *xpost.Request, networks []string, cfg *config.Config) ([]xpost.Adapter, error) {
	store := cfg.Store()
	reporter := telemetry.Default()

	adapters := make([]xpost.Adapter, 0, len(networks))
	var errs []error
	for _, network := range networks {
		build, ok := constructors[network]
		if !ok {
			errs = append(errs, fmt.Errorf("network %q is not implemented", network))
			continue
		}
		adapter, err := build(req, cfg, store, reporter)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", network, err))
			continue
		}
		adapters = append(adapters, adapter)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(adapters) == 0 {
		return nil, errors.New("no networks available")
	}
	return adapters, nil
}

func newFacebook(req *xpost.Request, cfg *config.Config, store *session.MemoryStore, reporter telemetry.Reporter) (xpost.Adapter, error) {
	opts := []session.Option{session.WithDirectory(store)}
	if cfg.Facebook.AppID != "" {
		opts = append(opts, session.WithOpener(session.OAuth2Opener{
			Provider: "facebook",
			Config: &oauth2.Config{
				ClientID:     cfg.Facebook.AppID,
				ClientSecret: cfg.Facebook.AppSecret,
				Endpoint:     fboauth.Endpoint,
			},
		}))
	}
	resolver := session.NewResolver("facebook", store, opts...)

	graph := facebook.NewGraphClient()
	graph.BaseURL = cfg.Facebook.GraphURL
	graph.Version = cfg.Facebook.GraphVersion
	graph.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	adapter, err := facebook.New(req, resolver, facebook.WithClient(graph), facebook.WithReporter(reporter))
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

func newTwitter(req *xpost.Request, cfg *config.Config, store *session.MemoryStore, reporter telemetry.Reporter) (xpost.Adapter, error) {
	resolver := session.NewResolver("twitter", store)
	adapter, err := twitter.New(req, resolver,
		twitter.WithConfig(twitter.Config{APIKey: cfg.Twitter.ConsumerKey, APISecret: cfg.Twitter.ConsumerSecret}),
		twitter.WithReporter(reporter),
	)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

func newMastodon(req *xpost.Request, cfg *config.Config, store *session.MemoryStore, reporter telemetry.Reporter) (xpost.Adapter, error) {
	resolver := session.NewResolver("mastodon", store)
	adapter, err := mastodon.New(req, mastodon.Config{
		Server:       cfg.Mastodon.Server,
		ClientID:     cfg.Mastodon.ClientID,
		ClientSecret: cfg.Mastodon.ClientSecret,
	}, resolver, mastodon.WithReporter(reporter))
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

func newBluesky(req *xpost.Request, cfg *config.Config, store *session.MemoryStore, reporter telemetry.Reporter) (xpost.Adapter, error) {
	bcfg := bluesky.LoadConfig(bluesky.Config{PDSURL: cfg.Bluesky.PDSURL})
	resolver := session.NewResolver("bluesky", store, session.WithOpener(bluesky.Opener{Config: bcfg}))
	adapter, err := bluesky.New(req, bcfg, resolver, bluesky.WithReporter(reporter))
	if err != nil {
		return nil, err
	}
	return adapter, nil
}
