// Package config loads provider settings and stored accounts from an
// optional YAML file and XSHARE_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blacktop/xshare/internal/session"
	"github.com/spf13/viper"
)

const envPrefix = "XSHARE"

// Config is the resolved configuration.
type Config struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Facebook Facebook      `mapstructure:"facebook"`
	Twitter  Twitter       `mapstructure:"twitter"`
	Mastodon Mastodon      `mapstructure:"mastodon"`
	Bluesky  Bluesky       `mapstructure:"bluesky"`
	Tracing  Tracing       `mapstructure:"tracing"`
	Accounts []Account     `mapstructure:"accounts"`
	Pages    []Page        `mapstructure:"pages"`
}

type Facebook struct {
	AppID        string `mapstructure:"app_id"`
	AppSecret    string `mapstructure:"app_secret"`
	GraphURL     string `mapstructure:"graph_url"`
	GraphVersion string `mapstructure:"graph_version"`
}

type Twitter struct {
	ConsumerKey    string `mapstructure:"consumer_key"`
	ConsumerSecret string `mapstructure:"consumer_secret"`
}

type Mastodon struct {
	Server       string `mapstructure:"server"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type Bluesky struct {
	PDSURL string `mapstructure:"pds_url"`
}

// Tracing configures OTLP export of share spans.
type Tracing struct {
	Enabled    bool    `mapstructure:"enabled"`
	Exporter   string  `mapstructure:"exporter"`
	Endpoint   string  `mapstructure:"endpoint"`
	Insecure   bool    `mapstructure:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// Page maps a page identity to the user whose session publishes for it.
// Pages are a list rather than a map because viper lowercases map keys.
type Page struct {
	Page  string `mapstructure:"page"`
	Owner string `mapstructure:"owner"`
}

// Account is a stored credential for one identity on one provider.
type Account struct {
	Provider     string `mapstructure:"provider"`
	Identity     string `mapstructure:"identity"`
	Subject      string `mapstructure:"subject"`
	AccessToken  string `mapstructure:"access_token"`
	AccessSecret string `mapstructure:"access_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	// ExpiresAt is RFC 3339; empty means no expiry.
	ExpiresAt string `mapstructure:"expires_at"`
}

// envKeys are bound explicitly so Unmarshal sees nested environment values.
var envKeys = []string{
	"timeout",
	"facebook.app_id",
	"facebook.app_secret",
	"facebook.graph_url",
	"facebook.graph_version",
	"twitter.consumer_key",
	"twitter.consumer_secret",
	"mastodon.server",
	"mastodon.client_id",
	"mastodon.client_secret",
	"bluesky.pds_url",
	"tracing.enabled",
	"tracing.exporter",
	"tracing.endpoint",
	"tracing.insecure",
	"tracing.sample_rate",
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "xshare", "config.yaml")
}

// Load reads path (if set) and the environment. A missing file at the
// default location is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("timeout", "2m")
	v.SetDefault("facebook.graph_url", "https://graph.facebook.com")
	v.SetDefault("facebook.graph_version", "v19.0")
	v.SetDefault("bluesky.pds_url", "https://bsky.social")
	v.SetDefault("tracing.exporter", "http")
	v.SetDefault("tracing.sample_rate", 1.0)

	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			switch {
			case !explicit && (errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)):
			default:
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	for i, acct := range c.Accounts {
		if acct.Provider == "" || acct.Identity == "" {
			errs = append(errs, fmt.Errorf("accounts[%d]: provider and identity are required", i))
		}
		if acct.ExpiresAt != "" {
			if _, err := time.Parse(time.RFC3339, acct.ExpiresAt); err != nil {
				errs = append(errs, fmt.Errorf("accounts[%d]: expires_at: %w", i, err))
			}
		}
	}
	for i, p := range c.Pages {
		if p.Page == "" || p.Owner == "" {
			errs = append(errs, fmt.Errorf("pages[%d]: page and owner are required", i))
		}
	}
	return errors.Join(errs...)
}

// Store returns a session store and page directory seeded from the accounts.
// Accounts with an access token start open; the rest must be opened.
func (c *Config) Store() *session.MemoryStore {
	store := session.NewMemoryStore()
	for _, acct := range c.Accounts {
		s := &session.Session{
			Provider:     strings.ToLower(acct.Provider),
			Identity:     acct.Identity,
			Subject:      acct.Subject,
			AccessToken:  acct.AccessToken,
			AccessSecret: acct.AccessSecret,
			RefreshToken: acct.RefreshToken,
			State:        session.StateUnopened,
		}
		if acct.ExpiresAt != "" {
			s.Expiry, _ = time.Parse(time.RFC3339, acct.ExpiresAt)
		}
		if s.AccessToken != "" {
			s.State = session.StateOpen
		}
		// MemoryStore.Save never fails.
		_ = store.Save(context.Background(), s)
	}
	for _, p := range c.Pages {
		store.AddPage(p.Page, p.Owner)
	}
	return store
}
