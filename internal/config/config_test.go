package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blacktop/xshare/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
timeout: 45s
twitter:
  consumer_key: ck
  consumer_secret: cs
mastodon:
  server: https://example.social
accounts:
  - provider: facebook
    identity: "123"
    access_token: fb-token
    expires_at: "2030-01-02T03:04:05Z"
  - provider: Twitter
    identity: alice
    access_token: tw-token
    access_secret: tw-secret
  - provider: bluesky
    identity: alice.bsky.social
    access_secret: app-pass
pages:
  - page: "456"
    owner: "123"
  - page: AcmeWidgets
    owner: "123"
tracing:
  enabled: true
  exporter: grpc
  endpoint: collector:4317
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, "ck", cfg.Twitter.ConsumerKey)
	assert.Equal(t, "https://example.social", cfg.Mastodon.Server)
	assert.Equal(t, "https://bsky.social", cfg.Bluesky.PDSURL)
	assert.Equal(t, "v19.0", cfg.Facebook.GraphVersion)
	require.Len(t, cfg.Accounts, 3)
	assert.Equal(t, []Page{{Page: "456", Owner: "123"}, {Page: "AcmeWidgets", Owner: "123"}}, cfg.Pages)
	assert.Equal(t, Tracing{Enabled: true, Exporter: "grpc", Endpoint: "collector:4317", SampleRate: 1}, cfg.Tracing)
}

func TestLoadTracingDefaults(t *testing.T) {
	t.Setenv("XSHARE_TRACING_ENABLED", "true")
	cfg, err := Load(writeConfig(t, "timeout: 10s\n"))
	require.NoError(t, err)
	assert.Equal(t, Tracing{Enabled: true, Exporter: "http", SampleRate: 1}, cfg.Tracing)
}

func TestLoadRejectsBadPages(t *testing.T) {
	_, err := Load(writeConfig(t, "pages:\n  - page: \"456\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pages[0]: page and owner are required")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("XSHARE_TWITTER_CONSUMER_KEY", "from-env")
	t.Setenv("XSHARE_MASTODON_SERVER", "https://env.social")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Twitter.ConsumerKey)
	assert.Equal(t, "cs", cfg.Twitter.ConsumerSecret)
	assert.Equal(t, "https://env.social", cfg.Mastodon.Server)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadAccounts(t *testing.T) {
	_, err := Load(writeConfig(t, "accounts:\n  - provider: facebook\n  - provider: twitter\n    identity: a\n    expires_at: tomorrow\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accounts[0]")
	assert.Contains(t, err.Error(), "accounts[1]: expires_at")
}

func TestStore(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	store := cfg.Store()
	ctx := context.Background()

	fb, err := store.Session(ctx, "facebook", "123")
	require.NoError(t, err)
	assert.True(t, fb.IsOpen())
	assert.Equal(t, 2030, fb.Expiry.Year())

	tw, err := store.Session(ctx, "twitter", "alice")
	require.NoError(t, err)
	assert.Equal(t, "tw-secret", tw.AccessSecret)

	bs, err := store.Session(ctx, "bluesky", "alice.bsky.social")
	require.NoError(t, err)
	assert.Equal(t, session.StateUnopened, bs.State)

	owner, ok, err := store.PageOwner(ctx, "456")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "123", owner)

	owner, ok, err = store.PageOwner(ctx, "AcmeWidgets")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "123", owner)
}
