package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/blacktop/xshare/internal/logutil"
	"github.com/blacktop/xshare/internal/media"
	"github.com/blacktop/xshare/internal/session"
	"github.com/blacktop/xshare/internal/xpost"
	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/media/upload"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
	"github.com/michimani/gotwi/tweet/managetweet"
	managetweettypes "github.com/michimani/gotwi/tweet/managetweet/types"
)

const (
	envAPIKey    = "XSHARE_TWITTER_CONSUMER_KEY"
	envAPISecret = "XSHARE_TWITTER_CONSUMER_SECRET"

	metadataEndpoint = "https://upload.twitter.com/1.1/media/metadata/create.json"
)

var httpTimeout = 30 * time.Second

// Config holds the application (consumer) credentials. User tokens come
// from the session resolver.
type Config struct {
	APIKey    string
	APISecret string
}

// LoadConfigFromEnv reads the consumer credentials from the environment.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		APIKey:    strings.TrimSpace(os.Getenv(envAPIKey)),
		APISecret: strings.TrimSpace(os.Getenv(envAPISecret)),
	}
	return cfg, cfg.Validate()
}

// Validate reports missing credentials.
func (c Config) Validate() error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, envAPIKey)
	}
	if c.APISecret == "" {
		missing = append(missing, envAPISecret)
	}
	if len(missing) > 0 {
		return xpost.MissingEnvError{Provider: providerName, Variables: missing}
	}
	return nil
}

// API publishes statuses synchronously.
type API interface {
	UpdateStatus(ctx context.Context, update *StatusUpdate) (*Status, error)
}

// gotwiAPI implements API with gotwi and OAuth 1.0a user-context requests.
type gotwiAPI struct {
	api *gotwi.Client
}

func newGotwiAPI(cfg Config, s *session.Session) (*gotwiAPI, error) {
	client, err := gotwi.NewClient(&gotwi.NewClientInput{
		HTTPClient:           &http.Client{Timeout: httpTimeout},
		AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
		OAuthToken:           s.AccessToken,
		OAuthTokenSecret:     s.AccessSecret,
		APIKey:               cfg.APIKey,
		APIKeySecret:         cfg.APISecret,
		Debug:                os.Getenv("XSHARE_TWITTER_DEBUG") == "1" || logutil.Verbose(),
	})
	if err != nil {
		return nil, fmt.Errorf("create X client: %w", err)
	}
	if !client.IsReady() {
		return nil, errors.New("twitter client not ready")
	}
	return &gotwiAPI{api: client}, nil
}

func (c *gotwiAPI) UpdateStatus(ctx context.Context, update *StatusUpdate) (*Status, error) {
	var mediaIDs []string
	if update.Media != nil {
		logutil.Debugf("uploading media: name=%s", update.Media.Name)
		mediaID, err := c.uploadMedia(ctx, update.Media, update.MediaAlt)
		if err != nil {
			return nil, err
		}
		mediaIDs = append(mediaIDs, mediaID)
		logutil.Debugf("media uploaded: media_id=%s", mediaID)
	}

	input := createInput(update.Text, mediaIDs)
	logutil.Debugf("posting tweet: media_count=%d", len(mediaIDs))
	out, err := managetweet.Create(ctx, c.api, input)
	if err != nil {
		return nil, fmt.Errorf("post tweet: %w", unwrapGotwiError(err))
	}

	rawID := gotwi.StringValue(out.Data.ID)
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("post tweet: malformed id %q: %w", rawID, err)
	}
	logutil.Debugf("tweet posted: id=%d", id)

	return &Status{ID: id, Text: gotwi.StringValue(out.Data.Text)}, nil
}

// createInput omits empty text so media-only tweets are accepted.
func createInput(text string, mediaIDs []string) *managetweettypes.CreateInput {
	input := &managetweettypes.CreateInput{}
	if text != "" {
		input.Text = gotwi.String(text)
	}
	if len(mediaIDs) > 0 {
		input.Media = &managetweettypes.CreateInputMedia{MediaIDs: mediaIDs}
	}
	return input
}

func (c *gotwiAPI) uploadMedia(ctx context.Context, img *media.Image, altText string) (string, error) {
	mediaType, category, err := resolveMediaType(img)
	if err != nil {
		return "", err
	}

	logutil.Debugf("initialize upload: media_type=%s bytes=%d", mediaType, len(img.Data))
	initRes, err := upload.Initialize(ctx, c.api, &uploadtypes.InitializeInput{
		MediaType:     mediaType,
		TotalBytes:    len(img.Data),
		MediaCategory: category,
	})
	if err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}
	if err := partialError(initRes.Errors); err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}

	mediaID := initRes.Data.MediaID

	appendIn := &uploadtypes.AppendInput{
		MediaID:      mediaID,
		Media:        bytes.NewReader(img.Data),
		SegmentIndex: 0,
	}
	appendIn.GenerateBoundary()

	appendRes, err := upload.Append(ctx, c.api, appendIn)
	if err != nil {
		return "", fmt.Errorf("append upload: %w", err)
	}
	if err := partialError(appendRes.Errors); err != nil {
		return "", fmt.Errorf("append upload: %w", err)
	}

	finalizeRes, err := upload.Finalize(ctx, c.api, &uploadtypes.FinalizeInput{MediaID: mediaID})
	if err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}
	if err := partialError(finalizeRes.Errors); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	state := finalizeRes.Data.ProcessingInfo.State
	logutil.Debugf("finalize state=%s media_id=%s", state, mediaID)
	switch state {
	case "", resources.ProcessingInfoStateSucceeded:
	case resources.ProcessingInfoStateInProgress, resources.ProcessingInfoStatePending:
		wait := time.Duration(finalizeRes.Data.ProcessingInfo.CheckAfterSecs) * time.Second
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	default:
		return "", fmt.Errorf("media processing failed: state=%s", state)
	}

	if alt := strings.TrimSpace(altText); alt != "" {
		if err := c.setAltText(ctx, mediaID, alt); err != nil {
			return "", err
		}
	}

	return mediaID, nil
}

func (c *gotwiAPI) setAltText(ctx context.Context, mediaID, altText string) error {
	params := &metadataParameters{
		mediaID: mediaID,
		altText: altText,
	}

	ctx = context.WithValue(ctx, "Content-Type", "application/json;charset=UTF-8")

	if err := c.api.CallAPI(ctx, metadataEndpoint, http.MethodPost, params, &metadataResponse{}); err != nil {
		return fmt.Errorf("set alt text: %w", unwrapGotwiError(err))
	}
	logutil.Debugf("alt text set: media_id=%s", mediaID)

	return nil
}

func resolveMediaType(img *media.Image) (uploadtypes.MediaType, uploadtypes.MediaCategory, error) {
	switch img.MIME {
	case "image/jpeg":
		return uploadtypes.MediaTypeJPEG, uploadtypes.MediaCategoryTweetImage, nil
	case "image/png":
		return uploadtypes.MediaTypePNG, uploadtypes.MediaCategoryTweetImage, nil
	case "image/gif":
		return uploadtypes.MediaTypeGIF, uploadtypes.MediaCategoryTweetGIF, nil
	case "image/webp":
		return uploadtypes.MediaTypeWebP, uploadtypes.MediaCategoryTweetImage, nil
	}
	return "", "", xpost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("unsupported image type %s for %q", img.MIME, img.Name)}
}

func partialError(partials []resources.PartialError) error {
	if len(partials) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(partials))
	for _, pe := range partials {
		switch {
		case pe.Detail != nil && *pe.Detail != "":
			msgs = append(msgs, *pe.Detail)
		case pe.Title != nil && *pe.Title != "":
			msgs = append(msgs, *pe.Title)
		case pe.ResourceType != nil:
			msgs = append(msgs, fmt.Sprintf("%s", *pe.ResourceType))
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "unknown error")
	}
	return errors.New(strings.Join(msgs, "; "))
}

func unwrapGotwiError(err error) error {
	var gwErr *gotwi.GotwiError
	if errors.As(err, &gwErr) && gwErr != nil {
		return xpost.ProviderError{Provider: providerName, Message: summarizeGotwiError(gwErr), Err: err}
	}
	return err
}

func summarizeGotwiError(err *gotwi.GotwiError) string {
	parts := make([]string, 0, 4)
	if err.Title != "" {
		parts = append(parts, err.Title)
	}
	if err.Detail != "" {
		parts = append(parts, err.Detail)
	}
	for _, apiErr := range err.APIErrors {
		if apiErr.Message != "" {
			parts = append(parts, apiErr.Message)
		}
	}
	if len(parts) == 0 {
		if msg := err.Error(); msg != "" {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "X API request failed")
	}

	return strings.Join(parts, "; ")
}

type metadataParameters struct {
	mediaID     string
	altText     string
	accessToken string
}

func (p *metadataParameters) SetAccessToken(token string) {
	p.accessToken = token
}

func (p *metadataParameters) AccessToken() string {
	return p.accessToken
}

func (p *metadataParameters) ResolveEndpoint(endpointBase string) string {
	return endpointBase
}

func (p *metadataParameters) Body() (io.Reader, error) {
	body := struct {
		MediaID string `json:"media_id"`
		AltText struct {
			Text string `json:"text"`
		} `json:"alt_text"`
	}{}
	body.MediaID = p.mediaID
	body.AltText.Text = p.altText

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

func (p *metadataParameters) ParameterMap() map[string]string {
	return map[string]string{}
}

type metadataResponse struct{}

func (metadataResponse) HasPartialError() bool { return false }
