package facebook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blacktop/xshare/internal/media"
	"github.com/blacktop/xshare/internal/xpost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T, handler http.HandlerFunc) *GraphClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &GraphClient{BaseURL: srv.URL, Version: DefaultGraphVersion, HTTPClient: srv.Client()}
}

func TestGraphClientPostsForm(t *testing.T) {
	c := newTestGraph(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v19.0/123/feed", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "hi", r.PostForm.Get("message"))
		_, _ = io.WriteString(w, `{"id":"123_1"}`)
	})

	resp := c.Do(context.Background(), &GraphRequest{
		Session: openSession("123"),
		Path:    "123/feed",
		Params:  map[string]string{"message": "hi"},
	})
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"id":"123_1"}`, string(resp.Body))
}

func TestGraphClientUploadsPicture(t *testing.T) {
	c := newTestGraph(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/123/photos", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "caption text", r.FormValue("caption"))
		f, hdr, err := r.FormFile("picture")
		if assert.NoError(t, err) {
			defer f.Close()
			data, _ := io.ReadAll(f)
			assert.Equal(t, "png-bytes", string(data))
			assert.Equal(t, "shot.png", hdr.Filename)
			assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		}
		_, _ = io.WriteString(w, `{"id":"9","post_id":"123_9"}`)
	})

	resp := c.Do(context.Background(), &GraphRequest{
		Session: openSession("123"),
		Path:    "123/photos",
		Params:  map[string]string{"caption": "caption text"},
		Picture: &media.Image{Name: "shot.png", MIME: "image/png", Data: []byte("png-bytes")},
	})
	require.Nil(t, resp.Error)
}

func TestGraphClientDecodesErrors(t *testing.T) {
	c := newTestGraph(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"Error validating access token","type":"OAuthException","code":190,"error_subcode":463}}`)
	})

	resp := c.Do(context.Background(), &GraphRequest{Session: openSession("123"), Path: "123/feed"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, 190, resp.Error.Code)
	assert.Equal(t, 463, resp.Error.Subcode)
	assert.True(t, resp.Error.IsSessionError())
	assert.True(t, resp.Error.ShouldNotifyUser())
	assert.Equal(t, "Error validating access token", resp.Error.ErrorMessage())
}

func TestGraphClientStatusWithoutEnvelope(t *testing.T) {
	c := newTestGraph(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	resp := c.Do(context.Background(), &GraphRequest{Session: openSession("123"), Path: "123/feed"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, http.StatusBadGateway, resp.Error.StatusCode)
	assert.False(t, resp.Error.ShouldNotifyUser())
}

func TestGraphClientExecuteAsync(t *testing.T) {
	c := newTestGraph(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"1"}`)
	})

	done := make(chan *Response, 1)
	c.ExecuteAsync(context.Background(), &GraphRequest{Session: openSession("123"), Path: "123/feed"}, func(r *Response) {
		done <- r
	})
	resp := <-done
	assert.Nil(t, resp.Error)
}

func TestShouldNotifyUser(t *testing.T) {
	tests := []struct {
		name string
		err  *RequestError
		want bool
	}{
		{"transport", &RequestError{Err: io.ErrUnexpectedEOF}, true},
		{"user message", &RequestError{Code: 100, UserMessage: "Link is invalid"}, true},
		{"permission", &RequestError{Code: 200}, true},
		{"app permission", &RequestError{Code: 10}, true},
		{"token", &RequestError{Code: 190}, true},
		{"duplicate", &RequestError{Code: 506}, true},
		{"transient", &RequestError{Code: 2, Transient: true}, false},
		{"throttled", &RequestError{Code: 4}, false},
		{"bad parameter", &RequestError{Code: 100}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.ShouldNotifyUser())
		})
	}
}

type panicTransport struct{}

func (panicTransport) RoundTrip(*http.Request) (*http.Response, error) { panic("boom") }

func TestGraphClientPanicFailsShare(t *testing.T) {
	reporter := &countingReporter{}
	client := &GraphClient{BaseURL: DefaultGraphURL, Version: DefaultGraphVersion, HTTPClient: &http.Client{Transport: panicTransport{}}}
	a, err := New(&xpost.Request{User: "123", Message: "hi"}, staticResolver{s: openSession("123")},
		WithClient(client), WithReporter(reporter))
	require.NoError(t, err)

	events := share(t, a)
	assert.Equal(t, xpost.OutcomeFailed, events[1].Kind)
	assert.Equal(t, "Unexpected exception: boom", events[1].Message)
	assert.Equal(t, 1, reporter.Count())
}
