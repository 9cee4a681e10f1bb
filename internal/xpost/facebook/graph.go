package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"time"

	"github.com/blacktop/xshare/internal/logutil"
	"github.com/blacktop/xshare/internal/media"
	"github.com/blacktop/xshare/internal/session"
	"github.com/blacktop/xshare/internal/xpost"
	"golang.org/x/oauth2"
)

const (
	DefaultGraphURL     = "https://graph.facebook.com"
	DefaultGraphVersion = "v19.0"

	pictureField = "picture"
)

var requestTimeout = 60 * time.Second

// GraphRequest is a POST to the Graph API on behalf of a session.
type GraphRequest struct {
	Session *session.Session
	// Path is relative to the versioned Graph root, e.g. "123/feed".
	Path    string
	Params  map[string]string
	Picture *media.Image
}

// Response is the outcome of a GraphRequest. Exactly one of Error or Body is set.
type Response struct {
	Error *RequestError
	Body  json.RawMessage
}

// RequestError describes a failed Graph call.
type RequestError struct {
	StatusCode  int
	Code        int
	Subcode     int
	Type        string
	Message     string
	UserTitle   string
	UserMessage string
	Transient   bool
	// Err is set when the request never produced a Graph response.
	Err error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("(#%d) %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *RequestError) Unwrap() error { return e.Err }

// ErrorMessage returns the message suitable for display.
func (e *RequestError) ErrorMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// ShouldNotifyUser reports whether the error is one the user can act on:
// transport failures, authentication, permission and policy errors, and
// anything Graph attached a user-facing message to.
func (e *RequestError) ShouldNotifyUser() bool {
	switch {
	case e.Err != nil, e.UserMessage != "":
		return true
	case e.Transient:
		return false
	case e.IsSessionError():
		return true
	case e.Code == 10 || (e.Code >= 200 && e.Code <= 299):
		return true
	case e.Code == 368 || e.Code == 506:
		return true
	}
	return false
}

// IsSessionError reports whether the session token was rejected.
func (e *RequestError) IsSessionError() bool {
	return e.Code == 102 || e.Code == 190 || e.StatusCode == http.StatusUnauthorized
}

// Client issues Graph requests asynchronously. The callback is invoked
// exactly once, on a goroutine owned by the client.
type Client interface {
	ExecuteAsync(ctx context.Context, req *GraphRequest, callback func(*Response))
}

// GraphClient is a Client for the Graph HTTP API.
type GraphClient struct {
	BaseURL    string
	Version    string
	HTTPClient *http.Client
}

// NewGraphClient returns a client for the public Graph API.
func NewGraphClient() *GraphClient {
	return &GraphClient{
		BaseURL:    DefaultGraphURL,
		Version:    DefaultGraphVersion,
		HTTPClient: &http.Client{Timeout: requestTimeout},
	}
}

func (c *GraphClient) ExecuteAsync(ctx context.Context, req *GraphRequest, callback func(*Response)) {
	go func() {
		callback(c.do(ctx, req))
	}()
}

// do is Do with a panic turned into an unexpected error.
func (c *GraphClient) do(ctx context.Context, req *GraphRequest) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = transportError(xpost.UnexpectedError{Err: fmt.Errorf("%v", r)})
		}
	}()
	return c.Do(ctx, req)
}

// Do performs req synchronously.
func (c *GraphClient) Do(ctx context.Context, req *GraphRequest) *Response {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	endpoint, err := url.JoinPath(c.BaseURL, c.Version, req.Path)
	if err != nil {
		return transportError(fmt.Errorf("build graph url: %w", err))
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return transportError(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return transportError(fmt.Errorf("create graph request: %w", err))
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	base := c.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	httpClient := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), req.Session.TokenSource())

	logutil.Debugf("graph POST %s picture=%t", req.Path, req.Picture != nil)
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return transportError(fmt.Errorf("graph request: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(fmt.Errorf("read graph response: %w", err))
	}
	return decodeResponse(resp.StatusCode, data)
}

func transportError(err error) *Response {
	return &Response{Error: &RequestError{Err: err}}
}

func encodeBody(req *GraphRequest) (io.Reader, string, error) {
	if req.Picture == nil {
		form := url.Values{}
		for k, v := range req.Params {
			form.Set(k, v)
		}
		return bytes.NewBufferString(form.Encode()), "application/x-www-form-urlencoded", nil
	}

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	keys := make([]string, 0, len(req.Params))
	for k := range req.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, req.Params[k]); err != nil {
			return nil, "", fmt.Errorf("encode %s: %w", k, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, pictureField, req.Picture.Name))
	header.Set("Content-Type", req.Picture.MIME)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("encode picture: %w", err)
	}
	if _, err := part.Write(req.Picture.Data); err != nil {
		return nil, "", fmt.Errorf("encode picture: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("encode picture: %w", err)
	}
	return buf, mw.FormDataContentType(), nil
}

type graphErrorEnvelope struct {
	Error *struct {
		Message        string `json:"message"`
		Type           string `json:"type"`
		Code           int    `json:"code"`
		ErrorSubcode   int    `json:"error_subcode"`
		ErrorUserTitle string `json:"error_user_title"`
		ErrorUserMsg   string `json:"error_user_msg"`
		IsTransient    bool   `json:"is_transient"`
	} `json:"error"`
}

func decodeResponse(status int, data []byte) *Response {
	var env graphErrorEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Error != nil {
		return &Response{Error: &RequestError{
			StatusCode:  status,
			Code:        env.Error.Code,
			Subcode:     env.Error.ErrorSubcode,
			Type:        env.Error.Type,
			Message:     env.Error.Message,
			UserTitle:   env.Error.ErrorUserTitle,
			UserMessage: env.Error.ErrorUserMsg,
			Transient:   env.Error.IsTransient,
		}}
	}
	if status >= http.StatusBadRequest {
		return &Response{Error: &RequestError{
			StatusCode: status,
			Message:    fmt.Sprintf("graph request failed: %s", http.StatusText(status)),
		}}
	}
	return &Response{Body: json.RawMessage(data)}
}
