package twitter

import (
	"context"
	"fmt"
	"sync"

	"github.com/blacktop/xshare/internal/media"
	"github.com/blacktop/xshare/internal/xpost"
)

// Method tags the API call a listener event belongs to.
type Method int

const (
	MethodUnknown Method = iota
	MethodUpdateStatus
	MethodUploadMedia
	MethodVerifyCredentials
)

func (m Method) String() string {
	switch m {
	case MethodUpdateStatus:
		return "UPDATE_STATUS"
	case MethodUploadMedia:
		return "UPLOAD_MEDIA"
	case MethodVerifyCredentials:
		return "VERIFY_CREDENTIALS"
	default:
		return fmt.Sprintf("METHOD(%d)", int(m))
	}
}

// StatusUpdate is the status to publish.
type StatusUpdate struct {
	Text     string
	Media    *media.Image
	MediaAlt string
}

// Status is a published status.
type Status struct {
	ID   int64
	Text string
}

// Listener receives results from an AsyncClient, on the client's goroutine.
type Listener interface {
	UpdatedStatus(status *Status)
	OnException(err error, method Method)
}

// AsyncClient issues API calls in the background and reports to its listeners.
type AsyncClient interface {
	AddListener(l Listener)
	UpdateStatus(ctx context.Context, update *StatusUpdate)
}

type asyncClient struct {
	api API

	mu        sync.Mutex
	listeners []Listener
}

// NewAsyncClient wraps a synchronous API.
func NewAsyncClient(api API) AsyncClient {
	return &asyncClient{api: api}
}

func (c *asyncClient) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *asyncClient) UpdateStatus(ctx context.Context, update *StatusUpdate) {
	go func() {
		status, err := c.call(ctx, update)
		for _, l := range c.snapshot() {
			if err != nil {
				l.OnException(err, MethodUpdateStatus)
				continue
			}
			l.UpdatedStatus(status)
		}
	}()
}

// call turns a panic in the API into an unexpected error.
func (c *asyncClient) call(ctx context.Context, update *StatusUpdate) (status *Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, err = nil, xpost.UnexpectedError{Err: fmt.Errorf("%v", r)}
		}
	}()
	return c.api.UpdateStatus(ctx, update)
}

func (c *asyncClient) snapshot() []Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Listener(nil), c.listeners...)
}
