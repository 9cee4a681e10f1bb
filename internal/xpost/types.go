package xpost

import (
	"context"
	"strings"
)

// Request keys accepted by RequestFromParams.
const (
	KeyUser    = "user"
	KeyMessage = "message"
	KeyImage   = "image"
	KeyAlt     = "alt"
	KeyLink    = "link"
)

// Request defines the post shared with a single provider.
type Request struct {
	// User is the identity of the authoring user or page.
	User    string
	Message string
	// Image is a filesystem path or file:// URI.
	Image    string
	ImageAlt string
	Link     string
}

// HasImage reports whether an image is attached.
func (r Request) HasImage() bool { return strings.TrimSpace(r.Image) != "" }

// HasLink reports whether a link is attached.
func (r Request) HasLink() bool { return strings.TrimSpace(r.Link) != "" }

// Validate checks the request invariants: a user and at least one content field.
func (r *Request) Validate() error {
	if r == nil {
		return InvalidRequestError{Reason: "no post request provided"}
	}
	if strings.TrimSpace(r.User) == "" {
		return InvalidRequestError{Reason: "user is required"}
	}
	if strings.TrimSpace(r.Message) == "" && !r.HasImage() && !r.HasLink() {
		return InvalidRequestError{Reason: "one of message, image or link is required"}
	}
	return nil
}

// RequestFromParams builds a request from a key/value mapping and validates it.
func RequestFromParams(params map[string]string) (*Request, error) {
	if params == nil {
		return nil, InvalidRequestError{Reason: "no post parameters provided"}
	}
	req := &Request{
		User:     params[KeyUser],
		Message:  params[KeyMessage],
		Image:    params[KeyImage],
		ImageAlt: params[KeyAlt],
		Link:     params[KeyLink],
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// Adapter abstracts a social network that can publish a single post asynchronously.
//
// An adapter is single-use. All outcomes are delivered to the registered
// Listener; ShareAsync never returns an error.
type Adapter interface {
	Name() string
	SetListener(l Listener, exec Executor)
	ShareAsync(ctx context.Context)
}
