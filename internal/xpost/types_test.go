package xpost

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     *Request
		wantErr bool
	}{
		{"nil", nil, true},
		{"missing user", &Request{Message: "hi"}, true},
		{"blank user", &Request{User: "  ", Message: "hi"}, true},
		{"no content", &Request{User: "123"}, true},
		{"blank content", &Request{User: "123", Message: " ", Image: " ", Link: ""}, true},
		{"message", &Request{User: "123", Message: "hi"}, false},
		{"image only", &Request{User: "123", Image: "/tmp/a.png"}, false},
		{"link only", &Request{User: "123", Link: "https://example.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			var ire InvalidRequestError
			assert.True(t, errors.As(err, &ire))
		})
	}
}

func TestRequestFromParams(t *testing.T) {
	req, err := RequestFromParams(map[string]string{
		KeyUser:    "123",
		KeyMessage: "hi",
		KeyLink:    "https://example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, &Request{User: "123", Message: "hi", Link: "https://example.com"}, req)

	_, err = RequestFromParams(nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = RequestFromParams(map[string]string{KeyMessage: "hi"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestUnexpectedErrorMessage(t *testing.T) {
	err := UnexpectedError{Err: errors.New("nil graph object")}
	assert.Equal(t, "Unexpected exception: nil graph object", err.Error())
	assert.True(t, IsUnexpected(err))

	custom := UnexpectedError{Prefix: "weird: ", Err: errors.New("x")}
	assert.Equal(t, "weird: x", custom.Error())

	assert.False(t, IsUnexpected(ProviderError{Message: "denied"}))
	assert.Equal(t, "denied", ProviderError{Message: "denied"}.Error())
}

func TestSessionErrorUnwrap(t *testing.T) {
	inner := errors.New("token expired")
	err := SessionError{Provider: "facebook", Identity: "123", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "couldn't open facebook session for 123")
}
