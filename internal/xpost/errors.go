package xpost

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest matches every InvalidRequestError.
var ErrInvalidRequest = errors.New("invalid post request")

// UnexpectedPrefix is prepended to messages of unanticipated failures.
const UnexpectedPrefix = "Unexpected exception: "

// MissingEnvError is returned when required configuration is missing.
type MissingEnvError struct {
	Provider  string
	Variables []string
}

func (e MissingEnvError) Error() string {
	if len(e.Variables) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Provider)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Provider, strings.Join(e.Variables, ", "))
}

// ValidationError captures provider-specific validation issues.
type ValidationError struct {
	Provider string
	Reason   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Provider, e.Reason)
}

// InvalidRequestError is returned when an adapter is constructed with a malformed request.
type InvalidRequestError struct {
	Reason string
}

func (e InvalidRequestError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidRequest, e.Reason)
}

func (e InvalidRequestError) Is(target error) bool { return target == ErrInvalidRequest }

// SessionError reports that no open session could be obtained for an identity.
type SessionError struct {
	Provider string
	Identity string
	Err      error
}

func (e SessionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("couldn't open %s session for %s", e.Provider, e.Identity)
	}
	return fmt.Sprintf("couldn't open %s session for %s: %v", e.Provider, e.Identity, e.Err)
}

func (e SessionError) Unwrap() error { return e.Err }

// ProviderError is a network or API level failure reported by the provider.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s request failed", e.Provider)
}

func (e ProviderError) Unwrap() error { return e.Err }

// UnexpectedError wraps a condition no adapter code path anticipated.
// Prefix defaults to UnexpectedPrefix.
type UnexpectedError struct {
	Prefix string
	Err    error
}

func (e UnexpectedError) Error() string {
	prefix := e.Prefix
	if prefix == "" {
		prefix = UnexpectedPrefix
	}
	if e.Err == nil {
		return prefix + "unknown error"
	}
	return prefix + e.Err.Error()
}

func (e UnexpectedError) Unwrap() error { return e.Err }

// IsUnexpected reports whether err should be forwarded to telemetry.
func IsUnexpected(err error) bool {
	var ue UnexpectedError
	return errors.As(err, &ue)
}
