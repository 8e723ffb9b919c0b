package gh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/go-github/v66/github"
)

// ErrorType represents different categories of GitHub API errors
type ErrorType string

const (
	ErrorTypeAuth      ErrorType = "authentication"
	ErrorTypeSchema    ErrorType = "schema"
	ErrorTypeNetwork   ErrorType = "network"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeGraphQL   ErrorType = "graphql"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error is a classified failure of a GraphQL call.
type Error struct {
	Type     ErrorType
	Message  string
	Resource string
	Cause    error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s error for %s: %s", e.Type, e.Resource, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewSchemaError reports a response that lacks the fields a query expects.
func NewSchemaError(resource, message string) *Error {
	return &Error{Type: ErrorTypeSchema, Message: message, Resource: resource}
}

// IsType reports whether err carries a *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// IsFatal reports whether err should abort the running procedure instead of
// being isolated to the item at hand. Credential, rate limit and connection
// failures affect every subsequent call equally.
func IsFatal(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	}
	switch e.Type {
	case ErrorTypeAuth, ErrorTypeNetwork, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// wrapError classifies an error returned by the GraphQL client.
func wrapError(err error, resource string) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		if e.Resource == "" {
			e.Resource = resource
		}
		return e
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &Error{
			Type:     ErrorTypeRateLimit,
			Message:  fmt.Sprintf("rate limit exceeded, resets at %v", rateErr.Rate.Reset.Time),
			Resource: resource,
			Cause:    err,
		}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &Error{
			Type:     ErrorTypeRateLimit,
			Message:  "secondary rate limit exceeded",
			Resource: resource,
			Cause:    err,
		}
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		return parseErrorResponse(respErr, resource)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Type: ErrorTypeNetwork, Message: "request timed out", Resource: resource, Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Type: ErrorTypeNetwork, Message: err.Error(), Resource: resource, Cause: err}
	}

	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "decoding response"), strings.HasPrefix(msg, "reading body"):
		return &Error{Type: ErrorTypeSchema, Message: msg, Resource: resource, Cause: err}
	case strings.HasPrefix(msg, "graphql: "):
		return &Error{
			Type:     ErrorTypeGraphQL,
			Message:  strings.TrimPrefix(msg, "graphql: "),
			Resource: resource,
			Cause:    err,
		}
	}

	return &Error{Type: ErrorTypeUnknown, Message: msg, Resource: resource, Cause: err}
}

// parseErrorResponse maps a non-2xx HTTP response onto an ErrorType.
func parseErrorResponse(respErr *github.ErrorResponse, resource string) *Error {
	e := &Error{Resource: resource, Cause: respErr, Message: respErr.Message}

	status := 0
	if respErr.Response != nil {
		status = respErr.Response.StatusCode
	}

	switch {
	case status == http.StatusUnauthorized:
		e.Type = ErrorTypeAuth
		e.Message = "bad credentials, check API_GITHUB_TOKEN"
	case status == http.StatusForbidden:
		e.Type = ErrorTypeAuth
		e.Message = "token lacks the required scopes (project, repo)"
	case status >= 500:
		e.Type = ErrorTypeNetwork
		e.Message = fmt.Sprintf("GitHub API temporarily unavailable (HTTP %d)", status)
	default:
		e.Type = ErrorTypeUnknown
		if e.Message == "" {
			e.Message = fmt.Sprintf("unexpected HTTP status %d", status)
		}
	}

	return e
}
