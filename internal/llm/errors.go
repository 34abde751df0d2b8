package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse is returned when the oracle answers with no text.
var ErrEmptyResponse = errors.New("empty response from oracle")

// Error is a failed oracle call with enough detail to decide on a retry
type Error struct {
	Provider   string
	StatusCode int  // HTTP status, 0 for transport failures
	Retryable  bool // Rate limits, server errors and timeouts
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error (%d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s API error: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return isTransient(err)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// statusError wraps a non-200 response from a hand-rolled HTTP provider.
func statusError(provider string, code int, msg string) *Error {
	return &Error{
		Provider:   provider,
		StatusCode: code,
		Retryable:  retryableStatus(code),
		Err:        errors.New(msg),
	}
}

// transportError wraps a failure that produced no HTTP response.
func transportError(provider string, err error) *Error {
	var netErr net.Error
	retryable := isTransient(err) || (errors.As(err, &netErr) && !errors.Is(err, context.Canceled))
	return &Error{Provider: provider, Retryable: retryable, Err: err}
}

// classifyOpenAI maps go-openai error types onto Error.
func classifyOpenAI(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{
			Provider:   "openai",
			StatusCode: apiErr.HTTPStatusCode,
			Retryable:  retryableStatus(apiErr.HTTPStatusCode),
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{
			Provider:   "openai",
			StatusCode: reqErr.HTTPStatusCode,
			Retryable:  retryableStatus(reqErr.HTTPStatusCode),
			Err:        err,
		}
	}
	return transportError("openai", err)
}
