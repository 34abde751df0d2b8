// Package search gathers corroborating evidence from a web search provider:
// one query against the official allow-list, one against the news
// allow-list and one per claimed source.
package search

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Query is a single search request
type Query struct {
	Terms      string        // Free-text query
	Domains    []string      // Restrict results to these hosts (empty = unrestricted)
	Recency    time.Duration // Only results newer than this (0 = no limit)
	MaxResults int           // Result cap
	Country    string        // Geolocation hint (e.g., "az")
	Language   string        // Interface language hint (e.g., "az")
}

// Result is one search hit
type Result struct {
	Title       string
	Link        string
	Snippet     string
	DisplayLink string
}

// Provider runs web searches
type Provider interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Result, error)
}

// Error is a failed search call
type Error struct {
	Provider   string
	StatusCode int  // HTTP status, 0 for transport failures
	Retryable  bool // Rate limits, server errors and timeouts
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s search error (%d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s search error: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether repeating the query could succeed.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var searchErr *Error
	if errors.As(err, &searchErr) {
		return searchErr.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
