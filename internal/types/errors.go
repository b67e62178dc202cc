// Package types provides shared errors for the application.
package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is() for type-safe error handling.
var (
	// Browser pool errors
	ErrBrowserPoolClosed  = errors.New("browser pool is closed")
	ErrBrowserPoolTimeout = errors.New("timeout waiting for browser from pool")
	ErrBrowserUnhealthy   = errors.New("browser is unhealthy")

	// Filter list errors
	ErrNoFilterList     = errors.New("no filter list stored")
	ErrFilterListTooBig = errors.New("filter list exceeds size limit")
	ErrFilterListFetch  = errors.New("filter list fetch failed")
	ErrInvalidSelector  = errors.New("invalid element selector")
	ErrNoLayout         = errors.New("document has no rendered layout")
	ErrNoDocument       = errors.New("page has no readable document")
	ErrElementDetached  = errors.New("element is no longer attached to the document")

	// Capture errors
	ErrCaptureDenied      = errors.New("capture request denied")
	ErrNoWindow           = errors.New("no window context for capture")
	ErrCaptureUnavailable = errors.New("capture returned no image data")

	// Crop errors
	ErrInvalidSnapshot = errors.New("snapshot is not a decodable image")
	ErrEmptyRegion     = errors.New("crop region is empty")

	// Dispatch errors
	ErrDispatchFailed = errors.New("report dispatch failed")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidURL     = errors.New("invalid URL")

	// Context errors
	ErrContextCanceled = errors.New("operation canceled")
)

// DispatchError describes a report that the collection endpoint did not accept.
// StatusCode is zero when no HTTP response was received at all.
type DispatchError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("dispatch to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("dispatch to %s failed with status %d", e.URL, e.StatusCode)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// NewStatusError creates an error for a non-success HTTP status.
func NewStatusError(url string, status int) *DispatchError {
	return &DispatchError{
		URL:        url,
		StatusCode: status,
		Err:        ErrDispatchFailed,
	}
}

// NewTransportError creates an error for a request that never got a response.
func NewTransportError(url string, err error) *DispatchError {
	return &DispatchError{
		URL: url,
		Err: fmt.Errorf("%w: %v", ErrDispatchFailed, err),
	}
}

// PoolError provides detailed information about browser pool failures.
type PoolError struct {
	Operation string // The operation that failed
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *PoolError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PoolError) Unwrap() error {
	return e.Err
}

// NewPoolAcquireError creates an error for pool acquire failures.
func NewPoolAcquireError(reason string, err error) *PoolError {
	return &PoolError{
		Operation: "acquire",
		Message:   "Failed to acquire browser from pool: " + reason,
		Err:       err,
	}
}
