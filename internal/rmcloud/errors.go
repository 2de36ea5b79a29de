// Package rmcloud implements a client for the reMarkable cloud document
// storage service: session management (device registration and user-token
// refresh), service discovery, and item CRUD over the flat-with-parent-pointers
// document hierarchy.
package rmcloud

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, one per failure domain. Use errors.Is(err, rmcloud.ErrNotFound)
// to check; the wrapping APIError carries status code and response body.
var (
	ErrNotRegistered = errors.New("rmcloud: device not registered")
	ErrRegistration  = errors.New("rmcloud: device registration failed")
	ErrTokenRefresh  = errors.New("rmcloud: user token refresh failed")
	ErrConfig        = errors.New("rmcloud: credential file error")
	ErrDiscovery     = errors.New("rmcloud: service discovery failed")
	ErrNotFound      = errors.New("rmcloud: item not found")
	ErrList          = errors.New("rmcloud: listing items failed")
	ErrCreate        = errors.New("rmcloud: folder creation failed")
	ErrUpload        = errors.New("rmcloud: upload failed")
	ErrDownload      = errors.New("rmcloud: download failed")
	ErrMove          = errors.New("rmcloud: move failed")
	ErrDelete        = errors.New("rmcloud: delete failed")
)

// APIError wraps a sentinel error with the failing operation, the HTTP status
// code (0 when the failure was not an HTTP response), and the response body or
// service message, so callers can tell "not found" from "server error" from
// "validation rejected" without re-running with verbose logging.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("rmcloud: %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("rmcloud: %s: %s", e.Op, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// apiError builds an APIError for the given operation and sentinel.
func apiError(op string, sentinel error, status int, message string) *APIError {
	return &APIError{Op: op, StatusCode: status, Message: message, Err: sentinel}
}

// PartialPathError reports that an item path could only be partially resolved
// because an ancestor was missing from the item cache. Partial holds the
// resolved suffix; callers may tolerate it (best-effort display) or reject it.
type PartialPathError struct {
	ItemID          string
	MissingAncestor string
	Partial         string
}

func (e *PartialPathError) Error() string {
	return fmt.Sprintf("rmcloud: path for item %s truncated at unknown ancestor %s (partial: %s)",
		e.ItemID, e.MissingAncestor, e.Partial)
}

// trimBody compacts an HTTP error body for inclusion in error messages.
func trimBody(body []byte) string {
	return strings.TrimSpace(string(body))
}
