package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrNotFound           = errors.New("element not found")
	ErrSettleTimeout      = errors.New("page did not settle before timeout")
	ErrRunInProgress      = errors.New("a scrape run is already in progress")
	ErrBrowserUnavailable = errors.New("browser session unavailable")
	ErrNoSnapshot         = errors.New("no snapshot persisted yet")
	ErrNoTable            = errors.New("no table in current view")
)

// Login form fields reported by FieldNotFoundError.
const (
	FieldUsername = "username"
	FieldPassword = "password"
	FieldSubmit   = "submit"
)

// FieldNotFoundError reports a login form element that no locator matched.
type FieldNotFoundError struct {
	Field string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("login form field not found: %s", e.Field)
}

func (e *FieldNotFoundError) Unwrap() error { return ErrNotFound }

// NavigationError wraps failures to load a page or enter a view.
type NavigationError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *NavigationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("navigation timeout for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("navigation error for %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ExtractionError reports a field that could not be extracted from the view.
type ExtractionError struct {
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction incomplete for %s: %v", e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur while persisting or reading snapshots.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("storage error (%s %s): %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
