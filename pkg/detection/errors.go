package detection

import (
	"errors"
	"fmt"
)

// Sentinel errors for the model boundary.
var (
	// ErrModelLoad is returned when a model cannot be loaded. It is fatal
	// for the session that tried to load it.
	ErrModelLoad = errors.New("detection: model load failed")

	// ErrDetection is returned when a loaded model fails on one image.
	ErrDetection = errors.New("detection: detect failed")

	// ErrEmptyImage is returned for nil or zero-sized input.
	ErrEmptyImage = errors.New("detection: empty image")

	// ErrNoModels is returned when a chain is built without models.
	ErrNoModels = errors.New("detection: no models configured")
)

// ModelError wraps an error with backend and operation context.
type ModelError struct {
	Provider string
	Op       string // "load" or "detect"
	Err      error
}

// Error implements the error interface.
func (e *ModelError) Error() string {
	return fmt.Sprintf("detection [%s] %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ModelError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel for the operation.
func (e *ModelError) Is(target error) bool {
	switch e.Op {
	case "load":
		return target == ErrModelLoad
	case "detect":
		return target == ErrDetection
	}
	return false
}

// LoadError wraps err as a model load failure.
func LoadError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ModelError{Provider: provider, Op: "load", Err: err}
}

// DetectError wraps err as a per-image detection failure.
func DetectError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ModelError{Provider: provider, Op: "detect", Err: err}
}

// APIError represents an error response from a remote inference API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Provider identifies which backend returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("detection [%s]: API error %d: %s",
		e.Provider, e.StatusCode, e.Message)
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// ChainError aggregates errors from all models in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "detection chain: no errors recorded"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("detection chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("detection chain: all %d models failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns every recorded error so errors.Is sees all of them.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}
