// Package errors provides standardized error types and helpers for the rulescan codebase.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupportedPlatform indicates the engine has no asset for this OS/arch
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrTransfer indicates a download or network transfer failure
	ErrTransfer = errors.New("transfer failed")
	// ErrArchive indicates a malformed or unsafe engine archive
	ErrArchive = errors.New("archive invalid")
	// ErrRunFailed indicates an engine run finished unsuccessfully
	ErrRunFailed = errors.New("run failed")
	// ErrTimeout indicates an engine run exceeded its wall-clock limit
	ErrTimeout = errors.New("run timed out")
	// ErrConsentDeclined indicates the user declined the engine download
	ErrConsentDeclined = errors.New("download consent declined")
)

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "rule", "engine", "rules file")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// TransferError represents a download failure with HTTP context
type TransferError struct {
	URL        string // URL that failed
	StatusCode int    // HTTP status, 0 when the request never completed
	Err        error  // Underlying error, if any
}

func (e *TransferError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download failed for %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download failed for %s: %v", e.URL, e.Err)
}

func (e *TransferError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrTransfer
}

// ArchiveError represents a malformed or unsafe archive
type ArchiveError struct {
	Entry   string // Offending entry name, if any
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ArchiveError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("invalid archive entry %q: %s", e.Entry, e.Message)
	}
	return fmt.Sprintf("invalid archive: %s", e.Message)
}

func (e *ArchiveError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrArchive
}

// RunError represents a failed engine invocation
type RunError struct {
	ExitCode int    // Engine process exit code
	Summary  string // Short user-facing summary (no raw stderr)
	Err      error  // Underlying error, if any
}

func (e *RunError) Error() string {
	if e.Summary != "" {
		return fmt.Sprintf("engine run failed (exit %d): %s", e.ExitCode, e.Summary)
	}
	return fmt.Sprintf("engine run failed (exit %d)", e.ExitCode)
}

func (e *RunError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrRunFailed
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "JSON", "TOML", "marker")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewTransfer creates a TransferError
func NewTransfer(url string, statusCode int, err error) *TransferError {
	return &TransferError{
		URL:        url,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewArchive creates an ArchiveError
func NewArchive(entry, message string) *ArchiveError {
	return &ArchiveError{
		Entry:   entry,
		Message: message,
	}
}

// NewRun creates a RunError
func NewRun(exitCode int, summary string) *RunError {
	return &RunError{
		ExitCode: exitCode,
		Summary:  summary,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
