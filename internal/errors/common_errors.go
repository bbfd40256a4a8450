package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"marketcore/pkg/contracts/domain"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeRead      ErrorType = "READ"
	ErrTypeTimeout   ErrorType = "TIMEOUT"
	ErrTypeSource    ErrorType = "SOURCE"
	ErrTypeConfig    ErrorType = "CONFIG"
	ErrTypeEmpty     ErrorType = "EMPTY_RESULT"
	ErrTypeStorage   ErrorType = "STORAGE"
	ErrTypeCancelled ErrorType = "CANCELLED"
	ErrTypeNotFound  ErrorType = "NOT_FOUND"
	ErrTypeUnknown   ErrorType = "UNKNOWN"
)

// ErrAggregateEmpty marks a batch in which no source produced a table.
var ErrAggregateEmpty = domain.ErrAggregateEmpty

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewConfigError reports a caller-level misconfiguration. It is the only
// kind of error that fails a whole load operation.
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewSourceError reports a source that could not be opened at all.
func NewSourceError(path string, cause error) *AppError {
	return NewAppError(ErrTypeSource, fmt.Sprintf("cannot open %s", path), cause).
		WithContext("path", path)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewNotFoundError reports a missing resource such as an unknown run ID.
func NewNotFoundError(message string) *AppError {
	return NewAppError(ErrTypeNotFound, message, nil)
}

// NewEmptyResultError wraps ErrAggregateEmpty with the batch size.
func NewEmptyResultError(sources int) error {
	return fmt.Errorf("%w: none of %d sources could be loaded", ErrAggregateEmpty, sources)
}

// ReadError is returned by a format reader that could not parse its input.
// Line and Offset are zero when the position is not known.
type ReadError struct {
	Format  domain.FormatKind
	Path    string
	Line    int
	Offset  int64
	Message string
	Cause   error
}

// NewReadError creates a read error without position information
func NewReadError(format domain.FormatKind, path, message string, cause error) *ReadError {
	return &ReadError{Format: format, Path: path, Message: message, Cause: cause}
}

// AtLine records the 1-based line where parsing stopped
func (e *ReadError) AtLine(line int) *ReadError {
	e.Line = line
	return e
}

// AtOffset records the byte offset where parsing stopped
func (e *ReadError) AtOffset(offset int64) *ReadError {
	e.Offset = offset
	return e
}

// Error implements the error interface
func (e *ReadError) Error() string {
	msg := fmt.Sprintf("%s read of %s failed", e.Format, e.Path)
	switch {
	case e.Line > 0:
		msg += fmt.Sprintf(" at line %d", e.Line)
	case e.Offset > 0:
		msg += fmt.Sprintf(" at byte %d", e.Offset)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ReadError) Unwrap() error {
	return e.Cause
}

// TimeoutError reports a reader attempt that exceeded the per-source timeout.
type TimeoutError struct {
	Format  domain.FormatKind
	Path    string
	Timeout time.Duration
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s read of %s exceeded timeout of %s", e.Format, e.Path, e.Timeout)
}

// Unwrap lets errors.Is match context.DeadlineExceeded
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// IsReadError checks if an error came from a format reader
func IsReadError(err error) bool {
	var re *ReadError
	return stderrors.As(err, &re)
}

// IsTimeout checks if an error is a per-source timeout
func IsTimeout(err error) bool {
	var te *TimeoutError
	return stderrors.As(err, &te)
}

// IsAggregateEmpty checks if an error reports an empty batch
func IsAggregateEmpty(err error) bool {
	return stderrors.Is(err, ErrAggregateEmpty)
}

// GetErrorType returns the type of the error
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var te *TimeoutError
	if stderrors.As(err, &te) {
		return ErrTypeTimeout
	}
	var re *ReadError
	if stderrors.As(err, &re) {
		return ErrTypeRead
	}
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae.Type
	}
	switch {
	case stderrors.Is(err, ErrAggregateEmpty):
		return ErrTypeEmpty
	case stderrors.Is(err, context.Canceled):
		return ErrTypeCancelled
	case stderrors.Is(err, context.DeadlineExceeded):
		return ErrTypeTimeout
	}
	return ErrTypeUnknown
}
