package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents malformed or missing request data
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents lookups of unknown resources
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeLLM represents language-model completion errors
	ErrorTypeLLM ErrorType = "llm"
	// ErrorTypeSource represents failures fetching source documents
	ErrorTypeSource ErrorType = "source"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Kind returns the error category. Typed errors embedding *BaseError inherit it.
func (e *BaseError) Kind() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Validation Errors

// ErrValidation is returned when a request payload is malformed or incomplete
type ErrValidation struct {
	*BaseError
	Field  string
	Reason string
}

func NewValidation(field, reason string) *ErrValidation {
	return &ErrValidation{
		BaseError: NewBaseError(ErrorTypeValidation, reason, nil),
		Field:     field,
		Reason:    reason,
	}
}

// Not Found Errors

// ErrNetworkNotFound is returned when a network id is not registered
type ErrNetworkNotFound struct {
	*BaseError
	NetworkID string
}

func NewNetworkNotFound(networkID string) *ErrNetworkNotFound {
	return &ErrNetworkNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("network not found: %s", networkID), nil),
		NetworkID: networkID,
	}
}

// LLM Errors

// ErrLLMFailed is returned when a completion request fails
type ErrLLMFailed struct {
	*BaseError
	Model     string
	Attempts  int
	Retryable bool
}

func NewLLMFailed(model string, attempts int, retryable bool, err error) *ErrLLMFailed {
	return &ErrLLMFailed{
		BaseError: NewBaseError(ErrorTypeLLM, fmt.Sprintf("LLM request failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
		Retryable: retryable,
	}
}

// ErrLLMNoResponse is returned when the LLM returns no choices
var ErrLLMNoResponse = NewBaseError(ErrorTypeLLM, "no response from LLM", nil)

// ErrLLMInvalidJSON is returned when the completion content is not the expected JSON object
type ErrLLMInvalidJSON struct {
	*BaseError
	Model string
}

func NewLLMInvalidJSON(model string, err error) *ErrLLMInvalidJSON {
	return &ErrLLMInvalidJSON{
		BaseError: NewBaseError(ErrorTypeLLM, "LLM returned invalid JSON", err),
		Model:     model,
	}
}

// Source Errors

// ErrSourceFetchFailed is returned when a source URL cannot be downloaded or parsed
type ErrSourceFetchFailed struct {
	*BaseError
	URL string
}

func NewSourceFetchFailed(url string, err error) *ErrSourceFetchFailed {
	return &ErrSourceFetchFailed{
		BaseError: NewBaseError(ErrorTypeSource, fmt.Sprintf("failed to fetch source: %s", url), err),
		URL:       url,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

type kinded interface {
	Kind() ErrorType
}

// IsErrorType checks if an error (or anything it wraps) is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if k, ok := err.(kinded); ok && k.Kind() == errType {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	var llmErr *ErrLLMFailed
	if stderrors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	// Remote pages may come back on a second try
	return IsErrorType(err, ErrorTypeSource)
}
