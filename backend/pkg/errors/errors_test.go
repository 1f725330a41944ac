package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsErrorType(t *testing.T) {
	verr := NewValidation("entities", "entities must be an array")
	assert.True(t, IsErrorType(verr, ErrorTypeValidation))
	assert.False(t, IsErrorType(verr, ErrorTypeNotFound))
	assert.Equal(t, "[validation] entities must be an array", verr.Error())

	wrapped := fmt.Errorf("submit: %w", NewNetworkNotFound("n1"))
	assert.True(t, IsErrorType(wrapped, ErrorTypeNotFound))

	var nf *ErrNetworkNotFound
	assert.True(t, stderrors.As(wrapped, &nf))
	assert.Equal(t, "n1", nf.NetworkID)

	assert.True(t, IsErrorType(ErrLLMNoResponse, ErrorTypeLLM))
	assert.False(t, IsErrorType(nil, ErrorTypeLLM))
	assert.False(t, IsErrorType(stderrors.New("plain"), ErrorTypeValidation))
}

func TestBaseErrorUnwrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewSourceFetchFailed("https://example.com", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "https://example.com")
	assert.Contains(t, err.Error(), "connection reset")

	cancelled := NewContextCancelled("llm completion", context.Canceled)
	assert.ErrorIs(t, cancelled, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewLLMFailed("m", 3, true, stderrors.New("503"))))
	assert.False(t, IsRetryable(NewLLMFailed("m", 1, false, stderrors.New("400"))))
	assert.True(t, IsRetryable(NewSourceFetchFailed("https://example.com", nil)))
	assert.False(t, IsRetryable(NewContextCancelled("fetch", context.DeadlineExceeded)))
	assert.False(t, IsRetryable(NewValidation("text", "Text cannot be empty")))
	assert.False(t, IsRetryable(NewLLMInvalidJSON("m", stderrors.New("bad"))))
}
