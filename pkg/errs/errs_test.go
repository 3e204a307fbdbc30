package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	e := NewFileNotFound("request_file", "/var/lib/commy/files/commy_file_1.mmap")
	require.Error(t, e)
	assert.Contains(t, e.Error(), "request_file")
	assert.Contains(t, e.Error(), "file not found")
	assert.Contains(t, e.Error(), "commy_file_1.mmap")
}

func TestErrorWrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	e := NewIoError("mapped_file.create", "/tmp/x.mmap", cause)
	assert.ErrorIs(t, e, e)
	assert.True(t, errors.Is(e, e))
	assert.Equal(t, cause, e.Unwrap())
}

func TestIsKind(t *testing.T) {
	e := NewPermissionDenied("resize", "/tmp/x.mmap")
	assert.True(t, IsKind(e, KindPermissionDenied))
	assert.False(t, IsKind(e, KindFileNotFound))
	assert.False(t, IsKind(nil, KindPermissionDenied))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTimeout("execute_request", 5000)))
	assert.True(t, IsRetryable(NewResourceExhausted("allocate", "file_id_free_list")))
	assert.False(t, IsRetryable(NewAuthenticationFailed("request_file", "bad token")))
	assert.False(t, IsRetryable(NewValidationError("request_file", "max_size_bytes", "must be non-zero")))
	assert.False(t, IsRetryable(nil))
}

func TestWrappedErrorUnwrapsThroughIs(t *testing.T) {
	inner := New(KindFileNotFound, "open", "not found")
	outer := fmt.Errorf("wrapping: %w", inner)
	assert.True(t, IsKind(outer, KindFileNotFound))
}
