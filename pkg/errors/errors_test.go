package errors_test

import (
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/agentstation/apicorpus/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	err := pkgerrors.NewNotFoundError("candidate", "acme/1.0")
	assert.Equal(t, "candidate with ID acme/1.0 not found", err.Error())
	assert.True(t, pkgerrors.IsNotFound(err))

	wrapped := fmt.Errorf("lookup: %w", err)
	assert.True(t, pkgerrors.IsNotFound(wrapped))
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Field: "info.version", Message: "must be a string"}
		assert.Equal(t, "validation failed for field info.version: must be a string", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})

	t.Run("with context", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Message: "unresolved", Context: "/paths/~1pets/get"}
		assert.Equal(t, "validation failed: unresolved (at /paths/~1pets/get)", err.Error())
	})

	t.Run("unwraps sentinel", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Message: "bad ref", Err: pkgerrors.ErrUnresolvedRef}
		assert.True(t, errors.Is(err, pkgerrors.ErrUnresolvedRef))
		assert.True(t, errors.Is(err, pkgerrors.ErrInvalidInput))
	})
}

func TestFetchError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		unavailable bool
		notFound    bool
	}{
		{"server error", 503, true, false},
		{"not found", 404, false, true},
		{"forbidden", 403, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pkgerrors.NewFetchError("https://example.com/openapi.yaml", tt.status, "bad status")
			assert.Contains(t, err.Error(), fmt.Sprint(tt.status))
			assert.Equal(t, tt.unavailable, errors.Is(err, pkgerrors.ErrProviderUnavailable))
			assert.Equal(t, tt.notFound, errors.Is(err, pkgerrors.ErrNotFound))
			assert.True(t, pkgerrors.IsFetchError(err))
		})
	}

	t.Run("timeout", func(t *testing.T) {
		err := &pkgerrors.FetchError{Locator: "https://slow.example.com", Message: "deadline", Err: pkgerrors.ErrTimeout}
		assert.True(t, pkgerrors.IsTimeout(err))
		assert.Equal(t, "fetch https://slow.example.com failed: deadline", err.Error())
	})
}

func TestIOError(t *testing.T) {
	err := pkgerrors.NewIOError("read", "/tmp/missing.yaml", pkgerrors.ErrSourceMissing)
	assert.Contains(t, err.Error(), "/tmp/missing.yaml")
	assert.True(t, pkgerrors.IsSourceMissing(err))
	assert.True(t, pkgerrors.IsIOError(fmt.Errorf("wrapped: %w", err)))
}

func TestWrapHelpers(t *testing.T) {
	assert.Nil(t, pkgerrors.WrapIO("write", "x", nil))
	assert.Nil(t, pkgerrors.WrapParse("yaml", "x", nil))
	assert.Nil(t, pkgerrors.WrapResource("save", "registry", "", nil))
	assert.Nil(t, pkgerrors.WrapValidation("f", nil))

	base := errors.New("boom")
	assert.ErrorIs(t, pkgerrors.WrapIO("write", "x", base), base)
	assert.ErrorIs(t, pkgerrors.WrapParse("yaml", "x", base), base)
	assert.ErrorIs(t, pkgerrors.WrapResource("save", "registry", "", base), base)
	assert.ErrorIs(t, pkgerrors.WrapValidation("f", base), base)
}
