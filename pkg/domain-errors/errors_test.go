package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatching(t *testing.T) {
	t.Run("errors.Is matches code and message", func(t *testing.T) {
		err := New(CodeUnauthorized, "token has expired")
		require.ErrorIs(t, err, New(CodeUnauthorized, "token has expired"))
		assert.NotErrorIs(t, err, New(CodeUnauthorized, "invalid token"))
		assert.NotErrorIs(t, err, New(CodeNotFound, "token has expired"))
	})

	t.Run("empty target message matches any message with the code", func(t *testing.T) {
		err := New(CodeNotFound, "image not found")
		assert.ErrorIs(t, err, &Error{Code: CodeNotFound})
	})

	t.Run("wrapped causes stay reachable", func(t *testing.T) {
		cause := errors.New("disk full")
		err := fmt.Errorf("store: %w", Wrap(cause, CodeInternal, "failed to store file"))
		assert.ErrorIs(t, err, cause)
		assert.True(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})

	t.Run("wrap of nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
	})

	t.Run("uncoded errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		assert.False(t, HasCode(errors.New("boom"), CodeNotFound))
	})
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:   http.StatusBadRequest,
		CodeUserExists:   http.StatusBadRequest,
		CodeUnauthorized: http.StatusUnauthorized,
		CodeForbidden:    http.StatusForbidden,
		CodeNotFound:     http.StatusNotFound,
		CodeInvalidState: http.StatusConflict,
		CodeUpstream:     http.StatusInternalServerError,
		CodeInternal:     http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, HTTPStatus(code), string(code))
	}
}
