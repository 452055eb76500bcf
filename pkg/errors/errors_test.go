package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndError(t *testing.T) {
	err := New(ErrCodeGenerationNotFound, "no run for session")
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeGenerationNotFound, err.Code)
	assert.Equal(t, "[GEN_001] no run for session", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestWithDetail(t *testing.T) {
	base := New(ErrCodeDatabaseError, "upsert failed")
	detailed := base.WithDetail("session_id=abc")

	assert.Equal(t, "[COMMON_012] upsert failed: session_id=abc", detailed.Error())
	// The original is not mutated.
	assert.Empty(t, base.Detail)

	var nilErr *AppError
	assert.Nil(t, nilErr.WithDetail("x"))
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeDatabaseError, "failed to upsert factor scores")

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsCode(err, ErrCodeDatabaseError))

	assert.Nil(t, Wrap(nil, ErrCodeDatabaseError, "noop"))
}

func TestWrapPreservesCodeForUnknown(t *testing.T) {
	inner := New(ErrCodeGenerationInProgress, "already running")
	outer := Wrap(inner, CodeUnknown, "generate rejected")

	assert.Equal(t, ErrCodeGenerationInProgress, outer.Code)
}

func TestIsCodeTraversesChain(t *testing.T) {
	inner := New(ErrCodeInvalidSimulationParameters, "iterations < 1")
	wrapped := fmt.Errorf("simulating pattern: %w", inner)
	outer := Wrap(wrapped, ErrCodeGenerationFailed, "segment failed")

	assert.True(t, IsCode(outer, ErrCodeInvalidSimulationParameters))
	assert.True(t, IsCode(outer, ErrCodeGenerationFailed))
	assert.False(t, IsCode(outer, ErrCodeCacheError))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeOK, GetCode(nil))
	assert.Equal(t, CodeUnknown, GetCode(stderrors.New("plain")))
	assert.Equal(t, ErrCodeConflict, GetCode(Conflict("dup")))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("gone")))
	assert.True(t, IsNotFound(New(ErrCodeGenerationNotFound, "no run")))
	assert.False(t, IsNotFound(Internal("boom")))
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusConflict, HTTPStatusForCode(ErrCodeGenerationInProgress))
	assert.Equal(t, http.StatusNotFound, HTTPStatusForCode(ErrCodeGenerationNotFound))
	assert.Equal(t, http.StatusBadRequest, HTTPStatusForCode(ErrCodeInvalidSimulationParameters))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusForCode(ErrorCode("NOPE_999")))
}

func TestModuleForCode(t *testing.T) {
	assert.Equal(t, "SIM", ModuleForCode(ErrCodeInvalidSimulationParameters))
	assert.Equal(t, "GEN", ModuleForCode(ErrCodeGenerationFailed))
	assert.Equal(t, "UNKNOWN", ModuleForCode(ErrorCode("")))
}
