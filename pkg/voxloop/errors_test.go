package voxloop

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapErrorPreservesChain(t *testing.T) {
	base := fmt.Errorf("dial tcp: %w", ErrConnectionClosed)
	verr := WrapError(base, ErrCodeConnectionClosed)

	require.ErrorIs(t, verr, ErrConnectionClosed)
	require.Equal(t, ErrCodeConnectionClosed, verr.Code)
	require.Equal(t, base.Error(), verr.Error())

	require.Nil(t, WrapError(nil, ErrCodeUnknown))
}

func TestWithCause(t *testing.T) {
	cause := errors.New("underlying failure")
	verr := NewAudioError("capture read failed").WithCause(cause)

	require.ErrorIs(t, verr, cause)
	require.Contains(t, verr.Error(), "capture read failed")
	require.Contains(t, verr.Error(), "underlying failure")
}

func TestAddDetailChaining(t *testing.T) {
	verr := NewConnectionError("dial failed").
		AddDetail("addr", "127.0.0.1:8000").
		AddDetail("attempt", 2)

	addr, ok := verr.GetDetail("addr")
	require.True(t, ok)
	require.Equal(t, "127.0.0.1:8000", addr)

	_, ok = verr.GetDetail("missing")
	require.False(t, ok)
}

func TestRetryableAndCriticalClassification(t *testing.T) {
	require.True(t, IsRetryableError(NewVoxError("x", ErrCodeConnectionClosed)))
	require.True(t, IsRetryableError(NewVoxError("x", ErrCodeConnectionFailed)))
	require.True(t, IsRetryableError(NewVoxError("x", ErrCodeTimeout)))
	require.False(t, IsRetryableError(NewVoxError("x", ErrCodeHandshakeFailed)))
	require.False(t, IsRetryableError(NewVoxError("x", ErrCodeAuthFailed)))
	require.False(t, IsRetryableError(nil))

	require.True(t, IsCriticalError(NewVoxError("x", ErrCodeHandshakeFailed)))
	require.True(t, IsCriticalError(NewVoxError("x", ErrCodeAuthFailed)))
	require.True(t, IsCriticalError(NewVoxError("x", ErrCodeConfigInvalid)))
	require.False(t, IsCriticalError(NewVoxError("x", ErrCodeTimeout)))
	require.False(t, IsCriticalError(nil))
}

func TestIsErrorCode(t *testing.T) {
	verr := NewTimeoutError("no reply")
	require.True(t, IsErrorCode(verr, ErrCodeTimeout))
	require.False(t, IsErrorCode(verr, ErrCodeUnknown))
	require.False(t, IsErrorCode(nil, ErrCodeTimeout))
}

func TestResult(t *testing.T) {
	ok := Ok(42)
	require.True(t, ok.Success)
	require.Equal(t, 42, ok.Data)
	require.Nil(t, ok.Error)

	bad := Err[int](NewVoxError("nope", ErrCodeUnknown))
	require.False(t, bad.Success)
	require.Equal(t, ErrCodeUnknown, bad.Error.Code)
}
