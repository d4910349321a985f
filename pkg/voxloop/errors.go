package voxloop

import "errors"

// Error codes as constants
const (
	ErrCodeHandshakeFailed  = "HANDSHAKE_FAILED"
	ErrCodeConnectionClosed = "CONNECTION_CLOSED"
	ErrCodeConnectionFailed = "CONNECTION_FAILED"
	ErrCodeFrameTooLarge    = "FRAME_TOO_LARGE"
	ErrCodeMalformedFrame   = "MALFORMED_FRAME"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeAudioDevice      = "AUDIO_DEVICE_ERROR"
	ErrCodePlayback         = "PLAYBACK_ERROR"
	ErrCodeConfigInvalid    = "CONFIG_INVALID"
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeTokenExpired     = "TOKEN_EXPIRED"
	ErrCodeJSONParse        = "JSON_PARSE_ERROR"
	ErrCodeServerError      = "SERVER_ERROR"
	ErrCodeUnknown          = "UNKNOWN_ERROR"
)

// Sentinel errors for errors.Is checks at the protocol boundary.
var (
	ErrHandshakeFailed  = errors.New("voxloop: websocket handshake failed")
	ErrConnectionClosed = errors.New("voxloop: connection closed")
	ErrFrameTooLarge    = errors.New("voxloop: frame payload exceeds size ceiling")
	ErrMalformedFrame   = errors.New("voxloop: malformed frame")
	ErrFragmentedFrame  = errors.New("voxloop: fragmented frames unsupported")
	ErrTimeout          = errors.New("voxloop: timed out waiting for response")
)

// Specific error creators with common codes
func NewHandshakeError(message string) *VoxError {
	return NewVoxError(message, ErrCodeHandshakeFailed)
}

func NewConnectionError(message string) *VoxError {
	return NewVoxError(message, ErrCodeConnectionFailed)
}

func NewAudioError(message string) *VoxError {
	return NewVoxError(message, ErrCodeAudioDevice)
}

func NewTimeoutError(message string) *VoxError {
	return NewVoxError(message, ErrCodeTimeout)
}

func NewAuthError(message string) *VoxError {
	return NewVoxError(message, ErrCodeAuthFailed)
}

func NewConfigError(message string) *VoxError {
	return NewVoxError(message, ErrCodeConfigInvalid)
}

// WrapError wraps any error as a coded VoxError, preserving the chain
// for errors.Is.
func WrapError(err error, code string) *VoxError {
	if err == nil {
		return nil
	}
	vErr := NewVoxError(err.Error(), code)
	vErr.err = err
	return vErr
}

// WithCause attaches an underlying error, preserving it for errors.Is.
func (e *VoxError) WithCause(err error) *VoxError {
	e.err = err
	return e
}

// Helper to add details to an existing VoxError
func (e *VoxError) AddDetail(key string, value interface{}) *VoxError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Helper to get error details
func (e *VoxError) GetDetail(key string) (interface{}, bool) {
	if e.Details == nil {
		return nil, false
	}
	value, exists := e.Details[key]
	return value, exists
}

// Helper to check if error has specific code
func IsErrorCode(err *VoxError, code string) bool {
	if err == nil {
		return false
	}
	return err.Code == code
}

// IsRetryableError reports whether the outer supervisor may redial after
// this error. Handshake and auth failures are deliberately excluded: a bad
// status line or rejected credential will not improve on retry.
func IsRetryableError(err *VoxError) bool {
	if err == nil {
		return false
	}
	switch err.Code {
	case ErrCodeConnectionClosed, ErrCodeConnectionFailed, ErrCodeTimeout:
		return true
	}
	return false
}

// IsCriticalError reports whether the error should stop the supervisor
// entirely rather than re-arm or reconnect.
func IsCriticalError(err *VoxError) bool {
	if err == nil {
		return false
	}
	switch err.Code {
	case ErrCodeAuthFailed, ErrCodeTokenExpired, ErrCodeConfigInvalid, ErrCodeHandshakeFailed:
		return true
	}
	return false
}
