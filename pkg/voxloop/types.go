package voxloop

import "time"

// Result types for error handling
type Result[T any] struct {
	Data    T
	Error   *VoxError
	Success bool
}

func Ok[T any](data T) Result[T] {
	return Result[T]{Data: data, Success: true}
}

func Err[T any](err *VoxError) Result[T] {
	return Result[T]{Error: err, Success: false}
}

// ValidatedAPIKey is a type alias for string
type ValidatedAPIKey string

// GatewayToken struct
type GatewayToken struct {
	Token     string
	ExpiresAt int64 // Unix timestamp in milliseconds
}

// ConnState is the lifecycle state of one connection.
type ConnState string

const (
	StateUnopened    ConnState = "unopened"
	StateHandshaking ConnState = "handshaking"
	StateOpen        ConnState = "open"
	StateClosing     ConnState = "closing"
	StateClosed      ConnState = "closed"
)

// PumpState is the push-to-talk capture state.
type PumpState string

const (
	PumpIdle       PumpState = "idle"
	PumpArmed      PumpState = "armed"
	PumpStreaming  PumpState = "streaming"
	PumpCommitting PumpState = "committing"
)

// Status is the user-visible feedback state, driven by the orchestrator.
type Status string

const (
	StatusStartup       Status = "startup"
	StatusReady         Status = "ready"
	StatusRecording     Status = "recording"
	StatusAwaitingReply Status = "awaiting_reply"
	StatusSpeaking      Status = "speaking"
	StatusError         Status = "error"
)

// EventKind labels a classified session-lifecycle signal.
type EventKind string

const (
	EventSessionReady      EventKind = "session_ready"
	EventTurnStarted       EventKind = "turn_started"
	EventTurnStopped       EventKind = "turn_stopped"
	EventResponseAudio     EventKind = "response_audio"
	EventResponseAudioDone EventKind = "response_audio_done"
	EventResponseDone      EventKind = "response_done"
	EventTranscriptDelta   EventKind = "transcript_delta"
	EventError             EventKind = "error"
	EventIgnored           EventKind = "ignored"
)

// ControlEvent is an ephemeral, classified inbound control message. Audio
// carries decoded PCM for EventResponseAudio; Transcript carries text for
// EventTranscriptDelta; Err is set for EventError.
type ControlEvent struct {
	Kind       EventKind
	Audio      []byte
	Transcript string
	Err        *VoxError
	RawType    string
}

// VoxError struct
type VoxError struct {
	Message   string
	Code      string
	Timestamp time.Time
	Details   map[string]interface{}
	err       error
}

func (e *VoxError) Error() string {
	if e.err != nil && e.err.Error() != e.Message {
		return e.Message + ": " + e.err.Error()
	}
	return e.Message
}

func (e *VoxError) Unwrap() error {
	return e.err
}

func NewVoxError(message, code string) *VoxError {
	return &VoxError{
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// Handler types
type EventHandler func(*ControlEvent)
type ErrorHandler func(*VoxError)
type StateHandler func(ConnState)
type LevelHandler func(float32)
