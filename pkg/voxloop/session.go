package voxloop

import (
	"encoding/base64"
	"encoding/json"
	"sync"
)

// controlSender is the narrow slice of Conn the session controller and
// capture pump need. Tests substitute an in-memory recorder.
type controlSender interface {
	SendJSON(v interface{}) error
}

// SessionOptions describes the desired audio formats and turn-detection
// policy sent in the initial session.update.
type SessionOptions struct {
	InputAudioFormat   string
	OutputAudioFormat  string
	TranscriptionModel string
	TurnDetectionType  string
	VADThreshold       float64
	PrefixPaddingMs    int
	SilenceDurationMs  int
	Instructions       string
}

func NewSessionOptions() *SessionOptions {
	return &SessionOptions{
		InputAudioFormat:   "pcm16",
		OutputAudioFormat:  "pcm16",
		TranscriptionModel: "whisper-1",
		TurnDetectionType:  "server_vad",
		VADThreshold:       0.5,
		PrefixPaddingMs:    300,
		SilenceDurationMs:  500,
		Instructions:       "You are a helpful voice assistant.",
	}
}

// Wire shapes for the control protocol. The schema is the endpoint's
// contract; it is treated as opaque beyond the type field.
type sessionUpdateMessage struct {
	Type    string         `json:"type"`
	Session sessionPayload `json:"session"`
}

type sessionPayload struct {
	InputAudioFormat        string               `json:"input_audio_format"`
	OutputAudioFormat       string               `json:"output_audio_format"`
	InputAudioTranscription *transcriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetectionConfig `json:"turn_detection,omitempty"`
	Instructions            string               `json:"instructions,omitempty"`
}

type transcriptionConfig struct {
	Model string `json:"model"`
}

type turnDetectionConfig struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type bareControlMessage struct {
	Type string `json:"type"`
}

type serverMessage struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SessionController issues the initial configuration message and classifies
// inbound control messages into lifecycle events. One controller per
// Connection open.
type SessionController struct {
	opts *SessionOptions
	log  *Logger

	mu                   sync.Mutex
	configured           bool
	turnActive           bool
	lastResponseComplete bool
}

func NewSessionController(opts *SessionOptions) *SessionController {
	if opts == nil {
		opts = NewSessionOptions()
	}
	return &SessionController{
		opts: opts,
		log:  GetGlobalLogger().WithComponent("session"),
	}
}

// Configure sends the session.update describing formats and turn detection.
// It does not wait for acknowledgement; that arrives asynchronously as an
// EventSessionReady.
func (s *SessionController) Configure(sender controlSender) error {
	msg := sessionUpdateMessage{
		Type: "session.update",
		Session: sessionPayload{
			InputAudioFormat:  s.opts.InputAudioFormat,
			OutputAudioFormat: s.opts.OutputAudioFormat,
			Instructions:      s.opts.Instructions,
		},
	}
	if s.opts.TranscriptionModel != "" {
		msg.Session.InputAudioTranscription = &transcriptionConfig{Model: s.opts.TranscriptionModel}
	}
	if s.opts.TurnDetectionType != "" {
		msg.Session.TurnDetection = &turnDetectionConfig{
			Type:              s.opts.TurnDetectionType,
			Threshold:         s.opts.VADThreshold,
			PrefixPaddingMs:   s.opts.PrefixPaddingMs,
			SilenceDurationMs: s.opts.SilenceDurationMs,
		}
	}
	if err := sender.SendJSON(msg); err != nil {
		return err
	}
	s.log.LogSessionEvent("configure", map[string]interface{}{
		"input_format":  s.opts.InputAudioFormat,
		"output_format": s.opts.OutputAudioFormat,
		"turn_detection": s.opts.TurnDetectionType,
	})
	return nil
}

// Classify maps an inbound control message to its event variant. Unknown
// types map to EventIgnored: the endpoint adds message types over time and
// unrecognized ones must never be fatal.
func (s *SessionController) Classify(raw []byte) *ControlEvent {
	var msg serverMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.log.Warnf("unparseable control message: %v", err)
		return &ControlEvent{Kind: EventIgnored}
	}

	ev := &ControlEvent{RawType: msg.Type}
	switch msg.Type {
	case "session.created", "session.updated":
		ev.Kind = EventSessionReady
		s.setConfigured()
	case "input_audio_buffer.speech_started":
		ev.Kind = EventTurnStarted
		s.setTurnActive(true)
	case "input_audio_buffer.speech_stopped", "input_audio_buffer.committed":
		ev.Kind = EventTurnStopped
		s.setTurnActive(false)
	case "response.audio.delta":
		audio, err := base64.StdEncoding.DecodeString(msg.Delta)
		if err != nil {
			s.log.Warnf("undecodable audio delta: %v", err)
			return &ControlEvent{Kind: EventIgnored, RawType: msg.Type}
		}
		ev.Kind = EventResponseAudio
		ev.Audio = audio
	case "response.audio.done":
		ev.Kind = EventResponseAudioDone
	case "response.audio_transcript.delta":
		ev.Kind = EventTranscriptDelta
		ev.Transcript = msg.Delta
	case "response.done":
		ev.Kind = EventResponseDone
		s.setResponseComplete()
	case "error":
		ev.Kind = EventError
		verr := NewVoxError("server error", ErrCodeServerError)
		if msg.Error != nil {
			verr.Message = msg.Error.Message
			verr.AddDetail("type", msg.Error.Type).AddDetail("code", msg.Error.Code)
		}
		ev.Err = verr
	default:
		ev.Kind = EventIgnored
	}
	return ev
}

func (s *SessionController) setConfigured() {
	s.mu.Lock()
	s.configured = true
	s.mu.Unlock()
}

func (s *SessionController) setTurnActive(active bool) {
	s.mu.Lock()
	s.turnActive = active
	s.mu.Unlock()
}

func (s *SessionController) setResponseComplete() {
	s.mu.Lock()
	s.lastResponseComplete = true
	s.mu.Unlock()
}

// Configured reports whether the server acknowledged the session config.
func (s *SessionController) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configured
}

// TurnActive reports whether the server currently detects speech.
func (s *SessionController) TurnActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnActive
}

// LastResponseComplete reports whether the most recent response finished.
func (s *SessionController) LastResponseComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResponseComplete
}
