package voxloop

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingSender captures every control message the code under test sends.
type recordingSender struct {
	msgs [][]byte
	fail error
}

func (r *recordingSender) SendJSON(v interface{}) error {
	if r.fail != nil {
		return r.fail
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.msgs = append(r.msgs, data)
	return nil
}

func (r *recordingSender) types(t *testing.T) []string {
	t.Helper()
	out := make([]string, 0, len(r.msgs))
	for _, raw := range r.msgs {
		var m struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m.Type)
	}
	return out
}

func TestConfigureSendsSessionUpdate(t *testing.T) {
	sender := &recordingSender{}
	s := NewSessionController(nil)

	require.NoError(t, s.Configure(sender))
	require.Len(t, sender.msgs, 1)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(sender.msgs[0], &msg))
	require.Equal(t, "session.update", msg["type"])

	session := msg["session"].(map[string]interface{})
	require.Equal(t, "pcm16", session["input_audio_format"])
	require.Equal(t, "pcm16", session["output_audio_format"])
	require.NotEmpty(t, session["instructions"])

	transcription := session["input_audio_transcription"].(map[string]interface{})
	require.Equal(t, "whisper-1", transcription["model"])

	td := session["turn_detection"].(map[string]interface{})
	require.Equal(t, "server_vad", td["type"])
	require.InDelta(t, 0.5, td["threshold"], 1e-9)
	require.EqualValues(t, 300, td["prefix_padding_ms"])
	require.EqualValues(t, 500, td["silence_duration_ms"])
}

func TestConfigureOmitsDisabledSections(t *testing.T) {
	opts := NewSessionOptions()
	opts.TranscriptionModel = ""
	opts.TurnDetectionType = ""

	sender := &recordingSender{}
	require.NoError(t, NewSessionController(opts).Configure(sender))

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(sender.msgs[0], &msg))
	session := msg["session"].(map[string]interface{})
	require.NotContains(t, session, "input_audio_transcription")
	require.NotContains(t, session, "turn_detection")
}

func TestClassifyEventKinds(t *testing.T) {
	s := NewSessionController(nil)

	cases := []struct {
		raw  string
		kind EventKind
	}{
		{`{"type":"session.created"}`, EventSessionReady},
		{`{"type":"session.updated"}`, EventSessionReady},
		{`{"type":"input_audio_buffer.speech_started"}`, EventTurnStarted},
		{`{"type":"input_audio_buffer.speech_stopped"}`, EventTurnStopped},
		{`{"type":"input_audio_buffer.committed"}`, EventTurnStopped},
		{`{"type":"response.audio.done"}`, EventResponseAudioDone},
		{`{"type":"response.done"}`, EventResponseDone},
		{`{"type":"rate_limits.updated"}`, EventIgnored},
		{`{"type":"conversation.item.created"}`, EventIgnored},
	}
	for _, tc := range cases {
		ev := s.Classify([]byte(tc.raw))
		require.Equal(t, tc.kind, ev.Kind, "input %s", tc.raw)
	}
}

func TestClassifyAudioDelta(t *testing.T) {
	s := NewSessionController(nil)
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	raw, err := json.Marshal(map[string]string{
		"type":  "response.audio.delta",
		"delta": base64.StdEncoding.EncodeToString(pcm),
	})
	require.NoError(t, err)

	ev := s.Classify(raw)
	require.Equal(t, EventResponseAudio, ev.Kind)
	require.Equal(t, pcm, ev.Audio)
}

func TestClassifyBadAudioDelta(t *testing.T) {
	s := NewSessionController(nil)
	ev := s.Classify([]byte(`{"type":"response.audio.delta","delta":"not base64!!!"}`))
	require.Equal(t, EventIgnored, ev.Kind)
}

func TestClassifyTranscriptDelta(t *testing.T) {
	s := NewSessionController(nil)
	ev := s.Classify([]byte(`{"type":"response.audio_transcript.delta","delta":"Hello "}`))
	require.Equal(t, EventTranscriptDelta, ev.Kind)
	require.Equal(t, "Hello ", ev.Transcript)
}

func TestClassifyServerError(t *testing.T) {
	s := NewSessionController(nil)
	ev := s.Classify([]byte(`{"type":"error","error":{"type":"invalid_request_error","code":"missing_audio","message":"buffer is empty"}}`))
	require.Equal(t, EventError, ev.Kind)
	require.NotNil(t, ev.Err)
	require.Equal(t, "buffer is empty", ev.Err.Message)
	require.Equal(t, ErrCodeServerError, ev.Err.Code)

	code, ok := ev.Err.GetDetail("code")
	require.True(t, ok)
	require.Equal(t, "missing_audio", code)
}

func TestClassifyUnparseable(t *testing.T) {
	s := NewSessionController(nil)
	ev := s.Classify([]byte(`{truncated`))
	require.Equal(t, EventIgnored, ev.Kind)
}

func TestSessionStateTracking(t *testing.T) {
	s := NewSessionController(nil)
	require.False(t, s.Configured())
	require.False(t, s.TurnActive())
	require.False(t, s.LastResponseComplete())

	s.Classify([]byte(`{"type":"session.created"}`))
	require.True(t, s.Configured())

	s.Classify([]byte(`{"type":"input_audio_buffer.speech_started"}`))
	require.True(t, s.TurnActive())

	s.Classify([]byte(`{"type":"input_audio_buffer.speech_stopped"}`))
	require.False(t, s.TurnActive())

	s.Classify([]byte(`{"type":"response.done"}`))
	require.True(t, s.LastResponseComplete())
}
