package voxloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTranscriptHandlerAccumulates(t *testing.T) {
	type call struct {
		text  string
		final bool
	}
	var calls []call
	h := CreateTranscriptHandler(func(text string, final bool) {
		calls = append(calls, call{text, final})
	})

	h(&ControlEvent{Kind: EventTranscriptDelta, Transcript: "Hello, "})
	h(&ControlEvent{Kind: EventTranscriptDelta, Transcript: "world."})
	h(&ControlEvent{Kind: EventResponseAudio, Audio: []byte{0, 0}}) // unrelated
	h(&ControlEvent{Kind: EventResponseDone})

	require.Equal(t, []call{
		{"Hello, ", false},
		{"world.", false},
		{"Hello, world.", true},
	}, calls)

	// Buffer resets between responses.
	h(&ControlEvent{Kind: EventTranscriptDelta, Transcript: "Again"})
	h(&ControlEvent{Kind: EventResponseDone})
	require.Equal(t, call{"Again", true}, calls[len(calls)-1])
}

func TestTranscriptHandlerEmptyResponse(t *testing.T) {
	var finals int
	h := CreateTranscriptHandler(func(text string, final bool) {
		if final {
			finals++
		}
	})

	h(&ControlEvent{Kind: EventResponseDone})
	require.Zero(t, finals, "no transcript, no final callback")
}

func TestAudioDeltaHandler(t *testing.T) {
	var got [][]byte
	h := CreateAudioDeltaHandler(func(pcm []byte) { got = append(got, pcm) })

	h(&ControlEvent{Kind: EventResponseAudio, Audio: []byte{1, 2}})
	h(&ControlEvent{Kind: EventResponseAudio})          // empty payload skipped
	h(&ControlEvent{Kind: EventResponseAudioDone})       // wrong kind skipped
	h(&ControlEvent{Kind: EventResponseAudio, Audio: []byte{3, 4}})

	require.Equal(t, [][]byte{{1, 2}, {3, 4}}, got)
}

func TestEventKindFilter(t *testing.T) {
	var hits int
	h := CreateEventKindFilter(EventError, func(ev *ControlEvent) { hits++ })

	h(&ControlEvent{Kind: EventError, Err: NewVoxError("x", ErrCodeServerError)})
	h(&ControlEvent{Kind: EventSessionReady})
	h(&ControlEvent{Kind: EventIgnored})

	require.Equal(t, 1, hits)
}

func TestSequentialHandlersPreserveOrder(t *testing.T) {
	var order []int
	h := SequentialEventHandlers(
		func(ev *ControlEvent) { order = append(order, 1) },
		nil,
		func(ev *ControlEvent) { order = append(order, 2) },
		func(ev *ControlEvent) { order = append(order, 3) },
	)

	h(&ControlEvent{Kind: EventSessionReady})
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestSilenceDetector(t *testing.T) {
	fired := 0
	h := CreateSilenceDetector(0.1, 10*time.Millisecond, func() { fired++ })

	h(0.5) // loud
	h(0.01)
	time.Sleep(20 * time.Millisecond)
	h(0.01) // quiet long enough
	require.Equal(t, 1, fired)

	h(0.5) // reset
	h(0.01)
	require.Equal(t, 1, fired, "silence window restarts after sound")
}

func TestConditionalHandler(t *testing.T) {
	var hits int
	h := CreateConditionalHandler(
		func(ev *ControlEvent) bool { return len(ev.Audio) > 2 },
		func(ev *ControlEvent) { hits++ },
	)

	h(&ControlEvent{Kind: EventResponseAudio, Audio: []byte{1}})
	h(&ControlEvent{Kind: EventResponseAudio, Audio: []byte{1, 2, 3, 4}})
	require.Equal(t, 1, hits)
}
