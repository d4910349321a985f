package voxloop

import (
	"log"
	"strings"
	"sync"
	"time"
)

// Factory functions for common handlers
func CreateLoggingEventHandler(verbose bool) EventHandler {
	return func(ev *ControlEvent) {
		if verbose {
			log.Printf("Verbose: Received %s (%s) - Transcript: %q - Audio: %d bytes - Timestamp: %s",
				ev.Kind, ev.RawType, ev.Transcript, len(ev.Audio), time.Now().Format(time.RFC3339))
		} else {
			log.Printf("Received %s at %s", ev.Kind, time.Now().Format(time.RFC3339))
		}
	}
}

// CreateTranscriptHandler invokes callback with accumulated transcript
// text: each delta appended, the full text delivered again with final=true
// when the response completes.
func CreateTranscriptHandler(callback func(string, bool)) EventHandler {
	var mu sync.Mutex
	var sb strings.Builder

	return func(ev *ControlEvent) {
		mu.Lock()
		defer mu.Unlock()

		switch ev.Kind {
		case EventTranscriptDelta:
			sb.WriteString(ev.Transcript)
			callback(ev.Transcript, false)
		case EventResponseDone:
			if sb.Len() > 0 {
				callback(sb.String(), true)
				sb.Reset()
			}
		}
	}
}

// CreateAudioDeltaHandler invokes callback with each decoded PCM chunk
// the moment it arrives.
func CreateAudioDeltaHandler(callback func([]byte)) EventHandler {
	return func(ev *ControlEvent) {
		if ev.Kind == EventResponseAudio && len(ev.Audio) > 0 {
			callback(ev.Audio)
		}
	}
}

func CreateErrorLoggingHandler(prefix string) ErrorHandler {
	return func(err *VoxError) {
		if err != nil {
			log.Printf("%s Error: %v", prefix, err.Error())
		}
	}
}

func CreateStateLoggingHandler(callback func(ConnState)) StateHandler {
	return func(state ConnState) {
		log.Printf("Connection state changed to: %s at %s", state, time.Now().Format(time.RFC3339))
		if callback != nil {
			callback(state)
		}
	}
}

// CreateLevelMeterHandler renders a text VU meter from amplitude samples.
func CreateLevelMeterHandler(width int) LevelHandler {
	if width <= 0 {
		width = 20
	}
	return func(level float32) {
		filled := int(level * float32(width))
		if filled > width {
			filled = width
		}
		log.Printf("[%s%s] %.3f", strings.Repeat("#", filled), strings.Repeat("-", width-filled), level)
	}
}

// CreateSilenceDetector invokes callback once the level stays under
// threshold for silenceDuration.
func CreateSilenceDetector(threshold float32, silenceDuration time.Duration, callback func()) LevelHandler {
	var mu sync.Mutex
	var silenceStart time.Time

	return func(level float32) {
		mu.Lock()
		defer mu.Unlock()

		if level < threshold {
			if silenceStart.IsZero() {
				silenceStart = time.Now()
			} else if time.Since(silenceStart) >= silenceDuration {
				callback()
				silenceStart = time.Time{}
			}
		} else {
			silenceStart = time.Time{}
		}
	}
}

func CreateEventKindFilter(kind EventKind, handler EventHandler) EventHandler {
	return func(ev *ControlEvent) {
		if ev.Kind == kind {
			handler(ev)
		}
	}
}

func CreateConditionalHandler(condition func(*ControlEvent) bool, handler EventHandler) EventHandler {
	return func(ev *ControlEvent) {
		if condition(ev) {
			handler(ev)
		}
	}
}

// CreateBufferedHandler decouples a slow handler from the receive loop.
// Events are dropped when the buffer is full.
func CreateBufferedHandler(bufferSize int, handler EventHandler) EventHandler {
	evChan := make(chan *ControlEvent, bufferSize)

	go func() {
		for ev := range evChan {
			handler(ev)
		}
	}()

	return func(ev *ControlEvent) {
		select {
		case evChan <- ev:
		default:
			log.Println("Event buffer full, dropping event")
		}
	}
}

// Composability functions
func ChainEventHandlers(handlers ...EventHandler) EventHandler {
	return func(ev *ControlEvent) {
		for _, h := range handlers {
			if h != nil {
				go h(ev) // Non-blocking chain
			}
		}
	}
}

func ChainErrorHandlers(handlers ...ErrorHandler) ErrorHandler {
	return func(err *VoxError) {
		for _, h := range handlers {
			if h != nil {
				go h(err)
			}
		}
	}
}

func ChainLevelHandlers(handlers ...LevelHandler) LevelHandler {
	return func(level float32) {
		for _, h := range handlers {
			if h != nil {
				go h(level)
			}
		}
	}
}

func SequentialEventHandlers(handlers ...EventHandler) EventHandler {
	return func(ev *ControlEvent) {
		for _, h := range handlers {
			if h != nil {
				h(ev) // Sequential execution
			}
		}
	}
}

func SequentialErrorHandlers(handlers ...ErrorHandler) ErrorHandler {
	return func(err *VoxError) {
		for _, h := range handlers {
			if h != nil {
				h(err)
			}
		}
	}
}

// Utility handler for debugging
func CreateDebugHandler(label string) EventHandler {
	return func(ev *ControlEvent) {
		log.Printf("[DEBUG-%s] Event: %s, Raw type: %s, Audio: %d bytes", label, ev.Kind, ev.RawType, len(ev.Audio))
	}
}
