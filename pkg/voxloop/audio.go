package voxloop

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"time"
)

// AudioSource reads fixed-size chunks of raw PCM from an input device.
// ReadChunk fills buf and returns the byte count; zero is a valid result
// meaning no samples were available this cycle.
type AudioSource interface {
	ReadChunk(buf []byte) (int, error)
}

// AudioSink writes raw PCM to an output device in arrival order.
type AudioSink interface {
	Write(pcm []byte) (int, error)
}

// Trigger is the push-to-talk control input.
type Trigger interface {
	IsAsserted() bool
}

// StatusIndicator receives user-visible feedback state changes (the LED on
// the original hardware; a log line or UI element elsewhere).
type StatusIndicator interface {
	Set(Status)
}

// ManualTrigger is a Trigger driven by explicit Press/Release calls, e.g.
// from a keyboard loop or a GPIO callback.
type ManualTrigger struct {
	asserted atomic.Bool
}

func NewManualTrigger() *ManualTrigger {
	return &ManualTrigger{}
}

func (t *ManualTrigger) Press()   { t.asserted.Store(true) }
func (t *ManualTrigger) Release() { t.asserted.Store(false) }

func (t *ManualTrigger) IsAsserted() bool {
	return t.asserted.Load()
}

// Toggle flips the trigger and reports the new state.
func (t *ManualTrigger) Toggle() bool {
	for {
		cur := t.asserted.Load()
		if t.asserted.CompareAndSwap(cur, !cur) {
			return !cur
		}
	}
}

// TimedTrigger asserts once for a fixed duration starting at Start.
type TimedTrigger struct {
	hold  time.Duration
	until atomic.Int64
}

func NewTimedTrigger(hold time.Duration) *TimedTrigger {
	return &TimedTrigger{hold: hold}
}

func (t *TimedTrigger) Start() {
	t.until.Store(time.Now().Add(t.hold).UnixNano())
}

func (t *TimedTrigger) IsAsserted() bool {
	return time.Now().UnixNano() < t.until.Load()
}

// LogIndicator is the default StatusIndicator: state changes become log
// lines instead of LED colors.
type LogIndicator struct {
	log *Logger
}

func NewLogIndicator() *LogIndicator {
	return &LogIndicator{log: GetGlobalLogger().WithComponent("status")}
}

func (li *LogIndicator) Set(s Status) {
	li.log.Infof("status: %s", s)
}

// PCMToInt16 converts little-endian 16-bit PCM bytes to samples. A trailing
// odd byte is dropped.
func PCMToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// Int16ToPCM converts samples to little-endian 16-bit PCM bytes.
func Int16ToPCM(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

// ChunkAmplitude returns the mean absolute amplitude of a 16-bit PCM chunk,
// normalized to [0, 1]. Used for level feedback while recording.
func ChunkAmplitude(pcm []byte) float32 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		sum += math.Abs(float64(s))
	}
	return float32(sum / float64(n) / 32768.0)
}
