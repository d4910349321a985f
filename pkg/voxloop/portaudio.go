package voxloop

import (
	"sync"

	"github.com/gordonklaus/portaudio"
)

// paInitMu guards the process-wide PortAudio init refcount.
var (
	paInitMu    sync.Mutex
	paInitCount int
)

func paAcquire() error {
	paInitMu.Lock()
	defer paInitMu.Unlock()

	if paInitCount == 0 {
		if err := portaudio.Initialize(); err != nil {
			return NewAudioError("failed to initialize audio subsystem").WithCause(err)
		}
	}
	paInitCount++
	return nil
}

func paRelease() {
	paInitMu.Lock()
	defer paInitMu.Unlock()

	if paInitCount == 0 {
		return
	}
	paInitCount--
	if paInitCount == 0 {
		portaudio.Terminate()
	}
}

// MicSource captures microphone audio as 16-bit mono PCM.
type MicSource struct {
	cfg    *AudioConfig
	stream *portaudio.Stream
	frames []int16
	log    *Logger
	mu     sync.Mutex
	open   bool
}

// NewMicSource creates a microphone source using the default input device.
func NewMicSource(cfg *AudioConfig) *MicSource {
	if cfg == nil {
		cfg = NewAudioConfig()
	}
	return &MicSource{
		cfg: cfg,
		log: GetGlobalLogger().WithComponent("MicSource"),
	}
}

// Open initializes PortAudio and starts the capture stream.
func (m *MicSource) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		return nil
	}
	if err := paAcquire(); err != nil {
		return err
	}

	framesPerChunk := m.cfg.ChunkBytes() / 2
	m.frames = make([]int16, framesPerChunk)

	stream, err := portaudio.OpenDefaultStream(
		m.cfg.Channels,
		0,
		float64(m.cfg.SampleRate),
		framesPerChunk,
		m.frames,
	)
	if err != nil {
		paRelease()
		return NewAudioError("failed to open capture stream").WithCause(err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		paRelease()
		return NewAudioError("failed to start capture stream").WithCause(err)
	}

	m.stream = stream
	m.open = true
	m.log.LogAudioEvent("capture_opened", map[string]interface{}{
		"sample_rate":      m.cfg.SampleRate,
		"frames_per_chunk": framesPerChunk,
	})
	return nil
}

// ReadChunk reads one chunk of PCM into buf. The stream blocks until a
// full chunk is available, so the read rate tracks the sample clock.
func (m *MicSource) ReadChunk(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return 0, NewAudioError("capture stream not open")
	}
	if err := m.stream.Read(); err != nil {
		return 0, NewAudioError("capture read failed").WithCause(err)
	}

	pcm := Int16ToPCM(m.frames)
	n := copy(buf, pcm)
	return n, nil
}

// Close stops the capture stream and releases PortAudio.
func (m *MicSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return nil
	}
	m.open = false

	if err := m.stream.Stop(); err != nil {
		m.log.WithError(err).Warn("Failed to stop capture stream")
	}
	err := m.stream.Close()
	m.stream = nil
	paRelease()
	if err != nil {
		return NewAudioError("failed to close capture stream").WithCause(err)
	}
	return nil
}

// SpeakerSink plays 16-bit mono PCM through the default output device.
type SpeakerSink struct {
	cfg    *AudioConfig
	stream *portaudio.Stream
	frames []int16
	log    *Logger
	mu     sync.Mutex
	open   bool
}

// NewSpeakerSink creates a speaker sink using the default output device.
func NewSpeakerSink(cfg *AudioConfig) *SpeakerSink {
	if cfg == nil {
		cfg = NewAudioConfig()
	}
	return &SpeakerSink{
		cfg: cfg,
		log: GetGlobalLogger().WithComponent("SpeakerSink"),
	}
}

// Open initializes PortAudio and starts the playback stream.
func (s *SpeakerSink) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return nil
	}
	if err := paAcquire(); err != nil {
		return err
	}

	framesPerChunk := s.cfg.ChunkBytes() / 2
	s.frames = make([]int16, framesPerChunk)

	stream, err := portaudio.OpenDefaultStream(
		0,
		s.cfg.Channels,
		float64(s.cfg.SampleRate),
		framesPerChunk,
		s.frames,
	)
	if err != nil {
		paRelease()
		return NewAudioError("failed to open playback stream").WithCause(err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		paRelease()
		return NewAudioError("failed to start playback stream").WithCause(err)
	}

	s.stream = stream
	s.open = true
	s.log.LogAudioEvent("playback_opened", map[string]interface{}{
		"sample_rate":      s.cfg.SampleRate,
		"frames_per_chunk": framesPerChunk,
	})
	return nil
}

// Write plays pcm through the speakers. Writes block until the device
// has consumed each chunk. Partial trailing chunks are zero padded.
func (s *SpeakerSink) Write(pcm []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return 0, NewAudioError("playback stream not open")
	}

	samples := PCMToInt16(pcm)
	written := 0
	for written < len(samples) {
		n := copy(s.frames, samples[written:])
		for i := n; i < len(s.frames); i++ {
			s.frames[i] = 0
		}
		if err := s.stream.Write(); err != nil {
			return written * 2, NewAudioError("playback write failed").WithCause(err)
		}
		written += n
	}
	return len(pcm), nil
}

// Close stops the playback stream and releases PortAudio.
func (s *SpeakerSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	s.open = false

	if err := s.stream.Stop(); err != nil {
		s.log.WithError(err).Warn("Failed to stop playback stream")
	}
	err := s.stream.Close()
	s.stream = nil
	paRelease()
	if err != nil {
		return NewAudioError("failed to close playback stream").WithCause(err)
	}
	return nil
}
