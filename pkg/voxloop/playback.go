package voxloop

import "sync"

// PlaybackSink writes response audio to the output device chunk by chunk as
// it arrives. There is no accumulation buffer: playback begins with the
// first delta, well before response.done.
type PlaybackSink struct {
	sink AudioSink
	log  *Logger

	mu      sync.Mutex
	playing bool
}

func NewPlaybackSink(sink AudioSink) *PlaybackSink {
	return &PlaybackSink{
		sink: sink,
		log:  GetGlobalLogger().WithComponent("playback"),
	}
}

// HandleEvent consumes response audio and completion events. Other event
// kinds are ignored.
func (p *PlaybackSink) HandleEvent(ev *ControlEvent) error {
	switch ev.Kind {
	case EventResponseAudio:
		p.setPlaying(true)
		if _, err := p.sink.Write(ev.Audio); err != nil {
			return WrapError(err, ErrCodePlayback)
		}
	case EventResponseAudioDone, EventResponseDone:
		p.setPlaying(false)
	}
	return nil
}

func (p *PlaybackSink) setPlaying(playing bool) {
	p.mu.Lock()
	was := p.playing
	p.playing = playing
	p.mu.Unlock()
	if playing && !was {
		p.log.Debug("playback started")
	}
	if !playing && was {
		p.log.Debug("playback complete")
	}
}

// Playing reports whether response audio is currently being written.
func (p *PlaybackSink) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}
