package voxloop

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

// CapturePump streams microphone chunks outbound while the trigger is held.
// It owns exactly one chunk buffer: each chunk is encoded, sent, and
// discarded before the next read, so peak memory is independent of how long
// the user speaks. Backpressure is handled by pacing capture, never by
// queuing.
type CapturePump struct {
	source  AudioSource
	sender  controlSender
	chunk   []byte
	pace    time.Duration
	maxTurn time.Duration
	onLevel LevelHandler
	log     *Logger

	mu    sync.Mutex
	state PumpState
}

func NewCapturePump(source AudioSource, sender controlSender, cfg *AudioConfig) *CapturePump {
	if cfg == nil {
		cfg = NewAudioConfig()
	}
	return &CapturePump{
		source:  source,
		sender:  sender,
		chunk:   make([]byte, cfg.ChunkBytes()),
		pace:    cfg.ChunkPace,
		maxTurn: cfg.MaxTurnDuration,
		log:     GetGlobalLogger().WithComponent("capture"),
	}
}

// SetLevelHandler installs a callback receiving the amplitude of each sent
// chunk, for recording-level feedback.
func (p *CapturePump) SetLevelHandler(h LevelHandler) {
	p.onLevel = h
}

// State returns the pump state.
func (p *CapturePump) State() PumpState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *CapturePump) setState(state PumpState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

// StreamTurn runs one complete push-to-talk turn: it streams chunks while
// the trigger stays asserted (bounded by the maximum turn duration), then
// sends exactly one commit and one response.create, in that order.
//
// A zero-byte read is not an error; that cycle simply produces no outbound
// message. Context cancellation stops the loop without committing; sends
// already issued are not rolled back.
func (p *CapturePump) StreamTurn(ctx context.Context, trigger Trigger) error {
	p.setState(PumpArmed)
	deadline := time.Now().Add(p.maxTurn)
	p.setState(PumpStreaming)

	for trigger.IsAsserted() && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			p.setState(PumpIdle)
			return ctx.Err()
		default:
		}

		n, err := p.source.ReadChunk(p.chunk)
		if err != nil {
			p.setState(PumpIdle)
			return WrapError(err, ErrCodeAudioDevice)
		}
		if n > 0 {
			msg := appendAudioMessage{
				Type:  "input_audio_buffer.append",
				Audio: base64.StdEncoding.EncodeToString(p.chunk[:n]),
			}
			if err := p.sender.SendJSON(msg); err != nil {
				p.setState(PumpIdle)
				return err
			}
			if p.onLevel != nil {
				p.onLevel(ChunkAmplitude(p.chunk[:n]))
			}
		}

		// Yield so the receive loop and everything else get a turn.
		if p.pace > 0 {
			time.Sleep(p.pace)
		}
	}

	p.setState(PumpCommitting)
	if err := p.commit(); err != nil {
		p.setState(PumpIdle)
		return err
	}
	p.setState(PumpIdle)
	return nil
}

func (p *CapturePump) commit() error {
	if err := p.sender.SendJSON(bareControlMessage{Type: "input_audio_buffer.commit"}); err != nil {
		return err
	}
	if err := p.sender.SendJSON(bareControlMessage{Type: "response.create"}); err != nil {
		return err
	}
	p.log.Debug("turn committed")
	return nil
}

// turnCanceled reports whether a StreamTurn error came from context
// cancellation rather than the transport or device.
func turnCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
