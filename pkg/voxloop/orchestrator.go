package voxloop

import (
	"context"
	"errors"
	"sync"
	"time"
)

const defaultTriggerPoll = 50 * time.Millisecond

// Orchestrator is the top-level duplex loop: one goroutine owns the
// connection's read path and dispatches classified events; a second drives
// the push-to-talk turn state machine. Both share the connection's
// serialized write path, so a capture append and a session control message
// can never interleave mid-frame.
type Orchestrator struct {
	conn      *Conn
	session   *SessionController
	pump      *CapturePump
	playback  *PlaybackSink
	trigger   Trigger
	indicator StatusIndicator
	log       *Logger

	responseTimeout time.Duration
	triggerPoll     time.Duration

	mu            sync.Mutex
	eventHandlers []EventHandler
	errorHandlers []ErrorHandler

	respDone chan struct{}
}

func NewOrchestrator(conn *Conn, session *SessionController, pump *CapturePump, playback *PlaybackSink, trigger Trigger, indicator StatusIndicator, responseTimeout time.Duration) *Orchestrator {
	if indicator == nil {
		indicator = NewLogIndicator()
	}
	if responseTimeout <= 0 {
		responseTimeout = 30 * time.Second
	}
	return &Orchestrator{
		conn:            conn,
		session:         session,
		pump:            pump,
		playback:        playback,
		trigger:         trigger,
		indicator:       indicator,
		log:             GetGlobalLogger().WithComponent("orchestrator"),
		responseTimeout: responseTimeout,
		triggerPoll:     defaultTriggerPoll,
		respDone:        make(chan struct{}, 1),
	}
}

func (o *Orchestrator) AddEventHandler(h EventHandler) {
	o.mu.Lock()
	o.eventHandlers = append(o.eventHandlers, h)
	o.mu.Unlock()
}

func (o *Orchestrator) AddErrorHandler(h ErrorHandler) {
	o.mu.Lock()
	o.errorHandlers = append(o.errorHandlers, h)
	o.mu.Unlock()
}

// Run drives both loops until the context ends or the connection dies.
// The returned error is the terminal cause: ctx.Err() on cancellation,
// otherwise a connection-level failure for the supervisor to handle.
func (o *Orchestrator) Run(ctx context.Context) error {
	recvErr := make(chan error, 1)
	go func() { recvErr <- o.receiveLoop() }()

	turnErr := make(chan error, 1)
	go func() { turnErr <- o.turnLoop(ctx) }()

	select {
	case <-ctx.Done():
		o.conn.Close()
		<-recvErr
		return ctx.Err()
	case err := <-recvErr:
		return err
	case err := <-turnErr:
		return err
	}
}

// receiveLoop is the connection's only reader. Recoverable frame errors
// (fragmentation, malformed frames) are logged, reported, and skipped; the
// loop ends only when the connection does.
func (o *Orchestrator) receiveLoop() error {
	for {
		opcode, payload, err := o.conn.Receive()
		if err != nil {
			if errors.Is(err, ErrFragmentedFrame) || errors.Is(err, ErrMalformedFrame) {
				o.emitError(WrapError(err, ErrCodeMalformedFrame))
				continue
			}
			return err
		}
		if opcode != OpcodeText {
			o.log.Debugf("ignoring %s frame (%d bytes)", opcode, len(payload))
			continue
		}
		o.dispatch(o.session.Classify(payload))
	}
}

// dispatch routes one classified event to the playback sink, session state,
// and registered handlers synchronously, preserving arrival order.
func (o *Orchestrator) dispatch(ev *ControlEvent) {
	switch ev.Kind {
	case EventSessionReady:
		o.indicator.Set(StatusReady)
	case EventResponseAudio:
		if !o.playback.Playing() {
			o.indicator.Set(StatusSpeaking)
		}
		if err := o.playback.HandleEvent(ev); err != nil {
			o.emitError(WrapError(err, ErrCodePlayback))
		}
	case EventResponseAudioDone:
		o.playback.HandleEvent(ev)
	case EventResponseDone:
		o.playback.HandleEvent(ev)
		o.indicator.Set(StatusReady)
		select {
		case o.respDone <- struct{}{}:
		default:
		}
	case EventError:
		o.indicator.Set(StatusError)
		o.emitError(ev.Err)
	}

	o.mu.Lock()
	handlers := o.eventHandlers
	o.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// turnLoop runs the push-to-talk state machine: arm on trigger assert,
// stream, commit, await the response with a bounded timeout, re-arm. A
// timeout is recoverable; the loop never exits on it.
func (o *Orchestrator) turnLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !o.trigger.IsAsserted() {
			time.Sleep(o.triggerPoll)
			continue
		}

		o.indicator.Set(StatusRecording)
		o.drainResponseSignal()

		if err := o.pump.StreamTurn(ctx, o.trigger); err != nil {
			if turnCanceled(err) {
				return ctx.Err()
			}
			if IsTerminal(err) {
				return err
			}
			o.indicator.Set(StatusError)
			o.emitError(WrapError(err, ErrCodeAudioDevice))
			o.waitTriggerRelease(ctx)
			continue
		}

		o.indicator.Set(StatusAwaitingReply)
		if err := o.awaitResponse(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.emitError(WrapError(err, ErrCodeTimeout))
			o.indicator.Set(StatusReady)
		}

		o.waitTriggerRelease(ctx)
	}
}

// drainResponseSignal clears any completion signal left over from a
// previous turn so a stale signal cannot satisfy the next wait.
func (o *Orchestrator) drainResponseSignal() {
	select {
	case <-o.respDone:
	default:
	}
}

func (o *Orchestrator) awaitResponse(ctx context.Context) error {
	timer := time.NewTimer(o.responseTimeout)
	defer timer.Stop()

	select {
	case <-o.respDone:
		return nil
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitTriggerRelease blocks until the trigger deasserts, so a turn cut off
// by the maximum duration does not immediately restart while the button is
// still held.
func (o *Orchestrator) waitTriggerRelease(ctx context.Context) {
	for o.trigger.IsAsserted() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		time.Sleep(o.triggerPoll)
	}
}

func (o *Orchestrator) emitError(err *VoxError) {
	if err == nil {
		return
	}
	o.log.LogError(err)
	o.mu.Lock()
	handlers := o.errorHandlers
	o.mu.Unlock()
	for _, h := range handlers {
		h(err)
	}
}
