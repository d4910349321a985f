package voxloop

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	maxHandshakeBytes = 8192
	closeAckWait      = time.Second
	controlWriteWait  = 500 * time.Millisecond
)

// Endpoint identifies the remote speech endpoint.
type Endpoint struct {
	Host    string
	Port    int
	Path    string // request path including any query string
	TLS     bool
	Headers map[string]string
}

// ParseEndpoint parses a ws:// or wss:// URL into an Endpoint.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, WrapError(err, ErrCodeConfigInvalid)
	}
	var useTLS bool
	switch u.Scheme {
	case "ws":
		useTLS = false
	case "wss":
		useTLS = true
	default:
		return Endpoint{}, NewConfigError("endpoint scheme must be ws or wss").AddDetail("scheme", u.Scheme)
	}
	port := 80
	if useTLS {
		port = 443
	}
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, WrapError(err, ErrCodeConfigInvalid)
		}
	}
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}
	return Endpoint{Host: u.Hostname(), Port: port, Path: path, TLS: useTLS}, nil
}

// Conn is a client WebSocket connection over one byte stream. The write
// path is a single critical section: a frame is atomic on the wire, so
// every Send holds writeMu for the complete frame write. The read path has
// exactly one reader by construction (the orchestrator's receive loop).
type Conn struct {
	rwc   net.Conn
	br    *bufio.Reader
	state ConnState
	log   *Logger

	stateMu    sync.Mutex
	writeMu    sync.Mutex
	recvActive atomic.Bool
}

func newConn(rwc net.Conn, log *Logger) *Conn {
	if log == nil {
		log = GetGlobalLogger().WithComponent("conn")
	}
	return &Conn{
		rwc:   rwc,
		br:    bufio.NewReaderSize(rwc, 4096),
		state: StateUnopened,
		log:   log,
	}
}

// Dial establishes the transport connection, upgrades to TLS when the
// endpoint requires it, and performs the WebSocket opening handshake. A
// non-101 response is ErrHandshakeFailed; there is no retry at this layer.
func Dial(ctx context.Context, ep Endpoint) (*Conn, error) {
	log := GetGlobalLogger().WithComponent("conn")

	d := net.Dialer{}
	addr := net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, WrapError(err, ErrCodeConnectionFailed).AddDetail("addr", addr)
	}

	rwc := raw
	if ep.TLS {
		tc := tls.Client(raw, &tls.Config{ServerName: ep.Host})
		if err := tc.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, WrapError(err, ErrCodeConnectionFailed).AddDetail("addr", addr)
		}
		rwc = tc
	}

	c := newConn(rwc, log)
	if err := c.handshake(ep); err != nil {
		rwc.Close()
		c.setState(StateClosed)
		return nil, err
	}
	c.setState(StateOpen)
	log.LogConnEvent("open", StateOpen, map[string]interface{}{"addr": addr, "path": ep.Path})
	return c, nil
}

func newSecWebSocketKey() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// handshake sends the HTTP Upgrade request and reads the response headers
// line by line until the blank line. Only a status line containing 101
// succeeds.
func (c *Conn) handshake(ep Endpoint) error {
	c.setState(StateHandshaking)

	key, err := newSecWebSocketKey()
	if err != nil {
		return WrapError(err, ErrCodeHandshakeFailed)
	}

	var req strings.Builder
	req.WriteString("GET " + ep.Path + " HTTP/1.1\r\n")
	req.WriteString("Host: " + ep.Host + "\r\n")
	req.WriteString("Upgrade: websocket\r\n")
	req.WriteString("Connection: Upgrade\r\n")
	req.WriteString("Sec-WebSocket-Key: " + key + "\r\n")
	req.WriteString("Sec-WebSocket-Version: 13\r\n")
	for name, value := range ep.Headers {
		req.WriteString(name + ": " + value + "\r\n")
	}
	req.WriteString("\r\n")

	if _, err := c.rwc.Write([]byte(req.String())); err != nil {
		return WrapError(err, ErrCodeHandshakeFailed)
	}

	status, err := c.readHeaderLine()
	if err != nil {
		return err
	}
	if !strings.Contains(status, "101") {
		return WrapError(fmt.Errorf("%w: %q", ErrHandshakeFailed, status), ErrCodeHandshakeFailed)
	}

	read := len(status)
	for {
		line, err := c.readHeaderLine()
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
		read += len(line)
		if read > maxHandshakeBytes {
			return WrapError(fmt.Errorf("%w: response headers too large", ErrHandshakeFailed), ErrCodeHandshakeFailed)
		}
	}
}

func (c *Conn) readHeaderLine() (string, error) {
	line, err := c.br.ReadString('\n')
	if err != nil {
		return "", WrapError(fmt.Errorf("%w: %v", ErrHandshakeFailed, err), ErrCodeHandshakeFailed)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// State returns the connection lifecycle state.
func (c *Conn) State() ConnState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Conn) setState(state ConnState) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()
}

// Send serializes one complete frame and writes it under the write mutex.
// Fails with ErrConnectionClosed once the connection is closing or closed.
func (c *Conn) Send(opcode Opcode, payload []byte) error {
	if st := c.State(); st != StateOpen {
		return fmt.Errorf("send in state %s: %w", st, ErrConnectionClosed)
	}
	frame, err := EncodeFrame(opcode, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.rwc.Write(frame); err != nil {
		c.abort()
		return fmt.Errorf("write: %v: %w", err, ErrConnectionClosed)
	}
	return nil
}

// SendText sends data as a Text frame.
func (c *Conn) SendText(data string) error {
	return c.Send(OpcodeText, []byte(data))
}

// SendBinary sends data as a Binary frame.
func (c *Conn) SendBinary(data []byte) error {
	return c.Send(OpcodeBinary, data)
}

// SendJSON marshals v and sends it as a Text frame.
func (c *Conn) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return WrapError(err, ErrCodeJSONParse)
	}
	return c.Send(OpcodeText, data)
}

// Receive reads the next complete data frame. It is the sole suspension
// point for inbound traffic and never returns a partial frame.
//
// Ping frames are answered with a Pong echoing the payload and are never
// surfaced; Pong frames are swallowed. A Close frame is terminal regardless
// of payload. A short read on the two header bytes is itself
// ErrConnectionClosed. Frames with the MASK bit set are unmasked even
// though servers are not supposed to mask; observed endpoint behavior is
// inconsistent. FIN=0 frames are drained and reported as
// ErrFragmentedFrame: recoverable, the connection stays alive, nothing is
// ever reassembled.
func (c *Conn) Receive() (Opcode, []byte, error) {
	c.recvActive.Store(true)
	defer c.recvActive.Store(false)

	for {
		if st := c.State(); st != StateOpen {
			return 0, nil, fmt.Errorf("receive in state %s: %w", st, ErrConnectionClosed)
		}

		var hdr [2]byte
		if _, err := io.ReadFull(c.br, hdr[:]); err != nil {
			c.abort()
			return 0, nil, fmt.Errorf("read header: %w", ErrConnectionClosed)
		}
		fin, opcode, masked, baseLen := parseFrameHeader(hdr)

		length, err := readExtendedLength(c.br, baseLen)
		if err != nil {
			// An oversized or malformed length leaves no way to
			// resynchronize the stream.
			c.abort()
			return 0, nil, err
		}

		var key [4]byte
		if masked {
			if _, err := io.ReadFull(c.br, key[:]); err != nil {
				c.abort()
				return 0, nil, fmt.Errorf("read mask key: %w", ErrConnectionClosed)
			}
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(c.br, payload); err != nil {
			c.abort()
			return 0, nil, fmt.Errorf("read payload: %w", ErrConnectionClosed)
		}
		if masked {
			ApplyMask(payload, key)
		}

		if !fin || opcode == OpcodeContinuation {
			c.log.Warnf("dropping fragmented frame (opcode %s, %d bytes)", opcode, length)
			return 0, nil, fmt.Errorf("opcode %s fin=%v: %w", opcode, fin, ErrFragmentedFrame)
		}

		switch opcode {
		case OpcodePing:
			if err := c.Send(OpcodePong, payload); err != nil {
				return 0, nil, err
			}
			continue
		case OpcodePong:
			continue
		case OpcodeClose:
			code := closeStatusCode(payload)
			// A peer Close during our own Close is the handshake
			// acknowledgement; echoing it again would be wrong.
			if c.State() != StateClosing {
				c.writeControl(OpcodeClose, payload)
			}
			c.abort()
			c.log.LogConnEvent("peer_close", StateClosed, map[string]interface{}{"code": code})
			return 0, nil, fmt.Errorf("peer close (code %d): %w", code, ErrConnectionClosed)
		}

		// Unknown opcodes pass through as opaque data rather than
		// killing the connection.
		return opcode, payload, nil
	}
}

// writeControl writes a control frame with a short deadline so a stalled
// peer cannot wedge teardown. Errors are deliberately ignored: the
// connection is on its way down already.
func (c *Conn) writeControl(opcode Opcode, payload []byte) {
	frame, err := EncodeFrame(opcode, payload)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.rwc.SetWriteDeadline(time.Now().Add(controlWriteWait))
	c.rwc.Write(frame)
	c.rwc.SetWriteDeadline(time.Time{})
}

func closeStatusCode(payload []byte) int {
	if len(payload) < 2 {
		return 1005 // no status present
	}
	return int(binary.BigEndian.Uint16(payload[:2]))
}

// Close performs the closing handshake: it sends one Close frame, waits
// briefly for the peer's acknowledgement, then releases the stream. Close
// is idempotent; calling it on an already-closed connection is a no-op.
func (c *Conn) Close() error {
	c.stateMu.Lock()
	if c.state == StateClosed || c.state == StateClosing {
		c.stateMu.Unlock()
		return nil
	}
	wasOpen := c.state == StateOpen
	c.state = StateClosing
	c.stateMu.Unlock()

	if wasOpen {
		var payload [2]byte
		binary.BigEndian.PutUint16(payload[:], 1000) // normal closure
		c.writeControl(OpcodeClose, payload[:])
		// Only one goroutine may touch the buffered reader. When a
		// Receive is in flight it observes the peer's Close itself;
		// otherwise this goroutine drains for it.
		if c.recvActive.Load() {
			c.waitPeerClose()
		} else {
			c.awaitCloseAck()
		}
	}

	c.rwc.Close()
	c.setState(StateClosed)
	c.log.LogConnEvent("close", StateClosed, nil)
	return nil
}

// waitPeerClose waits for the in-flight Receive to observe the peer's
// Close, bounded by the ack deadline. Closing the stream afterwards
// unblocks the receiver if the peer never acknowledged.
func (c *Conn) waitPeerClose() {
	deadline := time.Now().Add(closeAckWait)
	for time.Now().Before(deadline) {
		if c.State() == StateClosed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// awaitCloseAck drains inbound frames until the peer's Close frame, a read
// error, or the deadline, whichever comes first.
func (c *Conn) awaitCloseAck() {
	c.rwc.SetReadDeadline(time.Now().Add(closeAckWait))
	defer c.rwc.SetReadDeadline(time.Time{})

	for {
		var hdr [2]byte
		if _, err := io.ReadFull(c.br, hdr[:]); err != nil {
			return
		}
		_, opcode, masked, baseLen := parseFrameHeader(hdr)
		length, err := readExtendedLength(c.br, baseLen)
		if err != nil {
			return
		}
		skip := int64(length)
		if masked {
			skip += 4
		}
		if _, err := io.CopyN(io.Discard, c.br, skip); err != nil {
			return
		}
		if opcode == OpcodeClose {
			return
		}
	}
}

// abort tears the connection down without the closing handshake, for use
// when the stream is already broken.
func (c *Conn) abort() {
	c.stateMu.Lock()
	if c.state == StateClosed {
		c.stateMu.Unlock()
		return
	}
	c.state = StateClosed
	c.stateMu.Unlock()
	c.rwc.Close()
}

// IsTerminal reports whether err ends the connection (as opposed to a
// droppable bad frame).
func IsTerminal(err error) bool {
	return errors.Is(err, ErrConnectionClosed)
}
