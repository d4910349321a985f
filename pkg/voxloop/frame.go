package voxloop

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// Opcode is the WebSocket frame type tag defined in RFC 6455.
type Opcode byte

const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

// IsControl reports whether the opcode is a control frame.
func (o Opcode) IsControl() bool {
	return o >= 0x8
}

func (o Opcode) String() string {
	switch o {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	}
	return fmt.Sprintf("opcode(0x%X)", byte(o))
}

// MaxFramePayload is the per-frame payload ceiling. Frames above it are
// rejected outright rather than truncated; the audio path never comes close
// (a 200 ms chunk of 24 kHz 16-bit PCM is under 10 KiB even base64-encoded).
const MaxFramePayload = 1 << 20 // 1 MiB

// EncodeFrame serializes one complete client frame: FIN is always set (no
// outbound fragmentation) and the payload is masked with a fresh random
// 32-bit key, as RFC 6455 requires of client-originated frames.
func EncodeFrame(opcode Opcode, payload []byte) ([]byte, error) {
	if len(payload) > MaxFramePayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	var key [4]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("voxloop: mask key: %w", err)
	}

	n := len(payload)
	buf := make([]byte, 0, 14+n)
	buf = append(buf, 0x80|byte(opcode&0x0F)) // FIN=1

	switch {
	case n < 126:
		buf = append(buf, 0x80|byte(n))
	case n < 1<<16:
		buf = append(buf, 0x80|126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(n))
		buf = append(buf, ext[:]...)
	default:
		buf = append(buf, 0x80|127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		buf = append(buf, ext[:]...)
	}

	buf = append(buf, key[:]...)
	start := len(buf)
	buf = append(buf, payload...)
	ApplyMask(buf[start:], key)
	return buf, nil
}

// ApplyMask XORs payload in place with key[i%4]. The operation is its own
// inverse, so it both masks and unmasks.
func ApplyMask(payload []byte, key [4]byte) {
	for i := range payload {
		payload[i] ^= key[i%4]
	}
}

// parseFrameHeader extracts the fixed two-byte header fields. Pure bit
// extraction; it never touches the payload.
func parseFrameHeader(hdr [2]byte) (fin bool, opcode Opcode, masked bool, baseLen byte) {
	fin = hdr[0]&0x80 != 0
	opcode = Opcode(hdr[0] & 0x0F)
	masked = hdr[1]&0x80 != 0
	baseLen = hdr[1] & 0x7F
	return fin, opcode, masked, baseLen
}

// readExtendedLength resolves the payload length, reading 2 or 8 further
// network-order bytes only when baseLen signals 126 or 127.
func readExtendedLength(r io.Reader, baseLen byte) (int, error) {
	switch baseLen {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return 0, fmt.Errorf("extended length: %w", ErrConnectionClosed)
		}
		return int(binary.BigEndian.Uint16(ext[:])), nil
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return 0, fmt.Errorf("extended length: %w", ErrConnectionClosed)
		}
		n := binary.BigEndian.Uint64(ext[:])
		if n&(1<<63) != 0 {
			return 0, fmt.Errorf("%w: 64-bit length with high bit set", ErrMalformedFrame)
		}
		if n > MaxFramePayload {
			return 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
		}
		return int(n), nil
	}
	return int(baseLen), nil
}
