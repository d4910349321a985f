package voxloop

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// decodeClientFrame parses a frame produced by EncodeFrame, unmasking the
// payload.
func decodeClientFrame(t *testing.T, frame []byte) (Opcode, []byte) {
	t.Helper()
	require.GreaterOrEqual(t, len(frame), 2)

	fin, opcode, masked, baseLen := parseFrameHeader([2]byte{frame[0], frame[1]})
	require.True(t, fin, "client frames always set FIN")
	require.True(t, masked, "client frames are always masked")

	r := bytes.NewReader(frame[2:])
	length, err := readExtendedLength(r, baseLen)
	require.NoError(t, err)

	var key [4]byte
	_, err = io.ReadFull(r, key[:])
	require.NoError(t, err)

	payload := make([]byte, length)
	_, err = io.ReadFull(r, payload)
	require.NoError(t, err)
	require.Zero(t, r.Len(), "no trailing bytes after payload")

	ApplyMask(payload, key)
	return opcode, payload
}

func TestEncodeFrameMaskRoundTrip(t *testing.T) {
	payload := []byte(`{"type":"input_audio_buffer.append","audio":"AAAA"}`)

	frame, err := EncodeFrame(OpcodeText, payload)
	require.NoError(t, err)

	// The payload on the wire must not be the clear text.
	require.NotContains(t, string(frame), string(payload))

	opcode, got := decodeClientFrame(t, frame)
	require.Equal(t, OpcodeText, opcode)
	require.Equal(t, payload, got)
}

func TestEncodeFrameFreshMaskPerFrame(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 64)

	a, err := EncodeFrame(OpcodeBinary, payload)
	require.NoError(t, err)
	b, err := EncodeFrame(OpcodeBinary, payload)
	require.NoError(t, err)

	// Same payload, different key, different wire bytes.
	require.NotEqual(t, a[2:6], b[2:6])
}

func TestEncodeFrameLengthEncodings(t *testing.T) {
	cases := []struct {
		name      string
		size      int
		baseLen   byte
		headerLen int
	}{
		{"empty", 0, 0, 2},
		{"one", 1, 1, 2},
		{"max inline", 125, 125, 2},
		{"min 16-bit", 126, 126, 4},
		{"max 16-bit", 65535, 126, 4},
		{"min 64-bit", 65536, 127, 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := bytes.Repeat([]byte{0xAB}, tc.size)
			frame, err := EncodeFrame(OpcodeBinary, payload)
			require.NoError(t, err)

			require.Equal(t, tc.baseLen, frame[1]&0x7F)
			// header + mask key + payload
			require.Len(t, frame, tc.headerLen+4+tc.size)

			opcode, got := decodeClientFrame(t, frame)
			require.Equal(t, OpcodeBinary, opcode)
			require.Equal(t, payload, got)
		})
	}
}

func TestEncodeFrameTooLarge(t *testing.T) {
	payload := make([]byte, MaxFramePayload+1)
	_, err := EncodeFrame(OpcodeBinary, payload)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestApplyMaskSelfInverse(t *testing.T) {
	key := [4]byte{0xDE, 0xAD, 0xBE, 0xEF}
	payload := []byte("not an aligned length")
	orig := append([]byte(nil), payload...)

	ApplyMask(payload, key)
	require.NotEqual(t, orig, payload)
	ApplyMask(payload, key)
	require.Equal(t, orig, payload)
}

func TestReadExtendedLength(t *testing.T) {
	t.Run("16-bit", func(t *testing.T) {
		n, err := readExtendedLength(bytes.NewReader([]byte{0x01, 0x00}), 126)
		require.NoError(t, err)
		require.Equal(t, 256, n)
	})

	t.Run("64-bit", func(t *testing.T) {
		n, err := readExtendedLength(bytes.NewReader([]byte{0, 0, 0, 0, 0, 1, 0, 0}), 127)
		require.NoError(t, err)
		require.Equal(t, 65536, n)
	})

	t.Run("high bit set", func(t *testing.T) {
		_, err := readExtendedLength(bytes.NewReader([]byte{0x80, 0, 0, 0, 0, 0, 0, 0}), 127)
		require.ErrorIs(t, err, ErrMalformedFrame)
	})

	t.Run("over ceiling", func(t *testing.T) {
		_, err := readExtendedLength(bytes.NewReader([]byte{0, 0, 0, 0, 1, 0, 0, 1}), 127)
		require.ErrorIs(t, err, ErrFrameTooLarge)
	})

	t.Run("short read", func(t *testing.T) {
		_, err := readExtendedLength(bytes.NewReader([]byte{0x01}), 126)
		require.ErrorIs(t, err, ErrConnectionClosed)
	})

	t.Run("inline", func(t *testing.T) {
		n, err := readExtendedLength(bytes.NewReader(nil), 42)
		require.NoError(t, err)
		require.Equal(t, 42, n)
	})
}

func TestOpcodeClassification(t *testing.T) {
	require.False(t, OpcodeText.IsControl())
	require.False(t, OpcodeBinary.IsControl())
	require.True(t, OpcodeClose.IsControl())
	require.True(t, OpcodePing.IsControl())
	require.True(t, OpcodePong.IsControl())
	require.Equal(t, "ping", OpcodePing.String())
}
