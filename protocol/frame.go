package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// MagicLen is the length of both frame magic prefixes.
const MagicLen = 14

var (
	// HandshakeMagic starts the initial frame describing the device.
	HandshakeMagic = []byte("scrcpy_initial")
	// DeviceMessageMagic starts every device-status message frame.
	DeviceMessageMagic = []byte("scrcpy_message")
)

var (
	ErrShortFrame     = errors.New("short frame")
	ErrInvalidLength  = errors.New("invalid declared length")
	ErrUnknownMessage = errors.New("unknown device message type")
)

// FrameKind is the channel an inbound binary message belongs to.
type FrameKind uint8

const (
	FrameVideo FrameKind = iota
	FrameHandshake
	FrameDeviceMessage
)

func (k FrameKind) String() string {
	switch k {
	case FrameHandshake:
		return "handshake"
	case FrameDeviceMessage:
		return "device_message"
	default:
		return "video"
	}
}

// Classify picks the channel for an inbound message by its magic prefix.
// Anything that does not carry an exact magic is a video frame.
func Classify(b []byte) FrameKind {
	if len(b) <= MagicLen {
		return FrameVideo
	}
	prefix := b[:MagicLen]
	switch {
	case bytes.Equal(prefix, HandshakeMagic):
		return FrameHandshake
	case bytes.Equal(prefix, DeviceMessageMagic):
		return FrameDeviceMessage
	default:
		return FrameVideo
	}
}

// reader is a bounds-checked big-endian cursor over a frame.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) need(n int, what string) error {
	if n < 0 || r.remaining() < n {
		return fmt.Errorf("%s: need %d bytes at offset %d, have %d: %w", what, n, r.off, r.remaining(), ErrShortFrame)
	}
	return nil
}

func (r *reader) bytes(n int, what string) ([]byte, error) {
	if err := r.need(n, what); err != nil {
		return nil, err
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *reader) uint8(what string) (uint8, error) {
	b, err := r.bytes(1, what)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) int16(what string) (int16, error) {
	b, err := r.bytes(2, what)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (r *reader) int32(what string) (int32, error) {
	b, err := r.bytes(4, what)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// lenPrefixed reads an int32 length followed by that many bytes.
func (r *reader) lenPrefixed(what string) ([]byte, error) {
	n, err := r.int32(what + " length")
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > r.remaining() {
		return nil, fmt.Errorf("%s: declared %d, have %d: %w", what, n, r.remaining(), ErrInvalidLength)
	}
	return r.bytes(int(n), what)
}

// writer is the encoding counterpart of reader.
type writer struct {
	buf []byte
}

func (w *writer) raw(b []byte) { w.buf = append(w.buf, b...) }
func (w *writer) uint8(v uint8) { w.buf = append(w.buf, v) }
func (w *writer) int16(v int16) { w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v)) }
func (w *writer) uint16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) int32(v int32) { w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v)) }
func (w *writer) uint32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) int64(v int64) { w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v)) }

func (w *writer) lenPrefixed(b []byte) {
	w.int32(int32(len(b)))
	w.raw(b)
}
