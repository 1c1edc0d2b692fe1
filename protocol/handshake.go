package protocol

import (
	"bytes"
	"fmt"
)

// DeviceNameLen is the NUL-padded device name field width.
const DeviceNameLen = 64

// DisplayEntry is one per-display block of the handshake.
type DisplayEntry struct {
	Info            DisplayInfo
	ConnectionCount int32
	Screen          *ScreenInfo
	Video           *VideoSettings
}

// Handshake is the decoded initial frame.
type Handshake struct {
	DeviceName string
	Displays   []DisplayEntry
	Encoders   []string
	ClientID   int32
}

// DecodeHandshake parses a full handshake frame, magic included.
// Any short read or inconsistent length fails the whole frame.
func DecodeHandshake(b []byte) (*Handshake, error) {
	if Classify(b) != FrameHandshake {
		return nil, fmt.Errorf("handshake: missing magic: %w", ErrShortFrame)
	}
	r := &reader{buf: b, off: MagicLen}

	name, err := r.bytes(DeviceNameLen, "device name")
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	h := &Handshake{DeviceName: string(bytes.TrimRight(name, "\x00"))}

	count, err := r.int32("display count")
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	if count < 0 || int(count)*(DisplayInfoLen+12) > r.remaining() {
		return nil, fmt.Errorf("handshake: display count %d: %w", count, ErrInvalidLength)
	}
	h.Displays = make([]DisplayEntry, 0, count)
	for i := 0; i < int(count); i++ {
		entry, err := decodeDisplayEntry(r)
		if err != nil {
			return nil, fmt.Errorf("handshake: display %d: %w", i, err)
		}
		h.Displays = append(h.Displays, entry)
	}

	encCount, err := r.int32("encoder count")
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	if encCount < 0 || int(encCount)*4 > r.remaining() {
		return nil, fmt.Errorf("handshake: encoder count %d: %w", encCount, ErrInvalidLength)
	}
	h.Encoders = make([]string, 0, encCount)
	for i := 0; i < int(encCount); i++ {
		name, err := r.lenPrefixed("encoder name")
		if err != nil {
			return nil, fmt.Errorf("handshake: encoder %d: %w", i, err)
		}
		h.Encoders = append(h.Encoders, string(name))
	}

	h.ClientID, err = r.int32("client id")
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return h, nil
}

func decodeDisplayEntry(r *reader) (DisplayEntry, error) {
	raw, err := r.bytes(DisplayInfoLen, "display info")
	if err != nil {
		return DisplayEntry{}, err
	}
	info, err := decodeDisplayInfo(raw)
	if err != nil {
		return DisplayEntry{}, err
	}
	entry := DisplayEntry{Info: info}

	if entry.ConnectionCount, err = r.int32("connection count"); err != nil {
		return DisplayEntry{}, err
	}

	screen, err := r.lenPrefixed("screen info")
	if err != nil {
		return DisplayEntry{}, err
	}
	if len(screen) > 0 {
		s, err := DecodeScreenInfo(screen)
		if err != nil {
			return DisplayEntry{}, err
		}
		entry.Screen = &s
	}

	video, err := r.lenPrefixed("video settings")
	if err != nil {
		return DisplayEntry{}, err
	}
	if len(video) > 0 {
		v, err := DecodeVideoSettings(video)
		if err != nil {
			return DisplayEntry{}, err
		}
		entry.Video = &v
	}
	return entry, nil
}

// EncodeHandshake produces the wire form DecodeHandshake accepts.
// Device names longer than DeviceNameLen are truncated.
func EncodeHandshake(h *Handshake) []byte {
	w := &writer{buf: make([]byte, 0, MagicLen+DeviceNameLen+64)}
	w.raw(HandshakeMagic)

	name := make([]byte, DeviceNameLen)
	copy(name, h.DeviceName)
	w.raw(name)

	w.int32(int32(len(h.Displays)))
	for _, d := range h.Displays {
		d.Info.appendTo(w)
		w.int32(d.ConnectionCount)
		if d.Screen != nil {
			b, _ := d.Screen.MarshalBinary()
			w.lenPrefixed(b)
		} else {
			w.int32(0)
		}
		if d.Video != nil {
			b, _ := d.Video.MarshalBinary()
			w.lenPrefixed(b)
		} else {
			w.int32(0)
		}
	}

	w.int32(int32(len(h.Encoders)))
	for _, e := range h.Encoders {
		w.lenPrefixed([]byte(e))
	}
	w.int32(h.ClientID)
	return w.buf
}
