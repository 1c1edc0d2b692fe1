package protocol

import "fmt"

// DeviceMessageType identifies the payload of a device message frame.
type DeviceMessageType uint8

const (
	DeviceMessageClipboard    DeviceMessageType = 0
	DeviceMessagePushResponse DeviceMessageType = 101
)

func (t DeviceMessageType) String() string {
	switch t {
	case DeviceMessageClipboard:
		return "clipboard"
	case DeviceMessagePushResponse:
		return "push_response"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// DeviceMessage is a decoded device-status message.
// Only the fields of its Type are populated.
type DeviceMessage struct {
	Type       DeviceMessageType `json:"type"`
	Clipboard  string            `json:"clipboard,omitempty"`
	PushID     int16             `json:"push_id,omitempty"`
	PushResult int8              `json:"push_result,omitempty"`
}

// DecodeDeviceMessage parses a device message frame, magic included.
func DecodeDeviceMessage(b []byte) (*DeviceMessage, error) {
	if Classify(b) != FrameDeviceMessage {
		return nil, fmt.Errorf("device message: missing magic: %w", ErrShortFrame)
	}
	r := &reader{buf: b, off: MagicLen}
	t, err := r.uint8("type")
	if err != nil {
		return nil, fmt.Errorf("device message: %w", err)
	}
	m := &DeviceMessage{Type: DeviceMessageType(t)}
	switch m.Type {
	case DeviceMessageClipboard:
		text, err := r.lenPrefixed("clipboard")
		if err != nil {
			return nil, fmt.Errorf("device message: %w", err)
		}
		m.Clipboard = string(text)
	case DeviceMessagePushResponse:
		if m.PushID, err = r.int16("push id"); err != nil {
			return nil, fmt.Errorf("device message: %w", err)
		}
		res, err := r.uint8("push result")
		if err != nil {
			return nil, fmt.Errorf("device message: %w", err)
		}
		m.PushResult = int8(res)
	default:
		return nil, fmt.Errorf("device message: type %d: %w", t, ErrUnknownMessage)
	}
	return m, nil
}

// EncodeDeviceMessage produces the wire form DecodeDeviceMessage accepts.
func EncodeDeviceMessage(m *DeviceMessage) []byte {
	w := &writer{}
	w.raw(DeviceMessageMagic)
	w.uint8(uint8(m.Type))
	switch m.Type {
	case DeviceMessageClipboard:
		w.lenPrefixed([]byte(m.Clipboard))
	case DeviceMessagePushResponse:
		w.int16(m.PushID)
		w.uint8(uint8(m.PushResult))
	}
	return w.buf
}
