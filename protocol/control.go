package protocol

import (
	"encoding"
	"fmt"
)

// ControlType is the first byte of every control message.
type ControlType uint8

const (
	ControlKeyCode                 ControlType = 0
	ControlText                    ControlType = 1
	ControlTouch                   ControlType = 2
	ControlScroll                  ControlType = 3
	ControlBackOrScreenOn          ControlType = 4
	ControlExpandNotificationPanel ControlType = 5
	ControlExpandSettingsPanel     ControlType = 6
	ControlCollapsePanels          ControlType = 7
	ControlGetClipboard            ControlType = 8
	ControlSetClipboard            ControlType = 9
	ControlSetScreenPowerMode      ControlType = 10
	ControlRotateDevice            ControlType = 11
	ControlChangeStreamParameters  ControlType = 101
	ControlPushFile                ControlType = 102
)

var controlTypeNames = map[ControlType]string{
	ControlKeyCode:                 "keycode",
	ControlText:                    "text",
	ControlTouch:                   "touch",
	ControlScroll:                  "scroll",
	ControlBackOrScreenOn:          "back_or_screen_on",
	ControlExpandNotificationPanel: "expand_notification_panel",
	ControlExpandSettingsPanel:     "expand_settings_panel",
	ControlCollapsePanels:          "collapse_panels",
	ControlGetClipboard:            "get_clipboard",
	ControlSetClipboard:            "set_clipboard",
	ControlSetScreenPowerMode:      "set_screen_power_mode",
	ControlRotateDevice:            "rotate_device",
	ControlChangeStreamParameters:  "change_stream_parameters",
	ControlPushFile:                "push_file",
}

func (t ControlType) String() string {
	if s, ok := controlTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Android KeyEvent / MotionEvent action codes.
const (
	ActionDown   int8 = 0
	ActionUp     int8 = 1
	ActionMove   int8 = 2
	ActionCancel int8 = 3
)

// Android key codes the admission rules single out.
const (
	KeyCodeHome      int32 = 3
	KeyCodeBack      int32 = 4
	KeyCodePower     int32 = 26
	KeyCodeAppSwitch int32 = 187
)

// ControlMessage is an outgoing command serialized onto the socket.
type ControlMessage interface {
	encoding.BinaryMarshaler
	Type() ControlType
}

// Fields exposes the classification fields of a control message.
// Action and KeyCode are -1 when the message kind carries none.
func Fields(m ControlMessage) (action int8, keyCode int32) {
	switch v := m.(type) {
	case *KeyCodeMessage:
		return v.Action, v.KeyCode
	case *TouchMessage:
		return v.Action, -1
	default:
		return -1, -1
	}
}

// Position is a point on a screen of the given size.
type Position struct {
	X      int32
	Y      int32
	Width  uint16
	Height uint16
}

func (p Position) appendTo(w *writer) {
	w.int32(p.X)
	w.int32(p.Y)
	w.uint16(p.Width)
	w.uint16(p.Height)
}

type KeyCodeMessage struct {
	Action    int8
	KeyCode   int32
	Repeat    int32
	MetaState int32
}

func (*KeyCodeMessage) Type() ControlType { return ControlKeyCode }

func (m *KeyCodeMessage) MarshalBinary() ([]byte, error) {
	w := &writer{buf: make([]byte, 0, 14)}
	w.uint8(uint8(ControlKeyCode))
	w.uint8(uint8(m.Action))
	w.int32(m.KeyCode)
	w.int32(m.Repeat)
	w.int32(m.MetaState)
	return w.buf, nil
}

// TextMessage injects text; used for paste.
type TextMessage struct {
	Text string
}

func (*TextMessage) Type() ControlType { return ControlText }

func (m *TextMessage) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.uint8(uint8(ControlText))
	w.lenPrefixed([]byte(m.Text))
	return w.buf, nil
}

type TouchMessage struct {
	Action    int8
	PointerID int64
	Position  Position
	Pressure  float32
	Buttons   int32
}

func (*TouchMessage) Type() ControlType { return ControlTouch }

func (m *TouchMessage) MarshalBinary() ([]byte, error) {
	if m.Pressure < 0 || m.Pressure > 1 {
		return nil, fmt.Errorf("touch pressure %v out of range [0,1]", m.Pressure)
	}
	w := &writer{buf: make([]byte, 0, 28)}
	w.uint8(uint8(ControlTouch))
	w.uint8(uint8(m.Action))
	w.int64(m.PointerID)
	m.Position.appendTo(w)
	w.uint16(uint16(m.Pressure * 0xffff))
	w.int32(m.Buttons)
	return w.buf, nil
}

type ScrollMessage struct {
	Position Position
	HScroll  int32
	VScroll  int32
}

func (*ScrollMessage) Type() ControlType { return ControlScroll }

func (m *ScrollMessage) MarshalBinary() ([]byte, error) {
	w := &writer{buf: make([]byte, 0, 21)}
	w.uint8(uint8(ControlScroll))
	m.Position.appendTo(w)
	w.int32(m.HScroll)
	w.int32(m.VScroll)
	return w.buf, nil
}

type SetClipboardMessage struct {
	Paste bool
	Text  string
}

func (*SetClipboardMessage) Type() ControlType { return ControlSetClipboard }

func (m *SetClipboardMessage) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.uint8(uint8(ControlSetClipboard))
	if m.Paste {
		w.uint8(1)
	} else {
		w.uint8(0)
	}
	w.lenPrefixed([]byte(m.Text))
	return w.buf, nil
}

// CommandMessage is a control message with no payload beyond its type.
type CommandMessage struct {
	Kind ControlType
}

func (m *CommandMessage) Type() ControlType { return m.Kind }

func (m *CommandMessage) MarshalBinary() ([]byte, error) {
	switch m.Kind {
	case ControlBackOrScreenOn, ControlExpandNotificationPanel, ControlExpandSettingsPanel,
		ControlCollapsePanels, ControlGetClipboard, ControlRotateDevice:
		return []byte{byte(m.Kind)}, nil
	default:
		return nil, fmt.Errorf("%s is not a payload-free command", m.Kind)
	}
}

type ScreenPowerModeMessage struct {
	Mode uint8
}

func (*ScreenPowerModeMessage) Type() ControlType { return ControlSetScreenPowerMode }

func (m *ScreenPowerModeMessage) MarshalBinary() ([]byte, error) {
	return []byte{byte(ControlSetScreenPowerMode), m.Mode}, nil
}

type ChangeStreamParametersMessage struct {
	Settings VideoSettings
}

func (*ChangeStreamParametersMessage) Type() ControlType { return ControlChangeStreamParameters }

func (m *ChangeStreamParametersMessage) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.uint8(uint8(ControlChangeStreamParameters))
	m.Settings.appendTo(w)
	return w.buf, nil
}

// PushState is the phase of a chunked file push.
type PushState int8

const (
	PushNew    PushState = 0
	PushStart  PushState = 1
	PushAppend PushState = 2
	PushFinish PushState = 3
	PushCancel PushState = 4
)

// PushFileMessage carries one step of a file push to the device.
type PushFileMessage struct {
	ID       int16
	State    PushState
	FileSize int32
	FileName string
	Chunk    []byte
}

func (*PushFileMessage) Type() ControlType { return ControlPushFile }

func (m *PushFileMessage) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.uint8(uint8(ControlPushFile))
	w.int16(m.ID)
	w.uint8(uint8(m.State))
	switch m.State {
	case PushNew:
		if len(m.FileName) > 0xffff {
			return nil, fmt.Errorf("push file name too long: %d bytes", len(m.FileName))
		}
		w.int32(m.FileSize)
		w.uint16(uint16(len(m.FileName)))
		w.raw([]byte(m.FileName))
	case PushAppend:
		w.lenPrefixed(m.Chunk)
	case PushStart, PushFinish, PushCancel:
	default:
		return nil, fmt.Errorf("unknown push state %d", m.State)
	}
	return w.buf, nil
}
