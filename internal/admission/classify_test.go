package admission

import (
	"testing"

	"github.com/gogogo1024/screengate/internal/actionlog"
	"github.com/gogogo1024/screengate/protocol"
)

func logPair(prevMsg, msg protocol.ControlMessage) (rec, prev *actionlog.Record) {
	l := actionlog.New()
	if prevMsg != nil {
		l.Append(actionlog.Entry{Command: prevMsg})
	}
	return l.Append(actionlog.Entry{Command: msg})
}

func TestClassify(t *testing.T) {
	keyDown := func(code int32) protocol.ControlMessage {
		return &protocol.KeyCodeMessage{Action: protocol.ActionDown, KeyCode: code}
	}
	keyUp := func(code int32) protocol.ControlMessage {
		return &protocol.KeyCodeMessage{Action: protocol.ActionUp, KeyCode: code}
	}
	touch := func(action int8) protocol.ControlMessage {
		return &protocol.TouchMessage{Action: action}
	}
	scroll := &protocol.ScrollMessage{VScroll: 1}

	cases := []struct {
		name string
		prev protocol.ControlMessage
		msg  protocol.ControlMessage
		want bool
	}{
		{"key release is concurrent", touch(protocol.ActionMove), keyUp(66), true},
		{"back release is concurrent", nil, keyUp(protocol.KeyCodeBack), true},
		{"back press serialized", keyDown(66), keyDown(protocol.KeyCodeBack), false},
		{"home press serialized", keyDown(66), keyDown(protocol.KeyCodeHome), false},
		{"power press serialized", keyDown(66), keyDown(protocol.KeyCodePower), false},
		{"recents press serialized", keyDown(66), keyDown(protocol.KeyCodeAppSwitch), false},
		{"press after press is concurrent", keyDown(29), keyDown(30), true},
		{"press after release is not", keyUp(29), keyDown(30), false},
		{"press after touch is not", touch(protocol.ActionUp), keyDown(30), false},
		{"first press is not", nil, keyDown(30), false},
		{"touch move", touch(protocol.ActionDown), touch(protocol.ActionMove), false},
		{"touch down", touch(protocol.ActionMove), touch(protocol.ActionDown), true},
		{"touch up", touch(protocol.ActionMove), touch(protocol.ActionUp), true},
		{"touch cancel", touch(protocol.ActionMove), touch(protocol.ActionCancel), false},
		{"scroll after scroll", scroll, scroll, true},
		{"scroll after touch", touch(protocol.ActionUp), scroll, false},
		{"first scroll", nil, scroll, false},
		{"push file", scroll, &protocol.PushFileMessage{State: protocol.PushStart}, false},
		{"side-effect-free", keyDown(1), &protocol.TextMessage{Text: "x"}, false},
	}
	for _, tc := range cases {
		rec, prev := logPair(tc.prev, tc.msg)
		if got := Classify(rec, prev); got != tc.want {
			t.Fatalf("%s: Classify=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsSideEffectFree(t *testing.T) {
	for _, ct := range []protocol.ControlType{
		protocol.ControlText, protocol.ControlSetClipboard, protocol.ControlRotateDevice,
		protocol.ControlBackOrScreenOn, protocol.ControlExpandNotificationPanel, protocol.ControlCollapsePanels,
	} {
		if !IsSideEffectFree(ct) {
			t.Fatalf("%s should be side-effect-free", ct)
		}
	}
	for _, ct := range []protocol.ControlType{
		protocol.ControlKeyCode, protocol.ControlTouch, protocol.ControlScroll, protocol.ControlPushFile,
	} {
		if IsSideEffectFree(ct) {
			t.Fatalf("%s should be gated", ct)
		}
	}
}
