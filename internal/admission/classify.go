package admission

import (
	"github.com/gogogo1024/screengate/internal/actionlog"
	"github.com/gogogo1024/screengate/protocol"
)

// sideEffectFree kinds are forwarded at once and never gated.
var sideEffectFree = map[protocol.ControlType]bool{
	protocol.ControlText:                    true,
	protocol.ControlBackOrScreenOn:          true,
	protocol.ControlExpandNotificationPanel: true,
	protocol.ControlExpandSettingsPanel:     true,
	protocol.ControlCollapsePanels:          true,
	protocol.ControlGetClipboard:            true,
	protocol.ControlSetClipboard:            true,
	protocol.ControlSetScreenPowerMode:      true,
	protocol.ControlRotateDevice:            true,
	protocol.ControlChangeStreamParameters:  true,
}

// alwaysNonConcurrent kinds go through the rate limit and authorization whatever came before.
var alwaysNonConcurrent = map[protocol.ControlType]bool{
	protocol.ControlPushFile: true,
}

// serializedKeyCodes are presses that always need a fresh authorization.
var serializedKeyCodes = map[int32]bool{
	protocol.KeyCodeHome:      true,
	protocol.KeyCodeBack:      true,
	protocol.KeyCodePower:     true,
	protocol.KeyCodeAppSwitch: true,
}

// IsSideEffectFree reports whether t takes the fast path.
func IsSideEffectFree(t protocol.ControlType) bool {
	return sideEffectFree[t]
}

// Classify reports whether rec is concurrent with its immediate
// predecessor prev. prev is nil for the first command of a session.
func Classify(rec, prev *actionlog.Record) bool {
	if sideEffectFree[rec.Type] || alwaysNonConcurrent[rec.Type] {
		return false
	}
	switch rec.Type {
	case protocol.ControlKeyCode:
		if rec.Action == protocol.ActionUp {
			return true
		}
		if serializedKeyCodes[rec.KeyCode] {
			return false
		}
		return prev != nil && prev.IsKeyPress()
	case protocol.ControlTouch:
		switch rec.Action {
		case protocol.ActionDown, protocol.ActionUp:
			return true
		default:
			return false
		}
	case protocol.ControlScroll:
		return prev != nil && prev.Type == protocol.ControlScroll
	default:
		return false
	}
}
