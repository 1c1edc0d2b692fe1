package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gogogo1024/screengate/protocol"
)

var errInfo = errors.New("info")

// parseCommand turns one console line into the control messages it stands
// for. screen is the pointer rectangle of the current session; positions
// are sent relative to it.
func parseCommand(line string, screen protocol.Rect) ([]protocol.ControlMessage, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "key":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: key <code>")
		}
		code, err := strconv.ParseInt(args[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("key code %q: %w", args[0], err)
		}
		return keyPress(int32(code)), nil
	case "back":
		return keyPress(protocol.KeyCodeBack), nil
	case "home":
		return keyPress(protocol.KeyCodeHome), nil
	case "tap", "move":
		pos, err := parsePosition(args, screen)
		if err != nil {
			return nil, fmt.Errorf("usage: %s <x> <y>: %w", name, err)
		}
		if name == "move" {
			return []protocol.ControlMessage{touch(protocol.ActionMove, pos)}, nil
		}
		return []protocol.ControlMessage{touch(protocol.ActionDown, pos), touch(protocol.ActionUp, pos)}, nil
	case "scroll":
		if len(args) != 4 {
			return nil, fmt.Errorf("usage: scroll <x> <y> <dx> <dy>")
		}
		pos, err := parsePosition(args[:2], screen)
		if err != nil {
			return nil, err
		}
		dx, err := strconv.ParseInt(args[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("dx %q: %w", args[2], err)
		}
		dy, err := strconv.ParseInt(args[3], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("dy %q: %w", args[3], err)
		}
		return []protocol.ControlMessage{&protocol.ScrollMessage{Position: pos, HScroll: int32(dx), VScroll: int32(dy)}}, nil
	case "text":
		return []protocol.ControlMessage{&protocol.TextMessage{Text: rest(line, name)}}, nil
	case "clipboard":
		return []protocol.ControlMessage{&protocol.SetClipboardMessage{Text: rest(line, name), Paste: true}}, nil
	case "rotate":
		return []protocol.ControlMessage{&protocol.CommandMessage{Kind: protocol.ControlRotateDevice}}, nil
	case "info":
		return nil, errInfo
	default:
		return nil, fmt.Errorf("unknown command %q", name)
	}
}

func keyPress(code int32) []protocol.ControlMessage {
	return []protocol.ControlMessage{
		&protocol.KeyCodeMessage{Action: protocol.ActionDown, KeyCode: code},
		&protocol.KeyCodeMessage{Action: protocol.ActionUp, KeyCode: code},
	}
}

func touch(action int8, pos protocol.Position) protocol.ControlMessage {
	pressure := float32(1)
	if action == protocol.ActionUp {
		pressure = 0
	}
	return &protocol.TouchMessage{Action: action, PointerID: -1, Position: pos, Pressure: pressure}
}

func parsePosition(args []string, screen protocol.Rect) (protocol.Position, error) {
	if len(args) != 2 {
		return protocol.Position{}, fmt.Errorf("want x and y, got %d values", len(args))
	}
	x, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return protocol.Position{}, fmt.Errorf("x %q: %w", args[0], err)
	}
	y, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		return protocol.Position{}, fmt.Errorf("y %q: %w", args[1], err)
	}
	return protocol.Position{
		X:      int32(x),
		Y:      int32(y),
		Width:  uint16(screen.Width()),
		Height: uint16(screen.Height()),
	}, nil
}

// rest returns everything after the command name, spacing preserved.
func rest(line, name string) string {
	s := strings.TrimLeft(line, " \t")
	return strings.TrimLeft(strings.TrimPrefix(s, name), " \t")
}
