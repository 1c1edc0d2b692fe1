package main

import (
	"errors"
	"testing"

	"github.com/gogogo1024/screengate/protocol"
)

func TestParseCommand(t *testing.T) {
	screen := protocol.Rect{Right: 1080, Bottom: 2400}

	msgs, err := parseCommand("tap 10 20", screen)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("tap: msgs=%d err=%v", len(msgs), err)
	}
	down := msgs[0].(*protocol.TouchMessage)
	up := msgs[1].(*protocol.TouchMessage)
	if down.Action != protocol.ActionDown || up.Action != protocol.ActionUp {
		t.Fatalf("tap actions %d %d", down.Action, up.Action)
	}
	if down.Position != (protocol.Position{X: 10, Y: 20, Width: 1080, Height: 2400}) {
		t.Fatalf("tap position %+v", down.Position)
	}
	if _, err := up.MarshalBinary(); err != nil {
		t.Fatalf("tap up does not encode: %v", err)
	}

	msgs, err = parseCommand("key 66", screen)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("key: msgs=%d err=%v", len(msgs), err)
	}
	if k := msgs[0].(*protocol.KeyCodeMessage); k.KeyCode != 66 || k.Action != protocol.ActionDown {
		t.Fatalf("key down %+v", k)
	}

	msgs, err = parseCommand("back", screen)
	if err != nil || msgs[0].(*protocol.KeyCodeMessage).KeyCode != protocol.KeyCodeBack {
		t.Fatalf("back: %v", err)
	}

	msgs, err = parseCommand("scroll 5 6 0 -1", screen)
	if err != nil {
		t.Fatalf("scroll: %v", err)
	}
	if s := msgs[0].(*protocol.ScrollMessage); s.VScroll != -1 || s.Position.X != 5 {
		t.Fatalf("scroll %+v", s)
	}

	msgs, err = parseCommand("text  hello  world", screen)
	if err != nil || msgs[0].(*protocol.TextMessage).Text != "hello  world" {
		t.Fatalf("text: %v %+v", err, msgs)
	}

	msgs, err = parseCommand("clipboard copied", screen)
	if err != nil || msgs[0].Type() != protocol.ControlSetClipboard {
		t.Fatalf("clipboard: %v", err)
	}

	msgs, err = parseCommand("rotate", screen)
	if err != nil || msgs[0].Type() != protocol.ControlRotateDevice {
		t.Fatalf("rotate: %v", err)
	}

	if msgs, err := parseCommand("   ", screen); err != nil || msgs != nil {
		t.Fatalf("blank line: %v %v", msgs, err)
	}
	if _, err := parseCommand("info", screen); !errors.Is(err, errInfo) {
		t.Fatalf("info: %v", err)
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, line := range []string{"key", "key x", "tap 1", "move a b", "scroll 1 2 3", "dance"} {
		if _, err := parseCommand(line, protocol.Rect{}); err == nil {
			t.Fatalf("%q: expected error", line)
		}
	}
}
