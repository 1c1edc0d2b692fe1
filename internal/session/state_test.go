package session

import (
	"testing"

	"github.com/gogogo1024/screengate/protocol"
)

func twoDisplayHandshake() *protocol.Handshake {
	return &protocol.Handshake{
		DeviceName: "Pixel",
		Displays: []protocol.DisplayEntry{
			{
				Info:            protocol.DisplayInfo{DisplayID: 0, Size: protocol.Size{Width: 1080, Height: 2400}},
				ConnectionCount: 3,
				Screen: &protocol.ScreenInfo{
					ContentRect: protocol.Rect{Left: 0, Top: 100, Right: 1080, Bottom: 2300},
				},
			},
			{
				Info: protocol.DisplayInfo{DisplayID: 4, Size: protocol.Size{Width: 800, Height: 600}},
			},
		},
		Encoders: []string{},
		ClientID: 7,
	}
}

func TestInitialInfoBeforeHandshake(t *testing.T) {
	s := NewState()
	if _, ok := s.InitialInfo(); ok {
		t.Fatalf("expected no initial info before handshake")
	}
	if s.HandshakeReceived() {
		t.Fatalf("HandshakeReceived=true on new state")
	}
}

func TestApplyTwoDisplays(t *testing.T) {
	s := NewState()
	s.Apply(twoDisplayHandshake())

	info, ok := s.InitialInfo()
	if !ok {
		t.Fatalf("expected initial info after handshake")
	}
	if info.ClientsStats != (ClientsStats{ClientID: 7, DeviceName: "Pixel"}) {
		t.Fatalf("ClientsStats=%+v", info.ClientsStats)
	}
	if len(info.Encoders) != 0 {
		t.Fatalf("Encoders=%v, want empty", info.Encoders)
	}
	if len(info.Displays) != 2 {
		t.Fatalf("len(Displays)=%d, want 2", len(info.Displays))
	}
	if info.Displays[0].ConnectionCount != 3 {
		t.Fatalf("display 0 ConnectionCount=%d, want 3", info.Displays[0].ConnectionCount)
	}
	if info.Displays[1].ConnectionCount != 0 {
		t.Fatalf("display 4 ConnectionCount=%d, want 0", info.Displays[1].ConnectionCount)
	}
	if info.Displays[1].ScreenInfo != nil || info.Displays[1].VideoSettings != nil {
		t.Fatalf("display 4 should carry no screen/video info")
	}
}

func TestApplyReplacesPriorState(t *testing.T) {
	s := NewState()
	s.Apply(twoDisplayHandshake())
	s.Apply(&protocol.Handshake{
		DeviceName: "Tablet",
		Displays: []protocol.DisplayEntry{
			{Info: protocol.DisplayInfo{DisplayID: 9}},
		},
		Encoders: []string{"a", "b", "a"},
		ClientID: 1,
	})

	if _, ok := s.Display(0); ok {
		t.Fatalf("display 0 survived a replacing handshake")
	}
	if _, ok := s.Display(9); !ok {
		t.Fatalf("display 9 missing")
	}
	info, _ := s.InitialInfo()
	if len(info.Encoders) != 2 || info.Encoders[0] != "a" || info.Encoders[1] != "b" {
		t.Fatalf("Encoders=%v, want [a b]", info.Encoders)
	}
	if !s.HasEncoder("b") || s.HasEncoder("c") {
		t.Fatalf("encoder set mismatch")
	}
	if s.DeviceName() != "Tablet" {
		t.Fatalf("DeviceName=%q", s.DeviceName())
	}
}

func TestSnapshotUsesFirstDisplay(t *testing.T) {
	s := NewState()
	if snap := s.Snapshot(); snap.DeviceName != "" || snap.PointerRect != (protocol.Rect{}) {
		t.Fatalf("empty snapshot=%+v", snap)
	}

	s.Apply(twoDisplayHandshake())
	snap := s.Snapshot()
	want := protocol.Rect{Left: 0, Top: 100, Right: 1080, Bottom: 2300}
	if snap.PointerRect != want || snap.DeviceName != "Pixel" {
		t.Fatalf("snapshot=%+v, want rect %+v", snap, want)
	}

	s.Apply(&protocol.Handshake{
		DeviceName: "Pixel",
		Displays:   []protocol.DisplayEntry{{Info: protocol.DisplayInfo{DisplayID: 2, Size: protocol.Size{Width: 640, Height: 480}}}},
	})
	if got := s.Snapshot().PointerRect; got != (protocol.Rect{Right: 640, Bottom: 480}) {
		t.Fatalf("fallback rect=%+v", got)
	}
}
