package session

import (
	"sync"

	"github.com/gogogo1024/screengate/protocol"
)

// DisplayRecord is everything the handshake said about one display.
type DisplayRecord struct {
	DisplayID       int32
	Info            protocol.DisplayInfo
	Screen          *protocol.ScreenInfo
	Video           *protocol.VideoSettings
	ConnectionCount int32
}

// DisplayView is the combined per-display record handed to callers.
type DisplayView struct {
	DisplayInfo     protocol.DisplayInfo    `json:"display_info"`
	ScreenInfo      *protocol.ScreenInfo    `json:"screen_info,omitempty"`
	VideoSettings   *protocol.VideoSettings `json:"video_settings,omitempty"`
	ConnectionCount int32                   `json:"connection_count"`
}

// ClientsStats identifies this client on the device.
type ClientsStats struct {
	ClientID   int32  `json:"client_id"`
	DeviceName string `json:"device_name"`
}

// InitialInfo is the set of notifications derived from a handshake.
type InitialInfo struct {
	Encoders     []string
	ClientsStats ClientsStats
	Displays     []DisplayView
}

// Snapshot is what admission records alongside each command.
type Snapshot struct {
	DeviceName  string
	PointerRect protocol.Rect
}

// State holds the decoded handshake. It is rebuilt wholesale on every
// handshake and is safe for concurrent use.
type State struct {
	mu sync.RWMutex

	received   bool
	clientID   int32
	deviceName string

	encoders   []string
	encoderSet map[string]struct{}

	displays map[int32]DisplayRecord
	order    []int32
}

func NewState() *State {
	return &State{
		encoderSet: make(map[string]struct{}),
		displays:   make(map[int32]DisplayRecord),
	}
}

// Apply replaces all state with the contents of h.
func (s *State) Apply(h *protocol.Handshake) {
	encoders := make([]string, 0, len(h.Encoders))
	encoderSet := make(map[string]struct{}, len(h.Encoders))
	for _, e := range h.Encoders {
		if _, dup := encoderSet[e]; dup {
			continue
		}
		encoderSet[e] = struct{}{}
		encoders = append(encoders, e)
	}

	displays := make(map[int32]DisplayRecord, len(h.Displays))
	order := make([]int32, 0, len(h.Displays))
	for _, d := range h.Displays {
		id := d.Info.DisplayID
		if _, seen := displays[id]; !seen {
			order = append(order, id)
		}
		displays[id] = DisplayRecord{
			DisplayID:       id,
			Info:            d.Info,
			Screen:          d.Screen,
			Video:           d.Video,
			ConnectionCount: d.ConnectionCount,
		}
	}

	s.mu.Lock()
	s.received = true
	s.clientID = h.ClientID
	s.deviceName = h.DeviceName
	s.encoders = encoders
	s.encoderSet = encoderSet
	s.displays = displays
	s.order = order
	s.mu.Unlock()
}

func (s *State) HandshakeReceived() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.received
}

func (s *State) DeviceName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceName
}

func (s *State) HasEncoder(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.encoderSet[name]
	return ok
}

func (s *State) Display(id int32) (DisplayRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.displays[id]
	return d, ok
}

// InitialInfo derives the handshake notifications from current state.
// ok is false until a handshake has been applied.
func (s *State) InitialInfo() (InitialInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.received {
		return InitialInfo{}, false
	}
	info := InitialInfo{
		Encoders:     append([]string(nil), s.encoders...),
		ClientsStats: ClientsStats{ClientID: s.clientID, DeviceName: s.deviceName},
		Displays:     make([]DisplayView, 0, len(s.order)),
	}
	for _, id := range s.order {
		d := s.displays[id]
		info.Displays = append(info.Displays, DisplayView{
			DisplayInfo:     d.Info,
			ScreenInfo:      d.Screen,
			VideoSettings:   d.Video,
			ConnectionCount: d.ConnectionCount,
		})
	}
	return info, true
}

// Snapshot returns the device name and the pointer rectangle of the first
// display in handshake order. The rectangle is the captured content area
// when known, the full display otherwise.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{DeviceName: s.deviceName}
	if len(s.order) == 0 {
		return snap
	}
	d := s.displays[s.order[0]]
	if d.Screen != nil {
		snap.PointerRect = d.Screen.ContentRect
	} else {
		snap.PointerRect = protocol.Rect{Right: d.Info.Size.Width, Bottom: d.Info.Size.Height}
	}
	return snap
}
