package screengate

import (
	"github.com/gogogo1024/screengate/internal/session"
	"github.com/gogogo1024/screengate/protocol"
)

// Event is a notification emitted by a Client. The set of implementations is
// closed; switch on the concrete type.
type Event interface {
	event()
}

// EventHandler receives every Event of a Client.
type EventHandler func(Event)

// VideoEvent carries one video frame verbatim.
type VideoEvent struct {
	Data []byte
}

// DeviceMessageEvent carries a decoded device-status message.
type DeviceMessageEvent struct {
	Message *protocol.DeviceMessage
}

// DisplayInfoEvent lists every display of the latest handshake, in order.
type DisplayInfoEvent struct {
	Displays []session.DisplayView
}

type ClientsStatsEvent struct {
	Stats session.ClientsStats
}

type EncodersEvent struct {
	Encoders []string
}

// ConnectedEvent is emitted once the device socket is open.
type ConnectedEvent struct{}

// DisconnectedEvent is emitted when a connection ends. Reason is nil when
// the client was closed.
type DisconnectedEvent struct {
	Reason error
}

func (VideoEvent) event()         {}
func (DeviceMessageEvent) event() {}
func (DisplayInfoEvent) event()   {}
func (ClientsStatsEvent) event()  {}
func (EncodersEvent) event()      {}
func (ConnectedEvent) event()     {}
func (DisconnectedEvent) event()  {}
