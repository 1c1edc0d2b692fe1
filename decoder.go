package screengate

import (
	"log/slog"

	"github.com/gogogo1024/screengate/internal/metrics"
	"github.com/gogogo1024/screengate/internal/session"
	"github.com/gogogo1024/screengate/protocol"
)

// Decoder routes inbound frames by their magic prefix. It is driven by a
// single read loop and handles frames strictly in arrival order.
type Decoder struct {
	state   *session.State
	emit    EventHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewDecoder(state *session.State, emit EventHandler, logger *slog.Logger, m *metrics.Metrics) *Decoder {
	if emit == nil {
		emit = func(Event) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{state: state, emit: emit, logger: logger, metrics: m}
}

// HandleMessage decodes one binary message. A malformed handshake leaves the
// session state untouched and emits nothing.
func (d *Decoder) HandleMessage(b []byte) error {
	kind := protocol.Classify(b)
	switch kind {
	case protocol.FrameHandshake:
		h, err := protocol.DecodeHandshake(b)
		if err != nil {
			d.metrics.FrameError(kind.String())
			return err
		}
		d.state.Apply(h)
		d.metrics.Frame(kind.String())
		d.logger.Info("handshake", "device", h.DeviceName, "client_id", h.ClientID, "displays", len(h.Displays), "encoders", len(h.Encoders))
		d.emitInitialInfo()
	case protocol.FrameDeviceMessage:
		m, err := protocol.DecodeDeviceMessage(b)
		if err != nil {
			d.metrics.FrameError(kind.String())
			return err
		}
		d.metrics.Frame(kind.String())
		d.emit(DeviceMessageEvent{Message: m})
	default:
		d.metrics.Frame(kind.String())
		d.emit(VideoEvent{Data: b})
	}
	return nil
}

// emitInitialInfo re-derives the handshake events from session state.
func (d *Decoder) emitInitialInfo() bool {
	info, ok := d.state.InitialInfo()
	if !ok {
		return false
	}
	d.emit(EncodersEvent{Encoders: info.Encoders})
	d.emit(ClientsStatsEvent{Stats: info.ClientsStats})
	d.emit(DisplayInfoEvent{Displays: info.Displays})
	return true
}
