// Package transport owns the device socket's outbound side: WebSocket
// dialing, deadline-bounded writes, and the queue of commands submitted
// while the socket is not open.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gogogo1024/screengate/internal/metrics"
	"github.com/gogogo1024/screengate/protocol"
)

// Conn is the write half of a WebSocket connection. Close must also end
// any reader of the connection.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Adapter forwards control messages onto the open connection, or queues
// them until the next Open.
type Adapter struct {
	mu      sync.Mutex
	conn    Conn
	pending []protocol.ControlMessage

	writeTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Adapter)

// WithWriteTimeout bounds each write. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.writeTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		writeTimeout: 10 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Forward writes msg if the connection is open and queues it otherwise.
// A failed write closes the connection, so its read loop ends and the
// session reconnects, and queues msg. Only serialization failures are
// returned.
func (a *Adapter) Forward(msg protocol.ControlMessage) error {
	data, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type(), err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		a.enqueueLocked(msg)
		return nil
	}
	if err := a.writeLocked(data); err != nil {
		a.logger.Warn("control write failed, closing connection", "type", msg.Type().String(), "err", err)
		_ = a.conn.Close()
		a.conn = nil
		a.enqueueLocked(msg)
	}
	return nil
}

func (a *Adapter) writeLocked(data []byte) error {
	if a.writeTimeout > 0 {
		_ = a.conn.SetWriteDeadline(time.Now().Add(a.writeTimeout))
	} else {
		_ = a.conn.SetWriteDeadline(time.Time{})
	}
	return a.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (a *Adapter) enqueueLocked(msg protocol.ControlMessage) {
	a.pending = append(a.pending, msg)
	a.metrics.Pending(len(a.pending))
}

// Open marks conn as the live connection and hands back everything queued
// since the last Open, in submission order. The queue is left empty.
func (a *Adapter) Open(conn Conn) []protocol.ControlMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conn = conn
	queued := a.pending
	a.pending = nil
	a.metrics.Pending(0)
	return queued
}

// Close detaches the connection; later commands are queued.
func (a *Adapter) Close() {
	a.mu.Lock()
	a.conn = nil
	a.mu.Unlock()
}

func (a *Adapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

func (a *Adapter) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// DialOptions configures Dial.
type DialOptions struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64
	Header           http.Header
}

// Dial opens the device WebSocket.
func Dial(ctx context.Context, url string, opts DialOptions) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 5 * time.Second
	}
	conn, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}
	return conn, nil
}
