package screengate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gogogo1024/screengate/internal/admission"
	"github.com/gogogo1024/screengate/internal/authz"
	"github.com/gogogo1024/screengate/internal/metrics"
	"github.com/gogogo1024/screengate/internal/session"
	"github.com/gogogo1024/screengate/internal/transport"
	"github.com/gogogo1024/screengate/protocol"
)

var (
	ErrNoURL        = errors.New("screengate: server url is required")
	ErrNoAuthorizer = errors.New("screengate: authorization endpoint is required")
	ErrClosed       = errors.New("screengate: client closed")
)

const (
	initialReconnectBackoff = 100 * time.Millisecond
	defaultMaxBackoff       = 10 * time.Second
)

// Config describes one device session.
type Config struct {
	URL string

	AuthzEndpoint string
	AuthzTimeout  time.Duration
	OperatorID    string

	MinSpacing        time.Duration
	ConcurrentTimeout time.Duration
	WriteTimeout      time.Duration
	MaxBackoff        time.Duration

	Dial transport.DialOptions
}

type Option func(*Client)

func WithEventHandler(h EventHandler) Option {
	return func(c *Client) { c.handler = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithAuthorizer replaces the HTTP authorization client built from
// Config.AuthzEndpoint.
func WithAuthorizer(a admission.Authorizer) Option {
	return func(c *Client) { c.authorizer = a }
}

func WithSessionID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.sessionID = id
		}
	}
}

// Client owns one device session: the socket, its session state, the action
// log and the outbound queue. Commands may be submitted before the first
// connection; they are queued and replayed on open.
type Client struct {
	cfg       Config
	sessionID string

	handler    EventHandler
	logger     *slog.Logger
	metrics    *metrics.Metrics
	authorizer admission.Authorizer

	state      *session.State
	adapter    *transport.Adapter
	controller *admission.Controller
	decoder    *Decoder

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	// replaying is closed once the queue handed back by the last Open has
	// been re-submitted. Nil when no replay is running.
	replaying chan struct{}
}

func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	c := &Client{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.authorizer == nil {
		if cfg.AuthzEndpoint == "" {
			return nil, ErrNoAuthorizer
		}
		c.authorizer = authz.NewClient(cfg.AuthzEndpoint, authz.WithTimeout(cfg.AuthzTimeout))
	}
	c.logger = c.logger.With("session", c.sessionID)

	c.state = session.NewState()
	c.adapter = transport.NewAdapter(
		transport.WithWriteTimeout(cfg.WriteTimeout),
		transport.WithLogger(c.logger),
		transport.WithMetrics(c.metrics),
	)
	adm := []admission.Option{
		admission.WithSession(c.sessionID, cfg.OperatorID),
		admission.WithLogger(c.logger),
		admission.WithMetrics(c.metrics),
	}
	if cfg.MinSpacing > 0 {
		adm = append(adm, admission.WithMinSpacing(cfg.MinSpacing))
	}
	if cfg.ConcurrentTimeout > 0 {
		adm = append(adm, admission.WithConcurrentTimeout(cfg.ConcurrentTimeout))
	}
	c.controller = admission.New(c.state, c.authorizer, c.adapter, adm...)
	c.decoder = NewDecoder(c.state, c.emit, c.logger, c.metrics)
	return c, nil
}

func (c *Client) SessionID() string { return c.sessionID }

// State exposes the session state of the latest handshake.
func (c *Client) State() *session.State { return c.state }

// Controller exposes the admission controller, mainly for its action log.
func (c *Client) Controller() *admission.Controller { return c.controller }

// Submit admits msg and blocks until it is executed or dropped. While
// queued commands are being replayed after a reconnect, msg waits for the
// replay so it cannot overtake them.
func (c *Client) Submit(ctx context.Context, msg protocol.ControlMessage) admission.Result {
	if gate := c.replayGate(); gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	return c.controller.Submit(ctx, msg)
}

// TriggerInitialInfoEvents re-emits the handshake events from current state.
// It reports false, emitting nothing, before the first handshake.
func (c *Client) TriggerInitialInfoEvents() bool {
	return c.decoder.emitInitialInfo()
}

func (c *Client) emit(e Event) {
	if c.handler != nil {
		c.handler(e)
	}
}

// Run serves a single connection until it fails or ctx is done.
func (c *Client) Run(ctx context.Context) error {
	_, err := c.run(ctx)
	return err
}

func (c *Client) run(ctx context.Context) (connected bool, err error) {
	if c.isClosed() {
		return false, ErrClosed
	}
	conn, err := transport.Dial(ctx, c.cfg.URL, c.cfg.Dial)
	if err != nil {
		return false, err
	}
	if !c.setConn(conn) {
		_ = conn.Close()
		return false, ErrClosed
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	gate := c.holdSubmissions()
	queued := c.adapter.Open(conn)
	c.logger.Info("connected", "url", c.cfg.URL, "replay", len(queued))
	c.emit(ConnectedEvent{})

	var replay sync.WaitGroup
	if len(queued) > 0 {
		replay.Add(1)
		go func() {
			defer replay.Done()
			defer c.releaseSubmissions(gate)
			c.replay(ctx, queued)
		}()
	} else {
		c.releaseSubmissions(gate)
	}

	err = c.readLoop(conn)

	c.adapter.Close()
	c.clearConn(conn)
	_ = conn.Close()
	replay.Wait()

	switch {
	case c.isClosed():
		err = nil
	case ctx.Err() != nil:
		err = ctx.Err()
	}
	c.emit(DisconnectedEvent{Reason: err})
	if err == nil {
		err = ErrClosed
	}
	return true, err
}

// replay re-submits commands queued while the socket was closed, one at a
// time in submission order.
func (c *Client) replay(ctx context.Context, queued []protocol.ControlMessage) {
	for _, msg := range queued {
		res := c.controller.Submit(ctx, msg)
		c.logger.Debug("replayed", "seq", res.Sequence, "type", msg.Type().String(), "executed", res.Executed, "reason", res.Reason)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.BinaryMessage {
			c.logger.Debug("ignore non-binary message", "type", mt, "len", len(data))
			continue
		}
		if err := c.decoder.HandleMessage(data); err != nil {
			c.logger.Warn("frame error", "kind", protocol.Classify(data).String(), "len", len(data), "err", err)
		}
	}
}

// Serve runs connections until ctx is done or the client is closed,
// reconnecting with capped exponential backoff.
func (c *Client) Serve(ctx context.Context) error {
	backoff := initialReconnectBackoff
	for {
		connected, err := c.run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.isClosed() {
			return ErrClosed
		}
		if connected {
			backoff = initialReconnectBackoff
		}
		c.metrics.Reconnect()
		c.logger.Warn("connection lost", "err", err, "retry_in", backoff)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff = nextReconnectBackoff(backoff, c.cfg.MaxBackoff)
	}
}

func nextReconnectBackoff(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if next > limit {
		return limit
	}
	return next
}

// Close ends the current connection and waits for background
// authorization calls. The client cannot be reused.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.adapter.Close()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.controller.Close()
	return err
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) setConn(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) replayGate() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replaying
}

func (c *Client) holdSubmissions() chan struct{} {
	gate := make(chan struct{})
	c.mu.Lock()
	c.replaying = gate
	c.mu.Unlock()
	return gate
}

func (c *Client) releaseSubmissions(gate chan struct{}) {
	c.mu.Lock()
	if c.replaying == gate {
		c.replaying = nil
	}
	c.mu.Unlock()
	close(gate)
}

func (c *Client) clearConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}
