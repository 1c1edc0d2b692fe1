// Package admission decides, for every outgoing control command, whether it
// is forwarded at once, after a rate-limit check and an authorization round
// trip, after its predecessor resolves, or dropped.
package admission

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gogogo1024/screengate/internal/actionlog"
	"github.com/gogogo1024/screengate/internal/authz"
	"github.com/gogogo1024/screengate/internal/metrics"
	"github.com/gogogo1024/screengate/internal/session"
	"github.com/gogogo1024/screengate/protocol"
)

const (
	DefaultMinSpacing        = 500 * time.Millisecond
	DefaultConcurrentTimeout = 3000 * time.Millisecond
	DefaultBackgroundTimeout = 5 * time.Second
)

// Authorizer asks the authorization service about one command.
type Authorizer interface {
	Authorize(ctx context.Context, req authz.Request) (authz.Response, error)
}

// Forwarder puts a command on the wire or queues it.
type Forwarder interface {
	Forward(msg protocol.ControlMessage) error
}

// SnapshotSource provides the session fields logged with each command.
type SnapshotSource interface {
	Snapshot() session.Snapshot
}

type Path string

const (
	PathFast          Path = "fast"
	PathConcurrent    Path = "concurrent"
	PathNonConcurrent Path = "nonconcurrent"
)

// Reason explains a drop. It is empty for executed commands.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonRateLimited        Reason = "rate_limited"
	ReasonDenied             Reason = "denied"
	ReasonMismatch           Reason = "timestamp_mismatch"
	ReasonAuthzError         Reason = "authz_error"
	ReasonPredecessorDropped Reason = "predecessor_dropped"
	ReasonPredecessorTimeout Reason = "predecessor_timeout"
	ReasonCanceled           Reason = "canceled"
	ReasonEncodeError        Reason = "encode_error"
)

// Result is the resolution of one Submit.
type Result struct {
	Sequence  uint64
	Timestamp int64
	Path      Path
	Executed  bool
	Reason    Reason
}

type Controller struct {
	log   *actionlog.Log
	state SnapshotSource
	auth  Authorizer
	fwd   Forwarder

	sessionID  string
	operatorID string

	minSpacing        time.Duration
	concurrentTimeout time.Duration
	backgroundTimeout time.Duration
	now               func() time.Time

	logger  *slog.Logger
	metrics *metrics.Metrics

	bg sync.WaitGroup
}

type Option func(*Controller)

// WithSession sets the identifiers sent with every authorization request.
func WithSession(sessionID, operatorID string) Option {
	return func(c *Controller) {
		c.sessionID = sessionID
		c.operatorID = operatorID
	}
}

// WithMinSpacing sets the minimum time between a non-concurrent command and
// the last executed one.
func WithMinSpacing(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.minSpacing = d
		}
	}
}

// WithConcurrentTimeout bounds how long a concurrent command waits for its
// predecessor, measured from when it was logged.
func WithConcurrentTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.concurrentTimeout = d
		}
	}
}

// WithBackgroundTimeout bounds fire-and-forget authorization calls.
func WithBackgroundTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.backgroundTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func New(state SnapshotSource, auth Authorizer, fwd Forwarder, opts ...Option) *Controller {
	c := &Controller{
		state:             state,
		auth:              auth,
		fwd:               fwd,
		minSpacing:        DefaultMinSpacing,
		concurrentTimeout: DefaultConcurrentTimeout,
		backgroundTimeout: DefaultBackgroundTimeout,
		now:               time.Now,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = actionlog.New(actionlog.WithClock(c.now))
	return c
}

// Log exposes the action log of this session.
func (c *Controller) Log() *actionlog.Log { return c.log }

// Submit logs msg and blocks until it is resolved. Non-concurrent commands
// wait for the authorization round trip, which ctx bounds; concurrent ones
// wait at most the concurrent timeout for their predecessor.
func (c *Controller) Submit(ctx context.Context, msg protocol.ControlMessage) Result {
	snap := c.state.Snapshot()
	rec, prev := c.log.Append(actionlog.Entry{
		Command:     msg,
		DeviceName:  snap.DeviceName,
		PointerRect: snap.PointerRect,
	})

	if IsSideEffectFree(rec.Type) {
		return c.submitFast(ctx, rec)
	}

	concurrent := Classify(rec, prev)
	rec.SetConcurrent(concurrent)
	if concurrent {
		return c.submitConcurrent(ctx, rec, prev)
	}
	return c.submitNonConcurrent(ctx, rec)
}

// submitFast forwards without waiting for authorization. The only drop is
// a command that cannot be encoded.
func (c *Controller) submitFast(ctx context.Context, rec *actionlog.Record) Result {
	if err := c.fwd.Forward(rec.Command); err != nil {
		c.logger.Warn("drop unencodable command", "seq", rec.Sequence, "type", rec.Type.String(), "err", err)
		return c.finish(rec, PathFast, false, ReasonEncodeError)
	}
	c.authorizeInBackground(ctx, rec)
	return c.finish(rec, PathFast, true, ReasonNone)
}

func (c *Controller) submitNonConcurrent(ctx context.Context, rec *actionlog.Record) Result {
	if last := c.log.LastExecutedBefore(rec); last != nil {
		if gap := rec.LoggedAt.Sub(last.LoggedAt); gap < c.minSpacing {
			c.logger.Debug("rate limited", "seq", rec.Sequence, "last_executed", last.Sequence, "gap", gap)
			return c.finish(rec, PathNonConcurrent, false, ReasonRateLimited)
		}
	}

	req := authz.NewRequest(c.sessionID, c.operatorID, rec, false)
	start := time.Now()
	resp, err := c.auth.Authorize(ctx, req)
	if err != nil {
		c.metrics.Authz("sync", "error", time.Since(start))
		c.logger.Warn("authorization failed", "seq", rec.Sequence, "type", rec.Type.String(), "err", err)
		return c.finish(rec, PathNonConcurrent, false, ReasonAuthzError)
	}
	if !resp.Permits(req) {
		reason := ReasonDenied
		if resp.Allowed != nil && *resp.Allowed {
			reason = ReasonMismatch
		}
		c.metrics.Authz("sync", string(reason), time.Since(start))
		c.logger.Debug("authorization refused", "seq", rec.Sequence, "reason", reason, "resp_timestamp", resp.Timestamp, "timestamp", rec.Timestamp)
		return c.finish(rec, PathNonConcurrent, false, reason)
	}
	c.metrics.Authz("sync", "allowed", time.Since(start))

	if err := c.fwd.Forward(rec.Command); err != nil {
		c.logger.Warn("drop unencodable command", "seq", rec.Sequence, "type", rec.Type.String(), "err", err)
		return c.finish(rec, PathNonConcurrent, false, ReasonEncodeError)
	}
	return c.finish(rec, PathNonConcurrent, true, ReasonNone)
}

func (c *Controller) submitConcurrent(ctx context.Context, rec, prev *actionlog.Record) Result {
	if anchor := c.log.NonConcurrentAncestor(rec); anchor != nil {
		c.logger.Debug("concurrent chain", "seq", rec.Sequence, "anchor", anchor.Sequence, "depth", rec.Sequence-anchor.Sequence)
	}

	// No predecessor counts as an already executed one.
	if prev != nil {
		if reason := c.awaitPredecessor(ctx, rec, prev); reason != ReasonNone {
			return c.finish(rec, PathConcurrent, false, reason)
		}
	}

	if err := c.fwd.Forward(rec.Command); err != nil {
		c.logger.Warn("drop unencodable command", "seq", rec.Sequence, "type", rec.Type.String(), "err", err)
		return c.finish(rec, PathConcurrent, false, ReasonEncodeError)
	}
	c.authorizeInBackground(ctx, rec)
	return c.finish(rec, PathConcurrent, true, ReasonNone)
}

// awaitPredecessor waits until prev resolves or rec's deadline passes.
// A resolved predecessor decides the outcome even when ctx is done.
func (c *Controller) awaitPredecessor(ctx context.Context, rec, prev *actionlog.Record) Reason {
	if _, resolved := prev.Outcome(); !resolved {
		wait := rec.LoggedAt.Add(c.concurrentTimeout).Sub(c.now())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-prev.Done():
		case <-timer.C:
		case <-ctx.Done():
			if _, resolved := prev.Outcome(); !resolved {
				return ReasonCanceled
			}
		}
	}

	executed, resolved := prev.Outcome()
	switch {
	case !resolved:
		return ReasonPredecessorTimeout
	case !executed:
		return ReasonPredecessorDropped
	default:
		return ReasonNone
	}
}

// authorizeInBackground reports rec to the authorization service without
// waiting. The answer is ignored.
func (c *Controller) authorizeInBackground(ctx context.Context, rec *actionlog.Record) {
	req := authz.NewRequest(c.sessionID, c.operatorID, rec, true)
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.backgroundTimeout)
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		defer cancel()
		start := time.Now()
		if _, err := c.auth.Authorize(bctx, req); err != nil {
			c.metrics.Authz("background", "error", time.Since(start))
			c.logger.Debug("background authorization failed", "seq", req.Sequence, "err", err)
			return
		}
		c.metrics.Authz("background", "ok", time.Since(start))
	}()
}

func (c *Controller) finish(rec *actionlog.Record, path Path, executed bool, reason Reason) Result {
	rec.Resolve(executed)
	outcome := "dropped"
	if executed {
		outcome = "executed"
	}
	c.metrics.Admission(string(path), outcome, string(reason))
	return Result{
		Sequence:  rec.Sequence,
		Timestamp: rec.Timestamp,
		Path:      path,
		Executed:  executed,
		Reason:    reason,
	}
}

// Close waits for outstanding background authorization calls.
func (c *Controller) Close() {
	c.bg.Wait()
}
