// Package handler serves the action authorization API.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/gogogo1024/screengate/internal/authz"
	"github.com/gogogo1024/screengate/services/authz/internal/policy"
)

const (
	errInvalidJSON    = "invalid json"
	errOperatorUUID   = "operator_id must be uuid"
	errDeviceRequired = "device_id is required"

	reasonRateLimited = "rate_limited"
	reasonStoreError  = "store_error"

	maxBodyBytes = 64 << 10
)

type Options struct {
	Store policy.Store

	// Rate and Burst bound non-concurrent requests per device.
	// A zero Rate disables the limit.
	Rate  rate.Limit
	Burst int

	EnableStats bool

	// Registry receives the service collectors and backs /metrics.
	Registry *prometheus.Registry

	Logger *slog.Logger
	Now    func() time.Time
}

type Handler struct {
	store       policy.Store
	limiter     *deviceLimiter
	enableStats bool
	registry    *prometheus.Registry
	metrics     *serviceMetrics
	logger      *slog.Logger
	now         func() time.Time

	mu     sync.Mutex
	counts map[string]uint64
}

func New(opts Options) *Handler {
	h := &Handler{
		store:       opts.Store,
		limiter:     newDeviceLimiter(opts.Rate, opts.Burst),
		enableStats: opts.EnableStats,
		registry:    opts.Registry,
		logger:      opts.Logger,
		now:         opts.Now,
		counts:      make(map[string]uint64),
	}
	if h.store == nil {
		h.store = policy.NewInMemoryStore()
	}
	if h.registry == nil {
		h.registry = prometheus.NewRegistry()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	h.metrics = newServiceMetrics(h.registry)
	return h
}

// Routes returns the HTTP API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/v1/authz/actions", h.AuthorizeAction)
	r.Post("/v1/devices/mode", h.SetDeviceMode)
	r.Post("/v1/devices/locked-types", h.SetLockedTypes)
	r.Post("/v1/grants", h.Grant)
	r.Post("/v1/grants/revoke", h.Revoke)
	r.Get("/v1/stats", h.Stats)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	return r
}

// AuthorizeAction POST /v1/authz/actions
//
// The response always echoes the request timestamp and sequence. Store
// errors deny.
func (h *Handler) AuthorizeAction(w http.ResponseWriter, r *http.Request) {
	var req authz.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OperatorID != "" && !isUUID(req.OperatorID) {
		writeError(w, http.StatusBadRequest, errOperatorUUID)
		return
	}
	if req.Timestamp == 0 {
		writeError(w, http.StatusBadRequest, "timestamp is required")
		return
	}

	allowed, reason := h.decide(req)
	h.record(req, allowed, reason)
	writeJSON(w, http.StatusOK, authz.Response{
		Allowed:   &allowed,
		Timestamp: req.Timestamp,
		Sequence:  req.Sequence,
		Reason:    reason,
	})
}

func (h *Handler) decide(req authz.Request) (bool, string) {
	now := h.now()
	d, err := h.store.Decide(req.DeviceName, req.OperatorID, req.TypeName, now)
	if err != nil {
		h.metrics.storeErrors.Inc()
		h.logger.Warn("policy lookup failed", "device", req.DeviceName, "seq", req.Sequence, "err", err)
		return false, reasonStoreError
	}
	if !d.Allowed {
		return false, string(d.Reason)
	}
	if !req.Concurrency && !h.limiter.allow(req.DeviceName, now) {
		return false, reasonRateLimited
	}
	return true, ""
}

func (h *Handler) record(req authz.Request, allowed bool, reason string) {
	mode := "sync"
	if req.Concurrency {
		mode = "background"
	}
	result := "allowed"
	key := result
	if !allowed {
		result = "denied"
		key = result + ":" + reason
	}
	h.metrics.decisions.WithLabelValues(mode, result, reason).Inc()

	h.mu.Lock()
	h.counts[key]++
	h.mu.Unlock()

	h.logger.Debug("decision",
		"session", req.SessionID, "seq", req.Sequence, "device", req.DeviceName,
		"type", req.TypeName, "mode", mode, "allowed", allowed, "reason", reason)
}

func (h *Handler) decisionCounts() map[string]uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]uint64, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSON)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func isUUID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}
