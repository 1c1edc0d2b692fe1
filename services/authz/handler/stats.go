package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gogogo1024/screengate/services/authz/internal/policy"
)

type statsResponse struct {
	Backend   string                `json:"backend"`
	Now       string                `json:"now"`
	Decisions map[string]uint64     `json:"decisions"`
	Redis     *redisStats           `json:"redis,omitempty"`
	InMemory  *policy.InMemoryStats `json:"in_memory,omitempty"`
}

type redisStats struct {
	Prefix   string            `json:"prefix"`
	DBSize   int64             `json:"dbsize"`
	Memory   map[string]string `json:"memory"`
	Keyspace map[string]string `json:"keyspace"`
}

// Stats GET /v1/stats
// Guarded by server.enable_stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.enableStats {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	resp := statsResponse{
		Backend:   "unknown",
		Now:       h.now().UTC().Format(time.RFC3339Nano),
		Decisions: h.decisionCounts(),
	}

	switch s := h.store.(type) {
	case *policy.RedisStore:
		rdb := s.Client()
		if rdb == nil {
			writeError(w, http.StatusServiceUnavailable, "redis client not initialized")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		dbsize, err := rdb.DBSize(ctx).Result()
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		memInfo, _ := rdb.Info(ctx, "memory").Result()
		keyInfo, _ := rdb.Info(ctx, "keyspace").Result()

		resp.Backend = "redis"
		resp.Redis = &redisStats{
			Prefix:   s.Prefix(),
			DBSize:   dbsize,
			Memory:   parseRedisInfo(memInfo),
			Keyspace: parseRedisInfo(keyInfo),
		}
	case *policy.InMemoryStore:
		st := s.Stats()
		resp.Backend = "in_memory"
		resp.InMemory = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseRedisInfo turns INFO output into key/value pairs, skipping
// section headers.
func parseRedisInfo(info string) map[string]string {
	m := make(map[string]string)
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if k = strings.TrimSpace(k); k != "" {
			m[k] = strings.TrimSpace(v)
		}
	}
	return m
}
