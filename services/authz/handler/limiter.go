package handler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// deviceLimiter keeps one token bucket per device.
type deviceLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	devices map[string]*rate.Limiter
}

func newDeviceLimiter(limit rate.Limit, burst int) *deviceLimiter {
	if limit <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &deviceLimiter{limit: limit, burst: burst, devices: make(map[string]*rate.Limiter)}
}

// allow takes one token from device's bucket. A nil limiter allows all.
func (l *deviceLimiter) allow(device string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim := l.devices[device]
	if lim == nil {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.devices[device] = lim
	}
	l.mu.Unlock()
	return lim.AllowN(now, 1)
}
