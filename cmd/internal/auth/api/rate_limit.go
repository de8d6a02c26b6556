package authapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// loginThrottle limits login attempts per identifier (normalized email or
// username). Entries for idle identifiers are pruned opportunistically so the
// map does not grow with every identifier ever tried.
type loginThrottle struct {
	mu      sync.Mutex
	entries map[string]*throttleEntry

	perMinute int
	burst     int
	idle      time.Duration
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLoginThrottle(perMinute, burst int, idle time.Duration) *loginThrottle {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = 5
	}
	if idle <= 0 {
		idle = 15 * time.Minute
	}
	return &loginThrottle{
		entries:   make(map[string]*throttleEntry),
		perMinute: perMinute,
		burst:     burst,
		idle:      idle,
	}
}

// Allow reports whether a login attempt for the identifier may proceed now.
func (t *loginThrottle) Allow(identifier string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(now)

	e, ok := t.entries[identifier]
	if !ok {
		e = &throttleEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(t.perMinute)/60.0), t.burst),
		}
		t.entries[identifier] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (t *loginThrottle) pruneLocked(now time.Time) {
	cut := now.Add(-t.idle)
	for id, e := range t.entries {
		if e.lastSeen.Before(cut) {
			delete(t.entries, id)
		}
	}
}
