package rpc

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// claimRateLimiter throttles unauthenticated claim submissions per client.
// Administrative methods are already gated by the bearer token and role
// checks, so only the open surface carries a limiter.
type claimRateLimiter struct {
	perMinute float64
	burst     int

	mu       sync.Mutex
	visitors map[string]*visitorEntry
}

type visitorEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const visitorTTL = 10 * time.Minute

func newClaimRateLimiter(perMinute float64, burst int) *claimRateLimiter {
	return &claimRateLimiter{
		perMinute: perMinute,
		burst:     burst,
		visitors:  make(map[string]*visitorEntry),
	}
}

// allow reports whether the request's client may submit another claim now.
func (c *claimRateLimiter) allow(r *http.Request) bool {
	if c == nil || c.perMinute <= 0 {
		return true
	}
	return c.obtainLimiter(clientID(r)).Allow()
}

func (c *claimRateLimiter) obtainLimiter(id string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if entry, ok := c.visitors[id]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	perSecond := c.perMinute / 60.0
	burst := c.burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	c.visitors[id] = &visitorEntry{limiter: limiter, lastSeen: now}
	c.evictStale(now)
	return limiter
}

// evictStale drops visitors idle past the TTL. Called under mu.
func (c *claimRateLimiter) evictStale(now time.Time) {
	for id, entry := range c.visitors {
		if now.Sub(entry.lastSeen) > visitorTTL {
			delete(c.visitors, id)
		}
	}
}

func clientID(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := forwarded
		if comma := strings.IndexByte(forwarded, ','); comma > 0 {
			first = forwarded[:comma]
		}
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return parsed.String()
		}
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
