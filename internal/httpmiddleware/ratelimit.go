// Package httpmiddleware holds request-level middlewares for the API.
package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	pruneEvery   = time.Minute
	idleEviction = 10 * time.Minute
)

// RateLimiter throttles requests per client IP with a continuously
// refilled token bucket. State is in-process; each API replica enforces
// its own share of the limit.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientState
	burst     float64
	perSecond float64
	lastPrune time.Time
}

type clientState struct {
	tokens   float64
	lastSeen time.Time
}

// PerClient builds a limiter allowing perMinute sustained requests per
// client with short bursts up to burst. A non-positive burst defaults to
// perMinute.
func PerClient(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &RateLimiter{
		clients:   make(map[string]*clientState),
		burst:     float64(burst),
		perSecond: float64(perMinute) / 60,
		lastPrune: time.Now(),
	}
}

// Middleware rejects over-limit requests with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			key = "unknown"
		}
		if !rl.take(key, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) take(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastPrune) >= pruneEvery {
		rl.prune(now)
	}

	st, ok := rl.clients[key]
	if !ok {
		st = &clientState{tokens: rl.burst}
		rl.clients[key] = st
	} else {
		st.tokens += now.Sub(st.lastSeen).Seconds() * rl.perSecond
		if st.tokens > rl.burst {
			st.tokens = rl.burst
		}
	}
	st.lastSeen = now

	if st.tokens < 1 {
		return false
	}
	st.tokens--
	return true
}

// prune drops clients idle long enough that their bucket would be full
// anyway. Caller holds the lock.
func (rl *RateLimiter) prune(now time.Time) {
	for key, st := range rl.clients {
		if now.Sub(st.lastSeen) > idleEviction {
			delete(rl.clients, key)
		}
	}
	rl.lastPrune = now
}
