package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiters keeps one token bucket per client IP and evicts buckets
// idle for longer than the retention window, so a long-running TV
// display does not grow the map without bound.
type ipLimiters struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	r         rate.Limit
	b         int
	retention time.Duration
}

func newIPLimiters(r rate.Limit, b int) *ipLimiters {
	return &ipLimiters{
		clients:   make(map[string]*clientLimiter),
		r:         r,
		b:         b,
		retention: 10 * time.Minute,
	}
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if c, ok := l.clients[ip]; ok {
		c.lastSeen = now
		return c.limiter
	}

	for addr, c := range l.clients {
		if now.Sub(c.lastSeen) > l.retention {
			delete(l.clients, addr)
		}
	}

	c := &clientLimiter{limiter: rate.NewLimiter(l.r, l.b), lastSeen: now}
	l.clients[ip] = c
	return c.limiter
}

// RateLimiter is a middleware for per-IP rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiters := newIPLimiters(r, b)
	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
