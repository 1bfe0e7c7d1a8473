package httpx

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const memoryLimiterSweepEvery = 5 * time.Minute

// RateLimiter counts requests per key over a fixed window.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

type windowCounter struct {
	count     int
	windowEnd time.Time
}

// memoryRateLimiter is the single-process fallback used when no Redis
// address is configured. Expired windows are dropped by a sweeper so idle
// keys do not accumulate.
type memoryRateLimiter struct {
	mu       sync.Mutex
	counters map[string]windowCounter
	done     chan struct{}
	stopOnce sync.Once
}

func NewMemoryRateLimiter() RateLimiter {
	rl := &memoryRateLimiter{
		counters: make(map[string]windowCounter),
		done:     make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

func (rl *memoryRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	counter, ok := rl.counters[key]
	if !ok || now.After(counter.windowEnd) {
		counter = windowCounter{windowEnd: now.Add(window)}
	}
	if counter.count >= limit {
		return rateDecision{count: counter.count, windowEnd: counter.windowEnd}
	}
	counter.count++
	rl.counters[key] = counter
	return rateDecision{allowed: true, count: counter.count, windowEnd: counter.windowEnd}
}

func (rl *memoryRateLimiter) sweep() {
	ticker := time.NewTicker(memoryLimiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, counter := range rl.counters {
				if now.After(counter.windowEnd) {
					delete(rl.counters, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

func (rl *memoryRateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// withRateLimit wraps a handler with per-key counting. The key function
// decides the throttling scope; an empty key falls back to the client IP.
func (r *Router) withRateLimit(route string, limit int, window time.Duration, keyFn func(*http.Request) string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		key := keyFn(req)
		if key == "" {
			key = rateLimitKeyIP(req)
		}
		decision := r.limiter.Allow(key, limit, window)
		r.applyRateHeaders(w, limit, decision)
		if !decision.allowed {
			label := route
			if label == "" {
				label = req.URL.Path
			}
			r.recordRateLimitHit(label, keyClass(key))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

// handlerAuthRate is the standard chain for authenticated routes: JWT first,
// then a per-user limit.
func (r *Router) handlerAuthRate(route string, limit int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withRateLimit(route, limit, window, r.rateLimitKeyUser, next))
}

func (r *Router) rateLimitKeyUser(req *http.Request) string {
	if info, ok := authInfoFromContext(req.Context()); ok && info.UserID != "" {
		return "user:" + info.UserID
	}
	return ""
}

func rateLimitKeyIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

// keyClass reduces a rate limit key to its scope prefix so the metric label
// stays low-cardinality.
func keyClass(key string) string {
	if idx := strings.IndexRune(key, ':'); idx > 0 {
		return key[:idx]
	}
	if key == "" {
		return "unknown"
	}
	return key
}
