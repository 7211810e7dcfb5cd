package httpmiddleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xenking/apikey-auth/pkg/apikey"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window and key.
	Max int
	// Window is the length of the sliding window.
	Window time.Duration
	// MaxKeys bounds the number of tracked keys. Zero means 10000.
	MaxKeys int
	// KeyFunc extracts the rate limit key from a request. Nil means
	// PrincipalKey.
	KeyFunc func(*http.Request) string
}

// counter holds request counts of the current and the previous window.
type counter struct {
	mu        sync.Mutex
	prevCount float64
	currCount float64
	currStart time.Time
}

type rateLimiter struct {
	cfg RateLimitConfig

	mu       sync.Mutex
	counters *expirable.LRU[string, *counter]
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = PrincipalKey
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10_000
	}
	return &rateLimiter{
		cfg: cfg,
		// A key idle for two windows has nothing left to remember.
		counters: expirable.NewLRU[string, *counter](cfg.MaxKeys, nil, 2*cfg.Window),
	}
}

func (rl *rateLimiter) counter(key string) *counter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.counters.Get(key)
	if !ok {
		c = &counter{}
		rl.counters.Add(key, c)
	}
	return c
}

// allow records a request for key at now. It reports the remaining budget,
// the end of the current window and whether the request may proceed.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, allowed bool) {
	window := rl.cfg.Window
	c := rl.counter(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	start := now.Truncate(window)
	switch {
	case c.currStart.IsZero():
		c.currStart = start
	case !start.Equal(c.currStart):
		if start.Sub(c.currStart) == window {
			c.prevCount = c.currCount
		} else {
			c.prevCount = 0
		}
		c.currCount = 0
		c.currStart = start
	}

	// The previous window counts in proportion to its overlap with the
	// sliding window ending at now.
	overlap := 1 - float64(now.Sub(start))/float64(window)
	used := c.prevCount*math.Max(overlap, 0) + c.currCount
	resetAt = start.Add(window)

	if used >= float64(rl.cfg.Max) {
		return 0, resetAt, false
	}
	c.currCount++
	return max(int(float64(rl.cfg.Max)-used-1), 0), resetAt, true
}

// RateLimit returns a middleware enforcing a per-key sliding window limit.
// Exceeding requests get 429 with a JSON body and Retry-After. Every
// response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset.
//
// With the default key function the middleware must run after
// apikey.Registry.Authenticate to see the principal.
func RateLimit(cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			remaining, resetAt, allowed := rl.allow(rl.cfg.KeyFunc(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				retryAfter := max(resetAt.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalKey keys authenticated requests by scheme and principal name and
// everything else by client IP.
func PrincipalKey(r *http.Request) string {
	if p := apikey.PrincipalFrom(r.Context()); p.Authenticated() {
		return "principal:" + p.Scheme + ":" + p.Name()
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the first X-Forwarded-For address, X-Real-IP, or the host
// of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeError writes {"code":status,"message":msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
