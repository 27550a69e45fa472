package server

import (
	"container/list"
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SecurityHeadersMiddleware adds security headers to all responses.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			// Generated photos arrive as data: URIs; the websocket is same-origin.
			w.Header().Set("Content-Security-Policy",
				"default-src 'self'; "+
					"script-src 'self'; "+
					"style-src 'self'; "+
					"img-src 'self' data:; "+
					"connect-src 'self'; "+
					"form-action 'self'; "+
					"frame-ancestors 'none'")

			next.ServeHTTP(w, r)
		})
	}
}

const (
	// evictionLogInterval is the minimum time between eviction log messages.
	evictionLogInterval = 30 * time.Second
	limiterIdleTTL      = 10 * time.Minute
	limiterSweepEvery   = 5 * time.Minute
)

// ipLimiter tracks a per-IP token bucket and its position in the LRU list.
type ipLimiter struct {
	ip       string
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter holds one token bucket per client IP, bounded by maxIPs.
type rateLimiter struct {
	rps    float64
	burst  int
	maxIPs int

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front = most recent, back = oldest

	lastEvictLog time.Time
	evictCount   int
}

func newRateLimiter(rps float64, burst, maxIPs int) *rateLimiter {
	if maxIPs <= 0 {
		maxIPs = 10000
	}
	return &rateLimiter{
		rps:    rps,
		burst:  burst,
		maxIPs: maxIPs,
		items:  make(map[string]*list.Element),
		order:  list.New(),
	}
}

// allow takes a token for ip.
func (l *rateLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.items[ip]; ok {
		l.order.MoveToFront(elem)
		lim := elem.Value.(*ipLimiter)
		lim.lastSeen = now
		return lim.limiter.AllowN(now, 1)
	}

	if l.order.Len() >= l.maxIPs {
		if back := l.order.Back(); back != nil {
			l.order.Remove(back)
			delete(l.items, back.Value.(*ipLimiter).ip)
			l.evictCount++
			if now.Sub(l.lastEvictLog) >= evictionLogInterval {
				log.Printf("[RateLimit] Evicted %d least-recent IP(s) (at capacity: %d IPs)", l.evictCount, l.maxIPs)
				l.lastEvictLog = now
				l.evictCount = 0
			}
		}
	}
	lim := &ipLimiter{
		ip:       ip,
		limiter:  rate.NewLimiter(rate.Limit(l.rps), l.burst),
		lastSeen: now,
	}
	l.items[ip] = l.order.PushFront(lim)
	return lim.limiter.AllowN(now, 1)
}

// sweep drops limiters idle longer than ttl. LRU order tracks access
// recency, not lastSeen, so every entry is visited.
func (l *rateLimiter) sweep(now time.Time, ttl time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for e := l.order.Back(); e != nil; {
		lim := e.Value.(*ipLimiter)
		prev := e.Prev()
		if now.Sub(lim.lastSeen) > ttl {
			l.order.Remove(e)
			delete(l.items, lim.ip)
			removed++
		}
		e = prev
	}
	return removed
}

func (l *rateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

// RateLimitMiddleware limits requests using a token bucket per client IP.
// rps is the rate in requests per second, burst is the maximum burst size,
// and maxIPs is the maximum number of IPs tracked (LRU eviction when full).
//
// The cleanup goroutine starts immediately and exits when ctx is cancelled.
// The returned channel is closed when it has exited.
func RateLimitMiddleware(ctx context.Context, rps float64, burst int, maxIPs int) (func(http.Handler) http.Handler, <-chan struct{}) {
	limiter := newRateLimiter(rps, burst, maxIPs)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(limiterSweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.sweep(time.Now(), limiterIdleTTL)
			case <-ctx.Done():
				return
			}
		}
	}()

	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(getClientIP(r), time.Now()) {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	return middleware, done
}

// getClientIP extracts the client IP from the request.
// X-Forwarded-For / X-Real-IP are trusted only when the immediate peer is a
// loopback or private address.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	peerIP := net.ParseIP(host)
	trustedProxy := peerIP != nil && (peerIP.IsLoopback() || peerIP.IsPrivate())

	if trustedProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	if peerIP != nil {
		return peerIP.String()
	}
	return host
}

// sameHost reports whether origin points at host.
func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
