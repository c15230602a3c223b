package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPThrottle is a coarse, in-process, per-IP token bucket sitting in front
// of Gate. It exists to absorb obviously abusive traffic (connection
// floods) cheaply, before a Redis round-trip is even attempted; it is not
// itself an authoritative limit and carries no cross-process guarantee.
type IPThrottle struct {
	ips    sync.Map
	rps    rate.Limit
	burst  int
	stopCh chan struct{}
}

// NewIPThrottle builds a throttle allowing rps requests per second per IP,
// with burst headroom, and starts a background sweep that forgets IPs
// after long idle stretches so the map doesn't grow unbounded.
func NewIPThrottle(rps rate.Limit, burst int) *IPThrottle {
	t := &IPThrottle{rps: rps, burst: burst, stopCh: make(chan struct{})}
	go t.sweepLoop()
	return t
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

func (t *IPThrottle) bucketFor(ip string) *bucket {
	if b, ok := t.ips.Load(ip); ok {
		return b.(*bucket)
	}
	b := &bucket{limiter: rate.NewLimiter(t.rps, t.burst), lastSeen: time.Now()}
	actual, _ := t.ips.LoadOrStore(ip, b)
	return actual.(*bucket)
}

// Allow reports whether a request from ip may proceed.
func (t *IPThrottle) Allow(ip string) bool {
	b := t.bucketFor(ip)
	b.mu.Lock()
	b.lastSeen = time.Now()
	b.mu.Unlock()
	return b.limiter.Allow()
}

func (t *IPThrottle) sweepLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-30 * time.Minute)
			t.ips.Range(func(key, value interface{}) bool {
				b := value.(*bucket)
				b.mu.Lock()
				stale := b.lastSeen.Before(cutoff)
				b.mu.Unlock()
				if stale {
					t.ips.Delete(key)
				}
				return true
			})
		case <-t.stopCh:
			return
		}
	}
}

// Stop halts the background sweep. Safe to call once.
func (t *IPThrottle) Stop() { close(t.stopCh) }

// Middleware rejects requests with 429 once an IP exceeds its bucket,
// ahead of any Gate lookup further down the chain.
func (t *IPThrottle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
		if !t.Allow(ip) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
