package ratelimit

import (
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	httperrors "github.com/jw6ventures/calgrid/internal/http/errors"
	"github.com/jw6ventures/calgrid/internal/log"
)

const defaultMaxEntries = 10000

// IPRateLimiter keeps one token bucket per client address.
type IPRateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*limiterEntry
	maxEntries int

	rate    rate.Limit
	burst   int
	idleTTL time.Duration

	trustedProxies []netip.Prefix

	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter creates a limiter allowing r requests per second with the
// given burst per client IP. A background sweep runs every cleanup interval
// and forgets clients idle for twice that long.
//
// X-Forwarded-For and X-Real-IP are only honoured when the peer address is in
// trustedProxies (CIDRs or single IPs). With no trusted proxies configured the
// headers are always honoured.
func NewIPRateLimiter(r rate.Limit, b int, cleanup time.Duration, trustedProxies []string) *IPRateLimiter {
	l := &IPRateLimiter{
		limiters:   make(map[string]*limiterEntry),
		maxEntries: defaultMaxEntries,
		rate:       r,
		burst:      b,
		idleTTL:    2 * cleanup,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	for _, raw := range trustedProxies {
		prefix, ok := parsePrefix(raw)
		if !ok {
			log.Warn("ignoring invalid trusted proxy", "value", raw)
			continue
		}
		l.trustedProxies = append(l.trustedProxies, prefix)
	}

	go l.run(cleanup)
	return l
}

func parsePrefix(s string) (netip.Prefix, bool) {
	s = strings.TrimSpace(s)
	if prefix, err := netip.ParsePrefix(s); err == nil {
		return prefix.Masked(), true
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, false
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), true
}

// Close stops the background sweep.
func (l *IPRateLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *IPRateLimiter) run(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *IPRateLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idleTTL)
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

func (l *IPRateLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= l.maxEntries {
			l.evictLeastRecent()
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = l.now()
	return entry.limiter
}

// evictLeastRecent must be called with mu held.
func (l *IPRateLimiter) evictLeastRecent() {
	var (
		victim string
		seen   time.Time
	)
	for key, entry := range l.limiters {
		if victim == "" || entry.lastSeen.Before(seen) {
			victim, seen = key, entry.lastSeen
		}
	}
	delete(l.limiters, victim)
}

// Middleware rejects requests over the limit with 429 and a Retry-After hint.
func (l *IPRateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.getLimiter(l.ClientIP(r)).Allow() {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter(l.rate)))
				httperrors.Write(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(r rate.Limit) int {
	if r <= 0 || r == rate.Inf {
		return 1
	}
	return int(math.Max(1, math.Ceil(1/float64(r))))
}

// ClientIP returns the address requests from r are counted against.
func (l *IPRateLimiter) ClientIP(r *http.Request) string {
	peer, ok := parseRemote(r.RemoteAddr)
	if !ok {
		return r.RemoteAddr
	}
	if !l.trusts(peer) {
		return peer.String()
	}

	// Leftmost X-Forwarded-For entry is the client as seen by the first proxy.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr.Unmap().String()
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr.Unmap().String()
		}
	}
	return peer.String()
}

func (l *IPRateLimiter) trusts(peer netip.Addr) bool {
	if len(l.trustedProxies) == 0 {
		return true
	}
	for _, prefix := range l.trustedProxies {
		if prefix.Contains(peer) {
			return true
		}
	}
	return false
}

func parseRemote(remote string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap(), true
	}
	addr, err := netip.ParseAddr(remote)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
