package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keyward/keyward/internal/api/response"
)

// AuthLimit throttles credential-bearing endpoints per client IP to slow
// down secret guessing. This is separate from tenant quota: it applies
// before any credential is verified.
type AuthLimit struct {
	mu       sync.Mutex
	limiters map[string]*authLimiterEntry
	rps      rate.Limit
	burst    int
}

type authLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdleEviction = 10 * time.Minute

func NewAuthLimit(perSecond float64, burst int) *AuthLimit {
	return &AuthLimit{
		limiters: make(map[string]*authLimiterEntry),
		rps:      rate.Limit(perSecond),
		burst:    burst,
	}
}

// Limit rejects clients exceeding the per-IP rate with 429.
func (l *AuthLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			response.Error(w, http.StatusTooManyRequests,
				"rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *AuthLimit) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry, ok := l.limiters[ip]
	if !ok {
		entry = &authLimiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now

	// Opportunistic eviction keeps the map bounded without a janitor.
	if len(l.limiters) > 10000 {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > limiterIdleEviction {
				delete(l.limiters, k)
			}
		}
	}
	return entry.limiter.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
