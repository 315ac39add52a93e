package automation

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/atmx/debt-bridge/internal/metrics"
)

// RateLimit is a per-client token bucket.
type RateLimit struct {
	RequestsPerMinute float64 `json:"requests_per_minute" yaml:"requests_per_minute" toml:"requests_per_minute"`
	Burst             int     `json:"burst" yaml:"burst" toml:"burst"`
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles executors polling canExec. Clients are keyed by the
// remote IP together with the executor query parameter, so a caller naming
// someone else's executor only spends its own bucket.
type RateLimiter struct {
	limit    RateLimit
	idle     time.Duration
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

// NewRateLimiter creates a limiter. Visitors idle for longer than ten
// minutes are forgotten.
func NewRateLimiter(limit RateLimit) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		idle:     10 * time.Minute,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Middleware rejects requests over the limit with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientID(r)) {
			metrics.RateLimited.Inc()
			writeError(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allow reports whether id may make a request now.
func (l *RateLimiter) Allow(id string) bool {
	now := l.now()
	l.mu.Lock()
	v, ok := l.visitors[id]
	if !ok {
		perSecond := l.limit.RequestsPerMinute / 60.0
		if perSecond <= 0 {
			perSecond = 1
		}
		burst := l.limit.Burst
		if burst <= 0 {
			burst = 1
		}
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
		l.visitors[id] = v
		l.prune(now)
	}
	v.lastSeen = now
	l.mu.Unlock()
	return v.limiter.AllowN(now, 1)
}

// prune drops idle visitors. Callers hold l.mu.
func (l *RateLimiter) prune(now time.Time) {
	for id, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle && !v.lastSeen.IsZero() {
			delete(l.visitors, id)
		}
	}
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ex := r.URL.Query().Get("executor"); ex != "" {
		return host + "|executor:" + strings.ToLower(ex)
	}
	return host
}
