package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// limiterIdleTTL is how long an IP's limiter is kept after its last
	// request.
	limiterIdleTTL = 10 * time.Minute

	// limiterPruneThreshold is the number of tracked IPs above which idle
	// limiters are dropped.
	limiterPruneThreshold = 1000
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// loginLimiter rate limits login attempts per client IP with a token
// bucket refilled at perMinute tokens per minute.
type loginLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*ipLimiter
	perMinute int
	logger    *slog.Logger
	now       func() time.Time
}

func newLoginLimiter(perMinute int, logger *slog.Logger) *loginLimiter {
	if perMinute <= 0 {
		perMinute = 5
	}

	return &loginLimiter{
		limiters:  make(map[string]*ipLimiter),
		perMinute: perMinute,
		logger:    logger,
		now:       time.Now,
	}
}

func (l *loginLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if len(l.limiters) > limiterPruneThreshold {
		for k, v := range l.limiters {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute),
		}
		l.limiters[ip] = entry
	}

	entry.lastSeen = now

	return entry.limiter
}

func (l *loginLimiter) allow(ip string) (bool, time.Duration) {
	lim := l.get(ip)
	now := l.now()

	if lim.AllowN(now, 1) {
		return true, 0
	}

	r := lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)

	return false, delay
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func (l *loginLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := remoteIP(r)

		ok, delay := l.allow(ip)
		if !ok {
			retryAfter := max(int(delay.Seconds()), 1)
			l.logger.Warn("login rate limit exceeded",
				slog.String("ip", ip),
				slog.Int("retry_after", retryAfter),
			)

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}
