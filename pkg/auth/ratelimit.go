package auth

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/vaultgate/pkg/api"
)

// Limiter tracks one token bucket per actor.
type Limiter struct {
	mu     sync.Mutex
	actors map[string]*rate.Limiter
	limit  rate.Limit
	burst  int
}

// NewLimiter creates a per-actor limiter allowing rps requests per second
// with the given burst.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		actors: make(map[string]*rate.Limiter),
		limit:  rate.Limit(rps),
		burst:  burst,
	}
}

func (l *Limiter) limiterFor(actor string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.actors[actor]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.actors[actor] = lim
	}
	return lim
}

// RateLimitMiddleware enforces per-actor rate limiting at the HTTP layer.
// The actor is the authenticated principal, falling back to the remote
// address. On rate limit exceeded, it returns 429 with a Retry-After
// header. A nil limiter disables limiting (dev mode).
func RateLimitMiddleware(limiter *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			actor := r.RemoteAddr
			if a, err := ActorFrom(r.Context()); err == nil {
				actor = a
			}

			if !limiter.limiterFor(actor).Allow() {
				api.WriteTooManyRequests(w, 1)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
