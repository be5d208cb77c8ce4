package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool hands out one token bucket per client key (API key, or the
// remote IP for keyless requests). Limits are resolved once at
// construction so a zero config falls back to conservative defaults.
type limiterPool struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{
		buckets: make(map[string]*rate.Limiter),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// Allow reports whether the client key may proceed, minting its bucket on
// first sight.
func (p *limiterPool) Allow(key string) bool {
	p.mu.Lock()
	l, ok := p.buckets[key]
	if !ok {
		l = rate.NewLimiter(p.rps, p.burst)
		p.buckets[key] = l
	}
	p.mu.Unlock()
	return l.Allow()
}
