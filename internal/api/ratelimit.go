package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// tapLimiter throttles tap bursts per user. Idle limiters are dropped after
// an hour so the map does not grow with every user ever seen.
type tapLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*tapEntry
	rps      rate.Limit
	burst    int
}

type tapEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

func newTapLimiter(rps float64, burst int) *tapLimiter {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &tapLimiter{
		limiters: make(map[int64]*tapEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (t *tapLimiter) Allow(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	e, ok := t.limiters[userID]
	if !ok {
		e = &tapEntry{lim: rate.NewLimiter(t.rps, t.burst)}
		t.limiters[userID] = e
	}
	e.seen = now
	if len(t.limiters) > 10000 {
		for id, en := range t.limiters {
			if now.Sub(en.seen) > time.Hour {
				delete(t.limiters, id)
			}
		}
	}
	return e.lim.Allow()
}
