package guard

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// buckets is a keyed set of token buckets. A bucket idle for longer than
// it takes to refill completely is dropped; a fresh one behaves the same.
type buckets struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	m         map[string]*bucket
}

func newBuckets(perMinute, burst int) *buckets {
	limit := rate.Limit(float64(perMinute) / 60)
	refill := time.Duration(float64(burst) / float64(limit) * float64(time.Second))
	return &buckets{
		limit: limit,
		burst: burst,
		idle:  refill + time.Minute,
		m:     make(map[string]*bucket),
	}
}

// allow takes one token from key's bucket at now.
func (b *buckets) allow(key string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastSweep) >= b.idle {
		for k, e := range b.m {
			if now.Sub(e.seen) >= b.idle {
				delete(b.m, k)
			}
		}
		b.lastSweep = now
	}

	e, ok := b.m[key]
	if !ok {
		e = &bucket{lim: rate.NewLimiter(b.limit, b.burst)}
		b.m[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

func (b *buckets) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.m)
}
