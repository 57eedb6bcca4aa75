package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CountFunc returns the live number of open visits.
type CountFunc func(ctx context.Context) (int, error)

// Occupancy caches the open-visit count for at most ttl. Concurrent misses
// share a single store query.
type Occupancy struct {
	count CountFunc
	ttl   time.Duration
	now   Clock

	mu        sync.RWMutex
	value     int
	fetchedAt time.Time
	valid     bool

	group singleflight.Group
}

func NewOccupancy(count CountFunc, ttl time.Duration, now Clock) *Occupancy {
	if now == nil {
		now = SystemClock
	}
	return &Occupancy{count: count, ttl: ttl, now: now}
}

// CurrentCount returns the cached count, refreshing it once it is ttl old.
// A failed refresh is returned to the caller and leaves the cache as it was.
func (o *Occupancy) CurrentCount(ctx context.Context) (int, error) {
	if n, ok := o.cached(); ok {
		return n, nil
	}

	ch := o.group.DoChan("count", func() (interface{}, error) {
		if n, ok := o.cached(); ok {
			return n, nil
		}
		// The shared refresh must outlive whichever caller started it.
		n, err := o.count(context.WithoutCancel(ctx))
		if err != nil {
			return 0, err
		}
		o.mu.Lock()
		o.value = n
		o.fetchedAt = o.now()
		o.valid = true
		o.mu.Unlock()
		return n, nil
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int), nil
	}
}

func (o *Occupancy) cached() (int, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.valid || o.now().Sub(o.fetchedAt) >= o.ttl {
		return 0, false
	}
	return o.value, true
}
