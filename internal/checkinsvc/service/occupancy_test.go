package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avvvet/gym-services/internal/testkit/checkinfakes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccupancyServesCacheWithinTTL(t *testing.T) {
	clock := checkinfakes.NewClock(t0)
	var live atomic.Int64
	var queries atomic.Int32
	occ := NewOccupancy(func(context.Context) (int, error) {
		queries.Add(1)
		return int(live.Load()), nil
	}, time.Minute, clock.Now)
	ctx := context.Background()

	live.Store(3)
	n, err := occ.CurrentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	live.Store(4)
	clock.Advance(59 * time.Second)
	n, err = occ.CurrentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "served from cache")

	clock.Advance(time.Second)
	n, err = occ.CurrentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "refreshed once the ttl elapsed")
	assert.Equal(t, int32(2), queries.Load())
}

func TestOccupancyReflectsCheckInWithinTTL(t *testing.T) {
	f := newFixture(t)
	cred := f.eligibleMember(1)
	occ := NewOccupancy(f.visits.CountActive, f.cfg.OccupancyTTL, f.clock.Now)
	ctx := context.Background()

	n, err := occ.CurrentCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.svc.Approve(ctx, ApproveRequest{Code: cred})
	require.NoError(t, err)

	f.clock.Advance(f.cfg.OccupancyTTL)
	n, err = occ.CurrentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOccupancyRefreshFailure(t *testing.T) {
	clock := checkinfakes.NewClock(t0)
	fail := errors.New("db down")
	var broken atomic.Bool
	occ := NewOccupancy(func(context.Context) (int, error) {
		if broken.Load() {
			return 0, fail
		}
		return 7, nil
	}, time.Minute, clock.Now)
	ctx := context.Background()

	n, err := occ.CurrentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	broken.Store(true)
	clock.Advance(2 * time.Minute)
	_, err = occ.CurrentCount(ctx)
	assert.ErrorIs(t, err, fail)

	broken.Store(false)
	n, err = occ.CurrentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestOccupancyCoalescesConcurrentMisses(t *testing.T) {
	clock := checkinfakes.NewClock(t0)
	release := make(chan struct{})
	var queries atomic.Int32
	occ := NewOccupancy(func(context.Context) (int, error) {
		queries.Add(1)
		<-release
		return 5, nil
	}, time.Minute, clock.Now)

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := occ.CurrentCount(context.Background())
			assert.NoError(t, err)
			results[i] = n
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, n := range results {
		assert.Equal(t, 5, n)
	}
	assert.Equal(t, int32(1), queries.Load())
}

func TestOccupancyCallerCancellation(t *testing.T) {
	clock := checkinfakes.NewClock(t0)
	release := make(chan struct{})
	defer close(release)
	occ := NewOccupancy(func(context.Context) (int, error) {
		<-release
		return 1, nil
	}, time.Minute, clock.Now)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := occ.CurrentCount(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
