package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Sweeper is one periodic cleanup job run by the Reaper.
type Sweeper interface {
	Name() string
	Sweep(ctx context.Context) (int, error)
}

// Reaper runs its sweepers on a fixed interval until stopped. A failing or
// panicking sweeper is logged and retried on the next tick.
type Reaper struct {
	interval time.Duration
	sweepers []Sweeper

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReaper(interval time.Duration, sweepers ...Sweeper) *Reaper {
	return &Reaper{interval: interval, sweepers: sweepers}
}

// RunOnce runs every sweeper a single time and returns the total number of
// records they handled.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	total := 0
	var errs []error
	for _, sw := range r.sweepers {
		n, err := r.runSweeper(ctx, sw)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sw.Name(), err))
			continue
		}
		if n > 0 {
			log.Infof("reaper: %s handled %d record(s)", sw.Name(), n)
		}
	}
	return total, errors.Join(errs...)
}

func (r *Reaper) runSweeper(ctx context.Context, sw Sweeper) (n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return sw.Sweep(ctx)
}

// Start launches the sweep loop. Calling Start on a running reaper does nothing.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.loop(ctx, r.done)
	log.Infof("reaper started, interval %s", r.interval)
}

func (r *Reaper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				log.Errorf("reaper sweep failed: %v", err)
			}
		}
	}
}

// Stop cancels the loop and waits for an in-flight sweep to finish. It is
// safe to call on a reaper that was never started.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
	log.Info("reaper stopped")
}
