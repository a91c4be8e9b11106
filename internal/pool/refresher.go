package pool

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Refresher periodically replaces the pool contents from a remote source.
// A failed refresh keeps the previous pool; the pool is never emptied by a
// transient fetch error.
type Refresher struct {
	pool     *Pool
	fetcher  *Fetcher
	interval time.Duration
	logger   *zap.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewRefresher creates a refresher that reloads the pool from the fetcher
// every interval.
func NewRefresher(p *Pool, f *Fetcher, interval time.Duration, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		pool:     p,
		fetcher:  f,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the refresh loop in a background goroutine.
func (r *Refresher) Start() {
	go r.loop()
}

// loop runs the ticker-driven refresh cycle until Stop is called.
func (r *Refresher) loop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.refresh()
		case <-r.stopCh:
			return
		}
	}
}

// refresh performs a single fetch-and-replace cycle.
func (r *Refresher) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultFetchTimeout)
	defer cancel()

	descriptors, err := r.fetcher.Fetch(ctx)
	if err != nil {
		r.logger.Warn("pool refresh failed, keeping previous pool", zap.Error(err))
		return
	}

	if len(descriptors) == 0 {
		r.logger.Warn("pool refresh returned empty list, keeping previous pool")
		return
	}

	r.pool.Replace(descriptors)
	r.logger.Info("pool refreshed from remote source",
		zap.Int("pool_size", len(descriptors)),
	)
}

// Stop terminates the refresh loop and waits for it to exit.
func (r *Refresher) Stop() {
	close(r.stopCh)
	<-r.doneCh
}
