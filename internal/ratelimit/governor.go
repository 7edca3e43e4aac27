// Package ratelimit bounds outbound pressure on the Plex server: a token
// bucket for request rate and a semaphore for match fan-out.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Governor is shared by every component that talks to Plex so the rate and
// concurrency budgets hold across playlist sync, liked-track sync and cache
// building at the same time.
type Governor struct {
	limiter *rate.Limiter
	sem     chan struct{}
}

// New builds a Governor allowing requestsPerSecond to Plex and
// maxConcurrent simultaneous match operations.
func New(requestsPerSecond float64, maxConcurrent int) (*Governor, error) {
	if requestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests per second must be positive, got %g", requestsPerSecond)
	}
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("max concurrent must be at least 1, got %d", maxConcurrent)
	}
	return &Governor{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		sem:     make(chan struct{}, maxConcurrent),
	}, nil
}

// Wait blocks until a request token is available or the context ends.
func (g *Governor) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// Acquire claims a concurrency slot, blocking until one frees up or the
// context ends. Every successful Acquire must be paired with Release.
func (g *Governor) Acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot claimed by Acquire.
func (g *Governor) Release() {
	<-g.sem
}

// MaxConcurrent reports the semaphore capacity.
func (g *Governor) MaxConcurrent() int {
	return cap(g.sem)
}
