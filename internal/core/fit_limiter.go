package core

// fit_limiter.go bounds how many fits run at once.
//
// Fits are CPU bound and a single request can keep a core busy for the whole
// fit timeout, so the service hands out a fixed number of slots. A request
// that cannot get a slot within maxWait fails with ErrTooManyFits. On
// shutdown WaitForDrain blocks until every running fit has returned.

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTooManyFits is returned when every fit slot stays busy for maxWait.
var ErrTooManyFits = errors.New("too many fits in progress, please try again later")

const (
	DefaultMaxConcurrentFits = 4
	DefaultFitWaitTime       = 10 * time.Second
)

// FitLimiter is a counting semaphore for fits.
type FitLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int32
}

// NewFitLimiter allows at most maxConcurrent fits; non-positive values select defaults.
func NewFitLimiter(maxConcurrent int, maxWait time.Duration) *FitLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentFits
	}
	if maxWait <= 0 {
		maxWait = DefaultFitWaitTime
	}
	return &FitLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. The returned release function frees it and is
// safe to call more than once.
func (l *FitLimiter) Acquire(ctx context.Context) (release func(), err error) {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTooManyFits
	}

	l.active.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			l.active.Add(-1)
			<-l.slots
		})
	}, nil
}

// ActiveCount returns the number of running fits.
func (l *FitLimiter) ActiveCount() int { return int(l.active.Load()) }

// MaxConcurrent returns the slot count.
func (l *FitLimiter) MaxConcurrent() int { return cap(l.slots) }

// WaitForDrain blocks until no fit is running or ctx is done.
func (l *FitLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// FitLimiterStatus is a snapshot for the health endpoint.
type FitLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

func (l *FitLimiter) Status() FitLimiterStatus {
	active := l.ActiveCount()
	return FitLimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - active,
		MaxConcurrent: cap(l.slots),
	}
}
