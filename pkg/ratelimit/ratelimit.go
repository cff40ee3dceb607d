// Package ratelimit serializes outbound sends with a randomized minimum gap.
//
// A fixed inter-send delay produces a detectably periodic traffic pattern;
// drawing the gap uniformly from [min, max] bounds throughput without the
// periodicity. All senders sharing one aggregator connection must share one
// Limiter — it is the sole synchronization point for that connection.
package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

type Limiter struct {
	mu       sync.Mutex
	minDelay time.Duration
	maxDelay time.Duration
	lastCall time.Time

	// Injectable for tests.
	now   func() time.Time
	randD func(min, max time.Duration) time.Duration
}

// New returns a limiter granting at most one Wait per random delay
// drawn from [minDelay, maxDelay].
func New(minDelay, maxDelay time.Duration) (*Limiter, error) {
	if minDelay < 0 || maxDelay < 0 {
		return nil, errors.New("ratelimit: delays must be >= 0")
	}
	if minDelay > maxDelay {
		return nil, errors.New("ratelimit: min delay must be <= max delay")
	}
	return &Limiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		now:      time.Now,
		randD:    uniform,
	}, nil
}

func uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}

// Wait blocks until the next rate-limited operation is permitted, then
// records the grant time. Callers are fully serialized: the internal lock is
// held across the sleep so concurrent waiters queue up behind each other.
//
// Returns ctx.Err() if the context is done before the grant; the grant time
// is not stamped in that case.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := l.now().Sub(l.lastCall)
	delay := l.randD(l.minDelay, l.maxDelay)

	if elapsed < delay {
		t := time.NewTimer(delay - elapsed)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	l.lastCall = l.now()
	return nil
}
