package rpc

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
)

var _ Caller = (*Retrying)(nil)

// Retrying decorates a Caller with exponential backoff on rate-limit
// errors. Other errors, including optimistic-concurrency conflicts,
// surface immediately; conflict retries are a read-modify-write concern
// and belong to the caller.
type Retrying struct {
	caller         Caller
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

func NewRetrying(caller Caller, maxAttempts int, initialBackoff, maxBackoff time.Duration) *Retrying {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrying{
		caller:         caller,
		maxAttempts:    maxAttempts,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		sleep:          sleepCtx,
	}
}

func (r *Retrying) Call(ctx context.Context, name string, args map[string]any) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		result, err := r.caller.Call(ctx, name, args)
		if err == nil {
			return result, nil
		}
		if !IsRateLimited(err) {
			return nil, err
		}
		lastErr = err
		if attempt == r.maxAttempts {
			break
		}
		delay := backoffDelay(attempt, r.initialBackoff, r.maxBackoff)
		log.WithError(err).WithField("tool", name).WithField("attempt", attempt).Warn("rate limited, backing off")
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("tool %s rate limited after %d attempts: %w", name, r.maxAttempts, lastErr)
}

func backoffDelay(attempt int, initial, max time.Duration) time.Duration {
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	jitter := 0.2 * backoff
	return time.Duration(backoff + (rand.Float64()-0.5)*2*jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
