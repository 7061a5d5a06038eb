package chain

import (
	"context"
	"time"
)

// Retry configures exponential backoff for RPC reads.
type Retry struct {
	MaxRetries int
	Backoff    time.Duration
}

func (r Retry) do(ctx context.Context, fn func(context.Context) error) error {
	return withRetry(ctx, r.MaxRetries, r.Backoff, fn)
}

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
