// Package retry implements bounded exponential backoff with jitter for
// outbound webhook calls. Producers never retry; only the delivery worker
// uses this, so a slow external API cannot stall settlement.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFactor   float64
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.JitterFactor <= 0 {
		c.JitterFactor = 0.2
	}
	return c
}

// Do runs fn until it succeeds, the attempts are exhausted, or the context
// is cancelled. fn receives the 1-based attempt number so callers can count
// retries in their metrics.
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) error {
	cfg = cfg.withDefaults()

	backoff := cfg.InitialBackoff
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := jitter(backoff, cfg.JitterFactor)
		if sleep > cfg.MaxBackoff {
			sleep = cfg.MaxBackoff
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}

		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return err
}

func jitter(d time.Duration, factor float64) time.Duration {
	delta := int64(float64(d) * factor)
	if delta <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(2*delta)-delta)
}
