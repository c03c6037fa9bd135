package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config bounds the retry loop.
type Config struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig retries three times, starting at 20ms.
func DefaultConfig() Config {
	return Config{
		Attempts:     3,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
	}
}

// Do runs fn until it succeeds, returns an error that retryable rejects, the
// attempt budget is spent, or ctx is done. onRetry, when set, is called before
// every retry with the error that triggered it.
func Do(ctx context.Context, cfg Config, retryable func(error) bool, onRetry func(error), fn func() error) error {
	if cfg.Attempts <= 1 {
		return fn()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	if cfg.MaxDelay > 0 {
		b.MaxInterval = cfg.MaxDelay
	}
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.Attempts-1)), ctx)

	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var notify backoff.Notify
	if onRetry != nil {
		notify = func(err error, _ time.Duration) { onRetry(err) }
	}

	return backoff.RetryNotify(op, policy, notify)
}
