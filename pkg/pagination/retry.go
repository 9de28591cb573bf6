package pagination

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrRetryExhausted is returned when all retry attempts are exhausted.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryConfig holds the configuration for retrying error envelopes.
type RetryConfig struct {
	// MaxAttempts is the maximum number of Retry calls.
	MaxAttempts int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// ShouldRetry decides whether a cause is worth retrying.
	// Nil retries every transform failure.
	ShouldRetry func(cause error) bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryWithBackoff retries e until it succeeds, the attempts run out, the
// cause is rejected by ShouldRetry, or ctx is done. It waits with exponential
// backoff and ±20% jitter before every attempt.
//
// On exhaustion the returned error wraps ErrRetryExhausted and the last envelope.
func RetryWithBackoff[O any](ctx context.Context, e *Error[O], cfg RetryConfig) (O, error) {
	var zero O
	if e == nil {
		return zero, fmt.Errorf("envelope is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}

	last := e
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if !last.Retryable() {
			return zero, last
		}
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(last.Cause) {
			return zero, last
		}

		if backoff > 0 {
			// Add jitter (±20% randomness)
			jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
			retryBackoffSeconds.Observe(jitter.Seconds())

			log.Debug().
				Int("index", last.Index).
				Int("attempt", attempt).
				Dur("backoff", jitter).
				Msg("Retrying item after backoff")

			timer := time.NewTimer(jitter)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("retry item %d: %w", last.Index, ctx.Err())
			case <-timer.C:
			}

			backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
			if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}

		data, err := last.Retry(ctx)
		if err == nil {
			log.Info().
				Int("index", last.Index).
				Int("attempt", attempt).
				Msg("Item succeeded after retry")
			return data, nil
		}

		var next *Error[O]
		if !errors.As(err, &next) {
			return zero, err
		}
		last = next
	}

	retryExhausted.Inc()
	log.Warn().
		Err(last.Cause).
		Int("index", last.Index).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, last)
}
