package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	adpRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adp_retries_total",
		Help: "Total number of retry attempts by endpoint",
	}, []string{"endpoint"})

	adpRetryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "adp_retry_backoff_seconds",
		Help:    "Backoff duration before retries",
		Buckets: []float64{0.5, 1, 1.5, 2, 5},
	})

	adpRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adp_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by endpoint",
	}, []string{"endpoint"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// InitialBackoff is the backoff before the first retry. Subsequent
	// backoffs grow by one InitialBackoff step per retry, giving the
	// 0.5s, 1.0s, 1.5s schedule with the defaults. The linear-step
	// schedule is preserved for compatibility with existing deployments.
	InitialBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration:
// 3 retries with backoffs of 0.5s, 1.0s and 1.5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// backoffFor returns the backoff before retry number n (1-based).
func (c RetryConfig) backoffFor(n int) time.Duration {
	return time.Duration(n) * c.InitialBackoff
}

// retryWithBackoff executes fn until it succeeds, reports a non-retryable
// error, or the retry budget is exhausted. fn receives the 1-based attempt
// number and reports whether its error is retryable. Returns the number of
// attempts made. Backoff sleeps go through the sleep function and are local
// to the calling goroutine.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, endpoint string, sleep func(time.Duration), fn func(attempt int) (bool, error)) (int, error) {
	maxAttempts := cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryable, err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("endpoint", endpoint).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return attempt, nil
		}

		lastErr = err
		if !retryable {
			return attempt, err
		}
		if attempt >= maxAttempts {
			break
		}

		backoff := cfg.backoffFor(attempt)
		adpRetriesTotal.WithLabelValues(endpoint).Inc()
		adpRetryBackoffSeconds.Observe(backoff.Seconds())

		log.Debug().
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			return attempt, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		default:
		}
		sleep(backoff)
	}

	adpRetryExhaustedTotal.WithLabelValues(endpoint).Inc()
	log.Warn().
		Str("endpoint", endpoint).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}
