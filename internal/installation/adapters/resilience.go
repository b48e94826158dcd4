// Package adapters provides infrastructure adapters for the installation ports.
package adapters

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
)

// ResilienceConfig configures resilience patterns for release lookups.
type ResilienceConfig struct {
	// Rate limiting
	RateLimitRPM int // Requests per minute (0 = disabled)

	// Retry configuration
	RetryAttempts    int
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration

	// Circuit breaker
	CircuitBreakerEnabled     bool
	CircuitBreakerThreshold   int           // failures before opening
	CircuitBreakerTimeout     time.Duration // how long to stay open
	CircuitBreakerMaxRequests int           // requests allowed in half-open
}

// resilience wraps Fortify resilience patterns around one kind of call.
type resilience[T any] struct {
	key            string
	rateLimiter    ratelimit.RateLimiter
	retrier        retry.Retry[T]
	circuitBreaker circuitbreaker.CircuitBreaker[T]
}

func newResilience[T any](key string, cfg ResilienceConfig) *resilience[T] {
	r := &resilience[T]{key: key}

	if cfg.RateLimitRPM > 0 {
		r.rateLimiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RateLimitRPM,
			Burst:    cfg.RateLimitRPM,
			Interval: time.Minute,
		})
	}

	if cfg.RetryAttempts > 0 {
		r.retrier = retry.New[T](retry.Config{
			MaxAttempts:   cfg.RetryAttempts,
			InitialDelay:  cfg.RetryInitialWait,
			MaxDelay:      cfg.RetryMaxWait,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			Jitter:        true,
			IsRetryable:   isRetryableError,
		})
	}

	if cfg.CircuitBreakerEnabled {
		threshold := cfg.CircuitBreakerThreshold
		r.circuitBreaker = circuitbreaker.New[T](circuitbreaker.Config{
			MaxRequests: uint32(cfg.CircuitBreakerMaxRequests), // #nosec G115 -- bounded config value
			Interval:    cfg.CircuitBreakerTimeout,
			Timeout:     cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounded config value
			},
		})
	}

	return r
}

// execute runs operation behind the rate limiter, then the circuit breaker,
// then retry.
func (r *resilience[T]) execute(ctx context.Context, operation func(context.Context) (T, error)) (T, error) {
	if r == nil {
		return operation(ctx)
	}

	if r.rateLimiter != nil {
		if err := r.rateLimiter.Wait(ctx, r.key); err != nil {
			var zero T
			return zero, err
		}
	}

	if r.circuitBreaker != nil {
		return r.circuitBreaker.Execute(ctx, func(ctx context.Context) (T, error) {
			return r.executeWithRetry(ctx, operation)
		})
	}
	return r.executeWithRetry(ctx, operation)
}

func (r *resilience[T]) executeWithRetry(ctx context.Context, operation func(context.Context) (T, error)) (T, error) {
	if r.retrier != nil {
		return r.retrier.Do(ctx, operation)
	}
	return operation(ctx)
}

// circuitState returns "closed", "half-open", "open", or "disabled".
func (r *resilience[T]) circuitState() string {
	if r == nil || r.circuitBreaker == nil {
		return "disabled"
	}
	return r.circuitBreaker.State().String()
}

func (r *resilience[T]) close() error {
	if r == nil || r.rateLimiter == nil {
		return nil
	}
	return r.rateLimiter.Close()
}

// isRetryableError determines if a release lookup error is worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch rperrors.GetKind(err) {
	case rperrors.KindNetwork:
		return true
	case rperrors.KindValidation, rperrors.KindNotFound, rperrors.KindConfig:
		return false
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return true
	}

	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}

	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary") {
		return true
	}

	// Unknown repositories and auth failures do not heal on retry.
	if strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "404") ||
		strings.Contains(errStr, "not found") {
		return false
	}

	return true
}
