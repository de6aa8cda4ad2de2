package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Policy defines retry behavior for LLM calls
type Policy struct {
	MaxRetries        int           // Maximum number of retry attempts (0 = no retries)
	InitialDelay      time.Duration // Initial delay before first retry
	MaxDelay          time.Duration // Maximum delay between retries
	BackoffMultiplier float64       // Multiplier for exponential backoff (e.g., 2.0)
}

// DefaultPolicy returns the default retry policy for generation jobs
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RateLimitPolicy returns a policy for providers that throttle aggressively
func RateLimitPolicy() Policy {
	return Policy{
		MaxRetries:        5,
		InitialDelay:      2 * time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Policy names accepted by PolicyByName
const (
	PolicyDefault   = "default"
	PolicyRateLimit = "rate_limit"
	PolicyNone      = "none"
)

// ErrUnknownPolicy is returned by PolicyByName for an unrecognized name
var ErrUnknownPolicy = errors.New("unknown retry policy")

// PolicyByName returns the named policy. An empty name is the default.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", PolicyDefault:
		return DefaultPolicy(), nil
	case PolicyRateLimit:
		return RateLimitPolicy(), nil
	case PolicyNone:
		return NoRetryPolicy(), nil
	default:
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// NoRetryPolicy returns a policy that never retries
func NoRetryPolicy() Policy {
	return Policy{
		MaxRetries:        0,
		InitialDelay:      time.Millisecond,
		MaxDelay:          time.Millisecond,
		BackoffMultiplier: 1.0,
	}
}

// CalculateDelay calculates the next retry delay based on the current attempt number
func (p *Policy) CalculateDelay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return p.InitialDelay
	}

	// Calculate exponential backoff: initialDelay * (multiplier ^ retryCount)
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(retryCount))

	// Cap at maximum delay
	if time.Duration(delay) > p.MaxDelay {
		return p.MaxDelay
	}

	return time.Duration(delay)
}

// ShouldRetry determines if a call should be retried based on the attempt count
func (p *Policy) ShouldRetry(retryCount int) bool {
	return retryCount < p.MaxRetries
}

// Retriable is implemented by errors that know whether retrying may help.
type Retriable interface {
	Retriable() bool
}

// IsRetriableError reports whether any error in err's chain is Retriable and
// says so. Context cancellation is never retriable.
func IsRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r Retriable
	return errors.As(err, &r) && r.Retriable()
}

// Validate checks if the retry policy configuration is valid
func (p *Policy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("MaxRetries must be non-negative")
	}
	if p.InitialDelay <= 0 {
		return errors.New("InitialDelay must be positive")
	}
	if p.MaxDelay <= 0 {
		return errors.New("MaxDelay must be positive")
	}
	if p.BackoffMultiplier <= 0 {
		return errors.New("BackoffMultiplier must be positive")
	}
	if p.InitialDelay > p.MaxDelay {
		return errors.New("InitialDelay cannot be greater than MaxDelay")
	}
	return nil
}
