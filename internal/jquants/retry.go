package jquants

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy controls how transient failures are retried.
// Each wait is drawn uniformly from [MinWait, min(MaxWait, MinWait*2^(n-1))].
type RetryPolicy struct {
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration
	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// DefaultRetryPolicy matches the upstream API's documented rate limiting guidance.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 6,
		MinWait:     5 * time.Second,
		MaxWait:     60 * time.Second,
	}
}

// Wait returns the delay before retry number n (1-based).
func (p RetryPolicy) Wait(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	high := float64(p.MinWait) * math.Pow(2, float64(n-1))
	if high > float64(p.MaxWait) {
		high = float64(p.MaxWait)
	}
	low := float64(p.MinWait)
	if high < low {
		high = low
	}
	r := p.Rand
	if r == nil {
		r = rand.Float64
	}
	return time.Duration(low + r()*(high-low))
}

// backoff builds a go-retry Backoff allowing MaxAttempts total attempts.
func (p RetryPolicy) backoff() retry.Backoff {
	n := 0
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		return p.Wait(n), false
	})
	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), b)
}
