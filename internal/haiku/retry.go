package haiku

import (
	"errors"
	"time"
)

// RetryPolicy bounds one logical request. Each attempt gets its own
// timeout, and every retry grows that timeout by Timeout*Multiplier.
type RetryPolicy struct {
	Timeout    time.Duration
	MaxRetries int
	Multiplier float64
}

// DefaultRetryPolicy: 10s timeout, 3 retries, doubling.
var DefaultRetryPolicy = RetryPolicy{
	Timeout:    10 * time.Second,
	MaxRetries: 3,
	Multiplier: 2,
}

// NoRetry is used for sign-out and disconnect.
var NoRetry = RetryPolicy{Timeout: 10 * time.Second}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultRetryPolicy.Timeout
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Multiplier < 0 {
		p.Multiplier = 0
	}
	return p
}

// attemptTimeout returns the timeout for attempt n (0-based).
func (p RetryPolicy) attemptTimeout(n int) time.Duration {
	p = p.normalized()
	timeout := p.Timeout
	for i := 0; i < n; i++ {
		timeout += time.Duration(float64(timeout) * p.Multiplier)
	}
	return timeout
}

// shouldRetry reports whether attempt n (0-based) failing with err may be
// followed by another attempt.
func (p RetryPolicy) shouldRetry(n int, err error) bool {
	if err == nil {
		return false
	}
	if n >= p.normalized().MaxRetries {
		return false
	}
	return errors.Is(err, ErrNetwork)
}
