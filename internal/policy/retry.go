package policy

import (
	"fmt"
	"time"
)

const (
	BackoffExponential = "exponential"
	BackoffLinear      = "linear"
	BackoffConstant    = "constant"
)

type retryPolicy struct {
	enabled    bool
	maxRetries int
	backoff    string
	base       time.Duration
}

// NewRetryPolicy returns a retry policy. An empty backoff means exponential.
func NewRetryPolicy(enabled bool, maxRetries int, backoff string, base time.Duration) (RetryPolicy, error) {
	switch backoff {
	case "":
		backoff = BackoffExponential
	case BackoffExponential, BackoffLinear, BackoffConstant:
	default:
		return nil, fmt.Errorf("unknown backoff %q", backoff)
	}
	if maxRetries < 0 {
		return nil, fmt.Errorf("max retries cannot be negative, got %d", maxRetries)
	}
	return &retryPolicy{enabled: enabled, maxRetries: maxRetries, backoff: backoff, base: base}, nil
}

func (p *retryPolicy) Enabled() bool {
	return p.enabled
}

func (p *retryPolicy) Name() string {
	return "retry"
}

func (p *retryPolicy) ShouldRetry(attempt int, err error) bool {
	return p.enabled && err != nil && attempt < p.maxRetries
}

func (p *retryPolicy) Backoff(attempt int) time.Duration {
	if !p.enabled || attempt <= 0 {
		return 0
	}
	switch p.backoff {
	case BackoffLinear:
		return p.base * time.Duration(attempt)
	case BackoffConstant:
		return p.base
	default:
		return p.base * time.Duration(1<<uint(attempt-1))
	}
}

func (p *retryPolicy) MaxRetries() int {
	if !p.enabled {
		return 0
	}
	return p.maxRetries
}
