// Package policy holds the daemon's delivery and admission policies.
package policy

import "time"

// Policy is the common part of every policy.
type Policy interface {
	Enabled() bool
	Name() string
}

// RetryPolicy decides whether and when a failed delivery is retried.
type RetryPolicy interface {
	Policy
	// ShouldRetry reports whether attempt (0-based) may be followed by another.
	ShouldRetry(attempt int, err error) bool
	// Backoff is the wait before retry number attempt (1-based).
	Backoff(attempt int) time.Duration
	MaxRetries() int
}

// RateLimitingPolicy admits requests per client key.
type RateLimitingPolicy interface {
	Policy
	Allow(key string, at time.Time) bool
	// Remaining returns the tokens left for key, or -1 when unlimited.
	Remaining(key string, at time.Time) int
}
