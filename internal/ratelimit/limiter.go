// Package ratelimit implements per-key sliding window request limits.
package ratelimit

import (
	"context"
	"time"
)

// Policy allows Limit requests per sliding Window.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter records a request for key under policy and reports whether it fits.
type Limiter interface {
	Allow(ctx context.Context, key string, policy Policy) (Decision, error)
}
