package identity

import (
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// RateLimit describes a fixed window policy
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Preset policies. Auth endpoints get a tight window, password reset an
// even tighter one, everything else the default.
var (
	RateLimitAuth          = RateLimit{Requests: 5, Window: 15 * time.Minute}
	RateLimitPasswordReset = RateLimit{Requests: 3, Window: time.Hour}
	RateLimitDefault       = RateLimit{Requests: 100, Window: time.Minute}
)

type rateWindow struct {
	start time.Time
	count int
}

// RateLimiter enforces fixed window counters keyed by an arbitrary
// string, typically client address plus route scope. State is in memory,
// counters reset when the process restarts.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	limit   RateLimit
	now     func() time.Time
}

// NewRateLimiter builds a limiter for one policy
func NewRateLimiter(limit RateLimit) *RateLimiter {
	if limit.Requests <= 0 {
		limit = RateLimitDefault
	}
	return &RateLimiter{
		windows: make(map[string]*rateWindow),
		limit:   limit,
		now:     time.Now,
	}
}

// WithClock overrides the time source, mostly for tests
func (r *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		r.now = now
	}
	return r
}

// Allow records a hit for the key and reports whether it stays inside
// the window. The second return value is how long until the window
// resets, meaningful when the hit was rejected.
func (r *RateLimiter) Allow(key string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	w, ok := r.windows[key]
	if !ok || now.Sub(w.start) >= r.limit.Window {
		r.windows[key] = &rateWindow{start: now, count: 1}
		return true, 0
	}

	retryAfter := r.limit.Window - now.Sub(w.start)

	if w.count >= r.limit.Requests {
		return false, retryAfter
	}

	w.count++
	return true, retryAfter
}

// Check is Allow wrapped in the package error vocabulary
func (r *RateLimiter) Check(key string) error {
	allowed, retryAfter := r.Allow(key)
	if allowed {
		return nil
	}

	return goerrors.Wrap(ErrTooManyAttempts, goerrors.CategoryRateLimit, ErrTooManyAttempts.Message).
		WithTextCode(TextCodeTooManyAttempts).
		WithMetadata(map[string]any{
			"retry_after_seconds": int(retryAfter.Seconds()) + 1,
		})
}

// RetryAfterSeconds extracts the retry hint from a rate limit error, 0
// when the error carries none
func RetryAfterSeconds(err error) int {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return 0
	}

	if richErr.Metadata == nil {
		return 0
	}

	if v, ok := richErr.Metadata["retry_after_seconds"].(int); ok {
		return v
	}

	return 0
}

// Purge drops windows that ended before the cutoff so the map does not
// grow without bound
func (r *RateLimiter) Purge() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key, w := range r.windows {
		if now.Sub(w.start) >= r.limit.Window {
			delete(r.windows, key)
		}
	}
}
