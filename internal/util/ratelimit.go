package util

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var nonDigits = regexp.MustCompile(`\D+`)

// NormalizeIdentifier normalizes phone number or email
func NormalizeIdentifier(identifier string) string {
	if strings.Contains(identifier, "@") {
		// Email - lowercase and trim
		return strings.ToLower(strings.TrimSpace(identifier))
	}
	// Phone - digits only
	return nonDigits.ReplaceAllString(identifier, "")
}

// RateLimitError reports how long a caller must wait before trying again.
type RateLimitError struct {
	Max        int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: maximum %d requests per %v. Please wait %v before trying again",
		e.Max, e.Window, e.RetryAfter.Round(time.Second))
}

// RateLimiter is a token-bucket limiter keyed by normalized identifier. Each
// identifier may burst up to max requests and regains one every window/max.
type RateLimiter struct {
	max    int
	window time.Duration
	every  rate.Limit
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows max requests per identifier within window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		max:     max,
		window:  window,
		every:   rate.Every(window / time.Duration(max)),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes a token for identifier, or returns *RateLimitError when none is
// available. Rejected requests do not consume a token.
func (l *RateLimiter) Allow(identifier string) error {
	key := NormalizeIdentifier(identifier)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.max)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return &RateLimitError{Max: l.max, Window: l.window, RetryAfter: l.window}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return &RateLimitError{Max: l.max, Window: l.window, RetryAfter: delay}
	}
	return nil
}

// Cleanup drops identifiers idle for a full window. Their buckets have refilled
// so forgetting them changes nothing.
func (l *RateLimiter) Cleanup() {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if !b.lastSeen.After(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Len returns the number of tracked identifiers.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
