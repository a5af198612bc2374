// Package ratelimit implements the client-side politeness policies used against
// the Civitai API: a small jittered delay before every request and linear
// backoff schedules for retrying throttled or failing calls. The API publishes
// no rate limit headers, so all pacing is self-imposed.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Default pacing constants.
const (
	// FetchThrottleMin/Max bound the self-imposed delay before every
	// metadata page request.
	FetchThrottleMin = 100 * time.Millisecond
	FetchThrottleMax = 300 * time.Millisecond

	// DownloadThrottleMin/Max bound the delay before every download attempt.
	DownloadThrottleMin = 500 * time.Millisecond
	DownloadThrottleMax = 1500 * time.Millisecond
)

// Throttle inserts a uniformly random delay in [Min, Max] before a request.
type Throttle struct {
	Min time.Duration
	Max time.Duration
}

// FetchThrottle returns the throttle applied before metadata page requests.
func FetchThrottle() Throttle {
	return Throttle{Min: FetchThrottleMin, Max: FetchThrottleMax}
}

// DownloadThrottle returns the throttle applied before download attempts.
func DownloadThrottle() Throttle {
	return Throttle{Min: DownloadThrottleMin, Max: DownloadThrottleMax}
}

// Wait sleeps for a random duration within the throttle bounds.
// It returns early with the context error if ctx is cancelled.
func (t Throttle) Wait(ctx context.Context) error {
	d := t.Min
	if t.Max > t.Min {
		d += time.Duration(rand.Int63n(int64(t.Max - t.Min)))
	}
	if d <= 0 {
		return ctx.Err()
	}

	throttleWaitsTotal.Inc()
	throttleWaitSeconds.Observe(d.Seconds())

	return Sleep(ctx, d)
}

// LinearBackoff produces delays of (attempt+1) x Step for attempt 0,1,2,...
// MaxAttempts bounds the total number of tries including the first one.
type LinearBackoff struct {
	Step        time.Duration
	MaxAttempts int
}

// Delay returns the backoff duration after a failure of the given attempt
// (zero-based).
func (b LinearBackoff) Delay(attempt int) time.Duration {
	return time.Duration(attempt+1) * b.Step
}

// Wait sleeps for the backoff duration after the given attempt, honoring
// context cancellation.
func (b LinearBackoff) Wait(ctx context.Context, attempt int, class string) error {
	d := b.Delay(attempt)
	backoffWaitsTotal.WithLabelValues(class).Inc()
	backoffSeconds.WithLabelValues(class).Observe(d.Seconds())
	return Sleep(ctx, d)
}

// Sleep is a context-aware time.Sleep. It returns a wrapped context error if
// ctx is cancelled before the duration elapses.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
