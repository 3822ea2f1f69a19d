package crawl

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// SystemClock implements Clock with real time.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep waits for d or until the context finishes, whichever comes first.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DelayPolicy produces human-pacing delays with randomized jitter. A zero
// policy yields zero delays, which is what tests want.
type DelayPolicy struct {
	Min time.Duration
	Max time.Duration
}

// Duration picks a random duration in [Min, Max].
func (p DelayPolicy) Duration() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + randomJitter(p.Max-p.Min)
}

// Wait sleeps for a freshly sampled delay using the supplied clock.
func (p DelayPolicy) Wait(ctx context.Context, clock Clock) error {
	return clock.Sleep(ctx, p.Duration())
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
