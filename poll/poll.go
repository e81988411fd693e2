// Package poll waits for hardware to reach a state, checking at a growing
// interval until a deadline.
package poll

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	"github.com/sarchlab/chiplink/chiperr"
)

// Config bounds a wait.
type Config struct {
	// Timeout is the longest the condition is polled for. Zero means the
	// condition is checked exactly once.
	Timeout time.Duration

	// Min and Max bound the interval between two checks. The interval
	// doubles from Min up to Max. Zero values pick DefaultMin and
	// DefaultMax.
	Min, Max time.Duration
}

// Defaults for the poll interval.
const (
	DefaultMin = time.Millisecond
	DefaultMax = 50 * time.Millisecond
)

// Until checks cond until it reports done, it fails, the timeout elapses or
// ctx is done. The condition is always checked at least once. A timeout
// returns chiperr.ErrTimeout unwrapped.
func Until(ctx context.Context, c Config, cond func() (bool, error)) error {
	if c.Min <= 0 {
		c.Min = DefaultMin
	}

	if c.Max < c.Min {
		c.Max = max(DefaultMax, c.Min)
	}

	b := &backoff.Backoff{
		Min:    c.Min,
		Max:    c.Max,
		Factor: 2,
		Jitter: false,
	}

	deadline := now().Add(c.Timeout)

	for {
		done, err := cond()
		if err != nil {
			return err
		}

		if done {
			return nil
		}

		if !now().Before(deadline) {
			return chiperr.ErrTimeout
		}

		wait := b.Duration()
		if left := deadline.Sub(now()); wait > left {
			wait = left
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var now = time.Now
