// Package countdown computes remaining exam time from the server-issued
// session start and declared duration, so a refreshed or reopened tab shows
// correctly decremented time instead of restarting the clock.
package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Countdown ticks once per second while the session is non-terminal and
// invokes onExpire exactly once when remaining time reaches zero.
type Countdown struct {
	startedAt time.Time
	duration  time.Duration
	interval  time.Duration
	now       func() time.Time

	onExpire func()
	once     sync.Once

	log zerolog.Logger
}

// New creates a Countdown. onExpire fires exactly once, even when the
// session start already lies past its deadline on resume.
func New(startedAt time.Time, duration time.Duration, onExpire func(), log zerolog.Logger) *Countdown {
	return &Countdown{
		startedAt: startedAt,
		duration:  duration,
		interval:  time.Second,
		now:       time.Now,
		onExpire:  onExpire,
		log:       log.With().Str("component", "countdown").Logger(),
	}
}

// Remaining returns duration - elapsed(start, now), clamped at zero.
func (c *Countdown) Remaining() time.Duration {
	remaining := c.duration - c.now().Sub(c.startedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Run ticks until expiry or context end. Subsequent ticks at zero never
// re-trigger the expiry callback.
func (c *Countdown) Run(ctx context.Context) {
	if c.fireIfExpired() {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.fireIfExpired() {
				return
			}
		}
	}
}

func (c *Countdown) fireIfExpired() bool {
	if c.Remaining() > 0 {
		return false
	}
	c.once.Do(func() {
		c.log.Info().Msg("Time expired, triggering auto-submit")
		if c.onExpire != nil {
			c.onExpire()
		}
	})
	return true
}
