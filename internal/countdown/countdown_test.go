package countdown

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRemainingDecrements(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := New(clock, 600*time.Second, nil, zerolog.Nop())
	c.now = func() time.Time { return clock.Add(10 * time.Second) }

	assert.Equal(t, 590*time.Second, c.Remaining())
}

func TestRemainingClampsAtZero(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := New(clock, 600*time.Second, nil, zerolog.Nop())
	c.now = func() time.Time { return clock.Add(650 * time.Second) }

	assert.Equal(t, time.Duration(0), c.Remaining(), "remaining never goes negative")
}

func TestResumePastDeadlineAutoSubmitsOnce(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var fired int32
	c := New(clock, 600*time.Second, func() { atomic.AddInt32(&fired, 1) }, zerolog.Nop())
	c.now = func() time.Time { return clock.Add(650 * time.Second) }

	// Run fires immediately without waiting a tick, and a second Run (a
	// re-resume in the same process) does not re-trigger.
	c.Run(context.Background())
	c.Run(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestExpiryFiresExactlyOnceAcrossTicks(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	elapsed := int64(0)
	var fired int32

	c := New(clock, 30*time.Millisecond, func() { atomic.AddInt32(&fired, 1) }, zerolog.Nop())
	c.interval = 5 * time.Millisecond
	c.now = func() time.Time {
		return clock.Add(time.Duration(atomic.AddInt64(&elapsed, int64(10*time.Millisecond))))
	}

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not stop after expiry")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	var fired int32
	c := New(time.Now(), time.Hour, func() { atomic.AddInt32(&fired, 1) }, zerolog.Nop())
	c.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not observe cancellation")
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired), "cancellation must not auto-submit")
}
