package owd1

import (
	"context"
	"time"
)

// Clock is the time source of a session. SleepUntil is the only place where
// a session suspends besides waiting for a message.
type Clock interface {
	Now() time.Time
	SleepUntil(ctx context.Context, t time.Time) error
}

type systemClock struct{}

// SystemClock is the Clock backed by the host's wall clock.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) SleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// OffsetClock is a Clock running Offset ahead of the wrapped Clock. It is
// used to emulate a remote host with a skewed clock.
type OffsetClock struct {
	Clock  Clock
	Offset time.Duration
}

// Now returns the wrapped clock's time shifted by Offset.
func (c OffsetClock) Now() time.Time {
	return c.Clock.Now().Add(c.Offset)
}

// SleepUntil sleeps until t, expressed in this clock's frame.
func (c OffsetClock) SleepUntil(ctx context.Context, t time.Time) error {
	return c.Clock.SleepUntil(ctx, t.Add(-c.Offset))
}
