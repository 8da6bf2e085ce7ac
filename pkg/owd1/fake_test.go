package owd1_test

import (
	"context"
	"time"

	"github.com/m-lab/owd/pkg/owd1"
)

var epoch = time.Unix(1700000000, 0)

// fakeClock only moves when a session sleeps or when fakeServer simulates
// time on the wire.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) SleepUntil(ctx context.Context, t time.Time) error {
	if t.After(c.now) {
		c.now = t
	}
	return ctx.Err()
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// fakeServer is a scripted owd1.Messager emulating a server whose clock runs
// offset ahead of the client's, behind a link with a fixed one-way delay.
type fakeServer struct {
	clock   *fakeClock
	offset  time.Duration
	delay   time.Duration
	process func(m owd1.Message) time.Duration
	reply   func(m owd1.Message, ack owd1.Message) (owd1.Message, error)

	sent      []owd1.Message
	sendTimes []time.Duration
	pending   owd1.Message
}

func (s *fakeServer) SendMessage(m owd1.Message) error {
	s.sent = append(s.sent, m)
	s.sendTimes = append(s.sendTimes, s.clock.now.Sub(epoch))
	s.clock.advance(s.delay)
	s.pending = m
	return nil
}

func (s *fakeServer) ReceiveMessage() (owd1.Message, error) {
	t1 := s.clock.now.Add(s.offset).UnixNano()
	if s.process != nil {
		s.clock.advance(s.process(s.pending))
	}
	s.clock.advance(s.delay)
	ack := s.pending.Ack(t1)
	if s.reply != nil {
		return s.reply(s.pending, ack)
	}
	return ack, nil
}
