package owd1

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/owd/pkg/owd1/model"
	"github.com/m-lab/owd/pkg/owd1/spec"
)

// OWD returns the one-way delay of a probe sent at t0 (client clock) and
// received at t1 (server clock), given the server-minus-client offset.
func OWD(offset, t0, t1 int64) int64 {
	return (t1 - offset) - t0
}

// Padding returns n filler bytes, or an empty string when n <= 0.
func Padding(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(string(rune(spec.PaddingByte)), n)
}

// Prober sends a fixed number of probes at a fixed nominal interval and
// computes one Sample per probe.
type Prober struct {
	messager Messager
	clock    Clock
	offset   int64
	count    int
	interval time.Duration
	padding  string
}

// NewProber returns a Prober converting server timestamps with offset.
func NewProber(m Messager, clock Clock, offset int64, count int,
	interval time.Duration, payloadSize int) *Prober {
	return &Prober{
		messager: m,
		clock:    clock,
		offset:   offset,
		count:    count,
		interval: interval,
		padding:  Padding(payloadSize),
	}
}

// Run sends the probes and calls emit once per acknowledged probe, in
// sequence order. Sends are scheduled at start + seq*interval: the schedule
// advances by a fixed step, so per-iteration jitter does not accumulate. A
// late iteration sends immediately. Any failure aborts probing and is
// returned as a *SessionError.
func (p *Prober) Run(ctx context.Context, emit func(model.Sample)) error {
	next := p.clock.Now()
	for seq := 0; seq < p.count; seq++ {
		if err := p.wait(ctx, next); err != nil {
			return &SessionError{Phase: PhaseProbe, Index: seq, Completed: seq, Err: err}
		}
		s, err := p.probe(seq)
		if err != nil {
			return &SessionError{Phase: PhaseProbe, Index: seq, Completed: seq, Err: err}
		}
		log.Debug("probe", "seq", seq, "owd", s.OWD)
		emit(s)
		next = next.Add(p.interval)
	}
	return nil
}

func (p *Prober) wait(ctx context.Context, next time.Time) error {
	if p.clock.Now().Before(next) {
		return p.clock.SleepUntil(ctx, next)
	}
	return ctx.Err()
}

func (p *Prober) probe(seq int) (model.Sample, error) {
	t0 := p.clock.Now().UnixNano()
	probe := Message{Kind: KindProbe, Seq: seq, Timestamp: t0, Padding: p.padding}
	if err := p.messager.SendMessage(probe); err != nil {
		return model.Sample{}, err
	}
	reply, err := p.messager.ReceiveMessage()
	if err != nil {
		return model.Sample{}, err
	}
	if err := expect(reply, KindProbeAck, seq); err != nil {
		return model.Sample{}, err
	}
	return model.Sample{
		Seq:          seq,
		TimeSent:     t0,
		TimeReceived: reply.Timestamp,
		OWD:          OWD(p.offset, t0, reply.Timestamp),
		PayloadBytes: len(probe.String()),
	}, nil
}
