package owd1

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/owd/pkg/owd1/model"
)

// OffsetSample returns the server-minus-client offset estimated by one
// round, attributing the server receive time t1 to the midpoint of the
// round trip between t0 and t2.
func OffsetSample(t0, t1, t2 int64) int64 {
	roundtrip := t2 - t0
	return t1 - (t0 + roundtrip/2)
}

// Median returns the median of samples without modifying them. For an even
// number of samples it returns the upper median. It returns zero for an
// empty slice.
func Median(samples []int64) int64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	return sorted[len(sorted)/2]
}

// expect checks that m is an ack of the given kind answering seq.
func expect(m Message, kind Kind, seq int) error {
	if m.Kind != kind {
		return fmt.Errorf("%w: got %s, want %s", ErrMalformedMessage, m.Kind, kind)
	}
	if m.Seq != seq {
		return fmt.Errorf("%w: got %d, want %d", ErrSequenceMismatch, m.Seq, seq)
	}
	return nil
}

// Estimator estimates the clock offset between the client and the server
// with a fixed number of SYNC round-trips.
type Estimator struct {
	messager Messager
	clock    Clock
	rounds   int
	pacing   time.Duration
}

// NewEstimator returns an Estimator running rounds round-trips over m,
// waiting pacing between two rounds.
func NewEstimator(m Messager, clock Clock, rounds int, pacing time.Duration) *Estimator {
	return &Estimator{
		messager: m,
		clock:    clock,
		rounds:   rounds,
		pacing:   pacing,
	}
}

// Run performs all the rounds and returns the median offset. Any failure
// aborts the estimation and is returned as a *SessionError.
func (e *Estimator) Run(ctx context.Context) (*model.SyncResult, error) {
	if e.rounds <= 0 {
		return nil, &SessionError{Phase: PhaseSync, Err: errors.New("no sync rounds configured")}
	}
	result := &model.SyncResult{
		Samples: make([]model.SyncSample, 0, e.rounds),
	}
	offsets := make([]int64, 0, e.rounds)
	for i := 0; i < e.rounds; i++ {
		if err := e.pace(ctx, i); err != nil {
			return nil, &SessionError{Phase: PhaseSync, Index: i, Completed: i, Err: err}
		}
		s, err := e.round(i)
		if err != nil {
			return nil, &SessionError{Phase: PhaseSync, Index: i, Completed: i, Err: err}
		}
		log.Debug("sync round", "round", i, "rtt", s.RoundTrip, "offset", s.Offset)
		result.Samples = append(result.Samples, s)
		offsets = append(offsets, s.Offset)
	}
	result.Offset = Median(offsets)
	return result, nil
}

func (e *Estimator) pace(ctx context.Context, i int) error {
	if i == 0 || e.pacing <= 0 {
		return ctx.Err()
	}
	return e.clock.SleepUntil(ctx, e.clock.Now().Add(e.pacing))
}

func (e *Estimator) round(i int) (model.SyncSample, error) {
	t0 := e.clock.Now().UnixNano()
	err := e.messager.SendMessage(Message{Kind: KindSync, Seq: i, Timestamp: t0})
	if err != nil {
		return model.SyncSample{}, err
	}
	reply, err := e.messager.ReceiveMessage()
	// t2 is taken before any validation to keep the round trip tight.
	t2 := e.clock.Now().UnixNano()
	if err != nil {
		return model.SyncSample{}, err
	}
	if err := expect(reply, KindSyncAck, i); err != nil {
		return model.SyncSample{}, err
	}
	return model.SyncSample{
		Round:     i,
		T0:        t0,
		T1:        reply.Timestamp,
		T2:        t2,
		RoundTrip: t2 - t0,
		Offset:    OffsetSample(t0, reply.Timestamp, t2),
	}, nil
}
