package model

// Sample is a single one-way delay measurement. All values are nanoseconds
// except for Seq and PayloadBytes.
type Sample struct {
	// Seq is the probe's sequence number.
	Seq int
	// TimeSent is the client's send timestamp (t0).
	TimeSent int64
	// TimeReceived is the server's receive timestamp (t1), in the server's
	// clock frame.
	TimeReceived int64
	// OWD is the one-way delay in the client's clock frame.
	OWD int64
	// PayloadBytes is the size of the encoded probe, delimiter excluded.
	PayloadBytes int
}

// SyncSample is the outcome of a single clock synchronization round.
type SyncSample struct {
	// Round is the round index.
	Round int
	// T0 is the client time right before sending the request.
	T0 int64
	// T1 is the server receive time.
	T1 int64
	// T2 is the client time right after receiving the ack.
	T2 int64
	// RoundTrip is T2 - T0.
	RoundTrip int64
	// Offset is the server-minus-client offset estimated by this round.
	Offset int64
}

// SyncResult is the outcome of the clock synchronization phase.
type SyncResult struct {
	// Offset is the median of the per-round offsets, in nanoseconds.
	Offset int64
	// Samples contains one entry per completed round.
	Samples []SyncSample
}
