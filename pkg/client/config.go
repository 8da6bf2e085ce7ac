package client

import (
	"time"

	"github.com/m-lab/owd/pkg/owd1"
)

// Config is the configuration for a Client. Zero values are replaced with
// the defaults in pkg/owd1/spec, except for PayloadSize.
type Config struct {
	// Server is the host (or host:port) to connect to. If empty, the server is
	// obtained by querying the configured Locator.
	Server string

	// Port is the server's TCP port, used when Server has no port.
	Port int

	// SyncRounds is the number of round-trips used to estimate the clock
	// offset.
	SyncRounds int

	// SyncPacing is the delay between two sync rounds. A negative value
	// disables pacing.
	SyncPacing time.Duration

	// Count is the number of probes to send.
	Count int

	// Interval is the nominal interval between two probes.
	Interval time.Duration

	// PayloadSize is the number of padding bytes added to each probe.
	PayloadSize int

	// Timeout is how long the client waits for each ack.
	Timeout time.Duration

	// MeasurementID identifies this measurement in the results. If empty, a
	// random UUID is used.
	MeasurementID string

	// Emitter is the interface used to emit the results of the test. It can be overridden
	// to provide a custom output.
	Emitter Emitter

	// Clock is the client's time source. If nil, owd1.SystemClock is used.
	Clock owd1.Clock
}
