// Package spec contains constants for the owd1 protocol.
package spec

import "time"

const (
	// ServiceName is the service name for the Locate V2 API.
	ServiceName = "owd/owd1"

	// LocateURLKey is the key of the owd1 URL in the Locate V2 targets.
	LocateURLKey = "tcp:///owd/v1"

	// ResultV1 is the v1 /result endpoint exposed by the server.
	ResultV1 = "/owd/v1/result"

	// DefaultPort is the default TCP port of the probe server.
	DefaultPort = 5001

	// DefaultSyncRounds is the default number of SYNC round-trips used to
	// estimate the clock offset.
	DefaultSyncRounds = 20

	// DefaultSyncPacing is the delay between two SYNC rounds.
	DefaultSyncPacing = 5 * time.Millisecond

	// DefaultCount is the default number of probes per session.
	DefaultCount = 10

	// DefaultInterval is the default nominal interval between two probes.
	DefaultInterval = 100 * time.Millisecond

	// DefaultReplyTimeout is how long the client waits for an ack.
	DefaultReplyTimeout = 5 * time.Second

	// DefaultIdleTimeout is how long the server waits for the next message
	// before closing the connection.
	DefaultIdleTimeout = 1 * time.Minute

	// DefaultSessionCacheTTL is the default session cache TTL.
	DefaultSessionCacheTTL = 1 * time.Minute

	// MaxMessageSize is the maximum length of a single line, delimiter
	// excluded. Longer lines are discarded.
	MaxMessageSize = 1 << 20

	// Delimiter terminates every message on the wire.
	Delimiter = '\n'

	// PaddingByte is the filler used for probe padding.
	PaddingByte = 'A'
)
