package model

import (
	"time"

	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/owd/pkg/version"
	"github.com/m-lab/tcp-info/tcp"
)

// ByteCounters contains application-level byte counters.
type ByteCounters struct {
	// BytesSent is the number of bytes sent.
	BytesSent int64
	// BytesReceived is the number of bytes received.
	BytesReceived int64
}

// TCPInfo is a TCP_INFO snapshot taken when the session ended.
type TCPInfo struct {
	tcp.LinuxTCPInfo
	// ElapsedTime is the time since the connection was accepted
	// (microseconds).
	ElapsedTime int64
}

// ArchivalData is the archival data format for owd1 server sessions.
type ArchivalData struct {
	// GitShortCommit is the Git commit (short form) of the running server code.
	GitShortCommit string
	// Version is the symbolic version (if any) of the running server code.
	Version string

	// UUID is the unique identifier of the TCP connection.
	UUID string

	// Client is the client's ip:port pair.
	Client string
	// Server is the server's ip:port pair.
	Server string

	// StartTime is the time the connection was accepted.
	StartTime time.Time
	// EndTime is the time the connection was closed.
	EndTime time.Time
	// CloseReason says why the session ended.
	CloseReason string

	// SyncRequests is the number of SYNC messages answered.
	SyncRequests int
	// Probes is the number of probes answered.
	Probes int
	// Malformed is the number of discarded lines.
	Malformed int

	// Application contains the application-level byte counters.
	Application ByteCounters
	// TCPInfo is the last TCP_INFO snapshot. It is zero where TCP_INFO is
	// not available.
	TCPInfo TCPInfo
}

// NewArchivalData returns an ArchivalData for the connection identified by
// uuid, stamped with the running code's version.
func NewArchivalData(uuid string, start time.Time) *ArchivalData {
	return &ArchivalData{
		GitShortCommit: prometheusx.GitShortCommit,
		Version:        version.Version,
		UUID:           uuid,
		StartTime:      start,
	}
}

// ServerSummary is the server-side summary of a session, returned by the
// result endpoint.
type ServerSummary struct {
	// UUID is the unique identifier of the TCP connection.
	UUID string
	// StartTime is the time the connection was accepted.
	StartTime time.Time
	// EndTime is the time the connection was closed.
	EndTime time.Time
	// SyncRequests is the number of SYNC messages answered.
	SyncRequests int
	// Probes is the number of probes answered.
	Probes int
	// Malformed is the number of discarded lines.
	Malformed int
}

// Summarize converts this ArchivalData to a ServerSummary.
func (a *ArchivalData) Summarize() *ServerSummary {
	return &ServerSummary{
		UUID:         a.UUID,
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		SyncRequests: a.SyncRequests,
		Probes:       a.Probes,
		Malformed:    a.Malformed,
	}
}
