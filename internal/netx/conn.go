package netx

import (
	"net"
	"os"
	"sync/atomic"
	"time"

	guuid "github.com/google/uuid"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/tcp-info/tcp"
	"github.com/m-lab/uuid"
)

// ConnInfo provides operations on a net.Conn's underlying file descriptor.
type ConnInfo interface {
	ByteCounters() (uint64, uint64)
	Info() (tcp.LinuxTCPInfo, error)
	AcceptTime() time.Time
	UUID() string
}

// ToConnInfo returns the ConnInfo of netConn, if it has one.
func ToConnInfo(netConn net.Conn) (ConnInfo, bool) {
	ci, ok := netConn.(ConnInfo)
	return ci, ok
}

// Conn is an extended net.Conn that stores its accept time, its UUID, a copy
// of the underlying socket's file descriptor, and counters for read/written
// bytes.
type Conn struct {
	net.Conn

	fp           *os.File
	uuid         string
	acceptTime   time.Time
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// FromTCPConn enables TCP_NODELAY on tcpConn and wraps it. The current time
// is used as the accept time.
func FromTCPConn(tcpConn *net.TCPConn) (*Conn, error) {
	if err := tcpConn.SetNoDelay(true); err != nil {
		tcpConn.Close()
		return nil, err
	}
	return fromTCPConn(tcpConn, time.Now())
}

// Read reads from the underlying net.Conn and updates the read bytes counter.
func (c *Conn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.bytesRead.Add(uint64(n))
	return n, err
}

// Write writes to the underlying net.Conn and updates the written bytes counter.
func (c *Conn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	c.bytesWritten.Add(uint64(n))
	return n, err
}

// ByteCounters returns the read and written byte counters, in this order.
func (c *Conn) ByteCounters() (uint64, uint64) {
	return c.bytesRead.Load(), c.bytesWritten.Load()
}

// Close closes the underlying net.Conn and the duplicate file descriptor.
func (c *Conn) Close() error {
	return c.close()
}

// Info returns the TCPInfo struct associated with the underlying socket. It
// returns tcpinfox.ErrNoSupport where TCP_INFO is not available.
func (c *Conn) Info() (tcp.LinuxTCPInfo, error) {
	return c.info()
}

// AcceptTime returns this connection's accept time.
func (c *Conn) AcceptTime() time.Time {
	return c.acceptTime
}

// UUID returns this connection's UUID.
func (c *Conn) UUID() string {
	return c.uuid
}

// newUUID returns an M-Lab UUID for fp. On platforms not supporting
// SO_COOKIE, it returns a google/uuid as a fallback. If the fallback fails,
// it panics.
func newUUID(fp *os.File) string {
	if fp != nil {
		if id, err := uuid.FromFile(fp); err == nil {
			return id
		}
	}
	gid, err := guuid.NewUUID()
	// NOTE: this could only fail when guuid.GetTime() fails.
	rtx.Must(err, "unable to fallback to uuid")
	return gid.String()
}
