//go:build !linux
// +build !linux

package netx

import (
	"net"
	"time"

	"github.com/m-lab/ndt-server/tcpinfox"
	"github.com/m-lab/tcp-info/tcp"
)

func fromTCPConn(tcpConn *net.TCPConn, acceptTime time.Time) (*Conn, error) {
	// On non-Linux systems TCPInfo isn't supported, the file pointer is not
	// needed.
	return &Conn{
		Conn:       tcpConn,
		uuid:       newUUID(nil),
		acceptTime: acceptTime,
	}, nil
}

func (c *Conn) info() (tcp.LinuxTCPInfo, error) {
	return tcp.LinuxTCPInfo{}, tcpinfox.ErrNoSupport
}

func (c *Conn) close() error {
	return c.Conn.Close()
}
