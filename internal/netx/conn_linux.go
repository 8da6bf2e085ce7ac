package netx

import (
	"net"
	"time"

	"github.com/m-lab/ndt-server/tcpinfox"
	"github.com/m-lab/tcp-info/tcp"
)

func fromTCPConn(tcpConn *net.TCPConn, acceptTime time.Time) (*Conn, error) {
	// Note: File() duplicates the underlying file descriptor. This duplicate
	// must be independently closed.
	fp, err := tcpConn.File()
	if err != nil {
		tcpConn.Close()
		return nil, err
	}
	return &Conn{
		Conn:       tcpConn,
		fp:         fp,
		uuid:       newUUID(fp),
		acceptTime: acceptTime,
	}, nil
}

func (c *Conn) info() (tcp.LinuxTCPInfo, error) {
	tcpInfo, err := tcpinfox.GetTCPInfo(c.fp)
	if err != nil {
		return tcp.LinuxTCPInfo{}, err
	}
	return *tcpInfo, nil
}

func (c *Conn) close() error {
	c.fp.Close()
	return c.Conn.Close()
}
