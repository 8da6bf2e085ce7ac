// Package netx wraps TCP connections to expose what an owd1 session records
// about them: accept time, byte counters, UUID and TCP_INFO.
package netx

import (
	"context"
	"fmt"
	"net"
)

// DialContext connects to addr over TCP and returns the connection as a
// *Conn with TCP_NODELAY enabled.
func DialContext(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	tc, ok := c.(*net.TCPConn)
	if !ok {
		c.Close()
		return nil, fmt.Errorf("unsupported connection type: %T", c)
	}
	return FromTCPConn(tc)
}
