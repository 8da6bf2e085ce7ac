package netx_test

import (
	"context"
	"io"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/m-lab/go/rtx"
	"github.com/m-lab/owd/internal/netx"
)

func dialAsync(t *testing.T, addr string) {
	go func() {
		// Because the socket already exists, Dial will block until Accept is
		// called below.
		c, err := net.Dial("tcp", addr)
		if err != nil {
			t.Errorf("unexpected failure to dial local conn: %v", err)
			return
		}
		// Wait until primary test routine closes conn and returns.
		buf := make([]byte, 1)
		c.Read(buf)
		c.Close()
	}()
}

func TestListener_Accept(t *testing.T) {
	l, err := netx.Listen("127.0.0.1:0")
	rtx.Must(err, "failed to create listener")
	defer l.Close()
	dialAsync(t, l.Addr().String())

	got, err := l.Accept()
	if err != nil {
		t.Fatalf("Listener.Accept() unexpected error = %v", err)
	}
	defer got.Close()

	c, ok := netx.ToConnInfo(got)
	if !ok {
		t.Fatalf("Listener.Accept() wrong Conn type = %T, want netx.Conn", got)
	}
	// Check that the AcceptTime is in the past minute (i.e. that it has been
	// initialized).
	at := c.AcceptTime()
	if time.Since(at) > 1*time.Minute {
		t.Fatalf("invalid accept time")
	}
	if c.UUID() == "" {
		t.Errorf("UUID() returned an empty string")
	}

	// Accept error due to closed listener.
	l2, err := netx.Listen("127.0.0.1:0")
	rtx.Must(err, "failed to create listener")
	l2.Close()
	_, err = l2.Accept()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestListen_InvalidAddress(t *testing.T) {
	if _, err := netx.Listen("not-an-address:port"); err == nil {
		t.Fatalf("Listen() expected error, got nil")
	}
}

func TestConn_ByteCountersAndInfo(t *testing.T) {
	l, err := netx.Listen("127.0.0.1:0")
	rtx.Must(err, "failed to create listener")
	defer l.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			t.Errorf("Accept() unexpected error = %v", err)
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err := netx.DialContext(context.Background(), l.Addr().String())
	rtx.Must(err, "failed to dial")
	defer client.Close()
	server, ok := <-accepted
	if !ok {
		t.Fatal("no connection accepted")
	}
	defer server.Close()

	_, err = client.Write([]byte("hello\n"))
	rtx.Must(err, "failed to write")
	buf := make([]byte, 6)
	_, err = io.ReadFull(server, buf)
	rtx.Must(err, "failed to read")

	read, written := client.ByteCounters()
	if read != 0 || written != 6 {
		t.Errorf("client ByteCounters() = %d, %d, want 0, 6", read, written)
	}
	sc, _ := netx.ToConnInfo(server)
	read, written = sc.ByteCounters()
	if read != 6 || written != 0 {
		t.Errorf("server ByteCounters() = %d, %d, want 6, 0", read, written)
	}
	if client.UUID() == sc.UUID() {
		t.Errorf("client and server UUIDs should differ: %s", client.UUID())
	}

	_, err = sc.Info()
	if runtime.GOOS == "linux" && err != nil {
		t.Errorf("Info() unexpected error = %v", err)
	}
}

func TestDialContext_Refused(t *testing.T) {
	l, err := netx.Listen("127.0.0.1:0")
	rtx.Must(err, "failed to create listener")
	addr := l.Addr().String()
	l.Close()

	if _, err := netx.DialContext(context.Background(), addr); err == nil {
		t.Fatalf("DialContext() expected error, got nil")
	}
}

func TestToConnInfo(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	if _, ok := netx.ToConnInfo(client); ok {
		t.Errorf("ToConnInfo() returned ok for a net.Pipe conn")
	}
}
