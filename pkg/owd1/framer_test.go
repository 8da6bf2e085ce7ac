package owd1_test

import (
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/m-lab/owd/pkg/owd1"
	"github.com/m-lab/owd/pkg/owd1/spec"
	"go.uber.org/goleak"
)

// writeChunks writes every chunk with its own Write call and closes the
// conn when done.
func writeChunks(c net.Conn, chunks ...string) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer c.Close()
		for _, chunk := range chunks {
			if _, err := c.Write([]byte(chunk)); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	return done
}

func TestFramer_Receive(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{
			name:   "one-per-write",
			chunks: []string{"SYNC,0,t0=1\n", "SYNC,1,t0=2\n"},
			want:   []string{"SYNC,0,t0=1", "SYNC,1,t0=2"},
		},
		{
			name:   "many-per-write",
			chunks: []string{"ACK,0,t1=1\nACK,1,t1=2\nACK,2,t1=3\n"},
			want:   []string{"ACK,0,t1=1", "ACK,1,t1=2", "ACK,2,t1=3"},
		},
		{
			name:   "split-in-two",
			chunks: []string{"BOOP,0,time_se", "nt=5,AAA\n"},
			want:   []string{"BOOP,0,time_sent=5,AAA"},
		},
		{
			name:   "split-in-three",
			chunks: []string{"SYNC,0,t0=1", "23\nSYNC_", "ACK,0,t1=5\n"},
			want:   []string{"SYNC,0,t0=123", "SYNC_ACK,0,t1=5"},
		},
		{
			name:   "blank-lines-and-whitespace",
			chunks: []string{"\n\r\n  \n", " ACK,3,t1=9 \r\n", "\n"},
			want:   []string{"ACK,3,t1=9"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer server.Close()
			done := writeChunks(client, tt.chunks...)

			f := owd1.NewFramer(server)
			for _, want := range tt.want {
				got, err := f.Receive()
				if err != nil {
					t.Fatalf("Receive() unexpected error = %v", err)
				}
				if got != want {
					t.Errorf("Receive() = %q, want %q", got, want)
				}
			}
			if _, err := f.Receive(); !errors.Is(err, owd1.ErrConnectionClosed) {
				t.Errorf("Receive() after close error = %v, want ErrConnectionClosed", err)
			}
			if err := <-done; err != nil {
				t.Errorf("write failed: %v", err)
			}
		})
	}
}

func TestFramer_ReceivePartialThenEOF(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	writeChunks(client, "SYNC,0,t0=")

	f := owd1.NewFramer(server)
	if _, err := f.Receive(); !errors.Is(err, owd1.ErrConnectionClosed) {
		t.Fatalf("Receive() error = %v, want ErrConnectionClosed", err)
	}
}

func TestFramer_Timeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	f := owd1.NewFramer(server)
	f.SetTimeout(20 * time.Millisecond)
	start := time.Now()
	_, err := f.Receive()
	if !errors.Is(err, owd1.ErrTimeout) {
		t.Fatalf("Receive() error = %v, want ErrTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("Receive() did not honor the timeout")
	}
}

func TestFramer_TooLong(t *testing.T) {
	defer goleak.VerifyNone(t)

	client, server := net.Pipe()
	defer server.Close()
	long := strings.Repeat("A", spec.MaxMessageSize+10)
	done := writeChunks(client, "BOOP,0,time_sent=1,"+long+"\n", "ACK,1,t1=2\n")

	f := owd1.NewFramer(server)
	_, err := f.ReceiveMessage()
	if !errors.Is(err, owd1.ErrMalformedMessage) {
		t.Fatalf("ReceiveMessage() error = %v, want ErrMalformedMessage", err)
	}
	m, err := f.ReceiveMessage()
	if err != nil {
		t.Fatalf("ReceiveMessage() after long line error = %v", err)
	}
	if m.Kind != owd1.KindProbeAck || m.Seq != 1 {
		t.Errorf("ReceiveMessage() = %+v", m)
	}
	f.Receive()
	<-done
}

func TestFramer_SendMessage(t *testing.T) {
	defer goleak.VerifyNone(t)

	client, server := net.Pipe()
	sender := owd1.NewFramer(client)
	receiver := owd1.NewFramer(server)

	msgs := []owd1.Message{
		{Kind: owd1.KindSync, Seq: 0, Timestamp: 1},
		{Kind: owd1.KindSyncAck, Seq: 0, Timestamp: 2},
		{Kind: owd1.KindProbe, Seq: 1, Timestamp: 3, Padding: "AAAAAAAA"},
		{Kind: owd1.KindProbeAck, Seq: 1, Timestamp: 4},
	}
	done := make(chan error, 1)
	go func() {
		defer client.Close()
		for _, m := range msgs {
			if err := sender.SendMessage(m); err != nil {
				done <- err
				return
			}
		}
		done <- sender.Send("not a message")
	}()

	for _, want := range msgs {
		got, err := receiver.ReceiveMessage()
		if err != nil {
			t.Fatalf("ReceiveMessage() unexpected error = %v", err)
		}
		if got != want {
			t.Errorf("ReceiveMessage() = %+v, want %+v", got, want)
		}
	}
	if _, err := receiver.ReceiveMessage(); !errors.Is(err, owd1.ErrMalformedMessage) {
		t.Errorf("ReceiveMessage() error = %v, want ErrMalformedMessage", err)
	}
	if err := <-done; err != nil {
		t.Errorf("SendMessage() error = %v", err)
	}
	server.Close()
}

func TestFramer_SendAfterClose(t *testing.T) {
	client, server := net.Pipe()
	server.Close()
	f := owd1.NewFramer(client)
	err := f.SendMessage(owd1.Message{Kind: owd1.KindSync})
	if !errors.Is(err, owd1.ErrConnectionClosed) {
		t.Errorf("SendMessage() error = %v, want ErrConnectionClosed", err)
	}
	client.Close()
}
