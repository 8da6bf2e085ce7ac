// Package owd1 implements the owd1 protocol: line framing over a stream
// connection, the message codec, the clock offset estimator and the paced
// one-way-delay prober.
package owd1

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/m-lab/owd/pkg/owd1/spec"
)

const readBufferSize = 4096

// Messager sends and receives owd1 messages. Implementations are not safe
// for concurrent use: a session alternates strictly between sending and
// receiving.
type Messager interface {
	SendMessage(m Message) error
	ReceiveMessage() (Message, error)
}

// Framer delimits a stream connection into lines. Bytes read past the end of
// a line stay buffered for the next call to Receive.
type Framer struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
	wbuf    []byte
}

// NewFramer returns a Framer reading from and writing to conn.
func NewFramer(conn net.Conn) *Framer {
	return &Framer{
		conn: conn,
		r:    bufio.NewReaderSize(conn, readBufferSize),
	}
}

// SetTimeout sets the maximum time Send and Receive may block. Zero disables
// the timeout.
func (f *Framer) SetTimeout(d time.Duration) {
	f.timeout = d
}

// Send writes line followed by the delimiter with a single write.
func (f *Framer) Send(line string) error {
	f.wbuf = append(append(f.wbuf[:0], line...), spec.Delimiter)
	return f.write(f.wbuf)
}

// SendMessage encodes m and sends it.
func (f *Framer) SendMessage(m Message) error {
	f.wbuf = append(m.Append(f.wbuf[:0]), spec.Delimiter)
	return f.write(f.wbuf)
}

func (f *Framer) write(b []byte) error {
	if f.timeout > 0 {
		if err := f.conn.SetWriteDeadline(time.Now().Add(f.timeout)); err != nil {
			return mapError(err)
		}
	}
	_, err := f.conn.Write(b)
	return mapError(err)
}

// Receive blocks until a complete non-blank line is available and returns
// it without the delimiter and surrounding whitespace.
func (f *Framer) Receive() (string, error) {
	if f.timeout > 0 {
		if err := f.conn.SetReadDeadline(time.Now().Add(f.timeout)); err != nil {
			return "", mapError(err)
		}
	}
	for {
		line, err := f.readLine()
		if err != nil {
			return "", err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return string(line), nil
	}
}

// ReceiveMessage receives one line and decodes it. Lines that cannot be
// decoded are consumed and reported with an error wrapping
// ErrMalformedMessage, so the caller may keep reading.
func (f *Framer) ReceiveMessage() (Message, error) {
	line, err := f.Receive()
	if err != nil {
		return Message{}, err
	}
	return Parse(line)
}

// readLine reads up to and including the next delimiter and returns the line
// without it. Lines longer than spec.MaxMessageSize are read to the end and
// discarded.
func (f *Framer) readLine() ([]byte, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := f.r.ReadSlice(spec.Delimiter)
		if !tooLong {
			if len(line)+len(chunk) > spec.MaxMessageSize+1 {
				tooLong = true
				line = nil
			} else {
				// ReadSlice's result is only valid until the next read.
				line = append(line, chunk...)
			}
		}
		switch {
		case err == nil:
			if tooLong {
				return nil, fmt.Errorf("%w: line longer than %d bytes",
					ErrMalformedMessage, spec.MaxMessageSize)
			}
			return line[:len(line)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, mapError(err)
		}
	}
}

// mapError translates connection errors into ErrConnectionClosed and
// ErrTimeout, keeping the original error in the chain.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE), errors.Is(err, io.ErrClosedPipe):
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return err
	}
}
