package owd1

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the type of an owd1 message.
type Kind int

const (
	// KindUnknown is the zero value of Kind.
	KindUnknown Kind = iota
	// KindSync is a clock synchronization request.
	KindSync
	// KindSyncAck answers a KindSync with the server receive time.
	KindSyncAck
	// KindProbe is a timestamped probe.
	KindProbe
	// KindProbeAck answers a KindProbe with the server receive time.
	KindProbeAck
)

// Wire tags.
const (
	tagSync     = "SYNC"
	tagSyncAck  = "SYNC_ACK"
	tagProbe    = "BOOP"
	tagProbeAck = "ACK"
)

func (k Kind) String() string {
	switch k {
	case KindSync:
		return tagSync
	case KindSyncAck:
		return tagSyncAck
	case KindProbe:
		return tagProbe
	case KindProbeAck:
		return tagProbeAck
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsRequest reports whether messages of this kind are sent by the client and
// must be answered by the server.
func (k Kind) IsRequest() bool {
	return k == KindSync || k == KindProbe
}

// timestampKey returns the name of the timestamp field for this kind.
func (k Kind) timestampKey() string {
	switch k {
	case KindSync:
		return "t0"
	case KindProbe:
		return "time_sent"
	default:
		return "t1"
	}
}

func kindFromTag(tag string) Kind {
	switch tag {
	case tagSync:
		return KindSync
	case tagSyncAck:
		return KindSyncAck
	case tagProbe:
		return KindProbe
	case tagProbeAck:
		return KindProbeAck
	default:
		return KindUnknown
	}
}

// Message is a single owd1 message. Seq is the round index for sync messages
// and the sequence number for probes. Timestamp is in nanoseconds since the
// Unix epoch according to the sender's clock (t0) or to the server's clock
// (t1, for acks). Padding is only meaningful for probes.
type Message struct {
	Kind      Kind
	Seq       int
	Timestamp int64
	Padding   string
}

// Ack returns the ack answering m, carrying the server receive time t1.
func (m Message) Ack(t1 int64) Message {
	kind := KindSyncAck
	if m.Kind == KindProbe {
		kind = KindProbeAck
	}
	return Message{
		Kind:      kind,
		Seq:       m.Seq,
		Timestamp: t1,
	}
}

// Append appends the wire encoding of m, without delimiter, to b.
func (m Message) Append(b []byte) []byte {
	b = append(b, m.Kind.String()...)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(m.Seq), 10)
	b = append(b, ',')
	b = append(b, m.Kind.timestampKey()...)
	b = append(b, '=')
	b = strconv.AppendInt(b, m.Timestamp, 10)
	if m.Kind == KindProbe {
		b = append(b, ',')
		b = append(b, m.Padding...)
	}
	return b
}

// String returns the wire encoding of m without delimiter.
func (m Message) String() string {
	return string(m.Append(nil))
}

func malformed(line, reason string) error {
	return fmt.Errorf("%w: %s: %q", ErrMalformedMessage, reason, line)
}

// Parse decodes a single line (without delimiter) into a Message. It
// validates the tag, the number of fields and every numeric field, and
// returns an error wrapping ErrMalformedMessage on failure.
func Parse(line string) (Message, error) {
	tag, rest, ok := strings.Cut(line, ",")
	if !ok {
		return Message{}, malformed(line, "missing fields")
	}
	kind := kindFromTag(tag)
	if kind == KindUnknown {
		return Message{}, malformed(line, "unknown tag")
	}

	var fields []string
	if kind == KindProbe {
		// Padding consumes the remainder of the line, commas included.
		fields = strings.SplitN(rest, ",", 3)
		if len(fields) < 2 {
			return Message{}, malformed(line, "wrong field count")
		}
	} else {
		fields = strings.Split(rest, ",")
		if len(fields) != 2 {
			return Message{}, malformed(line, "wrong field count")
		}
	}

	seq, err := strconv.ParseUint(fields[0], 10, strconv.IntSize-1)
	if err != nil {
		return Message{}, malformed(line, "invalid sequence number")
	}

	key, value, ok := strings.Cut(fields[1], "=")
	if !ok || key != kind.timestampKey() {
		return Message{}, malformed(line, "missing "+kind.timestampKey())
	}
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return Message{}, malformed(line, "invalid timestamp")
	}

	m := Message{
		Kind:      kind,
		Seq:       int(seq),
		Timestamp: ts,
	}
	if len(fields) == 3 {
		m.Padding = fields[2]
	}
	return m, nil
}
