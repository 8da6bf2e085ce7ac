package owd1_test

import (
	"errors"
	"testing"

	"github.com/m-lab/owd/pkg/owd1"
)

func TestMessage_String(t *testing.T) {
	tests := []struct {
		name string
		m    owd1.Message
		want string
	}{
		{
			name: "sync",
			m:    owd1.Message{Kind: owd1.KindSync, Seq: 3, Timestamp: 1234},
			want: "SYNC,3,t0=1234",
		},
		{
			name: "sync-ack",
			m:    owd1.Message{Kind: owd1.KindSyncAck, Seq: 3, Timestamp: -5},
			want: "SYNC_ACK,3,t1=-5",
		},
		{
			name: "probe-with-padding",
			m:    owd1.Message{Kind: owd1.KindProbe, Seq: 7, Timestamp: 42, Padding: "AAAA"},
			want: "BOOP,7,time_sent=42,AAAA",
		},
		{
			name: "probe-empty-padding",
			m:    owd1.Message{Kind: owd1.KindProbe, Seq: 0, Timestamp: 42},
			want: "BOOP,0,time_sent=42,",
		},
		{
			name: "probe-ack",
			m:    owd1.Message{Kind: owd1.KindProbeAck, Seq: 7, Timestamp: 99},
			want: "ACK,7,t1=99",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.String(); got != tt.want {
				t.Errorf("Message.String() = %q, want %q", got, tt.want)
			}
			got, err := owd1.Parse(tt.want)
			if err != nil {
				t.Fatalf("Parse() unexpected error = %v", err)
			}
			if got != tt.m {
				t.Errorf("Parse() = %+v, want %+v", got, tt.m)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    owd1.Message
		wantErr bool
	}{
		{
			name: "padding-with-commas",
			line: "BOOP,1,time_sent=10,A,B,C",
			want: owd1.Message{Kind: owd1.KindProbe, Seq: 1, Timestamp: 10, Padding: "A,B,C"},
		},
		{
			name: "probe-without-padding-field",
			line: "BOOP,1,time_sent=10",
			want: owd1.Message{Kind: owd1.KindProbe, Seq: 1, Timestamp: 10},
		},
		{name: "empty", line: "", wantErr: true},
		{name: "unknown-tag", line: "HELLO,1,t0=1", wantErr: true},
		{name: "tag-only", line: "SYNC", wantErr: true},
		{name: "missing-timestamp", line: "SYNC,1", wantErr: true},
		{name: "extra-field", line: "SYNC,1,t0=1,x", wantErr: true},
		{name: "negative-seq", line: "SYNC,-1,t0=1", wantErr: true},
		{name: "non-numeric-seq", line: "ACK,one,t1=1", wantErr: true},
		{name: "wrong-key", line: "SYNC,1,t1=1", wantErr: true},
		{name: "probe-wrong-key", line: "BOOP,1,t0=1,", wantErr: true},
		{name: "non-numeric-timestamp", line: "SYNC_ACK,1,t1=abc", wantErr: true},
		{name: "missing-equals", line: "ACK,1,t1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := owd1.Parse(tt.line)
			if tt.wantErr {
				if !errors.Is(err, owd1.ErrMalformedMessage) {
					t.Fatalf("Parse(%q) error = %v, want ErrMalformedMessage", tt.line, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error = %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestMessage_Ack(t *testing.T) {
	sync := owd1.Message{Kind: owd1.KindSync, Seq: 4, Timestamp: 1}
	if ack := sync.Ack(10); ack.Kind != owd1.KindSyncAck || ack.Seq != 4 || ack.Timestamp != 10 {
		t.Errorf("Ack() = %+v", ack)
	}
	probe := owd1.Message{Kind: owd1.KindProbe, Seq: 9, Timestamp: 1, Padding: "AA"}
	if ack := probe.Ack(20); ack.Kind != owd1.KindProbeAck || ack.Seq != 9 || ack.Padding != "" {
		t.Errorf("Ack() = %+v", ack)
	}
	if !owd1.KindProbe.IsRequest() || owd1.KindProbeAck.IsRequest() {
		t.Error("IsRequest() returned wrong value")
	}
}
