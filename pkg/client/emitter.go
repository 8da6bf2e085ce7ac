package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gocarina/gocsv"
	"github.com/m-lab/owd/pkg/owd1/model"
)

// Emitter is an interface for emitting results.
type Emitter interface {
	// OnStart is called before connecting to the server.
	OnStart(server string)
	// OnConnect is called when the TCP connection is established.
	OnConnect(server string)
	// OnSync is called when the clock offset has been estimated.
	OnSync(r model.SyncResult)
	// OnSample is called for every acknowledged probe.
	OnSample(s model.Sample)
	// OnResult is called when the session ends, successfully or not.
	OnResult(r Result)
	// OnError is called on errors.
	OnError(err error)
	// OnDebug is called to print debug information.
	OnDebug(msg string)
}

// HumanReadable prints human-readable output to stdout.
// It can be configured to include debug output, too.
type HumanReadable struct {
	Debug bool
}

// OnStart is called before connecting and prints the server address.
func (HumanReadable) OnStart(server string) {
	fmt.Printf("Starting owd1 session (server: %s)\n", server)
}

// OnConnect is called when the connection to the server is established.
func (HumanReadable) OnConnect(server string) {
	fmt.Printf("Connected to %s\n", server)
}

// OnSync prints the estimated offset.
func (HumanReadable) OnSync(r model.SyncResult) {
	fmt.Printf("Sync done: offset %.3fms over %d rounds\n",
		float64(r.Offset)/1e6, len(r.Samples))
}

// OnSample prints one line per probe.
func (HumanReadable) OnSample(s model.Sample) {
	fmt.Printf("seq=%d owd=%.3fms payload=%d bytes\n",
		s.Seq, float64(s.OWD)/1e6, s.PayloadBytes)
}

// OnResult prints a summary of the session.
func (HumanReadable) OnResult(r Result) {
	fmt.Println()
	fmt.Printf("Test results (%s):\n", r.Server)
	fmt.Printf("  probes: %d, duration: %.2fs\n",
		len(r.Samples), r.EndTime.Sub(r.StartTime).Seconds())
	if len(r.Samples) == 0 {
		return
	}
	lo, hi, sum := r.Samples[0].OWD, r.Samples[0].OWD, int64(0)
	for _, s := range r.Samples {
		lo = min(lo, s.OWD)
		hi = max(hi, s.OWD)
		sum += s.OWD
	}
	fmt.Printf("  owd min/avg/max: %.3f/%.3f/%.3f ms\n",
		float64(lo)/1e6, float64(sum)/float64(len(r.Samples))/1e6, float64(hi)/1e6)
}

// OnError is called on errors.
func (HumanReadable) OnError(err error) {
	fmt.Println(err)
}

// OnDebug is called to print debug information.
func (e HumanReadable) OnDebug(msg string) {
	if e.Debug {
		fmt.Printf("DEBUG: %s\n", msg)
	}
}

// jsonEvent is a single line of JSONEmitter output.
type jsonEvent struct {
	Type   string
	Time   time.Time
	Server string            `json:",omitempty"`
	Sync   *model.SyncResult `json:",omitempty"`
	Sample *model.Sample     `json:",omitempty"`
	Result *Result           `json:",omitempty"`
	Error  string            `json:",omitempty"`
}

// JSONEmitter writes one JSON object per event to a writer.
type JSONEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONEmitter returns a JSONEmitter writing to w.
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{enc: json.NewEncoder(w)}
}

func (e *JSONEmitter) emit(ev jsonEvent) {
	ev.Time = time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(ev); err != nil {
		log.Error("failed to write JSON event", "type", ev.Type, "error", err)
	}
}

// OnStart emits a "start" event.
func (e *JSONEmitter) OnStart(server string) {
	e.emit(jsonEvent{Type: "start", Server: server})
}

// OnConnect emits a "connect" event.
func (e *JSONEmitter) OnConnect(server string) {
	e.emit(jsonEvent{Type: "connect", Server: server})
}

// OnSync emits a "sync" event.
func (e *JSONEmitter) OnSync(r model.SyncResult) {
	e.emit(jsonEvent{Type: "sync", Sync: &r})
}

// OnSample emits a "sample" event.
func (e *JSONEmitter) OnSample(s model.Sample) {
	e.emit(jsonEvent{Type: "sample", Sample: &s})
}

// OnResult emits a "result" event.
func (e *JSONEmitter) OnResult(r Result) {
	e.emit(jsonEvent{Type: "result", Result: &r})
}

// OnError emits an "error" event.
func (e *JSONEmitter) OnError(err error) {
	e.emit(jsonEvent{Type: "error", Error: err.Error()})
}

// OnDebug does nothing: debug messages go to the log.
func (e *JSONEmitter) OnDebug(msg string) {}

// CSVRow is a row of the client's CSV log.
type CSVRow struct {
	Seq          int   `csv:"seq"`
	TimeSent     int64 `csv:"time_sent"`
	TimeReceived int64 `csv:"time_received"`
	OWD          int64 `csv:"owd"`
	Offset       int64 `csv:"offset"`
	PayloadBytes int   `csv:"payload_bytes"`
}

// CSVFileName returns the name of the CSV log for a session with the given
// label and configuration.
func CSVFileName(label string, payload int, interval time.Duration, count int) string {
	return fmt.Sprintf("client_%s_p%d_i%d_c%d.csv", label, payload, interval.Milliseconds(), count)
}

// CSVEmitter collects samples and writes them to a CSV file when the session
// ends. The file is written even if the session failed, with the samples
// collected so far.
type CSVEmitter struct {
	path   string
	offset int64
	rows   []*CSVRow
}

// NewCSVEmitter returns a CSVEmitter writing to path. Parent directories are
// created when the file is written.
func NewCSVEmitter(path string) *CSVEmitter {
	return &CSVEmitter{path: path}
}

// Path returns the CSV file path.
func (e *CSVEmitter) Path() string {
	return e.path
}

// OnStart does nothing.
func (e *CSVEmitter) OnStart(server string) {}

// OnConnect does nothing.
func (e *CSVEmitter) OnConnect(server string) {}

// OnSync records the offset written in every row.
func (e *CSVEmitter) OnSync(r model.SyncResult) {
	e.offset = r.Offset
}

// OnSample buffers a row.
func (e *CSVEmitter) OnSample(s model.Sample) {
	e.rows = append(e.rows, &CSVRow{
		Seq:          s.Seq,
		TimeSent:     s.TimeSent,
		TimeReceived: s.TimeReceived,
		OWD:          s.OWD,
		Offset:       e.offset,
		PayloadBytes: s.PayloadBytes,
	})
}

// OnResult writes the buffered rows to the CSV file.
func (e *CSVEmitter) OnResult(r Result) {
	if err := e.write(); err != nil {
		log.Error("failed to write CSV log", "path", e.path, "error", err)
	}
}

func (e *CSVEmitter) write() error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0755); err != nil {
		return err
	}
	f, err := os.Create(e.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(&e.rows, f)
}

// OnError does nothing.
func (e *CSVEmitter) OnError(err error) {}

// OnDebug does nothing.
func (e *CSVEmitter) OnDebug(msg string) {}

// MultiEmitter forwards every event to all of its emitters, in order.
type MultiEmitter []Emitter

func (m MultiEmitter) OnStart(server string) {
	for _, e := range m {
		e.OnStart(server)
	}
}

func (m MultiEmitter) OnConnect(server string) {
	for _, e := range m {
		e.OnConnect(server)
	}
}

func (m MultiEmitter) OnSync(r model.SyncResult) {
	for _, e := range m {
		e.OnSync(r)
	}
}

func (m MultiEmitter) OnSample(s model.Sample) {
	for _, e := range m {
		e.OnSample(s)
	}
}

func (m MultiEmitter) OnResult(r Result) {
	for _, e := range m {
		e.OnResult(r)
	}
}

func (m MultiEmitter) OnError(err error) {
	for _, e := range m {
		e.OnError(err)
	}
}

func (m MultiEmitter) OnDebug(msg string) {
	for _, e := range m {
		e.OnDebug(msg)
	}
}

// Checks that the emitters implement Emitter.
var (
	_ Emitter = &HumanReadable{}
	_ Emitter = &JSONEmitter{}
	_ Emitter = &CSVEmitter{}
	_ Emitter = MultiEmitter{}
)
