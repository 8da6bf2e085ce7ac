package owd1

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	guuid "github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/m-lab/owd/internal/metrics"
	"github.com/m-lab/owd/internal/netx"
	"github.com/m-lab/owd/internal/persistence"
	protocol "github.com/m-lab/owd/pkg/owd1"
	"github.com/m-lab/owd/pkg/owd1/model"
	"github.com/m-lab/owd/pkg/owd1/spec"
)

// State is the state of the server.
type State int32

const (
	// StateListening means the server is waiting for a connection.
	StateListening State = iota
	// StateConnected means a connection has been accepted.
	StateConnected
	// StateServing means the server is answering messages.
	StateServing
	// StateClosed means the last connection has been closed.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	case StateServing:
		return "serving"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close reasons recorded in the archive.
const (
	reasonClosed   = "closed"
	reasonIdle     = "idle-timeout"
	reasonCanceled = "canceled"
	reasonError    = "error"
)

// Handler is the owd1 probe server. It serves one connection at a time,
// answering every SYNC and BOOP with an ack carrying the receive time.
type Handler struct {
	dataDir     string
	clock       protocol.Clock
	idleTimeout time.Duration

	sessions    *ttlcache.Cache[string, *model.ArchivalData]
	unsubscribe func()
	state       atomic.Int32
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock sets the clock used to timestamp received messages.
func WithClock(c protocol.Clock) Option {
	return func(h *Handler) {
		h.clock = c
	}
}

// WithIdleTimeout sets how long the server waits for the next message before
// closing the connection. Zero disables the timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.idleTimeout = d
	}
}

// NewHandler returns a new handler for the owd1 protocol.
// It sets up a cache for sessions that writes the archival data to disk on
// item eviction.
func NewHandler(dir string, cacheTTL time.Duration, opts ...Option) *Handler {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *model.ArchivalData](cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *model.ArchivalData](),
	)
	unsubscribe := cache.OnEviction(func(ctx context.Context,
		er ttlcache.EvictionReason,
		i *ttlcache.Item[string, *model.ArchivalData]) {
		archive := i.Value()
		log.Debug("Session expired", "uuid", archive.UUID, "reason", er)

		// Save data to disk when the session leaves the cache.
		_, err := persistence.WriteDataFile(dir, "owd1", "server", archive.UUID, archive)
		if err != nil {
			log.Error("failed to write owd1 archive", "uuid", archive.UUID, "error", err)
		}
	})

	go cache.Start()
	h := &Handler{
		dataDir:     dir,
		clock:       protocol.SystemClock,
		idleTimeout: spec.DefaultIdleTimeout,
		sessions:    cache,
		unsubscribe: unsubscribe,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// State returns the current server state.
func (h *Handler) State() State {
	return State(h.state.Load())
}

func (h *Handler) setState(s State) {
	h.state.Store(int32(s))
}

// Serve accepts connections on ln and serves them sequentially until ctx is
// canceled or Accept fails. It closes ln before returning.
func (h *Handler) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()
	defer ln.Close()

	log.Info("Accepting connections...", "addr", ln.Addr())
	for {
		h.setState(StateListening)
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		h.ServeConn(ctx, conn)
	}
}

// ServeConn serves conn until the peer closes it, the idle timeout expires
// or ctx is canceled. The connection is always closed on return. The
// session's archival data is stored in the session cache and returned.
func (h *Handler) ServeConn(ctx context.Context, conn net.Conn) *model.ArchivalData {
	h.setState(StateConnected)
	metrics.Connections.Inc()
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	archive := newArchive(conn)
	log.Info("Connection accepted", "uuid", archive.UUID, "client", archive.Client)

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	framer := protocol.NewFramer(conn)
	framer.SetTimeout(h.idleTimeout)

	h.setState(StateServing)
	err := h.serve(framer, archive)
	archive.CloseReason = closeReason(ctx, err)
	archive.EndTime = time.Now()
	collectConnInfo(conn, archive)
	conn.Close()

	metrics.SessionDuration.Observe(archive.EndTime.Sub(archive.StartTime).Seconds())
	log.Info("Connection closed", "uuid", archive.UUID, "reason", archive.CloseReason,
		"sync", archive.SyncRequests, "probes", archive.Probes,
		"malformed", archive.Malformed)

	h.sessions.Set(archive.UUID, archive, ttlcache.DefaultTTL)
	h.setState(StateClosed)
	return archive
}

// serve answers requests until a connection error occurs.
func (h *Handler) serve(framer *protocol.Framer, archive *model.ArchivalData) error {
	for {
		line, err := framer.Receive()
		// The receive time should be recorded as soon as possible after
		// framing the line, to improve accuracy.
		t1 := h.clock.Now().UnixNano()
		if errors.Is(err, protocol.ErrMalformedMessage) {
			discard(archive, err)
			continue
		}
		if err != nil {
			return err
		}

		m, err := protocol.Parse(line)
		if err != nil {
			discard(archive, err)
			continue
		}
		if !m.Kind.IsRequest() {
			discard(archive, errors.New("unexpected message kind "+m.Kind.String()))
			continue
		}

		if err := framer.SendMessage(m.Ack(t1)); err != nil {
			return err
		}
		switch m.Kind {
		case protocol.KindSync:
			archive.SyncRequests++
		case protocol.KindProbe:
			archive.Probes++
		}
		metrics.Messages.WithLabelValues(m.Kind.String()).Inc()
		log.Debug("message answered", "uuid", archive.UUID, "kind", m.Kind,
			"seq", m.Seq, "t1", t1)
	}
}

func discard(archive *model.ArchivalData, err error) {
	archive.Malformed++
	metrics.MalformedMessages.Inc()
	log.Warn("discarding message", "uuid", archive.UUID, "error", err)
}

func closeReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return reasonCanceled
	case errors.Is(err, protocol.ErrTimeout):
		return reasonIdle
	case errors.Is(err, protocol.ErrConnectionClosed):
		return reasonClosed
	default:
		return reasonError
	}
}

func newArchive(conn net.Conn) *model.ArchivalData {
	var archive *model.ArchivalData
	if ci, ok := netx.ToConnInfo(conn); ok {
		archive = model.NewArchivalData(ci.UUID(), ci.AcceptTime())
	} else {
		archive = model.NewArchivalData(guuid.NewString(), time.Now())
	}
	archive.Client = conn.RemoteAddr().String()
	archive.Server = conn.LocalAddr().String()
	return archive
}

// collectConnInfo copies byte counters and TCP_INFO into archive. It must be
// called before the connection is closed.
func collectConnInfo(conn net.Conn, archive *model.ArchivalData) {
	ci, ok := netx.ToConnInfo(conn)
	if !ok {
		return
	}
	read, written := ci.ByteCounters()
	archive.Application = model.ByteCounters{
		BytesReceived: int64(read),
		BytesSent:     int64(written),
	}
	info, err := ci.Info()
	if err != nil {
		log.Debug("TCP_INFO not available", "uuid", archive.UUID, "error", err)
		return
	}
	archive.TCPInfo = model.TCPInfo{
		LinuxTCPInfo: info,
		ElapsedTime:  time.Since(ci.AcceptTime()).Microseconds(),
	}
}

// Result returns the summary of a recent session. Possible status codes
// are:
// - 400 if the request does not contain a uuid
// - 404 if the uuid is not found in the sessions cache
// - 500 if the summary JSON cannot be marshalled
func (h *Handler) Result(rw http.ResponseWriter, req *http.Request) {
	uuid := req.URL.Query().Get("uuid")
	if uuid == "" {
		log.Info("Received request without uuid", "source", req.RemoteAddr)
		rw.Header().Set("Connection", "Close")
		rw.WriteHeader(http.StatusBadRequest)
		return
	}

	cachedResult := h.sessions.Get(uuid)
	if cachedResult == nil {
		rw.WriteHeader(http.StatusNotFound)
		return
	}

	b, err := json.Marshal(cachedResult.Value().Summarize())
	if err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	if _, err := rw.Write(b); err != nil {
		log.Debug("failed to write result", "uuid", uuid, "error", err)
		return
	}

	// Remove this session from the cache. This writes its archive.
	h.sessions.Delete(uuid)
}

// Close writes the archives of all cached sessions and stops the cache.
func (h *Handler) Close() {
	h.sessions.DeleteAll()
	h.unsubscribe()
	h.sessions.Stop()
}
