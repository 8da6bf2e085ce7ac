package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/m-lab/locate/api/locate"
	v2 "github.com/m-lab/locate/api/v2"
	"github.com/m-lab/owd/internal/netx"
	"github.com/m-lab/owd/pkg/owd1"
	"github.com/m-lab/owd/pkg/owd1/model"
	"github.com/m-lab/owd/pkg/owd1/spec"
	"github.com/m-lab/owd/pkg/version"
)

const libraryName = "owd-client"

var (
	// ErrNoTargets is returned if all Locate targets have been tried.
	ErrNoTargets = errors.New("no targets available")

	libraryVersion = version.Version
)

// Locator is an interface used to get a list of available servers to test against.
type Locator interface {
	Nearest(ctx context.Context, service string) ([]v2.Target, error)
}

// dialFunc connects to a server address.
type dialFunc func(ctx context.Context, addr string) (net.Conn, error)

func dialNetx(ctx context.Context, addr string) (net.Conn, error) {
	return netx.DialContext(ctx, addr)
}

// Client is a client for the owd1 protocol.
type Client struct {
	// ClientName is the name of the client sent to the Locate API as part of the user-agent.
	ClientName string
	// ClientVersion is the version of the client sent to the Locate API as part of the user-agent.
	ClientVersion string

	config  Config
	locator Locator
	dial    dialFunc
}

// Result contains everything measured during a session.
type Result struct {
	// MeasurementID identifies this measurement.
	MeasurementID string
	// Server is the server address used for this session.
	Server string
	// LocalAddr and RemoteAddr are the connection's endpoints.
	LocalAddr  string
	RemoteAddr string
	// UUID is the client-side connection UUID.
	UUID string
	// Sync is the clock offset estimation result.
	Sync *model.SyncResult `json:",omitempty"`
	// Samples contains one entry per acknowledged probe.
	Samples []model.Sample
	// StartTime and EndTime delimit the session.
	StartTime time.Time
	EndTime   time.Time
	// ErrorPhase is the phase that failed, if any.
	ErrorPhase owd1.Phase `json:",omitempty"`
	// Error is the error that ended the session, if any.
	Error string `json:",omitempty"`
}

// makeUserAgent creates the user agent string.
func makeUserAgent(clientName, clientVersion string) string {
	return clientName + "/" + clientVersion + " " + libraryName + "/" + libraryVersion
}

// New returns a new Client with the provided client name, version and config.
// It panics if clientName or clientVersion are empty.
func New(clientName, clientVersion string, config Config) *Client {
	if clientName == "" || clientVersion == "" {
		panic("client name and version must be non-empty")
	}
	return &Client{
		ClientName:    clientName,
		ClientVersion: clientVersion,

		config:  withDefaults(config),
		locator: locate.NewClient(makeUserAgent(clientName, clientVersion)),
		dial:    dialNetx,
	}
}

func withDefaults(c Config) Config {
	if c.Port == 0 {
		c.Port = spec.DefaultPort
	}
	if c.SyncRounds == 0 {
		c.SyncRounds = spec.DefaultSyncRounds
	}
	if c.SyncPacing == 0 {
		c.SyncPacing = spec.DefaultSyncPacing
	}
	if c.Count == 0 {
		c.Count = spec.DefaultCount
	}
	if c.Interval == 0 {
		c.Interval = spec.DefaultInterval
	}
	if c.Timeout == 0 {
		c.Timeout = spec.DefaultReplyTimeout
	}
	if c.MeasurementID == "" {
		c.MeasurementID = uuid.NewString()
	}
	if c.Emitter == nil {
		c.Emitter = HumanReadable{}
	}
	if c.Clock == nil {
		c.Clock = owd1.SystemClock
	}
	return c
}

// serverAddr adds the configured port to host, unless it already has one.
func (c *Client) serverAddr(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(c.config.Port))
}

// addrsFromLocate returns the server addresses returned by the Locate API,
// nearest first.
func (c *Client) addrsFromLocate(ctx context.Context) ([]string, error) {
	targets, err := c.locator.Nearest(ctx, spec.ServiceName)
	if err != nil {
		return nil, err
	}
	var addrs []string
	for _, t := range targets {
		u, err := url.Parse(t.URLs[spec.LocateURLKey])
		if err != nil || u.Host == "" {
			continue
		}
		addrs = append(addrs, c.serverAddr(u.Host))
	}
	if len(addrs) == 0 {
		return nil, ErrNoTargets
	}
	return addrs, nil
}

// connect connects to the configured server or, if none is configured, to
// the first reachable server returned by the Locate API.
func (c *Client) connect(ctx context.Context) (net.Conn, string, error) {
	var addrs []string
	if c.config.Server != "" {
		c.config.Emitter.OnDebug(fmt.Sprintf("using server provided via flags %s", c.config.Server))
		addrs = []string{c.serverAddr(c.config.Server)}
	} else {
		c.config.Emitter.OnDebug("using locate")
		var err error
		addrs, err = c.addrsFromLocate(ctx)
		if err != nil {
			return nil, "", err
		}
	}

	var err error
	for _, addr := range addrs {
		c.config.Emitter.OnStart(addr)
		var conn net.Conn
		conn, err = c.dial(ctx, addr)
		if err == nil {
			return conn, addr, nil
		}
		log.Debug("connection failed", "server", addr, "error", err)
		c.config.Emitter.OnError(err)
	}
	return nil, "", err
}

// Run runs a complete session: connect, estimate the clock offset, send the
// probes and close. The returned Result contains whatever was measured, even
// when an error is returned.
func (c *Client) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		MeasurementID: c.config.MeasurementID,
		StartTime:     time.Now(),
	}
	err := c.run(ctx, result)
	result.EndTime = time.Now()
	if err != nil {
		result.Error = err.Error()
		var serr *owd1.SessionError
		if errors.As(err, &serr) {
			result.ErrorPhase = serr.Phase
		}
		c.config.Emitter.OnError(err)
	}
	c.config.Emitter.OnResult(*result)
	return result, err
}

func (c *Client) run(ctx context.Context, result *Result) error {
	conn, addr, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	result.Server = addr
	result.LocalAddr = conn.LocalAddr().String()
	result.RemoteAddr = conn.RemoteAddr().String()
	if ci, ok := netx.ToConnInfo(conn); ok {
		result.UUID = ci.UUID()
	}
	c.config.Emitter.OnConnect(addr)
	log.Info("connected", "server", addr, "uuid", result.UUID)

	// Closing the connection unblocks a pending receive on cancellation.
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	framer := owd1.NewFramer(conn)
	framer.SetTimeout(c.config.Timeout)

	estimator := owd1.NewEstimator(framer, c.config.Clock, c.config.SyncRounds,
		max(c.config.SyncPacing, 0))
	sync, err := estimator.Run(ctx)
	if err != nil {
		return contextError(ctx, err)
	}
	result.Sync = sync
	c.config.Emitter.OnSync(*sync)
	log.Info("sync done", "offset", sync.Offset, "rounds", len(sync.Samples))

	prober := owd1.NewProber(framer, c.config.Clock, sync.Offset, c.config.Count,
		c.config.Interval, c.config.PayloadSize)
	err = prober.Run(ctx, func(s model.Sample) {
		result.Samples = append(result.Samples, s)
		c.config.Emitter.OnSample(s)
	})
	return contextError(ctx, err)
}

// contextError adds the context's error to err when the session was
// aborted by the caller.
func contextError(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}
