package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/owd/internal/netx"
	"github.com/m-lab/owd/internal/owd1"
	protocol "github.com/m-lab/owd/pkg/owd1"
	"github.com/m-lab/owd/pkg/owd1/spec"
)

var (
	flagEndpoint     = flag.String("addr", ":5001", "Listen address/port for owd1 connections")
	flagHTTPEndpoint = flag.String("http_addr", ":8080", "Listen address/port for the result endpoint")
	flagDataDir      = flag.String("datadir", "./data", "Directory to store data in")
	flagIdleTimeout  = flag.Duration("idle_timeout", spec.DefaultIdleTimeout,
		"Close connections idle for longer than this")
	flagSessionTTL = flag.Duration("session_ttl", spec.DefaultSessionCacheTTL,
		"How long sessions are kept in memory before being written to disk")
	flagClockOffset = flag.Duration("clock.offset", 0,
		"Offset added to every server timestamp, to emulate a skewed clock")
	flagLogLevel = flag.String("log.level", "info", "Log level (debug|info|warn|error)")
)

// httpServer creates a new *http.Server with explicit Read and Write
// timeouts and the provided address and handler.
func httpServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: handler,
		// NOTE: set absolute read and write timeouts for server connections.
		// This prevents clients, or middleboxes, from opening a connection and
		// holding it open indefinitely.
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}
}

var logLevels = map[string]log.Level{
	"debug": log.DebugLevel,
	"info":  log.InfoLevel,
	"warn":  log.WarnLevel,
	"error": log.ErrorLevel,
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")

	// Initialize logging and metrics.
	level, ok := logLevels[*flagLogLevel]
	if !ok {
		log.Fatal("Invalid log level", "level", *flagLogLevel)
	}
	log.SetReportCaller(true)
	log.SetReportTimestamp(true)
	log.SetLevel(level)

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var clock protocol.Clock = protocol.SystemClock
	if *flagClockOffset != 0 {
		log.Warn("Server clock is skewed", "offset", *flagClockOffset)
		clock = protocol.OffsetClock{Clock: clock, Offset: *flagClockOffset}
	}
	owd1Handler := owd1.NewHandler(*flagDataDir, *flagSessionTTL,
		owd1.WithClock(clock), owd1.WithIdleTimeout(*flagIdleTimeout))
	defer owd1Handler.Close()

	mux := http.NewServeMux()
	mux.Handle(spec.ResultV1, http.HandlerFunc(owd1Handler.Result))
	resultServer := httpServer(*flagHTTPEndpoint, mux)
	log.Info("About to listen for result requests", "endpoint", *flagHTTPEndpoint)
	go func() {
		err := resultServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			rtx.Must(err, "Could not start result server")
		}
	}()
	defer resultServer.Close()

	l, err := netx.Listen(*flagEndpoint)
	rtx.Must(err, "failed to create listener")
	log.Info("About to listen for owd1 tests", "endpoint", *flagEndpoint)

	err = owd1Handler.Serve(ctx, l)
	if !errors.Is(err, context.Canceled) {
		log.Error("owd1 server stopped", "error", err)
	}
}
