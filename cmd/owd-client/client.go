package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/owd/pkg/client"
	"github.com/m-lab/owd/pkg/owd1/spec"
	"github.com/m-lab/owd/pkg/version"
)

const clientName = "owd-client"

var (
	flagServer   = flag.String("server", "", "Server host (or host:port). If empty, the server is found via Locate")
	flagPort     = flag.Int("port", spec.DefaultPort, "Server port")
	flagLabel    = flag.String("label", "wifi", "Run label, used in the CSV file name")
	flagPayload  = flag.Int("payload", 0, "Padding bytes appended to each probe")
	flagInterval = flag.Duration("interval", spec.DefaultInterval, "Interval between probes")
	flagCount    = flag.Int("count", spec.DefaultCount, "Number of probes")
	flagRounds   = flag.Int("rounds", spec.DefaultSyncRounds, "Number of clock sync rounds")
	flagTimeout  = flag.Duration("timeout", spec.DefaultReplyTimeout, "Maximum wait for each reply")
	flagMID      = flag.String("mid", "", "Measurement ID to use")
	flagOutput   = flag.String("output", "logs", "Directory to write the CSV log to. Empty disables it")
	flagFormat   = flag.String("format", "human", "Output format (human|json)")
	flagDebug    = flag.Bool("debug", false, "Print debug output")
	flagLogLevel = flag.String("log.level", "warn", "Log level (debug|info|warn|error)")
)

var logLevels = map[string]log.Level{
	"debug": log.DebugLevel,
	"info":  log.InfoLevel,
	"warn":  log.WarnLevel,
	"error": log.ErrorLevel,
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")

	level, ok := logLevels[*flagLogLevel]
	if !ok {
		log.Fatal("Invalid log level", "level", *flagLogLevel)
	}
	log.SetReportTimestamp(true)
	log.SetLevel(level)

	var emitter client.Emitter
	switch *flagFormat {
	case "human":
		emitter = client.HumanReadable{Debug: *flagDebug}
	case "json":
		emitter = client.NewJSONEmitter(os.Stdout)
	default:
		log.Fatal("Invalid output format", "format", *flagFormat)
	}
	if *flagOutput != "" {
		path := filepath.Join(*flagOutput,
			client.CSVFileName(*flagLabel, *flagPayload, *flagInterval, *flagCount))
		emitter = client.MultiEmitter{emitter, client.NewCSVEmitter(path)}
	}

	cl := client.New(clientName, version.Version, client.Config{
		Server:        *flagServer,
		Port:          *flagPort,
		SyncRounds:    *flagRounds,
		Count:         *flagCount,
		Interval:      *flagInterval,
		PayloadSize:   *flagPayload,
		Timeout:       *flagTimeout,
		MeasurementID: *flagMID,
		Emitter:       emitter,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if _, err := cl.Run(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
