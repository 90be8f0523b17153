package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"seostats.local/internal/app/seostats"
	"seostats.local/internal/mozscape"
	"seostats.local/internal/platform/config"
	"seostats.local/internal/platform/httpclient"
	"seostats.local/internal/platform/logging"
)

var build = "development"

var (
	app = kingpin.New("seostats", "Query Mozscape url-metrics from the command line.")

	accessID  = app.Flag("access-id", "Mozscape access id.").OverrideDefaultFromEnvar("MOZSCAPE_ACCESS_ID").String()
	secretKey = app.Flag("secret-key", "Mozscape secret key.").OverrideDefaultFromEnvar("MOZSCAPE_SECRET_KEY").String()
	endpoint  = app.Flag("endpoint", "url-metrics endpoint.").String()
	timeout   = app.Flag("timeout", "Request timeout.").Default("30s").Duration()
	batch     = app.Flag("batch", "Send a single target as a batch (POST).").Bool()
	pretty    = app.Flag("pretty", "Indent JSON output.").Short('p').Bool()
	verbose   = app.Flag("verbose", "Log requests to stderr.").Short('v').Bool()

	freeStatsCommand = app.Command("free-stats", "All free-tier columns.")
	freeStatsTargets = freeStatsCommand.Arg("target", "Domains or URLs.").Required().Strings()

	daCommand = app.Command("da", "Domain authority only.")
	daTargets = daCommand.Arg("target", "Domains or URLs.").Required().Strings()

	metricsCommand = app.Command("metrics", "Custom column selection.")
	metricsCols    = metricsCommand.Flag("cols", "Column names or aliases, comma separated.").Required().Strings()
	metricsTargets = metricsCommand.Arg("target", "Domains or URLs.").Required().Strings()

	columnsCommand = app.Command("columns", "List known column names.")
)

func main() {
	app.Version(build)
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == columnsCommand.FullCommand() {
		for _, name := range mozscape.ColumnNames() {
			fmt.Println(name)
		}
		return
	}

	if err := run(command); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(command string) error {
	cfg := config.Load()
	level := cfg.LogLevel
	if *verbose {
		level = slog.LevelDebug
	}
	logging.SetupWriter(os.Stderr, level, "text", "")

	if *accessID != "" {
		cfg.MozscapeAccessID = *accessID
	}
	if *secretKey != "" {
		cfg.MozscapeSecretKey = *secretKey
	}
	if *endpoint != "" {
		cfg.MozscapeEndpoint = *endpoint
	}
	if err := cfg.ValidateMozscape(); err != nil {
		return err
	}

	client, err := mozscape.NewClient(cfg.MozscapeEndpoint,
		mozscape.Credentials{AccessID: cfg.MozscapeAccessID, SecretKey: cfg.MozscapeSecretKey},
		httpclient.New(*timeout, false))
	if err != nil {
		return err
	}
	svc := seostats.NewService(client, seostats.Options{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout+5*time.Second)
	defer cancel()

	var out any
	switch command {
	case freeStatsCommand.FullCommand():
		out, err = svc.FreeStats(ctx, toTarget(*freeStatsTargets))
	case daCommand.FullCommand():
		out, err = svc.DomainAuthority(ctx, toTarget(*daTargets))
	case metricsCommand.FullCommand():
		cols, perr := mozscape.ParseColumns(*metricsCols)
		if perr != nil {
			return perr
		}
		out, err = svc.URLMetrics(ctx, toTarget(*metricsTargets), cols)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		return err
	}
	return printJSON(out)
}

// toTarget 多个目标或者 --batch 时走批量接口。
func toTarget(targets []string) mozscape.Target {
	if len(targets) == 1 && !*batch {
		return mozscape.SingleTarget(targets[0])
	}
	return mozscape.BatchTargets(targets)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
