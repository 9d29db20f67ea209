// Copyright 2022 Metrika Inc.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"objsetstat/internal/pkg/discover"
	"objsetstat/internal/pkg/global"
	"objsetstat/internal/pkg/poll"
	"objsetstat/internal/pkg/report"
	"objsetstat/pkg/kstat"
	"objsetstat/pkg/selection"
	"objsetstat/pkg/timesync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"
)

var version = "dev"

const usageText = `objsetstat [options] [pool ...] [directive ...]

   Prints per-second write, read and unlink rates of ZFS datasets, only for
   datasets that were active during the last interval.

   Without pools every imported pool is monitored. Directives narrow the
   monitored datasets and are applied left to right:

      *            select every dataset, discarding previous directives
      +pattern     add datasets matching pattern
      -pattern     remove datasets matching pattern

   A pattern starting with '~' is a regular expression matched anywhere in
   the dataset name, anything else is a shell glob matched against the whole
   name. Use -- before the first directive if it starts with '-'.

   Example: objsetstat -i 5s tank '+tank/home/*' '-~tmp'`

var appFlags = []cli.Flag{
	cli.StringFlag{Name: "config, c", Usage: "configuration file"},
	cli.DurationFlag{Name: "interval, i", Usage: "sampling interval"},
	cli.IntFlag{Name: "count, n", Usage: "stop after `N` intervals, 0 runs forever"},
	cli.StringFlag{Name: "procfs", Usage: "procfs mountpoint, useful when running in a container"},
	cli.StringFlag{Name: "kstat-root", Usage: "ZFS kstat directory, overrides --procfs"},
	cli.StringFlag{Name: "format, f", Usage: "output format: table or json"},
	cli.BoolFlag{Name: "exact, p", Usage: "print exact byte rates instead of human readable ones"},
	cli.IntFlag{Name: "header-every", Usage: "print the table header once every `N` active intervals"},
	cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on `ADDR`"},
	cli.StringFlag{Name: "textfile", Usage: "write Prometheus metrics to `FILE` every interval"},
	cli.DurationFlag{Name: "discovery-timeout", Usage: "wait up to this long for pool kstats to appear"},
	cli.StringFlag{Name: "ntp-server", Usage: "correct timestamps with the offset of this NTP server"},
	cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
}

func main() {
	app := cli.NewApp()
	app.Name = global.AppName
	app.Usage = "ZFS per-dataset I/O rates"
	app.UsageText = usageText
	app.Version = version
	app.Flags = appFlags
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", global.AppName, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if err := global.LoadAgentConfig(c.String("config")); err != nil {
		return err
	}
	conf := &global.AgentConf
	applyFlags(c, conf)

	pools, directives := splitArgs(c.Args())
	if len(pools) > 0 {
		conf.Runtime.Pools = pools
	}
	if len(directives) > 0 {
		conf.Runtime.Directives = directives
	}
	if err := conf.Validate(); err != nil {
		return err
	}

	// fail on bad directives before touching the kstat tree
	parsed, err := selection.ParseDirectives(conf.Runtime.Directives)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	var clock kstat.Clock = kstat.SystemClock
	var logOpts []zap.Option
	if conf.Runtime.NTPServer != "" {
		ts := timesync.NewTimeSync(conf.Runtime.NTPServer, 0)
		ts.Start(ctx)
		defer ts.Stop()
		clock = ts
		logOpts = append(logOpts, zap.WithClock(ts))
	}

	log, err := setupZapLogger(conf.Runtime.Log, logOpts...)
	if err != nil {
		return err
	}
	defer log.Sync()

	if ts, ok := clock.(*timesync.TimeSync); ok {
		if err := ts.SyncNow(); err != nil {
			log.Errorw("could not sync with NTP server", zap.Error(err))
		}
	}

	monitored, err := monitoredDatasets(ctx, conf, parsed)
	if err != nil {
		return err
	}
	if len(monitored) == 0 {
		fmt.Fprintln(os.Stderr, "objsetstat: no datasets selected")

		return nil
	}
	log.Infow("monitoring datasets", "count", len(monitored), "datasets", selection.Names(monitored))

	reporters := []report.Reporter{consoleReporter(os.Stdout, conf.Output)}
	if conf.Output.MetricsAddr != "" || conf.Output.Textfile != "" {
		exporter := report.NewExporter()
		prometheus.MustRegister(exporter)
		reporters = append(reporters, exporter)
	}
	if conf.Output.Textfile != "" {
		reporters = append(reporters, &report.Textfile{Path: conf.Output.Textfile, Gatherer: prometheus.DefaultGatherer})
	}
	if conf.Output.MetricsAddr != "" {
		go serveMetrics(conf.Output.MetricsAddr)
	}

	poller := poll.NewPoller(poll.PollerConf{
		Interval: conf.Runtime.Interval,
		Count:    conf.Runtime.Count,
		Clock:    clock,
	}, monitored, reporters...)

	return poller.Run(ctx)
}

func monitoredDatasets(ctx context.Context, conf *global.AgentConfig, directives []selection.Directive) ([]*kstat.Snapshot, error) {
	root := conf.Runtime.KstatRoot
	for _, pool := range conf.Runtime.Pools {
		if err := discover.WaitForPool(ctx, root, pool, conf.Runtime.DiscoveryTimeout); err != nil {
			return nil, err
		}
	}

	candidates, err := discover.Candidates(root, conf.Runtime.Pools)
	if err != nil {
		return nil, err
	}
	universe := discover.Universe(candidates)
	zap.S().Debugw("discovered datasets", "root", root, "candidates", len(candidates), "datasets", len(universe))

	return selection.SelectParsed(universe, directives), nil
}

func consoleReporter(w io.Writer, conf global.OutputConfig) report.Reporter {
	if conf.Format == global.FormatJSON {
		return report.NewJSON(w)
	}

	return report.NewTable(w, conf.Exact, conf.HeaderEvery)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		zap.S().Errorw("metrics server stopped", "addr", addr, zap.Error(err))
	}
}

// splitArgs separates leading pool names from the directives following them.
func splitArgs(args []string) (pools, directives []string) {
	for i, arg := range args {
		if arg != "" && strings.ContainsRune("*+-", rune(arg[0])) {
			return args[:i], args[i:]
		}
	}

	return args, nil
}

func applyFlags(c *cli.Context, conf *global.AgentConfig) {
	if c.IsSet("interval") {
		conf.Runtime.Interval = c.Duration("interval")
	}
	if c.IsSet("count") {
		conf.Runtime.Count = c.Int("count")
	}
	if c.IsSet("procfs") {
		conf.Runtime.ProcPath = c.String("procfs")
		conf.Runtime.KstatRoot = kstat.RootFromProc(conf.Runtime.ProcPath)
	}
	if c.IsSet("kstat-root") {
		conf.Runtime.KstatRoot = c.String("kstat-root")
	}
	if c.IsSet("format") {
		conf.Output.Format = c.String("format")
	}
	if c.IsSet("exact") {
		conf.Output.Exact = c.Bool("exact")
	}
	if c.IsSet("header-every") {
		conf.Output.HeaderEvery = c.Int("header-every")
	}
	if c.IsSet("metrics-addr") {
		conf.Output.MetricsAddr = c.String("metrics-addr")
	}
	if c.IsSet("textfile") {
		conf.Output.Textfile = c.String("textfile")
	}
	if c.IsSet("discovery-timeout") {
		conf.Runtime.DiscoveryTimeout = c.Duration("discovery-timeout")
	}
	if c.IsSet("ntp-server") {
		conf.Runtime.NTPServer = c.String("ntp-server")
	}
	if c.IsSet("log-level") {
		conf.Runtime.Log.Lvl = c.String("log-level")
	}
}

func setupZapLogger(conf global.LogConfig, opts ...zap.Option) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(conf.Level())
	cfg.OutputPaths = conf.Outputs
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stderr"}
	}
	cfg.EncoderConfig.EncodeTime = logTimestampMSEncoder
	opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))

	l, err := cfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to setup zap logging: %w", err)
	}

	// set newly configured logger as default (access via zap.L() // zap.S())
	zap.ReplaceGlobals(l)

	return l.Sugar(), nil
}

// logTimestampMSEncoder encodes the log timestamp as an int64 from Time.UnixMilli()
func logTimestampMSEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendInt64(t.UnixMilli())
}
