// SPDX-License-Identifier: GPL-3.0-or-later

// meterflowd collects process metrics and ships them to the configured
// backends. It is both the reference deployment of the meterflow packages
// and a standalone agent: point it at a config file listing exporters and
// it pushes its own runtime metrics on the configured intervals.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	influx "github.com/influxdata/influxdb/client/v2"
	"github.com/jessevdk/go-flags"

	"github.com/meterflow/meterflow/logger"
	"github.com/meterflow/meterflow/pkg/buildinfo"
	"github.com/meterflow/meterflow/pkg/export/graphite"
	"github.com/meterflow/meterflow/pkg/export/influxdb"
	"github.com/meterflow/meterflow/pkg/export/opentsdb"
	"github.com/meterflow/meterflow/pkg/export/promexport"
	"github.com/meterflow/meterflow/pkg/meter"
	"github.com/meterflow/meterflow/pkg/monitor"
)

const name = "meterflowd"

type option struct {
	ConfFile string `short:"c" long:"config" description:"configuration file path"`
	Debug    bool   `short:"d" long:"debug" description:"debug mode"`
	Version  bool   `short:"v" long:"version" description:"display the version and exit"`
}

func parseCLI() *option {
	opt := &option{}
	parser := flags.NewParser(opt, flags.Default)
	parser.Name = name
	parser.Usage = "[OPTIONS]"

	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	return opt
}

func main() {
	opts := parseCLI()

	if opts.Version {
		fmt.Printf("%s, version: %s\n", name, buildinfo.Version)
		return
	}

	cfg, err := loadConfig(opts.ConfFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if v := os.Getenv("METERFLOW_LOG_LEVEL"); v != "" {
		logger.Level.SetByName(v)
	}
	if cfg.LogLevel != "" {
		logger.Level.SetByName(cfg.LogLevel)
	}
	if opts.Debug {
		logger.Level.Set(slog.LevelDebug)
	}

	d := newDaemon(cfg)
	if err := d.setup(); err != nil {
		d.Error(err)
		d.stopAll()
		os.Exit(1)
	}

	d.Infof("started, pid %d", os.Getpid())
	d.serve(opts.ConfFile)
}

type daemon struct {
	*logger.Logger

	cfg Config
	reg *meter.Registry

	logCounting bool
	stops       []func()
}

func newDaemon(cfg Config) *daemon {
	return &daemon{
		Logger: logger.New().With(slog.String("component", name)),
		cfg:    cfg,
		reg:    meter.Default,
	}
}

func (d *daemon) setup() error {
	if to := d.cfg.CollectTimeout.Duration(); to > 0 {
		d.reg.SetCollectTimeout(to)
	}
	if len(d.cfg.GlobalTags) > 0 {
		if err := d.reg.AddGlobalTags(d.cfg.GlobalTags); err != nil {
			return fmt.Errorf("global tags: %w", err)
		}
	}

	if d.cfg.RuntimeMonitor {
		monitor.RegisterRuntimeGauges(d.reg)
	}
	if d.cfg.LogMonitor && !d.logCounting {
		h := monitor.CountingHandler(d.reg.Counter("log_events"), slog.Default().Handler())
		slog.SetDefault(slog.New(h))
		d.logCounting = true
	}

	if err := d.setupExporters(); err != nil {
		return err
	}
	if len(d.stops) == 0 {
		d.Warning("no exporters configured, metrics will be collected but not shipped anywhere")
	}

	return nil
}

func (d *daemon) setupExporters() error {
	exp := d.cfg.Exporters

	if cfg := exp.OpenTSDB; cfg != nil {
		e, err := opentsdb.New(d.reg, cfg.PushInterval.Duration(), cfg.Config)
		if err != nil {
			return fmt.Errorf("opentsdb exporter: %w", err)
		}
		d.stops = append(d.stops, e.Stop)
	}
	if cfg := exp.Prometheus; cfg != nil {
		s, err := promexport.NewServer(d.reg, cfg.ServerConfig)
		if err != nil {
			return fmt.Errorf("prometheus server: %w", err)
		}
		d.stops = append(d.stops, s.Stop)
	}
	if cfg := exp.Pushgateway; cfg != nil {
		p, err := promexport.NewPushgateway(d.reg, cfg.PushInterval.Duration(), cfg.PushgatewayConfig)
		if err != nil {
			return fmt.Errorf("pushgateway exporter: %w", err)
		}
		d.stops = append(d.stops, p.Stop)
	}
	if cfg := exp.InfluxDB; cfg != nil {
		client, err := influx.NewHTTPClient(influx.HTTPConfig{
			Addr:     cfg.Address,
			Username: cfg.Username,
			Password: cfg.Password,
			Timeout:  cfg.Timeout.Duration(),
		})
		if err != nil {
			return fmt.Errorf("influxdb client: %w", err)
		}
		e, err := influxdb.New(d.reg, cfg.PushInterval.Duration(), client, cfg.Config)
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("influxdb exporter: %w", err)
		}
		d.stops = append(d.stops, func() { e.Stop(); _ = client.Close() })
	}
	if cfg := exp.Graphite; cfg != nil {
		e, err := graphite.New(d.reg, cfg.PushInterval.Duration(), cfg.Config)
		if err != nil {
			return fmt.Errorf("graphite exporter: %w", err)
		}
		d.stops = append(d.stops, e.Stop)
	}

	return nil
}

func (d *daemon) stopAll() {
	for i := len(d.stops) - 1; i >= 0; i-- {
		d.stops[i]()
	}
	d.stops = nil
}

// serve blocks until a termination signal arrives. SIGHUP re-reads the
// config file and restarts the exporters; registered instruments survive
// the restart.
func (d *daemon) serve(confPath string) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for {
		switch sig := <-ch; sig {
		case syscall.SIGHUP:
			d.Infof("received %s signal (%d). Restarting exporters", sig, sig)
			d.stopAll()
			cfg, err := loadConfig(confPath)
			if err != nil {
				d.Error(err)
				os.Exit(1)
			}
			d.cfg = cfg
			if err := d.setup(); err != nil {
				d.Error(err)
				d.stopAll()
				os.Exit(1)
			}
		default:
			d.Infof("received %s signal (%d). Terminating...", sig, sig)
			d.stopAll()
			d.Info("stopped")
			os.Exit(0)
		}
	}
}
