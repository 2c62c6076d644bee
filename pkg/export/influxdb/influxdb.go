// SPDX-License-Identifier: GPL-3.0-or-later

// Package influxdb pushes metric snapshots to InfluxDB as batched points
// through a caller-supplied client.
package influxdb

import (
	"errors"
	"log/slog"
	"math"
	"time"

	influx "github.com/influxdata/influxdb/client/v2"

	"github.com/meterflow/meterflow/logger"
	"github.com/meterflow/meterflow/pkg/export"
	"github.com/meterflow/meterflow/pkg/meter"
)

// Config selects where points land. Database is required; Precision
// defaults to the client library's nanoseconds.
type Config struct {
	Database        string `yaml:"database" json:"database"`
	RetentionPolicy string `yaml:"retention_policy,omitempty" json:"retention_policy"`
	Precision       string `yaml:"precision,omitempty" json:"precision"`
}

// Exporter periodically writes the registry snapshot as one batch: a point
// per record, measurement named after the metric, the value in a single
// "value" field, all points sharing one UTC timestamp.
type Exporter struct {
	*logger.Logger

	reg    *meter.Registry
	client influx.Client
	cfg    Config
	loop   *export.Loop
}

// New validates the destination, starts the push loop and returns the
// running exporter. The client stays owned by the caller. A nil registry
// means the package default one.
func New(reg *meter.Registry, every time.Duration, client influx.Client, cfg Config) (*Exporter, error) {
	if client == nil {
		return nil, errors.New("influxdb: client is required")
	}
	if cfg.Database == "" {
		return nil, errors.New("influxdb: database is required")
	}
	if reg == nil {
		reg = meter.Default
	}

	e := &Exporter{
		Logger: logger.New().With(
			slog.String("component", "influxdb export"),
			slog.String("database", cfg.Database),
		),
		reg:    reg,
		client: client,
		cfg:    cfg,
	}

	e.loop = export.NewLoop(e.Logger, e, every)
	e.loop.Start()

	return e, nil
}

// Stop terminates the push loop.
func (e *Exporter) Stop() { e.loop.Stop() }

// Push writes the snapshot as one batch. Records whose value InfluxDB
// cannot store (NaN, infinities) are skipped, not fatal.
func (e *Exporter) Push() error {
	bp, err := influx.NewBatchPoints(influx.BatchPointsConfig{
		Precision:       e.cfg.Precision,
		Database:        e.cfg.Database,
		RetentionPolicy: e.cfg.RetentionPolicy,
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	for _, r := range e.reg.Snapshot() {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			e.Debugf("skipping '%s': value %v is not storable", r.Name, r.Value)
			continue
		}
		p, err := influx.NewPoint(r.Name, r.Tags.Map(), map[string]any{"value": r.Value}, now)
		if err != nil {
			return err
		}
		bp.AddPoint(p)
	}

	return e.client.Write(bp)
}
