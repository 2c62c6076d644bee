// SPDX-License-Identifier: GPL-3.0-or-later

// Package opentsdb pushes metric snapshots to an OpenTSDB HTTP API endpoint
// as a JSON array of data points.
package opentsdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/meterflow/meterflow/logger"
	"github.com/meterflow/meterflow/pkg/export"
	"github.com/meterflow/meterflow/pkg/meter"
	"github.com/meterflow/meterflow/pkg/web"
)

// Config is the OpenTSDB destination, typically http://host:4242/api/put.
type Config struct {
	web.HTTPConfig `yaml:",inline" json:""`
}

// Exporter periodically POSTs the registry snapshot to one endpoint.
type Exporter struct {
	*logger.Logger

	reg        *meter.Registry
	reqConf    web.RequestConfig
	httpClient *http.Client
	loop       *export.Loop
}

// dataPoint is one record in OpenTSDB's HTTP put format.
type dataPoint struct {
	Metric    string            `json:"metric"`
	Timestamp int64             `json:"timestamp"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags"`
}

// New validates the destination, starts the push loop and returns the
// running exporter. A nil registry means the package default one.
func New(reg *meter.Registry, every time.Duration, cfg Config) (*Exporter, error) {
	if cfg.URL == "" {
		return nil, errors.New("opentsdb: url is required")
	}
	if reg == nil {
		reg = meter.Default
	}

	client, err := web.NewHTTPClient(cfg.ClientConfig)
	if err != nil {
		return nil, fmt.Errorf("opentsdb: init HTTP client: %w", err)
	}

	reqConf := cfg.RequestConfig.Copy()
	reqConf.Method = http.MethodPost
	if reqConf.Headers == nil {
		reqConf.Headers = make(map[string]string)
	}
	if _, ok := reqConf.Headers["Content-Type"]; !ok {
		reqConf.Headers["Content-Type"] = "application/json"
	}

	e := &Exporter{
		Logger: logger.New().With(
			slog.String("component", "opentsdb export"),
			slog.String("url", cfg.URL),
		),
		reg:        reg,
		reqConf:    reqConf,
		httpClient: client,
	}

	e.loop = export.NewLoop(e.Logger, e, every)
	e.loop.Start()

	return e, nil
}

// Stop terminates the push loop.
func (e *Exporter) Stop() { e.loop.Stop() }

// Push sends the whole snapshot as one JSON array, every point stamped with
// the same timestamp.
func (e *Exporter) Push() error {
	points := translate(e.reg.Snapshot(), time.Now().Unix())

	body, err := json.Marshal(points)
	if err != nil {
		return err
	}

	reqConf := e.reqConf.Copy()
	reqConf.Body = string(body)

	req, err := web.NewHTTPRequest(reqConf)
	if err != nil {
		return err
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer closeBody(resp)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("'%s' returned HTTP status code %d", req.URL, resp.StatusCode)
	}

	return nil
}

func translate(recs []meter.Record, ts int64) []dataPoint {
	points := make([]dataPoint, 0, len(recs))
	for _, r := range recs {
		points = append(points, dataPoint{
			Metric:    strings.ReplaceAll(r.Name, "_", "."),
			Timestamp: ts,
			Value:     r.Value,
			Tags:      r.Tags.Map(),
		})
	}
	return points
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}
