// SPDX-License-Identifier: GPL-3.0-or-later

package promexport

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/meterflow/meterflow/logger"
	"github.com/meterflow/meterflow/pkg/export"
	"github.com/meterflow/meterflow/pkg/meter"
	"github.com/meterflow/meterflow/pkg/web"
)

const defaultInstance = "default"

// PushgatewayConfig is the push destination. URL is the Pushgateway base,
// Job defaults to a random UUID, Instance to "default".
type PushgatewayConfig struct {
	web.HTTPConfig `yaml:",inline" json:""`

	Job      string `yaml:"job,omitempty" json:"job"`
	Instance string `yaml:"instance,omitempty" json:"instance"`
}

// Pushgateway periodically POSTs the encoded snapshot to a Pushgateway
// group identified by job and base64-encoded instance.
type Pushgateway struct {
	*logger.Logger

	reg        *meter.Registry
	reqConf    web.RequestConfig
	httpClient *http.Client
	groupPath  string
	loop       *export.Loop
}

// NewPushgateway validates the destination, starts the push loop and
// returns the running exporter. A nil registry means the package default
// one.
func NewPushgateway(reg *meter.Registry, every time.Duration, cfg PushgatewayConfig) (*Pushgateway, error) {
	if cfg.URL == "" {
		return nil, errors.New("pushgateway: url is required")
	}
	if reg == nil {
		reg = meter.Default
	}

	job := cfg.Job
	if job == "" {
		job = uuid.New().String()
	}
	instance := cfg.Instance
	if instance == "" {
		instance = defaultInstance
	}

	client, err := web.NewHTTPClient(cfg.ClientConfig)
	if err != nil {
		return nil, fmt.Errorf("pushgateway: init HTTP client: %w", err)
	}

	reqConf := cfg.RequestConfig.Copy()
	reqConf.Method = http.MethodPost

	p := &Pushgateway{
		Logger: logger.New().With(
			slog.String("component", "pushgateway export"),
			slog.String("url", cfg.URL),
			slog.String("job", job),
		),
		reg:        reg,
		reqConf:    reqConf,
		httpClient: client,
		groupPath: fmt.Sprintf("/metrics/job/%s/instance@base64/%s",
			job, base64.URLEncoding.EncodeToString([]byte(instance))),
	}

	p.loop = export.NewLoop(p.Logger, p, every)
	p.loop.Start()

	return p, nil
}

// Stop terminates the push loop.
func (p *Pushgateway) Stop() { p.loop.Stop() }

// Push POSTs the current snapshot as exposition text.
func (p *Pushgateway) Push() error {
	reqConf := p.reqConf.Copy()
	reqConf.Body = Encode(p.reg.Snapshot())

	req, err := web.NewHTTPRequestWithPath(reqConf, p.groupPath)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer closeBody(resp)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("'%s' returned HTTP status code %d", req.URL, resp.StatusCode)
	}

	return nil
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}
