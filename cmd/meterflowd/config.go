// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/meterflow/meterflow/pkg/confopt"
	"github.com/meterflow/meterflow/pkg/export/graphite"
	"github.com/meterflow/meterflow/pkg/export/influxdb"
	"github.com/meterflow/meterflow/pkg/export/opentsdb"
	"github.com/meterflow/meterflow/pkg/export/promexport"
)

// Config is the daemon configuration. Every exporter section is optional;
// a section's presence enables that exporter.
type Config struct {
	LogLevel       string            `yaml:"log_level,omitempty"`
	CollectTimeout confopt.Duration  `yaml:"collect_timeout,omitempty"`
	GlobalTags     map[string]string `yaml:"global_tags,omitempty"`

	RuntimeMonitor bool `yaml:"runtime_monitor"`
	LogMonitor     bool `yaml:"log_monitor"`

	Exporters ExportersConfig `yaml:"exporters,omitempty"`
}

type ExportersConfig struct {
	OpenTSDB    *OpenTSDBConfig    `yaml:"opentsdb,omitempty"`
	Prometheus  *PrometheusConfig  `yaml:"prometheus,omitempty"`
	Pushgateway *PushgatewayConfig `yaml:"pushgateway,omitempty"`
	InfluxDB    *InfluxDBConfig    `yaml:"influxdb,omitempty"`
	Graphite    *GraphiteConfig    `yaml:"graphite,omitempty"`
}

type OpenTSDBConfig struct {
	PushInterval    confopt.Duration `yaml:"push_interval"`
	opentsdb.Config `yaml:",inline"`
}

type PrometheusConfig struct {
	promexport.ServerConfig `yaml:",inline"`
}

type PushgatewayConfig struct {
	PushInterval                 confopt.Duration `yaml:"push_interval"`
	promexport.PushgatewayConfig `yaml:",inline"`
}

type InfluxDBConfig struct {
	PushInterval confopt.Duration `yaml:"push_interval"`

	Address  string           `yaml:"address"`
	Username string           `yaml:"username,omitempty"`
	Password string           `yaml:"password,omitempty"`
	Timeout  confopt.Duration `yaml:"timeout,omitempty"`

	influxdb.Config `yaml:",inline"`
}

type GraphiteConfig struct {
	PushInterval    confopt.Duration `yaml:"push_interval"`
	graphite.Config `yaml:",inline"`
}

func defaultConfig() Config {
	return Config{
		RuntimeMonitor: true,
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config '%s': %w", path, err)
	}

	return cfg, nil
}
