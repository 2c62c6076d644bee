// SPDX-License-Identifier: GPL-3.0-or-later

// Package graphite pushes metric snapshots to a Graphite instance over its
// length-prefixed pickle batch protocol.
package graphite

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/meterflow/meterflow/logger"
	"github.com/meterflow/meterflow/pkg/confopt"
	"github.com/meterflow/meterflow/pkg/export"
	"github.com/meterflow/meterflow/pkg/meter"
	"github.com/meterflow/meterflow/pkg/socket"
)

const defaultPort = "2004"

// Config is the Graphite destination. Address accepts host:port, a
// tcp://, udp:// or unix:// form, or a bare host (the default pickle
// receiver port 2004 is appended).
type Config struct {
	Address string           `yaml:"address" json:"address"`
	Timeout confopt.Duration `yaml:"timeout,omitempty" json:"timeout"`
}

// Exporter periodically pickles the registry snapshot and writes it over a
// fresh connection per push.
type Exporter struct {
	*logger.Logger

	reg  *meter.Registry
	sock socket.Config
	loop *export.Loop
}

// New validates the destination, starts the push loop and returns the
// running exporter. A nil registry means the package default one.
func New(reg *meter.Registry, every time.Duration, cfg Config) (*Exporter, error) {
	if cfg.Address == "" {
		return nil, errors.New("graphite: address is required")
	}
	if reg == nil {
		reg = meter.Default
	}

	addr := withDefaultPort(cfg.Address)

	e := &Exporter{
		Logger: logger.New().With(
			slog.String("component", "graphite export"),
			slog.String("address", addr),
		),
		reg:  reg,
		sock: socket.Config{Address: addr, Timeout: cfg.Timeout.Duration()},
	}

	e.loop = export.NewLoop(e.Logger, e, every)
	e.loop.Start()

	return e, nil
}

// Stop terminates the push loop.
func (e *Exporter) Stop() { e.loop.Stop() }

// Push translates the current snapshot and sends it: a 4-byte big-endian
// payload length, then the pickled batch.
func (e *Exporter) Push() error {
	payload := encodePickle(translate(e.reg.Snapshot(), time.Now().Unix()))

	msg := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(msg[:4], uint32(len(payload)))
	copy(msg[4:], payload)

	return socket.ConnectAndWrite(e.sock, msg)
}

func withDefaultPort(addr string) string {
	if socket.IsUnixSocket(addr) {
		return addr
	}
	hostport := strings.TrimPrefix(strings.TrimPrefix(addr, "tcp://"), "udp://")
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return addr
	}
	return addr + ":" + defaultPort
}
