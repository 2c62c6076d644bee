// SPDX-License-Identifier: GPL-3.0-or-later

package graphite

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/meterflow/meterflow/pkg/meter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricPath(t *testing.T) {
	tests := map[string]struct {
		name string
		tags map[string]string
		want string
	}{
		"name only": {
			name: "test_counter",
			want: "test.counter",
		},
		"tags become dotted segments": {
			name: "http_requests",
			tags: map[string]string{"method": "GET", "status": "200"},
			want: "http.requests.method.GET.status.200",
		},
		"slashes become dots": {
			name: "http_requests",
			tags: map[string]string{"method": "GET", "path": "/api/users"},
			want: "http.requests.method.GET.path.api.users",
		},
		"spaces become underscores": {
			name: "queue_depth",
			tags: map[string]string{"queue": "high priority"},
			want: "queue.depth.queue.high_priority",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			reg := meter.NewRegistry()
			c := reg.Counter(test.name)
			if test.tags != nil {
				require.NoError(t, c.SetTags(test.tags))
			}
			c.Increment(1)

			recs := reg.Snapshot()
			require.Len(t, recs, 1)

			assert.Equal(t, test.want, metricPath(recs[0]))
		})
	}
}

func TestTranslateSharesOneTimestamp(t *testing.T) {
	recs := []meter.Record{
		{Name: "first_metric", Value: 1, Type: meter.TypeCounter},
		{Name: "second_metric", Value: 2.5, Type: meter.TypeGauge},
	}

	points := translate(recs, 1600000000)

	require.Len(t, points, 2)
	assert.Equal(t, metricPoint{Path: "first.metric", Time: 1600000000, Value: 1}, points[0])
	assert.Equal(t, metricPoint{Path: "second.metric", Time: 1600000000, Value: 2.5}, points[1])
}

func TestWithDefaultPort(t *testing.T) {
	tests := map[string]struct {
		addr string
		want string
	}{
		"bare host":        {"localhost", "localhost:2004"},
		"host and port":    {"localhost:2003", "localhost:2003"},
		"tcp scheme":       {"tcp://graphite", "tcp://graphite:2004"},
		"udp with port":    {"udp://graphite:9", "udp://graphite:9"},
		"unix socket path": {"/run/graphite.sock", "/run/graphite.sock"},
		"unix scheme":      {"unix:///run/graphite.sock", "unix:///run/graphite.sock"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.want, withDefaultPort(test.addr))
		})
	}
}

func TestNewRequiresAddress(t *testing.T) {
	_, err := New(meter.NewRegistry(), time.Second, Config{})

	assert.Error(t, err)
}

func TestExporterPushesFramedPickle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	received := make(chan []byte, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			data, _ := io.ReadAll(conn)
			_ = conn.Close()
			received <- data
		}
	}()

	reg := meter.NewRegistry()
	reg.Counter("test_counter").Increment(2)

	e, err := New(reg, 10*time.Millisecond, Config{Address: ln.Addr().String()})
	require.NoError(t, err)
	defer e.Stop()

	// Two messages prove a fresh connection per push.
	for i := 0; i < 2; i++ {
		select {
		case msg := <-received:
			require.Greater(t, len(msg), 4)
			require.Equal(t, uint32(len(msg)-4), binary.BigEndian.Uint32(msg[:4]),
				"header must carry the payload length")

			payload := msg[4:]
			assert.Equal(t, []byte{0x80, 0x02}, payload[:2], "pickle protocol 2 preamble")
			assert.Equal(t, byte('.'), payload[len(payload)-1], "pickle STOP")
			assert.True(t, bytes.Contains(payload, []byte("test.counter")))
		case <-time.After(2 * time.Second):
			t.Fatalf("push %d never arrived", i+1)
		}
	}
}
