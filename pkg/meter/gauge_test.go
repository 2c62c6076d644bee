// SPDX-License-Identifier: GPL-3.0-or-later

package meter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaugeSingleMeasurement(t *testing.T) {
	reg := NewRegistry()
	g := reg.Gauge("queue_depth")
	g.SetMeasurement(func() (float64, error) { return 17, nil })

	recs := g.Metrics()
	require.Len(t, recs, 1)
	assert.Equal(t, "queue_depth", recs[0].Name)
	assert.Equal(t, 17.0, recs[0].Value)
	assert.Equal(t, TypeGauge, recs[0].Type)
	assert.Empty(t, recs[0].Tags)
}

func TestGaugeMeasuredFresh(t *testing.T) {
	reg := NewRegistry()
	g := reg.Gauge("queue_depth")

	depth := 0.0
	g.SetMeasurement(func() (float64, error) { depth++; return depth, nil })

	recs := g.Metrics()
	require.Len(t, recs, 1)
	assert.Equal(t, 1.0, recs[0].Value)

	recs = g.Metrics()
	require.Len(t, recs, 1)
	assert.Equal(t, 2.0, recs[0].Value, "every collection invokes the measurement anew")
}

func TestGaugeKeyedMeasurement(t *testing.T) {
	reg := NewRegistry()
	g := reg.Gauge("memory_usage")
	require.NoError(t, g.SetTags(map[string]string{"pid": "1234"}))
	g.SetKeyedMeasurement("memory_type", func() (map[string]float64, error) {
		return map[string]float64{"rss": 1024, "vms": 4096}, nil
	})

	recs := g.Metrics()
	require.Len(t, recs, 2)

	assert.Equal(t, TagSet{{"memory_type", "rss"}, {"pid", "1234"}}, recs[0].Tags)
	assert.Equal(t, 1024.0, recs[0].Value)
	assert.Equal(t, TagSet{{"memory_type", "vms"}, {"pid", "1234"}}, recs[1].Tags)
	assert.Equal(t, 4096.0, recs[1].Value)
}

func TestGaugeKeyedOrderIsDeterministic(t *testing.T) {
	reg := NewRegistry()
	g := reg.Gauge("cpu_times")
	g.SetKeyedMeasurement("stat", func() (map[string]float64, error) {
		return map[string]float64{"user": 1, "system": 2, "idle": 3, "iowait": 4}, nil
	})

	for i := 0; i < 5; i++ {
		recs := g.Metrics()
		require.Len(t, recs, 4)
		var subs []string
		for _, r := range recs {
			v, ok := r.Tags.Get("stat")
			require.True(t, ok)
			subs = append(subs, v)
		}
		assert.Equal(t, []string{"idle", "iowait", "system", "user"}, subs)
	}
}

func TestGaugeFailuresYieldNoRecords(t *testing.T) {
	tests := map[string]struct {
		setup func(g *Gauge)
	}{
		"no measurement installed": {
			setup: func(g *Gauge) {},
		},
		"measurement returns error": {
			setup: func(g *Gauge) {
				g.SetMeasurement(func() (float64, error) { return 0, errors.New("probe offline") })
			},
		},
		"keyed measurement returns error": {
			setup: func(g *Gauge) {
				g.SetKeyedMeasurement("stat", func() (map[string]float64, error) {
					return nil, errors.New("probe offline")
				})
			},
		},
		"measurement panics": {
			setup: func(g *Gauge) {
				g.SetMeasurement(func() (float64, error) { panic("boom") })
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			g := NewRegistry().Gauge("flaky")
			test.setup(g)

			assert.NotPanics(t, func() {
				assert.Empty(t, g.Metrics())
			})
		})
	}
}

func TestGaugeMeasurementModesAreExclusive(t *testing.T) {
	reg := NewRegistry()
	g := reg.Gauge("depth")
	g.SetKeyedMeasurement("k", func() (map[string]float64, error) {
		return map[string]float64{"a": 1}, nil
	})
	g.SetMeasurement(func() (float64, error) { return 5, nil })

	recs := g.Metrics()
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].Tags, "installing a single measurement clears the keyed one")
	assert.Equal(t, 5.0, recs[0].Value)
}
