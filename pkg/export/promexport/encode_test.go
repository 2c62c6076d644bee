// SPDX-License-Identifier: GPL-3.0-or-later

package promexport

import (
	"strings"
	"testing"

	"github.com/meterflow/meterflow/pkg/meter"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	recs := []meter.Record{
		{Name: "test_counter", Value: 3, Type: meter.TypeCounter},
		{
			Name: "http_requests",
			Tags: meter.TagSet{
				{Key: "method", Value: "GET"},
				{Key: "status", Value: "200"},
			},
			Value: 17,
			Type:  meter.TypeCounter,
		},
		{Name: "queue_depth", Value: 2.5, Type: meter.TypeGauge},
		{Name: "db_query_time_count", Value: 2, Type: meter.TypeSummary},
		{Name: "db_query_time_sum", Value: 0.5, Type: meter.TypeSummary},
		{Name: "latency_sum", Value: 4950, Type: meter.TypeHistogram},
		{Name: "latency_count", Value: 100, Type: meter.TypeHistogram},
		{
			Name:  "latency_bucket",
			Tags:  meter.TagSet{{Key: "le", Value: "49.5"}},
			Value: 50,
			Type:  meter.TypeHistogram,
		},
		{
			Name:  "latency_bucket",
			Tags:  meter.TagSet{{Key: "le", Value: "99.0"}},
			Value: 50,
			Type:  meter.TypeHistogram,
		},
		{
			Name:  "latency_percentile",
			Tags:  meter.TagSet{{Key: "percentile", Value: "50"}},
			Value: 49.5,
			Type:  meter.TypeGauge,
		},
	}

	want := `#TYPE test_counter counter
test_counter{} 3
#TYPE http_requests counter
http_requests{method="GET", status="200"} 17
#TYPE queue_depth gauge
queue_depth{} 2.5
#TYPE db_query_time summary
db_query_time_count{} 2
db_query_time_sum{} 0.5
#TYPE latency histogram
latency_sum{} 4950
latency_count{} 100
latency_bucket{le="49.5"} 50
latency_bucket{le="99.0"} 50
#TYPE latency_percentile gauge
latency_percentile{percentile="50"} 49.5
`

	assert.Equal(t, want, Encode(recs))
}

func TestEncodeEmpty(t *testing.T) {
	assert.Equal(t, "", Encode(nil))
}

func TestEncodeGroupsNonAdjacentRecords(t *testing.T) {
	recs := []meter.Record{
		{
			Name:  "http_requests",
			Tags:  meter.TagSet{{Key: "status", Value: "200"}},
			Value: 5,
			Type:  meter.TypeCounter,
		},
		{Name: "queue_depth", Value: 1, Type: meter.TypeGauge},
		{
			Name:  "http_requests",
			Tags:  meter.TagSet{{Key: "status", Value: "500"}},
			Value: 2,
			Type:  meter.TypeCounter,
		},
	}

	want := `#TYPE http_requests counter
http_requests{status="200"} 5
http_requests{status="500"} 2
#TYPE queue_depth gauge
queue_depth{} 1
`

	assert.Equal(t, want, Encode(recs))
}

func TestFormatValue(t *testing.T) {
	tests := map[string]struct {
		v    float64
		want string
	}{
		"integral":            {4950, "4950"},
		"fractional":          {49.5, "49.5"},
		"one":                 {1, "1"},
		"sub one":             {0.5, "0.5"},
		"long representation": {89.10000000000001, "89.10000000000001"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.want, formatValue(test.v))
		})
	}
}

func TestEncodeOutputParses(t *testing.T) {
	reg := meter.NewRegistry()

	c := reg.Counter("http_requests")
	require.NoError(t, c.SetTags(map[string]string{"method": "GET"}))
	c.Increment(17)

	reg.Gauge("queue_depth").SetMeasurement(func() (float64, error) { return 2.5, nil })

	tm := reg.Timer("db_query")
	_, _ = tm.Wrap(func(args ...any) (any, error) { return nil, nil })()

	h := reg.Histogram("latency")
	h.SetBinCount(2)
	h.SetPercentiles([]float64{50})
	for i := 0; i < 100; i++ {
		h.Observe(float64(i))
	}

	text := Encode(reg.Snapshot())

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(strings.NewReader(text))
	require.NoError(t, err, "exposition text must parse:\n%s", text)

	require.Contains(t, mfs, "http_requests")
	require.Contains(t, mfs, "queue_depth")
	require.Contains(t, mfs, "db_query_time")
	require.Contains(t, mfs, "latency")
	require.Contains(t, mfs, "latency_percentile")

	counter := mfs["http_requests"]
	assert.Equal(t, "COUNTER", counter.GetType().String())
	require.Len(t, counter.GetMetric(), 1)
	assert.Equal(t, float64(17), counter.GetMetric()[0].GetCounter().GetValue())
	require.Len(t, counter.GetMetric()[0].GetLabel(), 1)
	assert.Equal(t, "method", counter.GetMetric()[0].GetLabel()[0].GetName())
	assert.Equal(t, "GET", counter.GetMetric()[0].GetLabel()[0].GetValue())

	gauge := mfs["queue_depth"]
	assert.Equal(t, "GAUGE", gauge.GetType().String())
	require.Len(t, gauge.GetMetric(), 1)
	assert.Equal(t, 2.5, gauge.GetMetric()[0].GetGauge().GetValue())

	summary := mfs["db_query_time"]
	assert.Equal(t, "SUMMARY", summary.GetType().String())
	require.Len(t, summary.GetMetric(), 1)
	assert.Equal(t, uint64(1), summary.GetMetric()[0].GetSummary().GetSampleCount())

	hist := mfs["latency"]
	assert.Equal(t, "HISTOGRAM", hist.GetType().String())
	require.Len(t, hist.GetMetric(), 1)
	assert.Equal(t, uint64(100), hist.GetMetric()[0].GetHistogram().GetSampleCount())
	assert.Equal(t, float64(4950), hist.GetMetric()[0].GetHistogram().GetSampleSum())
	require.Len(t, hist.GetMetric()[0].GetHistogram().GetBucket(), 2)

	pct := mfs["latency_percentile"]
	require.Len(t, pct.GetMetric(), 1)
	assert.Equal(t, 49.5, pct.GetMetric()[0].GetGauge().GetValue())
}
