// SPDX-License-Identifier: GPL-3.0-or-later

package meter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func observeRange(h *Histogram, n int) {
	for i := 0; i < n; i++ {
		h.Observe(float64(i))
	}
}

func TestHistogramDistributionFixture(t *testing.T) {
	reg := NewRegistry()
	h := reg.Histogram("latency")
	observeRange(h, 100)

	recs := h.Metrics()
	require.Len(t, recs, 17)

	assert.Equal(t, Record{Name: "latency_sum", Value: 4950, Type: TypeHistogram}, recs[0])
	assert.Equal(t, Record{Name: "latency_count", Value: 100, Type: TypeHistogram}, recs[1])

	wantEdges := []string{
		"9.9", "19.8", "29.700000000000003", "39.6", "49.5",
		"59.400000000000006", "69.3", "79.2", "89.10000000000001", "99.0",
	}
	for i, le := range wantEdges {
		rec := recs[2+i]
		assert.Equal(t, "latency_bucket", rec.Name)
		assert.Equal(t, TagSet{{"le", le}}, rec.Tags)
		assert.Equal(t, 10.0, rec.Value, "equal-width bins over 0..99 hold 10 samples each")
		assert.Equal(t, TypeHistogram, rec.Type)
	}

	wantPercentiles := []struct {
		label string
		value float64
	}{
		{"50", 49.5},
		{"75", 74.25},
		{"90", 89.10000000000001},
		{"95", 94.05},
		{"99", 98.01},
	}
	for i, want := range wantPercentiles {
		rec := recs[12+i]
		assert.Equal(t, "latency_percentile", rec.Name)
		assert.Equal(t, TagSet{{"percentile", want.label}}, rec.Tags)
		assert.Equal(t, want.value, rec.Value)
		assert.Equal(t, TypeGauge, rec.Type)
	}
}

func TestHistogramBinCount(t *testing.T) {
	reg := NewRegistry()
	h := reg.Histogram("latency")
	h.SetBinCount(2)
	observeRange(h, 100)

	recs := h.Metrics()

	var buckets []Record
	for _, r := range recs {
		if r.Name == "latency_bucket" {
			buckets = append(buckets, r)
		}
	}
	require.Len(t, buckets, 2)
	assert.Equal(t, TagSet{{"le", "49.5"}}, buckets[0].Tags)
	assert.Equal(t, 50.0, buckets[0].Value)
	assert.Equal(t, TagSet{{"le", "99.0"}}, buckets[1].Tags)
	assert.Equal(t, 50.0, buckets[1].Value)
}

func TestHistogramCapacityKeepsNewest(t *testing.T) {
	reg := NewRegistry()
	h := reg.Histogram("latency")
	h.SetCapacity(25)
	observeRange(h, 100)

	recs := h.Metrics()
	require.NotEmpty(t, recs)
	assert.Equal(t, "latency_sum", recs[0].Name)
	assert.Equal(t, 2175.0, recs[0].Value, "the window retains 75..99")
	assert.Equal(t, "latency_count", recs[1].Name)
	assert.Equal(t, 25.0, recs[1].Value)
}

func TestHistogramCapacityShrinkMidStream(t *testing.T) {
	reg := NewRegistry()
	h := reg.Histogram("latency")
	observeRange(h, 10)
	h.SetCapacity(5)
	h.Observe(10)

	recs := h.Metrics()
	require.NotEmpty(t, recs)
	assert.Equal(t, 40.0, recs[0].Value, "shrinking keeps the newest samples: 6..10")
	assert.Equal(t, 5.0, recs[1].Value)
}

func TestHistogramPercentileConfig(t *testing.T) {
	reg := NewRegistry()
	h := reg.Histogram("latency")
	h.SetPercentiles([]float64{10, 50, 75})
	observeRange(h, 100)

	recs := h.Metrics()

	var pcts []Record
	for _, r := range recs {
		if r.Name == "latency_percentile" {
			pcts = append(pcts, r)
		}
	}
	require.Len(t, pcts, 3)

	assert.Equal(t, TagSet{{"percentile", "10"}}, pcts[0].Tags)
	assert.InDelta(t, 9.9, pcts[0].Value, 1e-9)
	assert.Equal(t, TagSet{{"percentile", "50"}}, pcts[1].Tags)
	assert.Equal(t, 49.5, pcts[1].Value)
	assert.Equal(t, TagSet{{"percentile", "75"}}, pcts[2].Tags)
	assert.Equal(t, 74.25, pcts[2].Value)
}

func TestHistogramPercentilesNonDecreasing(t *testing.T) {
	reg := NewRegistry()
	h := reg.Histogram("latency")
	h.SetPercentiles([]float64{0, 10, 25, 50, 66.6, 75, 90, 95, 99, 100})

	for _, v := range []float64{3, 3, 0.1, 42, 7, 7, 7, 1000, -5, 0.3, 42} {
		h.Observe(v)
	}

	var prev float64
	var seen int
	for _, r := range h.Metrics() {
		if r.Name != "latency_percentile" {
			continue
		}
		if seen > 0 {
			assert.GreaterOrEqual(t, r.Value, prev, "tags: %v", r.Tags)
		}
		prev = r.Value
		seen++
	}
	assert.Equal(t, 10, seen)
}

func TestHistogramConstantSamples(t *testing.T) {
	reg := NewRegistry()
	h := reg.Histogram("latency")
	for i := 0; i < 3; i++ {
		h.Observe(5)
	}

	recs := h.Metrics()
	require.NotEmpty(t, recs)
	assert.Equal(t, 15.0, recs[0].Value)
	assert.Equal(t, 3.0, recs[1].Value)

	var binned float64
	var nonZero int
	for _, r := range recs {
		if r.Name == "latency_bucket" {
			binned += r.Value
			if r.Value > 0 {
				nonZero++
			}
		}
		if r.Name == "latency_percentile" {
			assert.Equal(t, 5.0, r.Value)
		}
	}
	assert.Equal(t, 3.0, binned, "bucket counts account for every sample")
	assert.Equal(t, 1, nonZero, "a constant distribution lands in a single bin")
}

func TestHistogramEmissionOrderPerKey(t *testing.T) {
	reg := NewRegistry()
	h := reg.Histogram("latency")
	h.SetPercentiles([]float64{50, 75})

	require.NoError(t, h.SetContextTags(map[string]string{"route": "/a"}))
	h.Observe(1)
	require.NoError(t, h.SetContextTags(map[string]string{"route": "/b"}))
	h.Observe(3)

	recs := h.Metrics()
	require.Len(t, recs, 2+2+20+4)

	var names []string
	for _, r := range recs {
		names = append(names, r.Name)
	}

	want := []string{"latency_sum", "latency_sum", "latency_count", "latency_count"}
	for i := 0; i < 20; i++ {
		want = append(want, "latency_bucket")
	}
	for i := 0; i < 4; i++ {
		want = append(want, "latency_percentile")
	}
	assert.Equal(t, want, names, "sums, then counts, then buckets per key, then percentiles")

	route := func(r Record) string { v, _ := r.Tags.Get("route"); return v }
	assert.Equal(t, "/a", route(recs[0]))
	assert.Equal(t, "/b", route(recs[1]))

	// percentiles interleave keys inside each percentile
	pct := func(r Record) string { v, _ := r.Tags.Get("percentile"); return v }
	assert.Equal(t, []string{"50", "/a"}, []string{pct(recs[24]), route(recs[24])})
	assert.Equal(t, []string{"50", "/b"}, []string{pct(recs[25]), route(recs[25])})
	assert.Equal(t, []string{"75", "/a"}, []string{pct(recs[26]), route(recs[26])})
	assert.Equal(t, []string{"75", "/b"}, []string{pct(recs[27]), route(recs[27])})
}

func TestHistogramWrapCoercion(t *testing.T) {
	reg := NewRegistry()
	h := reg.Histogram("payload")

	results := []any{
		1500 * time.Millisecond, // 1.5
		"2.5",
		true, // 1
		3,
		float32(0.5),
	}
	for _, res := range results {
		res := res
		wrapped := h.Wrap(func(...any) (any, error) { return res, nil })
		_, err := wrapped()
		require.NoError(t, err)
	}

	recs := h.Metrics()
	require.NotEmpty(t, recs)
	assert.Equal(t, 8.5, recs[0].Value)
	assert.Equal(t, 5.0, recs[1].Value)
}

func TestHistogramWrapUnusableResult(t *testing.T) {
	reg := NewRegistry()
	h := reg.Histogram("payload")

	wrapped := h.Wrap(func(...any) (any, error) { return struct{}{}, nil })
	result, err := wrapped()
	require.NoError(t, err, "an unrecordable result is not the caller's failure")
	assert.Equal(t, struct{}{}, result)
	assert.Empty(t, h.Metrics())
}

func TestHistogramWrapError(t *testing.T) {
	reg := NewRegistry()
	h := reg.Histogram("payload")

	boom := errors.New("boom")
	wrapped := h.Wrap(func(...any) (any, error) { return 7, boom })

	_, err := wrapped()
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, h.Metrics())
}

func TestHistogramSettersRejectInvalid(t *testing.T) {
	reg := NewRegistry()
	h := reg.Histogram("latency")

	h.SetCapacity(2)
	h.SetCapacity(0)
	h.Observe(1)
	h.Observe(2)
	h.Observe(3)

	recs := h.Metrics()
	require.NotEmpty(t, recs)
	assert.Equal(t, 5.0, recs[0].Value, "the valid capacity stands, the invalid one is ignored")
	assert.Equal(t, 2.0, recs[1].Value)

	h.SetPercentiles([]float64{50, 101})
	var pcts int
	for _, r := range h.Metrics() {
		if r.Name == "latency_percentile" {
			pcts++
		}
	}
	assert.Equal(t, len(defaultPercentiles), pcts, "a list with an out-of-range entry is rejected whole")
}

func TestCoerceFloat(t *testing.T) {
	tests := map[string]struct {
		input   any
		want    float64
		wantErr bool
	}{
		"float64":        {input: 1.5, want: 1.5},
		"int":            {input: -3, want: -3},
		"uint64":         {input: uint64(9), want: 9},
		"bool true":      {input: true, want: 1},
		"bool false":     {input: false, want: 0},
		"duration":       {input: 250 * time.Millisecond, want: 0.25},
		"numeric string": {input: "42.5", want: 42.5},
		"other string":   {input: "rows", wantErr: true},
		"struct":         {input: struct{}{}, wantErr: true},
		"nil":            {input: nil, wantErr: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := coerceFloat(test.input)
			if test.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMeasurementShape)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}
