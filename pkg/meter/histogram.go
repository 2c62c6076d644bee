// SPDX-License-Identifier: GPL-3.0-or-later

package meter

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

const (
	defaultHistogramCapacity = 1000
	defaultHistogramBins     = 10
)

var defaultPercentiles = []float64{50, 75, 90, 95, 99}

// Histogram keeps a bounded window of recorded samples per resolved tag key
// and derives distribution statistics from it at collection time: sum, count,
// equal-width buckets over the observed range, and configured percentiles.
// All statistics reflect only the currently retained window, not full
// history.
type Histogram struct {
	meterBase

	capacity    int
	bins        int
	percentiles []float64
	series      map[string]*histogramSeries
	order       []string
}

// histogramSeries is a ring-buffered sample window. Once full, each append
// overwrites the oldest retained sample.
type histogramSeries struct {
	tags    TagSet
	capa    int
	samples []float64
	head    int // index of the oldest sample once the ring is full
}

func (s *histogramSeries) append(v float64, capacity int) {
	if s.capa != capacity {
		ordered := s.ordered()
		if len(ordered) > capacity {
			ordered = ordered[len(ordered)-capacity:]
		}
		s.samples = ordered
		s.head = 0
		s.capa = capacity
	}
	if len(s.samples) < s.capa {
		s.samples = append(s.samples, v)
		return
	}
	s.samples[s.head] = v
	s.head = (s.head + 1) % s.capa
}

// ordered returns a copy of the retained samples, oldest first.
func (s *histogramSeries) ordered() []float64 {
	out := make([]float64, 0, len(s.samples))
	out = append(out, s.samples[s.head:]...)
	out = append(out, s.samples[:s.head]...)
	return out
}

func newHistogram(reg *Registry, name string) *Histogram {
	return &Histogram{
		meterBase:   newMeterBase(reg, KindHistogram, name),
		capacity:    defaultHistogramCapacity,
		bins:        defaultHistogramBins,
		percentiles: append([]float64(nil), defaultPercentiles...),
		series:      make(map[string]*histogramSeries),
	}
}

// SetCapacity bounds the number of samples retained per key. Larger windows
// cost memory and collection time. Takes effect on the next recorded sample;
// shrinking keeps the newest samples.
func (h *Histogram) SetCapacity(n int) {
	if n < 1 {
		h.log.Warningf("ignoring invalid sample capacity %d", n)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.capacity = n
}

// SetBinCount sets how many equal-width buckets collection derives.
func (h *Histogram) SetBinCount(n int) {
	if n < 1 {
		h.log.Warningf("ignoring invalid bin count %d", n)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bins = n
}

// SetPercentiles sets the percentiles calculated at collection time.
func (h *Histogram) SetPercentiles(percentiles []float64) {
	for _, p := range percentiles {
		if p < 0 || p > 100 {
			h.log.Warningf("ignoring percentile list with out-of-range entry %v", p)
			return
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.percentiles = append([]float64(nil), percentiles...)
}

// Observe appends value to the sample window for the currently resolved key,
// evicting the oldest retained sample once the window is full. Resolution
// consumes any context tags.
func (h *Histogram) Observe(v float64) {
	set, key := h.resolveTags()
	h.observeKey(set, key, v)
}

func (h *Histogram) observeKey(set TagSet, key string, v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.series[key]
	if !ok {
		s = &histogramSeries{tags: set, capa: h.capacity}
		h.series[key] = s
		h.order = append(h.order, key)
	}
	s.append(v, h.capacity)
}

// Wrap returns a function that invokes fn and records its result as a
// sample, coercing non-numeric results where a coercion exists. A result
// that cannot be coerced is logged and skipped; errors and panics from fn
// propagate unchanged with nothing recorded.
func (h *Histogram) Wrap(fn Func) Func {
	return func(args ...any) (any, error) {
		result, err := fn(args...)
		if err != nil {
			return result, err
		}

		v, cerr := coerceFloat(result)
		if cerr != nil {
			h.log.Errorf("cannot record result: %v", cerr)
			return result, nil
		}

		h.runAugmentor(h, result, args)
		set, key := h.resolveTags()
		h.observeKey(set, key, v)

		return result, nil
	}
}

// Metrics emits, per key: a _sum and _count record, one _bucket record per
// bin (lower-inclusive equal-width partition of the observed range, last bin
// closed) tagged with the bin's upper edge, and one gauge-typed _percentile
// record per configured percentile.
func (h *Histogram) Metrics() []Record {
	h.mu.Lock()
	type seriesView struct {
		tags    TagSet
		samples []float64
	}
	views := make([]seriesView, 0, len(h.order))
	for _, key := range h.order {
		s := h.series[key]
		views = append(views, seriesView{tags: s.tags, samples: s.ordered()})
	}
	bins := h.bins
	percentiles := append([]float64(nil), h.percentiles...)
	h.mu.Unlock()

	var recs []Record

	sums := make([]float64, len(views))
	for i, v := range views {
		for _, sample := range v.samples {
			sums[i] += sample
		}
		recs = append(recs, Record{Name: h.name + "_sum", Tags: v.tags, Value: sums[i], Type: TypeHistogram})
	}
	for _, v := range views {
		recs = append(recs, Record{Name: h.name + "_count", Tags: v.tags, Value: float64(len(v.samples)), Type: TypeHistogram})
	}

	for i := range views {
		sort.Float64s(views[i].samples)
	}

	for _, v := range views {
		edges, counts := binSamples(v.samples, bins)
		for i, c := range counts {
			tags := v.tags.withTag("le", formatBucketEdge(edges[i+1]))
			recs = append(recs, Record{Name: h.name + "_bucket", Tags: tags, Value: float64(c), Type: TypeHistogram})
		}
	}

	for _, p := range percentiles {
		for _, v := range views {
			tags := v.tags.withTag("percentile", formatTagNumber(p))
			recs = append(recs, Record{Name: h.name + "_percentile", Tags: tags, Value: percentileOf(v.samples, p), Type: TypeGauge})
		}
	}

	return recs
}

// withTag returns a copy of the set with one extra pair slotted into
// canonical position. An existing pair under the same key is replaced.
func (s TagSet) withTag(key, value string) TagSet {
	out := make(TagSet, 0, len(s)+1)
	inserted := false
	for _, t := range s {
		if !inserted && key <= t.Key {
			out = append(out, Tag{Key: key, Value: value})
			inserted = true
			if key == t.Key {
				continue
			}
		}
		out = append(out, t)
	}
	if !inserted {
		out = append(out, Tag{Key: key, Value: value})
	}
	return out
}

// binSamples partitions the observed sample range into equal-width bins and
// counts the samples in each. Samples must be sorted ascending. A constant
// sample set widens the range by 0.5 on both sides.
func binSamples(sorted []float64, bins int) (edges []float64, counts []int) {
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}

	edges = linspace(lo, hi, bins+1)
	counts = make([]int, bins)

	norm := float64(bins) / (hi - lo)
	for _, v := range sorted {
		idx := int((v - lo) * norm)
		if idx >= bins {
			idx = bins - 1
		}
		// correct for rounding in the index arithmetic against the real edges
		if v < edges[idx] {
			idx--
		} else if idx != bins-1 && v >= edges[idx+1] {
			idx++
		}
		counts[idx]++
	}
	return edges, counts
}

// linspace returns num equally spaced values from start to stop inclusive.
// The float64 conversion forces separate rounding of the multiply so edge
// values (and their rendered labels) are identical on FMA architectures.
func linspace(start, stop float64, num int) []float64 {
	step := (stop - start) / float64(num-1)
	out := make([]float64, num)
	for i := range out {
		out[i] = float64(float64(i)*step) + start
	}
	out[num-1] = stop
	return out
}

// percentileOf estimates the p-th percentile of sorted samples using linear
// interpolation between closest ranks.
func percentileOf(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	if lo >= n-1 {
		return sorted[n-1]
	}

	t := rank - float64(lo)
	a, b := sorted[lo], sorted[lo+1]
	d := b - a
	if t >= 0.5 {
		return b - float64(d*(1-t))
	}
	return a + float64(d*t)
}

// formatBucketEdge renders a bucket upper edge for the le tag. Integral
// edges keep one decimal so consumers see a float-typed boundary.
func formatBucketEdge(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTagNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// coerceFloat renders a wrapped callable's result as a sample value.
func coerceFloat(v any) (float64, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case time.Duration:
		return v.Seconds(), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: cannot parse %q as a number", ErrMeasurementShape, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: cannot coerce %T to a number", ErrMeasurementShape, v)
	}
}
