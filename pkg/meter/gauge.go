// SPDX-License-Identifier: GPL-3.0-or-later

package meter

import "sort"

// Gauge holds no value of its own: it stores a measurement function that is
// invoked fresh on every collection, so the reported value can move both ways.
type Gauge struct {
	meterBase

	fn      func() (float64, error)
	keyTag  string
	keyedFn func() (map[string]float64, error)
}

func newGauge(reg *Registry, name string) *Gauge {
	return &Gauge{meterBase: newMeterBase(reg, KindGauge, name)}
}

// SetMeasurement installs a single-value measurement function. Each
// collection produces exactly one record carrying its return value.
func (g *Gauge) SetMeasurement(fn func() (float64, error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fn = fn
	g.keyedFn = nil
	g.keyTag = ""
}

// SetKeyedMeasurement installs a measurement function returning a map of
// sub-key to value. Each collection produces one record per entry, with the
// extra tag {keyTag: sub-key} appended to the gauge's base key.
func (g *Gauge) SetKeyedMeasurement(keyTag string, fn func() (map[string]float64, error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fn = nil
	g.keyedFn = fn
	g.keyTag = keyTag
}

// Metrics invokes the measurement function. Any failure (no function
// installed, error return, panic) is logged and yields zero records; it never
// aborts the snapshot the gauge is part of.
func (g *Gauge) Metrics() (recs []Record) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Errorf("measurement panic: %v", r)
			recs = nil
		}
	}()

	g.mu.Lock()
	fn, keyedFn, keyTag := g.fn, g.keyedFn, g.keyTag
	g.mu.Unlock()

	switch {
	case fn != nil:
		v, err := fn()
		if err != nil {
			g.log.Warningf("measurement failed: %v", err)
			return nil
		}
		g.runAugmentor(g, v, nil)
		set, _ := g.resolveTags()
		return []Record{{Name: g.name, Tags: set, Value: v, Type: TypeGauge}}

	case keyedFn != nil:
		values, err := keyedFn()
		if err != nil {
			g.log.Warningf("measurement failed: %v", err)
			return nil
		}
		g.runAugmentor(g, values, nil)
		base := g.resolveTagMap()

		subKeys := make([]string, 0, len(values))
		for k := range values {
			subKeys = append(subKeys, k)
		}
		sort.Strings(subKeys)

		recs = make([]Record, 0, len(subKeys))
		for _, sub := range subKeys {
			tags := cloneTags(base)
			tags[keyTag] = sub
			set, _ := canonicalTags(tags)
			recs = append(recs, Record{Name: g.name, Tags: set, Value: values[sub], Type: TypeGauge})
		}
		return recs

	default:
		g.log.Warning("no measurement function installed")
		return nil
	}
}
