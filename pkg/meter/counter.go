// SPDX-License-Identifier: GPL-3.0-or-later

package meter

// Counter tracks monotonically non-decreasing totals, one per resolved tag
// key. Use it for values that only ever grow, such as invocation counts; for
// values that move both ways use a Gauge.
type Counter struct {
	meterBase

	exportType ExportType
	series     map[string]*counterSeries
	order      []string
}

type counterSeries struct {
	tags  TagSet
	total int64
}

func newCounter(reg *Registry, name string) *Counter {
	return &Counter{
		meterBase:  newMeterBase(reg, KindCounter, name),
		exportType: TypeCounter,
		series:     make(map[string]*counterSeries),
	}
}

// Increment adds amount to the series for the currently resolved key,
// creating it at zero if absent. Resolution consumes any context tags.
// Negative amounts are dropped with a log: totals never decrease.
func (c *Counter) Increment(amount int64) {
	set, key := c.resolveTags()
	c.incrementKey(set, key, amount)
}

func (c *Counter) incrementKey(set TagSet, key string, amount int64) {
	if amount < 0 {
		c.log.Warningf("dropping negative increment %d", amount)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.series[key]
	if !ok {
		s = &counterSeries{tags: set}
		c.series[key] = s
		c.order = append(c.order, key)
	}
	s.total += amount
}

// Wrap returns a function that invokes fn, runs the augmentor hook with the
// call's arguments and result, and increments by one under the resolved key.
// An error or panic from fn propagates unchanged and nothing is counted.
func (c *Counter) Wrap(fn Func) Func {
	return func(args ...any) (any, error) {
		result, err := fn(args...)
		if err != nil {
			return result, err
		}

		c.runAugmentor(c, result, args)
		set, key := c.resolveTags()
		c.incrementKey(set, key, 1)

		return result, nil
	}
}

// SetExportType overrides the export type stamped on this counter's records.
// Its intended use is the summary pairing of a Timer's companion counter.
func (c *Counter) SetExportType(t ExportType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exportType = t
}

// Metrics emits one record per tracked series, in first-use order.
func (c *Counter) Metrics() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	recs := make([]Record, 0, len(c.order))
	for _, key := range c.order {
		s := c.series[key]
		recs = append(recs, Record{Name: c.name, Tags: s.tags, Value: float64(s.total), Type: c.exportType})
	}
	return recs
}
