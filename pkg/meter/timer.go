// SPDX-License-Identifier: GPL-3.0-or-later

package meter

import "time"

const timerCounterSuffix = "_time_count"

// Timer measures the total wall-clock time spent in a wrapped callable per
// resolved key, paired with a companion Counter tracking invocation counts
// under the derived name <name>_time_count. Together the two emit a
// Prometheus-style summary. For distribution detail use a Histogram instead.
type Timer struct {
	meterBase

	count  *Counter
	totals map[string]*timerSeries
	order  []string
}

type timerSeries struct {
	tags    TagSet
	seconds float64
}

// newTimer must run inside the registry lock: the companion counter is
// resolved get-or-create under the same critical section as the timer itself.
func newTimer(reg *Registry, name string) *Timer {
	count := reg.counterLocked(name + timerCounterSuffix)
	count.SetExportType(TypeSummary)

	return &Timer{
		meterBase: newMeterBase(reg, KindTimer, name),
		count:     count,
		totals:    make(map[string]*timerSeries),
	}
}

// Count returns the companion counter.
func (t *Timer) Count() *Counter { return t.count }

// Wrap returns a function that invokes fn and measures its wall-clock
// duration, runs the augmentor hook, accumulates the elapsed seconds under
// the resolved key, and increments the companion counter for that same key.
// An error or panic from fn propagates unchanged and nothing is recorded.
func (t *Timer) Wrap(fn Func) Func {
	return func(args ...any) (any, error) {
		start := time.Now()
		result, err := fn(args...)
		if err != nil {
			return result, err
		}
		elapsed := time.Since(start).Seconds()

		t.runAugmentor(t, result, args)
		set, key := t.resolveTags()

		t.mu.Lock()
		s, ok := t.totals[key]
		if !ok {
			s = &timerSeries{tags: set}
			t.totals[key] = s
			t.order = append(t.order, key)
		}
		s.seconds += elapsed
		t.mu.Unlock()

		t.count.incrementKey(set, key, 1)

		return result, nil
	}
}

// Metrics emits one <name>_time_sum record per key with the cumulative
// elapsed seconds. The companion counter contributes the matching
// <name>_time_count records through its own collection.
func (t *Timer) Metrics() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	recs := make([]Record, 0, len(t.order))
	for _, key := range t.order {
		s := t.totals[key]
		recs = append(recs, Record{Name: t.name + "_time_sum", Tags: s.tags, Value: s.seconds, Type: TypeSummary})
	}
	return recs
}
