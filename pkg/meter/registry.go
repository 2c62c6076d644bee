// SPDX-License-Identifier: GPL-3.0-or-later

package meter

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/meterflow/meterflow/logger"
)

const defaultCollectTimeout = 10 * time.Second

// identity is the registry key: instruments of different kinds may share a
// name.
type identity struct {
	kind Kind
	name string
}

// Registry owns instrument identities, the process-wide global tags and the
// collection worker. Construct one per process by convention; tests isolate
// themselves with a fresh instance instead of resetting a shared one.
type Registry struct {
	log *logger.Logger

	mu     sync.Mutex
	meters map[identity]Meter
	order  []identity
	global map[string]string

	timeout time.Duration

	workerOnce sync.Once
	snapshotCh chan chan []Record
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		log:     logger.New().With(slog.String("component", "meter registry")),
		meters:  make(map[identity]Meter),
		global:  make(map[string]string),
		timeout: defaultCollectTimeout,
	}
}

// Default is the process-wide registry used by the package-level helpers.
var Default = NewRegistry()

// GetCounter returns the named counter from the Default registry, creating
// it on first use.
func GetCounter(name string) *Counter { return Default.Counter(name) }

// GetGauge returns the named gauge from the Default registry, creating it on
// first use.
func GetGauge(name string) *Gauge { return Default.Gauge(name) }

// GetTimer returns the named timer from the Default registry, creating it on
// first use.
func GetTimer(name string) *Timer { return Default.Timer(name) }

// GetHistogram returns the named histogram from the Default registry,
// creating it on first use.
func GetHistogram(name string) *Histogram { return Default.Histogram(name) }

// SetCollectTimeout bounds how long a snapshot waits for its instruments.
// Instruments still outstanding when the bound is hit contribute zero
// records to that snapshot. The default is 10 seconds.
func (r *Registry) SetCollectTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeout = d
}

// AddGlobalTags merges tags into the process-wide tags applied to every
// instrument's key, right-biased.
func (r *Registry) AddGlobalTags(tags map[string]string) error {
	if err := validateTagKeys(tags); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	mergeTags(r.global, tags)
	return nil
}

// RemoveGlobalTags deletes global tags by key. Missing keys are ignored.
func (r *Registry) RemoveGlobalTags(keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.global, k)
	}
}

// GlobalTags returns a copy of the process-wide tags.
func (r *Registry) GlobalTags() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneTags(r.global)
}

// Counter returns the named counter, creating and registering it on first
// use. Construction and registration are atomic with respect to concurrent
// callers.
func (r *Registry) Counter(name string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counterLocked(name)
}

func (r *Registry) counterLocked(name string) *Counter {
	id := identity{kind: KindCounter, name: name}
	if m, ok := r.meters[id]; ok {
		return m.(*Counter)
	}
	c := newCounter(r, name)
	r.insertLocked(id, c)
	return c
}

// Gauge returns the named gauge, creating and registering it on first use.
func (r *Registry) Gauge(name string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := identity{kind: KindGauge, name: name}
	if m, ok := r.meters[id]; ok {
		return m.(*Gauge)
	}
	g := newGauge(r, name)
	r.insertLocked(id, g)
	return g
}

// Timer returns the named timer, creating and registering it on first use
// together with its companion counter.
func (r *Registry) Timer(name string) *Timer {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := identity{kind: KindTimer, name: name}
	if m, ok := r.meters[id]; ok {
		return m.(*Timer)
	}
	t := newTimer(r, name)
	r.insertLocked(id, t)
	return t
}

// Histogram returns the named histogram, creating and registering it on
// first use.
func (r *Registry) Histogram(name string) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := identity{kind: KindHistogram, name: name}
	if m, ok := r.meters[id]; ok {
		return m.(*Histogram)
	}
	h := newHistogram(r, name)
	r.insertLocked(id, h)
	return h
}

// Meters returns the registered instruments in registration order.
func (r *Registry) Meters() []Meter {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Meter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.meters[id])
	}
	return out
}

func (r *Registry) insertLocked(id identity, m Meter) {
	r.meters[id] = m
	r.order = append(r.order, id)
}

func (r *Registry) checkNewLocked(id identity) error {
	if _, ok := r.meters[id]; ok {
		return fmt.Errorf("%w: %s %q", ErrRegistryCollision, id.kind, id.name)
	}
	return nil
}

// NewCounter constructs and registers a counter directly, failing with
// ErrRegistryCollision if the identity already exists. Prefer the
// get-or-create path (Registry.Counter) unless double construction must
// surface as an error.
func NewCounter(reg *Registry, name string) (*Counter, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	id := identity{kind: KindCounter, name: name}
	if err := reg.checkNewLocked(id); err != nil {
		return nil, err
	}
	c := newCounter(reg, name)
	reg.insertLocked(id, c)
	return c, nil
}

// NewGauge constructs and registers a gauge directly, failing with
// ErrRegistryCollision if the identity already exists.
func NewGauge(reg *Registry, name string) (*Gauge, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	id := identity{kind: KindGauge, name: name}
	if err := reg.checkNewLocked(id); err != nil {
		return nil, err
	}
	g := newGauge(reg, name)
	reg.insertLocked(id, g)
	return g, nil
}

// NewTimer constructs and registers a timer directly, failing with
// ErrRegistryCollision if the identity already exists. The companion counter
// is resolved get-or-create, so a pre-existing counter under the derived
// name is reused.
func NewTimer(reg *Registry, name string) (*Timer, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	id := identity{kind: KindTimer, name: name}
	if err := reg.checkNewLocked(id); err != nil {
		return nil, err
	}
	t := newTimer(reg, name)
	reg.insertLocked(id, t)
	return t, nil
}

// NewHistogram constructs and registers a histogram directly, failing with
// ErrRegistryCollision if the identity already exists.
func NewHistogram(reg *Registry, name string) (*Histogram, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	id := identity{kind: KindHistogram, name: name}
	if err := reg.checkNewLocked(id); err != nil {
		return nil, err
	}
	h := newHistogram(reg, name)
	reg.insertLocked(id, h)
	return h, nil
}

// Snapshot collects a point-in-time view across every registered instrument
// and flattens the results in registration order. Collection runs on a
// single dedicated worker goroutine, started lazily on the first call and
// kept for the process lifetime; each instrument is collected concurrently
// and a failing or hanging instrument contributes zero records without
// stalling its siblings.
func (r *Registry) Snapshot() []Record {
	r.workerOnce.Do(func() {
		r.snapshotCh = make(chan chan []Record)
		go r.collectWorker()
	})

	done := make(chan []Record, 1)
	r.snapshotCh <- done
	return <-done
}

func (r *Registry) collectWorker() {
	for done := range r.snapshotCh {
		done <- r.collectAll()
	}
}

func (r *Registry) collectAll() []Record {
	r.mu.Lock()
	meters := make([]Meter, 0, len(r.order))
	for _, id := range r.order {
		meters = append(meters, r.meters[id])
	}
	timeout := r.timeout
	r.mu.Unlock()

	type result struct {
		idx  int
		recs []Record
	}
	results := make(chan result, len(meters))
	for i, m := range meters {
		go func(i int, m Meter) {
			results <- result{idx: i, recs: collectMeter(m, r.log)}
		}(i, m)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	parts := make([][]Record, len(meters))
	for pending := len(meters); pending > 0; {
		select {
		case res := <-results:
			parts[res.idx] = res.recs
			pending--
		case <-deadline.C:
			r.log.Warningf("collection timed out after %s with %d of %d instruments outstanding",
				timeout, pending, len(meters))
			pending = 0
		}
	}

	var recs []Record
	for _, part := range parts {
		recs = append(recs, part...)
	}
	return recs
}

// collectMeter isolates one instrument's collection: a panic is logged and
// contributes zero records instead of failing sibling instruments.
func collectMeter(m Meter, log *logger.Logger) (recs []Record) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("PANIC collecting meter '%s': %v", m.Name(), r)
			if logger.Level.Enabled(slog.LevelDebug) {
				log.Errorf("STACK: %s", debug.Stack())
			}
			recs = nil
		}
	}()
	return m.Metrics()
}
