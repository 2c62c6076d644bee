// SPDX-License-Identifier: GPL-3.0-or-later

// Package meter implements process-level instrumentation: counters, gauges,
// timers and histograms registered under a (kind, name) identity and
// collected as flat records for export.
package meter

import (
	"log/slog"
	"sync"

	"github.com/meterflow/meterflow/logger"
)

// Kind identifies the aggregation behavior of an instrument. Together with
// the instrument name it forms the registry identity: instruments of
// different kinds may share a name.
type Kind uint8

const (
	KindCounter Kind = iota + 1
	KindGauge
	KindTimer
	KindHistogram
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindTimer:
		return "timer"
	case KindHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// Func is the canonical callable shape accepted by instrument wrappers.
// Callers with concrete signatures adapt via a closure.
type Func func(args ...any) (any, error)

// Augmentor inspects a finished measurement (the wrapped call's result and
// arguments) and returns tag updates. The updates are merged into the
// instrument's context tags before the measurement key is resolved, so they
// apply to that measurement only. A nil return is a no-op.
type Augmentor func(m Meter, result any, args []any) map[string]string

// Meter is the common surface of all instruments.
type Meter interface {
	Name() string
	Kind() Kind

	// Tags returns the effective merged view: global tags, overridden by
	// instance tags, overridden by context tags.
	Tags() map[string]string
	SetTags(tags map[string]string) error
	AddTags(tags map[string]string) error
	RemoveTags(keys ...string)
	SetContextTags(tags map[string]string) error
	ResetContextTags()
	SetAugmentor(fn Augmentor)

	// Metrics produces the instrument's current records. The registry calls
	// it during Snapshot; it is safe to call directly.
	Metrics() []Record
}

// meterBase carries the state shared by every instrument kind: identity,
// instance and context tags, and the augmentor hook.
type meterBase struct {
	name string
	kind Kind
	reg  *Registry
	log  *logger.Logger

	mu      sync.Mutex
	tags    map[string]string
	ctxTags map[string]string
	aug     Augmentor
}

func newMeterBase(reg *Registry, kind Kind, name string) meterBase {
	return meterBase{
		name: name,
		kind: kind,
		reg:  reg,
		log:  reg.log.With(slog.String("meter", name)),
	}
}

func (b *meterBase) Name() string { return b.name }

func (b *meterBase) Kind() Kind { return b.kind }

func (b *meterBase) Tags() map[string]string {
	global := b.reg.GlobalTags()

	b.mu.Lock()
	defer b.mu.Unlock()

	m := make(map[string]string, len(global)+len(b.tags)+len(b.ctxTags))
	mergeTags(m, global)
	mergeTags(m, b.tags)
	mergeTags(m, b.ctxTags)
	return m
}

// SetTags replaces all instance tags.
func (b *meterBase) SetTags(tags map[string]string) error {
	if err := validateTagKeys(tags); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tags = cloneTags(tags)
	return nil
}

// AddTags merges tags into the instance tags, right-biased.
func (b *meterBase) AddTags(tags map[string]string) error {
	if err := validateTagKeys(tags); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tags == nil {
		b.tags = make(map[string]string, len(tags))
	}
	mergeTags(b.tags, tags)
	return nil
}

// RemoveTags deletes instance tags by key. Missing keys are ignored.
func (b *meterBase) RemoveTags(keys ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.tags, k)
	}
}

// SetContextTags replaces the per-call context tags. Context tags apply to
// the next measurement only: key resolution clears them.
func (b *meterBase) SetContextTags(tags map[string]string) error {
	if err := validateTagKeys(tags); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ctxTags = cloneTags(tags)
	return nil
}

func (b *meterBase) ResetContextTags() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ctxTags = nil
}

func (b *meterBase) SetAugmentor(fn Augmentor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aug = fn
}

// resolveTagMap merges global, instance and context tags into a fresh map and
// clears the context tags. Every measurement resolves its key through here.
func (b *meterBase) resolveTagMap() map[string]string {
	global := b.reg.GlobalTags()

	b.mu.Lock()
	defer b.mu.Unlock()

	m := make(map[string]string, len(global)+len(b.tags)+len(b.ctxTags))
	mergeTags(m, global)
	mergeTags(m, b.tags)
	mergeTags(m, b.ctxTags)
	b.ctxTags = nil
	return m
}

func (b *meterBase) resolveTags() (TagSet, string) {
	return canonicalTags(b.resolveTagMap())
}

// runAugmentor invokes the augmentor hook, if set, and merges its returned
// updates into the context tags ahead of key resolution.
func (b *meterBase) runAugmentor(m Meter, result any, args []any) {
	b.mu.Lock()
	fn := b.aug
	b.mu.Unlock()

	if fn == nil {
		return
	}

	updates := fn(m, result, args)
	if len(updates) == 0 {
		return
	}
	if err := validateTagKeys(updates); err != nil {
		b.log.Warningf("augmentor produced unusable tags: %v", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctxTags == nil {
		b.ctxTags = make(map[string]string, len(updates))
	}
	mergeTags(b.ctxTags, updates)
}
