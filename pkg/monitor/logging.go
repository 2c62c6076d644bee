// SPDX-License-Identifier: GPL-3.0-or-later

package monitor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/meterflow/meterflow/pkg/meter"
)

type countingHandler struct {
	next    slog.Handler
	counter *meter.Counter
}

// CountingHandler decorates a slog.Handler, counting every handled record
// under a lowercase "level" tag before delegating. Enabled, WithAttrs and
// WithGroup pass through, so only records the inner handler accepts are
// counted. The counter's augmentor is replaced.
func CountingHandler(c *meter.Counter, next slog.Handler) slog.Handler {
	c.SetAugmentor(func(_ meter.Meter, result any, _ []any) map[string]string {
		lvl, ok := result.(slog.Level)
		if !ok {
			return nil
		}
		return map[string]string{"level": strings.ToLower(lvl.String())}
	})

	return &countingHandler{next: next, counter: c}
}

func (h *countingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *countingHandler) Handle(ctx context.Context, r slog.Record) error {
	_, _ = h.counter.Wrap(func(args ...any) (any, error) { return r.Level, nil })()
	return h.next.Handle(ctx, r)
}

func (h *countingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &countingHandler{next: h.next.WithAttrs(attrs), counter: h.counter}
}

func (h *countingHandler) WithGroup(name string) slog.Handler {
	return &countingHandler{next: h.next.WithGroup(name), counter: h.counter}
}
