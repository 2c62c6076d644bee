// SPDX-License-Identifier: GPL-3.0-or-later

// Package export provides the shared push loop driving the wire-format
// exporters. A Loop runs a Pusher once immediately and then on every
// interval tick; push errors and panics are logged and never terminate
// the loop.
package export

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/meterflow/meterflow/logger"
	"github.com/sourcegraph/conc"
)

const fallbackPushInterval = time.Second

// Pusher translates the current registry state into one wire format and
// transmits it to a destination.
type Pusher interface {
	Push() error
}

// Loop periodically invokes a Pusher until stopped.
type Loop struct {
	*logger.Logger

	pusher Pusher
	every  time.Duration

	wg       conc.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// NewLoop returns an idle loop pushing through p every interval.
// Non-positive intervals fall back to one second.
func NewLoop(log *logger.Logger, p Pusher, every time.Duration) *Loop {
	if log == nil {
		log = logger.New()
	}
	if every <= 0 {
		log.Warningf("invalid push interval %s, falling back to %s", every, fallbackPushInterval)
		every = fallbackPushInterval
	}
	return &Loop{
		Logger: log,
		pusher: p,
		every:  every,
		stop:   make(chan struct{}),
	}
}

// Start launches the push goroutine. The first push happens immediately,
// before the first tick.
func (l *Loop) Start() {
	l.wg.Go(l.run)
}

// Stop terminates the loop and waits for the push goroutine to exit. It is
// safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
}

func (l *Loop) run() {
	l.Infof("started, push interval %s", l.every)
	defer l.Info("stopped")

	tk := time.NewTicker(l.every)
	defer tk.Stop()

	l.pushOnce()
LOOP:
	for {
		select {
		case <-l.stop:
			break LOOP
		case <-tk.C:
			l.pushOnce()
		}
	}
}

func (l *Loop) pushOnce() {
	defer func() {
		if r := recover(); r != nil {
			l.Errorf("PANIC: %v", r)
			if logger.Level.Enabled(slog.LevelDebug) {
				l.Errorf("STACK: %s", debug.Stack())
			}
		}
	}()

	if err := l.pusher.Push(); err != nil {
		l.Error(fmt.Errorf("push failed: %w", err))
	}
}
