// Package progress carries advisory progress reports from long running
// stages to whoever is watching: a terminal UI, a log, or nothing at all.
// Reports never influence numerical results.
package progress

import (
	"context"
	"math"
	"sync"

	"github.com/zoobzio/capitan"

	"github.com/linuxmatters/corti/internal/events"
)

// Observer receives the completed fraction, 0 to 1, of a named stage.
type Observer interface {
	Report(stage string, fraction float64)
}

// Func adapts a function to the Observer interface.
type Func func(stage string, fraction float64)

// Report calls f.
func (f Func) Report(stage string, fraction float64) { f(stage, fraction) }

type nop struct{}

func (nop) Report(string, float64) {}

// Nop discards every report.
var Nop Observer = nop{}

// OrNop returns o, or Nop when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop
	}
	return o
}

// monotonic forwards reports that advance a stage, clamped to [0, 1].
type monotonic struct {
	mu   sync.Mutex
	last map[string]float64
	next Observer
}

// Monotonic wraps o so that, per stage, the fractions it sees never
// decrease and stay within [0, 1]. It is safe for concurrent use.
func Monotonic(o Observer) Observer {
	return &monotonic{last: make(map[string]float64), next: OrNop(o)}
}

func (m *monotonic) Report(stage string, fraction float64) {
	if math.IsNaN(fraction) {
		return
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	m.mu.Lock()
	prev, seen := m.last[stage]
	if seen && fraction <= prev {
		m.mu.Unlock()
		return
	}
	m.last[stage] = fraction
	m.mu.Unlock()
	m.next.Report(stage, fraction)
}

// Multi fans a report out to every observer in order.
func Multi(obs ...Observer) Observer {
	return Func(func(stage string, fraction float64) {
		for _, o := range obs {
			if o != nil {
				o.Report(stage, fraction)
			}
		}
	})
}

// Throttle forwards a report only when it has advanced by at least step
// since the last forwarded report for that stage, or when it completes.
func Throttle(o Observer, step float64) Observer {
	var mu sync.Mutex
	last := make(map[string]float64)
	o = OrNop(o)
	return Func(func(stage string, fraction float64) {
		mu.Lock()
		prev, seen := last[stage]
		if seen && fraction < 1 && fraction-prev < step {
			mu.Unlock()
			return
		}
		last[stage] = fraction
		mu.Unlock()
		o.Report(stage, fraction)
	})
}

// Signals emits each report as an events.Progress signal tagged with the
// run ID.
func Signals(ctx context.Context, runID string) Observer {
	return Func(func(stage string, fraction float64) {
		capitan.Emit(ctx, events.Progress,
			events.RunIDKey.Field(runID),
			events.StageKey.Field(stage),
			events.FractionKey.Field(fraction),
		)
	})
}
