// Package snapshot assembles SnapshotView, an immutable point-in-time copy
// of the core tables handed to API consumers (design component C9).
package snapshot

import (
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/otus/internal/core"
)

// Builder owns the monotonic sequence counter and the last-published
// summary, and produces a SnapshotView on demand.
type Builder struct {
	seq atomic.Uint64

	mu      sync.RWMutex
	summary core.FlowSummary
}

// New builds an empty Builder.
func New() *Builder {
	return &Builder{}
}

// SetLatestSummary records the most recent aggregation result, folded into
// the next snapshot until the following aggregation tick replaces it, and
// advances the sequence number once for this aggregation period.
func (b *Builder) SetLatestSummary(summary core.FlowSummary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summary = summary
	b.seq.Add(1)
}

// Build assembles a SnapshotView from the current process table, alert
// table, and system stats. The copy is cheap: ProcessStats and Alert are
// small value types, copied by value into the resulting maps so a
// consumer holding a SnapshotView cannot observe later mutation of the
// live tables.
func (b *Builder) Build(processes []*core.ProcessStats, alerts map[int]core.Alert, system core.SystemStats) core.SnapshotView {
	b.mu.RLock()
	summary := b.summary
	b.mu.RUnlock()

	procCopy := make(map[int]core.ProcessStats, len(processes))
	for _, ps := range processes {
		procCopy[ps.Identity.PID] = *ps
	}

	alertCopy := make(map[int]core.Alert, len(alerts))
	for pid, a := range alerts {
		alertCopy[pid] = a
	}

	return core.SnapshotView{
		SequenceNum:   b.seq.Load(),
		GeneratedAt:   time.Now(),
		Processes:     procCopy,
		Alerts:        alertCopy,
		System:        system,
		RecentSummary: summary,
	}
}
