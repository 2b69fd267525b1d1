// Package procstats maintains per-process cumulative byte/packet counters,
// rate history, and a capped packet audit ring (design component C5), plus
// the direction policy packets are classified by before accumulation.
package procstats

import (
	"sync"
	"time"

	"firestige.xyz/otus/internal/core"
)

const (
	// rateHistoryCap bounds sent_history/received_history, e.g. 300 1Hz
	// samples covers a 5-minute rolling window.
	rateHistoryCap = 300
	// packetHistoryCap bounds the per-packet audit ring.
	packetHistoryCap = 10000
)

// Table owns every tracked process's ProcessStats, keyed by pid.
type Table struct {
	mu    sync.RWMutex
	procs map[int]*core.ProcessStats

	unresolvedPackets uint64
	unresolvedBytes   uint64
}

// New builds an empty Table.
func New() *Table {
	return &Table{procs: make(map[int]*core.ProcessStats)}
}

// Record attributes one decoded packet to a process, creating its
// ProcessStats entry on first sight. resolved == false signals an
// unresolved packet, counted toward resolver-coverage stats
// only (§4.5).
func (t *Table) Record(identity core.ProcessIdentity, resolved bool, tuple core.Connection5Tuple, protocol uint8, direction core.PacketDirection, size int, now time.Time) *core.ProcessStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !resolved {
		t.unresolvedPackets++
		t.unresolvedBytes += uint64(size)
		return nil
	}

	ps, ok := t.procs[identity.PID]
	if !ok {
		ps = &core.ProcessStats{Identity: identity}
		t.procs[identity.PID] = ps
	} else {
		ps.Identity = identity
	}

	if direction == core.DirectionOutbound {
		ps.BytesSent += uint64(size)
		ps.PacketsSent++
	} else {
		ps.BytesReceived += uint64(size)
		ps.PacketsReceived++
	}

	ps.PacketHistory = appendPacketRecord(ps.PacketHistory, core.ProcessPacketRecord{
		Direction: direction,
		Protocol:  protocol,
		Tuple:     tuple,
		Size:      size,
		Timestamp: now,
	})

	ps.ResetMissedRefresh()
	return ps
}

// SampleRates takes one 1Hz rate sample for every tracked process whose
// last sample is at least one second old, appending to the bounded
// sent_history/received_history rings (§4.5).
func (t *Table) SampleRates(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ps := range t.procs {
		last := ps.LastRateSampleAt()
		if !last.IsZero() && now.Sub(last) < time.Second {
			continue
		}

		total := ps.BytesSent + ps.BytesReceived
		elapsed := now.Sub(last).Seconds()
		var rate float64
		if !last.IsZero() && elapsed > 0 {
			rate = float64(total-ps.BytesAtLastSample()) / elapsed
		}

		ps.RateWindow = rate
		ps.SentHistory = appendRateSample(ps.SentHistory, core.RateSample{Timestamp: now, BytesPerS: sentRate(ps, elapsed, last)})
		ps.ReceivedHistory = appendRateSample(ps.ReceivedHistory, core.RateSample{Timestamp: now, BytesPerS: receivedRate(ps, elapsed, last)})
		ps.SetLastRateSample(now, total, ps.BytesSent, ps.BytesReceived)
	}
}

// sentRate and receivedRate compute the per-interval delta rate (§4.5:
// "sample current rate = (cumulative − cumulative_1s_ago) bytes/s"), not
// the cumulative-so-far figure — each tracks its own direction's last
// sample separately from the combined total RateWindow uses.
func sentRate(ps *core.ProcessStats, elapsed float64, last time.Time) float64 {
	if last.IsZero() || elapsed <= 0 {
		return 0
	}
	return float64(ps.BytesSent-ps.SentAtLastSample()) / elapsed
}

func receivedRate(ps *core.ProcessStats, elapsed float64, last time.Time) float64 {
	if last.IsZero() || elapsed <= 0 {
		return 0
	}
	return float64(ps.BytesReceived-ps.ReceivedAtLastSample()) / elapsed
}

// Get returns a process's stats by pid.
func (t *Table) Get(pid int) (*core.ProcessStats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ps, ok := t.procs[pid]
	return ps, ok
}

// Snapshot returns every tracked process's stats pointer. Callers must not
// mutate the returned values.
func (t *Table) Snapshot() []*core.ProcessStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*core.ProcessStats, 0, len(t.procs))
	for _, ps := range t.procs {
		out = append(out, ps)
	}
	return out
}

// UnresolvedCounters reports the running totals of packets/bytes that
// could not be attributed to any process, used to report resolver
// coverage.
func (t *Table) UnresolvedCounters() (packets, bytes uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.unresolvedPackets, t.unresolvedBytes
}

// PruneDead removes every tracked process whose pid is absent from live
// and whose missed-refresh streak has reached maxMissed, implementing the
// dead-process half of the cleanup scheduler (C7).
func (t *Table) PruneDead(live map[int]struct{}, maxMissed int) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []int
	for pid, ps := range t.procs {
		if _, alive := live[pid]; alive {
			ps.ResetMissedRefresh()
			continue
		}
		ps.BumpMissedRefresh()
		if ps.MissedRefreshStreak() >= maxMissed {
			delete(t.procs, pid)
			removed = append(removed, pid)
		}
	}
	return removed
}

// Remove deletes a process's stats outright, used by the alert engine
// after a successful Kill action (S3: "P removed from subsequent
// snapshots").
func (t *Table) Remove(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.procs, pid)
}

// SetHasAlert flips the has_alert flag, maintained as a function of Alert
// table membership per §4.5.
func (t *Table) SetHasAlert(pid int, hasAlert bool, firedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ps, ok := t.procs[pid]
	if !ok {
		return
	}
	ps.HasAlert = hasAlert
	if hasAlert {
		ps.LastAlertFiredAt = firedAt
	}
}

func appendPacketRecord(s []core.ProcessPacketRecord, rec core.ProcessPacketRecord) []core.ProcessPacketRecord {
	s = append(s, rec)
	if len(s) > packetHistoryCap {
		s = s[len(s)-packetHistoryCap:]
	}
	return s
}

func appendRateSample(s []core.RateSample, sample core.RateSample) []core.RateSample {
	s = append(s, sample)
	if len(s) > rateHistoryCap {
		s = s[len(s)-rateHistoryCap:]
	}
	return s
}
