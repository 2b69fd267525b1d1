// Package flowtable maintains per-5-tuple NetworkFlow state: counters,
// timings, the TCP state machine, and derived rates (design component C4).
package flowtable

import (
	"sync"
	"time"

	"firestige.xyz/otus/internal/core"
)

const (
	// maxSamples bounds the packet-size sample vector per flow.
	maxSamples = 256
	// maxGaps bounds the inter-arrival gap vector per flow.
	maxGaps = 256
)

// Table is a concurrency-safe map of Connection5Tuple to *core.NetworkFlow.
type Table struct {
	mu    sync.RWMutex
	flows map[core.Connection5Tuple]*core.NetworkFlow
}

// New builds an empty Table.
func New() *Table {
	return &Table{flows: make(map[core.Connection5Tuple]*core.NetworkFlow)}
}

// Update applies one decoded packet to the flow identified by tuple,
// creating it if absent, per §4.4's update algorithm. wireLen is the
// packet's on-wire size; tcpFlags is only meaningful when the tuple's
// protocol is TCP.
func (t *Table) Update(tuple core.Connection5Tuple, direction core.PacketDirection, wireLen int, tcpFlags uint8, isTCP bool, now time.Time) *core.NetworkFlow {
	t.mu.Lock()
	defer t.mu.Unlock()

	flow, exists := t.flows[tuple]
	if !exists {
		flow = &core.NetworkFlow{
			Tuple:     tuple,
			StartTime: now,
			LastSeen:  now,
			TCPState:  core.TcpUnknown,
		}
		t.flows[tuple] = flow
	} else {
		gap := now.Sub(flow.LastSeen).Seconds()
		flow.Gaps = appendBounded(flow.Gaps, gap, maxGaps)
	}

	flow.LastSeen = now

	if direction == core.DirectionOutbound {
		flow.PacketsSent++
		flow.BytesSent += uint64(wireLen)
	} else {
		flow.PacketsReceived++
		flow.BytesReceived += uint64(wireLen)
	}

	flow.Samples = appendBoundedInt(flow.Samples, wireLen, now, maxSamples)

	if isTCP {
		flow.TCPState = nextTCPState(flow.TCPState, tcpFlags)
	}

	recomputeDerived(flow)
	return flow
}

// Get returns the flow for tuple (or its reverse), if present.
func (t *Table) Get(tuple core.Connection5Tuple) (*core.NetworkFlow, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if f, ok := t.flows[tuple]; ok {
		return f, true
	}
	f, ok := t.flows[tuple.Reversed()]
	return f, ok
}

// Snapshot returns a copy of every flow currently tracked, taken under the
// read lock, so later updates to the live table are not visible through it.
func (t *Table) Snapshot() []*core.NetworkFlow {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*core.NetworkFlow, 0, len(t.flows))
	for _, f := range t.flows {
		cp := *f
		out = append(out, &cp)
	}
	return out
}

// Len reports the number of tracked flows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.flows)
}

// EvictStale removes every flow whose last_seen is at least timeout before
// now, per the cleanup scheduler's contract (C7). Idempotent: calling it
// twice back-to-back with no intervening traffic evicts nothing the second
// time (P9).
func (t *Table) EvictStale(now time.Time, timeout time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for tuple, f := range t.flows {
		if now.Sub(f.LastSeen) >= timeout {
			delete(t.flows, tuple)
			evicted++
		}
	}
	return evicted
}

func appendBounded(s []float64, v float64, max int) []float64 {
	s = append(s, v)
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}

func appendBoundedInt(s []core.PacketSample, size int, ts time.Time, max int) []core.PacketSample {
	s = append(s, core.PacketSample{Size: size, Timestamp: ts})
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}

// recomputeDerived fills avg_packet_size, packets_per_second, and
// bytes_per_second, guarding the zero-duration case (B1): a single-packet
// flow has duration 0 and must report rates of 0, not +Inf or NaN.
func recomputeDerived(f *core.NetworkFlow) {
	totalPackets := f.PacketsSent + f.PacketsReceived
	totalBytes := f.BytesSent + f.BytesReceived

	if totalPackets > 0 {
		f.AvgPacketSize = float64(totalBytes) / float64(totalPackets)
	} else {
		f.AvgPacketSize = 0
	}

	duration := f.Duration().Seconds()
	if duration <= 0 {
		f.PacketsPerSec = 0
		f.BytesPerSec = 0
		return
	}
	f.PacketsPerSec = float64(totalPackets) / duration
	f.BytesPerSec = float64(totalBytes) / duration
}

// nextTCPState implements the design-level state machine from §4.4. RST
// always wins, regardless of current state.
func nextTCPState(current core.TcpState, flags uint8) core.TcpState {
	const (
		flagFIN = 1 << 0
		flagSYN = 1 << 1
		flagRST = 1 << 2
		flagACK = 1 << 4
	)

	syn := flags&flagSYN != 0
	ack := flags&flagACK != 0
	fin := flags&flagFIN != 0
	rst := flags&flagRST != 0

	if rst {
		return core.TcpReset
	}

	switch current {
	case core.TcpUnknown, core.TcpClosed, core.TcpReset:
		if syn && !ack {
			return core.TcpSynSent
		}
		return current
	case core.TcpSynSent:
		if syn && ack {
			return core.TcpSynReceived
		}
		if ack {
			return core.TcpEstablished
		}
		return current
	case core.TcpSynReceived:
		if ack && !syn {
			return core.TcpEstablished
		}
		return current
	case core.TcpEstablished:
		if fin {
			return core.TcpFinWait
		}
		return current
	case core.TcpFinWait:
		return current
	default:
		return current
	}
}
