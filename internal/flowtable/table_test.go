package flowtable

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/core"
)

func handshakeTuple() core.Connection5Tuple {
	return core.Connection5Tuple{
		SrcIP:    netip.MustParseAddr("10.0.0.1"),
		DstIP:    netip.MustParseAddr("93.184.216.34"),
		SrcPort:  40000,
		DstPort:  443,
		Protocol: core.ProtocolTCP,
	}
}

// TestThreeWayHandshakeReachesEstablished mirrors scenario S1.
func TestThreeWayHandshakeReachesEstablished(t *testing.T) {
	tbl := New()
	tuple := handshakeTuple()
	base := time.Now()

	const (
		flagSYN = 1 << 1
		flagACK = 1 << 4
	)

	f := tbl.Update(tuple, core.DirectionOutbound, 64, flagSYN, true, base)
	require.Equal(t, core.TcpSynSent, f.TCPState)

	f = tbl.Update(tuple, core.DirectionInbound, 64, flagSYN|flagACK, true, base.Add(10*time.Millisecond))
	require.Equal(t, core.TcpSynReceived, f.TCPState)

	f = tbl.Update(tuple, core.DirectionOutbound, 64, flagACK, true, base.Add(20*time.Millisecond))
	require.Equal(t, core.TcpEstablished, f.TCPState)

	require.Equal(t, uint64(2), f.PacketsSent)
	require.Equal(t, uint64(1), f.PacketsReceived)
}

// TestUDPBurstRateMatchesExpectation mirrors scenario S2: 100 packets of
// 1500 bytes over 1 simulated second should yield bytes_per_second ≈ 150000.
func TestUDPBurstRateMatchesExpectation(t *testing.T) {
	tbl := New()
	tuple := core.Connection5Tuple{
		SrcIP:    netip.MustParseAddr("10.0.0.2"),
		DstIP:    netip.MustParseAddr("10.0.0.3"),
		SrcPort:  53,
		DstPort:  53,
		Protocol: core.ProtocolUDP,
	}

	base := time.Now()
	var f *core.NetworkFlow
	for i := 0; i < 100; i++ {
		ts := base.Add(time.Duration(i) * (time.Second / 100))
		f = tbl.Update(tuple, core.DirectionOutbound, 1500, 0, false, ts)
	}

	require.InEpsilon(t, 150000.0, f.BytesPerSec, 0.05)
	require.Equal(t, uint64(100), f.PacketsSent)
}

// TestSinglePacketFlowHasZeroRates covers B1.
func TestSinglePacketFlowHasZeroRates(t *testing.T) {
	tbl := New()
	tuple := handshakeTuple()
	now := time.Now()

	f := tbl.Update(tuple, core.DirectionOutbound, 40, 0, false, now)
	require.Equal(t, 0.0, f.PacketsPerSec)
	require.Equal(t, 0.0, f.BytesPerSec)
	require.Equal(t, 40.0, f.AvgPacketSize)
}

// TestEvictStaleIsIdempotent covers P9: running cleanup twice back-to-back
// has no additional effect.
func TestEvictStaleIsIdempotent(t *testing.T) {
	tbl := New()
	tuple := handshakeTuple()
	now := time.Now()
	tbl.Update(tuple, core.DirectionOutbound, 40, 0, false, now)

	later := now.Add(10 * time.Minute)
	require.Equal(t, 1, tbl.EvictStale(later, 5*time.Minute))
	require.Equal(t, 0, tbl.EvictStale(later, 5*time.Minute))
	require.Equal(t, 0, tbl.Len())
}

// TestEvictStaleKeepsActiveFlow covers scenario S4's cleanup half: two
// flows for the same endpoint pair differing only in ports, one idle past
// timeout, the other active, only the idle one is evicted.
func TestEvictStaleKeepsActiveFlow(t *testing.T) {
	tbl := New()
	now := time.Now()

	idle := core.Connection5Tuple{
		SrcIP: netip.MustParseAddr("10.0.0.1"), DstIP: netip.MustParseAddr("10.0.0.9"),
		SrcPort: 1111, DstPort: 80, Protocol: core.ProtocolTCP,
	}
	active := idle
	active.SrcPort = 2222

	tbl.Update(idle, core.DirectionOutbound, 100, 0, false, now)
	tbl.Update(active, core.DirectionOutbound, 100, 0, false, now)

	later := now.Add(6 * time.Minute)
	tbl.Update(active, core.DirectionOutbound, 100, 0, false, later)

	evicted := tbl.EvictStale(later, 5*time.Minute)
	require.Equal(t, 1, evicted)
	require.Equal(t, 1, tbl.Len())

	remaining := tbl.Snapshot()
	require.Equal(t, active, remaining[0].Tuple)
}

// TestRSTOverridesEstablished covers P6's "RST always wins" rule.
func TestRSTOverridesEstablished(t *testing.T) {
	tbl := New()
	tuple := handshakeTuple()
	now := time.Now()

	const (
		flagSYN = 1 << 1
		flagACK = 1 << 4
		flagRST = 1 << 2
	)

	tbl.Update(tuple, core.DirectionOutbound, 64, flagSYN, true, now)
	tbl.Update(tuple, core.DirectionInbound, 64, flagSYN|flagACK, true, now.Add(time.Millisecond))
	tbl.Update(tuple, core.DirectionOutbound, 64, flagACK, true, now.Add(2*time.Millisecond))
	f := tbl.Update(tuple, core.DirectionInbound, 64, flagRST, true, now.Add(3*time.Millisecond))

	require.Equal(t, core.TcpReset, f.TCPState)
}
