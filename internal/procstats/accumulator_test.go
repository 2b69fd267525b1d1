package procstats

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/core"
)

func TestClassifyDirectionIPv4PrivateToPublicIsOutbound(t *testing.T) {
	src := netip.MustParseAddr("10.0.0.1")
	dst := netip.MustParseAddr("93.184.216.34")
	require.Equal(t, core.DirectionOutbound, ClassifyDirection(src, dst))
	require.Equal(t, core.DirectionInbound, ClassifyDirection(dst, src))
}

func TestClassifyDirectionIPv4SameClassTiesOutbound(t *testing.T) {
	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")
	require.Equal(t, core.DirectionOutbound, ClassifyDirection(a, b))

	pubA := netip.MustParseAddr("8.8.8.8")
	pubB := netip.MustParseAddr("1.1.1.1")
	require.Equal(t, core.DirectionOutbound, ClassifyDirection(pubA, pubB))
}

func TestClassifyDirectionIPv6LocalScope(t *testing.T) {
	local := netip.MustParseAddr("fe80::1")
	public := netip.MustParseAddr("2606:4700:4700::1111")
	require.Equal(t, core.DirectionOutbound, ClassifyDirection(local, public))
	require.Equal(t, core.DirectionInbound, ClassifyDirection(public, local))
}

func TestRecordAccumulatesByDirection(t *testing.T) {
	tbl := New()
	identity := core.ProcessIdentity{PID: 100, Name: "curl"}
	tuple := core.Connection5Tuple{
		SrcIP: netip.MustParseAddr("10.0.0.1"), DstIP: netip.MustParseAddr("1.1.1.1"),
		SrcPort: 1234, DstPort: 443, Protocol: core.ProtocolTCP,
	}
	now := time.Now()

	tbl.Record(identity, true, tuple, core.ProtocolTCP, core.DirectionOutbound, 500, now)
	ps := tbl.Record(identity, true, tuple, core.ProtocolTCP, core.DirectionInbound, 1500, now.Add(time.Millisecond))

	require.Equal(t, uint64(500), ps.BytesSent)
	require.Equal(t, uint64(1500), ps.BytesReceived)
	require.Len(t, ps.PacketHistory, 2)
}

func TestRecordUnresolvedTracksCoverageOnly(t *testing.T) {
	tbl := New()
	tbl.Record(core.ProcessIdentity{}, false, core.Connection5Tuple{}, core.ProtocolUDP, core.DirectionOutbound, 64, time.Now())

	packets, bytes := tbl.UnresolvedCounters()
	require.Equal(t, uint64(1), packets)
	require.Equal(t, uint64(64), bytes)
	require.Empty(t, tbl.Snapshot())
}

func TestPruneDeadRemovesAfterMaxMissed(t *testing.T) {
	tbl := New()
	identity := core.ProcessIdentity{PID: 7}
	tbl.Record(identity, true, core.Connection5Tuple{}, core.ProtocolTCP, core.DirectionOutbound, 1, time.Now())

	live := map[int]struct{}{}
	removed := tbl.PruneDead(live, 3)
	require.Empty(t, removed)
	removed = tbl.PruneDead(live, 3)
	require.Empty(t, removed)
	removed = tbl.PruneDead(live, 3)
	require.Equal(t, []int{7}, removed)

	_, ok := tbl.Get(7)
	require.False(t, ok)
}

func TestSampleRatesRecordsPerIntervalDeltaNotCumulative(t *testing.T) {
	tbl := New()
	identity := core.ProcessIdentity{PID: 42, Name: "curl"}
	tuple := core.Connection5Tuple{
		SrcIP: netip.MustParseAddr("10.0.0.1"), DstIP: netip.MustParseAddr("1.1.1.1"),
		SrcPort: 1234, DstPort: 443, Protocol: core.ProtocolTCP,
	}
	start := time.Now()

	tbl.Record(identity, true, tuple, core.ProtocolTCP, core.DirectionOutbound, 1000, start)
	tbl.Record(identity, true, tuple, core.ProtocolTCP, core.DirectionInbound, 2000, start)
	tbl.SampleRates(start)

	ps, ok := tbl.Get(42)
	require.True(t, ok)
	require.Zero(t, ps.SentHistory[0].BytesPerS)
	require.Zero(t, ps.ReceivedHistory[0].BytesPerS)

	second := start.Add(time.Second)
	tbl.Record(identity, true, tuple, core.ProtocolTCP, core.DirectionOutbound, 500, second)
	tbl.Record(identity, true, tuple, core.ProtocolTCP, core.DirectionInbound, 4000, second)
	tbl.SampleRates(second)

	require.Len(t, ps.SentHistory, 2)
	require.Len(t, ps.ReceivedHistory, 2)
	require.InDelta(t, 500, ps.SentHistory[1].BytesPerS, 0.001)
	require.InDelta(t, 4000, ps.ReceivedHistory[1].BytesPerS, 0.001)

	third := second.Add(time.Second)
	tbl.SampleRates(third)
	require.Len(t, ps.SentHistory, 3)
	require.Zero(t, ps.SentHistory[2].BytesPerS)
	require.Zero(t, ps.ReceivedHistory[2].BytesPerS)
}

func TestRemoveDeletesProcessImmediately(t *testing.T) {
	tbl := New()
	identity := core.ProcessIdentity{PID: 9}
	tbl.Record(identity, true, core.Connection5Tuple{}, core.ProtocolTCP, core.DirectionOutbound, 1, time.Now())

	tbl.Remove(9)
	_, ok := tbl.Get(9)
	require.False(t, ok)
}
