package engine

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/config"
	"firestige.xyz/otus/internal/core"
)

func testConfig() *config.GlobalConfig {
	return &config.GlobalConfig{
		Interface: "eth0",
		Bus: config.BusConfig{
			URL:            "redis://127.0.0.1:1",
			PublishTimeout: 50 * time.Millisecond,
			FlowTopic:      "network_flows",
			DeviceTopic:    "device_discovery_channel",
		},
		Timers: config.TimersConfig{
			ResolverRefresh:   2 * time.Second,
			AggregationPeriod: 5 * time.Second,
			CleanupPeriod:     60 * time.Second,
			FlowTimeout:       300 * time.Second,
			DeadProcessPeriod: 10 * time.Second,
			AlertCooldown:     30 * time.Second,
			QueueCapacity:     1000,
		},
	}
}

// syntheticEthernetUDP builds a minimal Ethernet+IPv4+UDP frame for
// exercising handlePacket without a real capture device.
func syntheticEthernetUDP(t *testing.T) []byte {
	t.Helper()
	frame := make([]byte, 14+20+8+4)
	// dst/src MAC left zero; EtherType IPv4.
	frame[12] = 0x08
	frame[13] = 0x00

	ip := frame[14:]
	ip[0] = 0x45 // version 4, IHL 5
	totalLen := uint16(20 + 8 + 4)
	ip[2] = byte(totalLen >> 8)
	ip[3] = byte(totalLen)
	ip[8] = 64          // TTL
	ip[9] = core.ProtocolUDP
	copy(ip[12:16], netip.MustParseAddr("10.0.0.1").AsSlice())
	copy(ip[16:20], netip.MustParseAddr("10.0.0.2").AsSlice())

	udp := ip[20:]
	udp[0], udp[1] = 0x13, 0x88 // src port 5000
	udp[2], udp[3] = 0x00, 0x35 // dst port 53
	udp[4], udp[5] = 0x00, 0x0c // length 12

	return frame
}

func TestHandlePacketCreatesFlowAndAccumulatesUnresolved(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)
	defer c.Stop()

	raw := core.RawPacket{Data: syntheticEthernetUDP(t), Timestamp: time.Now()}
	c.handlePacket(context.Background(), raw)

	require.Equal(t, 1, c.flows.Len())

	_, bytes := c.procs.UnresolvedCounters()
	require.Greater(t, bytes, uint64(0))
}

func TestAggregatePublishesAndUpdatesSnapshot(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)
	defer c.Stop()

	raw := core.RawPacket{Data: syntheticEthernetUDP(t), Timestamp: time.Now()}
	c.handlePacket(context.Background(), raw)

	c.aggregate(context.Background(), time.Now())

	view := c.Snapshot()
	require.Equal(t, uint64(1), view.SequenceNum)
	require.Equal(t, 1, view.RecentSummary.ActiveFlowsCount)
}
