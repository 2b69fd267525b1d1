package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/core"
)

type fakePublisher struct {
	records []core.DeviceRecord
}

func (f *fakePublisher) PublishDeviceRecord(ctx context.Context, record core.DeviceRecord) error {
	f.records = append(f.records, record)
	return nil
}

func TestObservePublishesFirstSightingImmediately(t *testing.T) {
	pub := &fakePublisher{}
	cache := New(pub, 10*time.Second)

	now := time.Now()
	cache.Observe(context.Background(), ARPObservation{
		IP:        net.ParseIP("10.0.0.5"),
		MAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		Timestamp: now,
	})

	require.Len(t, pub.records, 1)
	require.Equal(t, "00:11:22:33:44:55", pub.records[0].MACAddr)
}

func TestObserveDebouncesRepublishWithinInterval(t *testing.T) {
	pub := &fakePublisher{}
	cache := New(pub, 10*time.Second)
	mac := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	now := time.Now()

	cache.Observe(context.Background(), ARPObservation{IP: net.ParseIP("10.0.0.5"), MAC: mac, Timestamp: now})
	cache.Observe(context.Background(), ARPObservation{IP: net.ParseIP("10.0.0.5"), MAC: mac, Timestamp: now.Add(time.Second)})
	require.Len(t, pub.records, 1)

	cache.Observe(context.Background(), ARPObservation{IP: net.ParseIP("10.0.0.5"), MAC: mac, Timestamp: now.Add(11 * time.Second)})
	require.Len(t, pub.records, 2)
}

func TestLenTracksDistinctMACs(t *testing.T) {
	pub := &fakePublisher{}
	cache := New(pub, time.Second)

	cache.Observe(context.Background(), ARPObservation{IP: net.ParseIP("10.0.0.1"), MAC: net.HardwareAddr{1, 2, 3, 4, 5, 6}, Timestamp: time.Now()})
	cache.Observe(context.Background(), ARPObservation{IP: net.ParseIP("10.0.0.2"), MAC: net.HardwareAddr{1, 2, 3, 4, 5, 7}, Timestamp: time.Now()})

	require.Equal(t, 2, cache.Len())
}

func TestParseARPReplyRejectsNonARPFrame(t *testing.T) {
	_, ok := ParseARPReply([]byte{0x00, 0x01, 0x02}, time.Now())
	require.False(t, ok)
}
