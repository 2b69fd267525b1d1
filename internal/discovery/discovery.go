// Package discovery runs the ARP companion pipeline: it watches the same
// capture feed for ARP replies, maintains a per-MAC cache, and
// republishes device_discovery_channel records no more than once per
// debounce interval per MAC (a supplemented feature, not required for
// core behavior). The cache keeps one entry for every MAC ever observed;
// entries are never evicted.
package discovery

import (
	"context"
	"net"
	"sync"
	"time"

	"firestige.xyz/otus/internal/core"
	"firestige.xyz/otus/internal/log"
)

// Publisher is the subset of internal/bus.Publisher the cache needs,
// accepted as an interface so discovery can be tested without a redis
// client.
type Publisher interface {
	PublishDeviceRecord(ctx context.Context, record core.DeviceRecord) error
}

// ARPObservation is one decoded ARP reply: an IP/MAC pair seen at a point
// in time.
type ARPObservation struct {
	IP        net.IP
	MAC       net.HardwareAddr
	Timestamp time.Time
}

type entry struct {
	lastSeen      time.Time
	lastPublished time.Time
}

// Cache maintains the per-MAC record set and debounces republishes. It
// holds one entry per distinct MAC and does not evict entries.
type Cache struct {
	publisher Publisher
	debounce  time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// New builds a Cache publishing through publisher, republishing a given
// MAC no more than once per debounce interval.
func New(publisher Publisher, debounce time.Duration) *Cache {
	if debounce <= 0 {
		debounce = 10 * time.Second
	}
	return &Cache{
		publisher: publisher,
		debounce:  debounce,
		entries:   make(map[string]*entry),
	}
}

// Observe records one ARP observation and publishes a DeviceRecord if this
// MAC has not been published within the debounce window.
func (c *Cache) Observe(ctx context.Context, obs ARPObservation) {
	key := obs.MAC.String()

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	e.lastSeen = obs.Timestamp
	shouldPublish := !ok || obs.Timestamp.Sub(e.lastPublished) >= c.debounce
	if shouldPublish {
		e.lastPublished = obs.Timestamp
	}
	c.mu.Unlock()

	if !shouldPublish {
		return
	}

	record := core.DeviceRecord{
		IPAddr:    obs.IP.String(),
		MACAddr:   key,
		LastSeen:  obs.Timestamp.Unix(),
		Timestamp: obs.Timestamp.Unix(),
	}

	if err := c.publisher.PublishDeviceRecord(ctx, record); err != nil {
		if logger := log.GetLogger(); logger != nil {
			logger.WithError(err).Warnf("discovery: publish device record for %s failed", key)
		}
	}
}

// Len reports the number of distinct MACs currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
