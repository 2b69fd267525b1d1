// Package bus publishes aggregation results to the downstream pub/sub
// backend named by the design's external interface (§6): FlowSummary on
// "network_flows", DeviceRecord on "device_discovery_channel".
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"firestige.xyz/otus/internal/core"
	"firestige.xyz/otus/internal/log"
)

// Publisher wraps a redis client with the per-call timeout and swallowed
// failure handling the design calls for (S6): a publish failure is logged
// and does not propagate, and in-memory state survives untouched.
type Publisher struct {
	client      *redis.Client
	flowTopic   string
	deviceTopic string
	timeout     time.Duration

	publishedCount atomic.Uint64
	failureCount   atomic.Uint64
}

// Config configures the Publisher.
type Config struct {
	URL            string
	PublishTimeout time.Duration
	FlowTopic      string
	DeviceTopic    string
}

// New parses the redis URL and builds a Publisher. Connection is lazy:
// go-redis dials on first command, so New never blocks on network I/O.
func New(cfg Config) (*Publisher, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("bus: invalid redis url: %w", err)
	}

	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return &Publisher{
		client:      redis.NewClient(opts),
		flowTopic:   cfg.FlowTopic,
		deviceTopic: cfg.DeviceTopic,
		timeout:     timeout,
	}, nil
}

// PublishFlowSummary serializes summary as JSON and publishes it to the
// flow topic. Failures are logged and swallowed: core.ErrPublishFailed is
// returned to the caller only for counting, never treated as fatal.
func (p *Publisher) PublishFlowSummary(ctx context.Context, summary core.FlowSummary) error {
	return p.publish(ctx, p.flowTopic, summary)
}

// PublishDeviceRecord serializes an ARP-derived device record and
// publishes it to the device-discovery topic.
func (p *Publisher) PublishDeviceRecord(ctx context.Context, record core.DeviceRecord) error {
	return p.publish(ctx, p.deviceTopic, record)
}

func (p *Publisher) publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		p.failureCount.Add(1)
		return fmt.Errorf("%w: marshal: %v", core.ErrPublishFailed, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.Publish(callCtx, topic, body).Err(); err != nil {
		p.failureCount.Add(1)
		if logger := log.GetLogger(); logger != nil {
			logger.WithError(err).Warnf("bus: publish to %s failed", topic)
		}
		return fmt.Errorf("%w: %v", core.ErrPublishFailed, err)
	}

	p.publishedCount.Add(1)
	return nil
}

// Stats reports cumulative publish counts, used for observability and S6.
func (p *Publisher) Stats() (published, failed uint64) {
	return p.publishedCount.Load(), p.failureCount.Load()
}

// Close releases the underlying redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
