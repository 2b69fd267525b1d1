// Package eventbus implements the short-lived notification channel the
// Notify alert action publishes to; the UI (out of scope) renders it.
package eventbus

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"firestige.xyz/otus/internal/log"
)

// EventBus is a partitioned, in-memory pub/sub used only for process-local
// fan-out; it has no relation to the downstream Redis bus in package bus.
type EventBus interface {
	Publish(event *Event) error
	Subscribe(topic string, handler Handler) error
	Close() error
	GetStats() *Stats
}

// Stats reports bus-wide counters.
type Stats struct {
	PublishedCount int64
	ProcessedCount int64
	PartitionCount int
	QueuedCount    []int
}

// InMemoryEventBus is the default EventBus implementation.
type InMemoryEventBus struct {
	partitions     []*partition
	partitionCount int
	queueSize      int
	subscribers    map[string]Handler
	mu             sync.RWMutex
	closed         int32

	publishedCount int64
	processedCount int64
}

// NewInMemoryEventBus builds a bus with partitionCount consumer goroutines,
// each with a queue of queueSize.
func NewInMemoryEventBus(partitionCount, queueSize int) EventBus {
	if partitionCount < 1 {
		partitionCount = 1
	}
	bus := &InMemoryEventBus{
		partitionCount: partitionCount,
		queueSize:      queueSize,
		subscribers:    make(map[string]Handler),
		partitions:     make([]*partition, partitionCount),
	}

	for i := 0; i < partitionCount; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		bus.partitions[i] = &partition{
			id:     i,
			queue:  make(chan *Event, queueSize),
			ctx:    ctx,
			cancel: cancel,
		}
		go bus.runPartition(bus.partitions[i])
	}

	return bus
}

// Publish routes event to the partition keyed by event.Key. Non-blocking:
// a full partition queue returns an error rather than stalling the caller
// (the caller here is the alert engine, which must not block on a slow
// notification consumer).
func (b *InMemoryEventBus) Publish(event *Event) error {
	if atomic.LoadInt32(&b.closed) == 1 {
		return fmt.Errorf("event bus is closed")
	}

	partitionID := b.getPartitionID(event.Key)
	p := b.partitions[partitionID]

	select {
	case p.queue <- event:
		atomic.AddInt64(&b.publishedCount, 1)
		return nil
	default:
		return fmt.Errorf("partition %d queue is full", partitionID)
	}
}

// Subscribe registers handler for topic across all partitions.
func (b *InMemoryEventBus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if atomic.LoadInt32(&b.closed) == 1 {
		return fmt.Errorf("event bus is closed")
	}

	b.subscribers[topic] = handler
	for _, p := range b.partitions {
		p.handler = b.getHandler
	}

	if logger := log.GetLogger(); logger != nil {
		logger.Infof("eventbus: subscribed to topic %s", topic)
	}
	return nil
}

// Close stops every partition consumer. Idempotent.
func (b *InMemoryEventBus) Close() error {
	if !atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		return nil
	}
	for _, p := range b.partitions {
		p.cancel()
		close(p.queue)
	}
	if logger := log.GetLogger(); logger != nil {
		logger.Info("eventbus: closed")
	}
	return nil
}

// GetStats returns a snapshot of bus counters.
func (b *InMemoryEventBus) GetStats() *Stats {
	stats := &Stats{
		PublishedCount: atomic.LoadInt64(&b.publishedCount),
		ProcessedCount: atomic.LoadInt64(&b.processedCount),
		PartitionCount: b.partitionCount,
		QueuedCount:    make([]int, b.partitionCount),
	}
	for i, p := range b.partitions {
		stats.QueuedCount[i] = len(p.queue)
	}
	return stats
}

func (b *InMemoryEventBus) getPartitionID(key string) int {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return int(hasher.Sum32()) % b.partitionCount
}

func (b *InMemoryEventBus) getHandler(event *Event) error {
	b.mu.RLock()
	handler, exists := b.subscribers[event.Topic]
	b.mu.RUnlock()

	if !exists {
		if logger := log.GetLogger(); logger != nil {
			logger.Debugf("eventbus: no handler for topic %s", event.Topic)
		}
		return nil
	}
	return handler(event)
}

func (b *InMemoryEventBus) runPartition(p *partition) {
	logger := log.GetLogger()
	if logger != nil {
		logger.Infof("eventbus: partition %d started", p.id)
		defer logger.Infof("eventbus: partition %d stopped", p.id)
	}

	for {
		select {
		case <-p.ctx.Done():
			return
		case event, ok := <-p.queue:
			if !ok {
				return
			}
			if p.handler != nil {
				if err := p.handler(event); err != nil {
					if logger != nil {
						logger.Errorf("eventbus: partition %d handler error: %v", p.id, err)
					}
				} else {
					atomic.AddInt64(&b.processedCount, 1)
				}
			}
		}
	}
}
