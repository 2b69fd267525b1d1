package eventbus

import "context"

// Event is published on the bus. Key selects the partition; for the
// notification channel it is the stringified pid, so all notifications for
// one process are delivered in order.
type Event struct {
	Topic   string      `json:"topic"`
	Key     string      `json:"key"`
	Payload interface{} `json:"payload"`
}

// Handler processes one event.
type Handler func(event *Event) error

// Subscriber pairs a topic with its handler.
type Subscriber struct {
	Topic   string
	Handler Handler
}

// partition is one consumer goroutine and its bounded queue.
type partition struct {
	id      int
	queue   chan *Event
	ctx     context.Context
	cancel  context.CancelFunc
	handler Handler
}
