package realtime

import (
	"context"
	"sync"

	"courier-dispatch/internal/logx"
)

const defaultBuffer = 16

// Hub is the in-process broker: an arena of subscriptions keyed by topic.
// Slow subscribers lose messages instead of blocking publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[Topic]map[uint64]chan Message
	nextID uint64
	buffer int
	logger logx.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger logx.Logger) *Hub {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Hub{
		subs:   make(map[Topic]map[uint64]chan Message),
		buffer: defaultBuffer,
		logger: logger,
	}
}

// Publish delivers msg to every current subscriber of msg.Topic.
func (h *Hub) Publish(_ context.Context, msg Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs[msg.Topic] {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("realtime subscriber lagging, message dropped",
				logx.String("event", "realtime_drop"),
				logx.String("topic", string(msg.Topic)),
				logx.Any("subscription", id),
			)
		}
	}
	return nil
}

// Subscribe registers a new subscription on topic.
func (h *Hub) Subscribe(ctx context.Context, topic Topic) (*Subscription, error) {
	ch := make(chan Message, h.buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[uint64]chan Message)
	}
	h.subs[topic][id] = ch
	h.mu.Unlock()

	var once sync.Once
	stop := make(chan struct{})
	closeFn := func() {
		once.Do(func() {
			close(stop)
			h.mu.Lock()
			delete(h.subs[topic], id)
			if len(h.subs[topic]) == 0 {
				delete(h.subs, topic)
			}
			close(ch)
			h.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			closeFn()
		case <-stop:
		}
	}()
	return &Subscription{C: ch, close: closeFn}, nil
}

// Subscribers reports how many subscriptions topic currently has.
func (h *Hub) Subscribers(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
