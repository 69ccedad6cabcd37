package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"courier-dispatch/internal/logx"
)

const channelPrefix = "realtime:"

// RedisBroker fans messages out across processes through Redis Pub/Sub.
type RedisBroker struct {
	client *redis.Client
	logger logx.Logger
}

// NewRedisBroker creates a broker on an existing Redis client.
func NewRedisBroker(client *redis.Client, logger logx.Logger) *RedisBroker {
	if logger == nil {
		logger = logx.Nop()
	}
	return &RedisBroker{client: client, logger: logger}
}

// Publish sends msg to the Redis channel of msg.Topic.
func (b *RedisBroker) Publish(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := b.client.Publish(ctx, channelPrefix+string(msg.Topic), raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe opens a Redis subscription on topic.
func (b *RedisBroker) Subscribe(ctx context.Context, topic Topic) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, channelPrefix+string(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan Message, defaultBuffer)
	stop := make(chan struct{})
	var once sync.Once
	closeFn := func() {
		once.Do(func() {
			close(stop)
			_ = ps.Close()
		})
	}

	go func() {
		defer close(out)
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				closeFn()
				return
			case <-stop:
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.logger.Warn("realtime bad payload",
						logx.String("event", "realtime_decode_failed"),
						logx.String("topic", string(topic)),
						logx.Err(err),
					)
					continue
				}
				select {
				case out <- msg:
				default:
					b.logger.Warn("realtime subscriber lagging, message dropped",
						logx.String("event", "realtime_drop"),
						logx.String("topic", string(topic)),
					)
				}
			}
		}
	}()

	return &Subscription{C: out, close: closeFn}, nil
}
