// Package realtime carries typed tracking updates and driver offers to subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"strconv"
	"time"
)

// Topic names a stream. Orders and drivers each get their own.
type Topic string

// OrderTopic is the tracking stream of one order.
func OrderTopic(orderID string) Topic { return Topic("order:" + orderID) }

// DriverTopic is the offer stream of one driver.
func DriverTopic(driverID int64) Topic {
	return Topic("driver:" + strconv.FormatInt(driverID, 10))
}

// Kind tells subscribers how to decode the payload.
type Kind string

// List of message kinds
const (
	KindPosition Kind = "position"
	KindETA      Kind = "eta"
	KindStatus   Kind = "status"
	KindOffer    Kind = "offer"
	KindTimeline Kind = "timeline"
)

// Message is what subscribers receive.
type Message struct {
	Topic   Topic           `json:"topic"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// NewMessage encodes payload into a Message.
func NewMessage(topic Topic, kind Kind, payload any, at time.Time) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: topic, Kind: kind, Payload: raw, At: at}, nil
}

// Publisher sends messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Subscriber opens a stream on a topic. The stream ends when ctx is done or
// the subscription is closed.
type Subscriber interface {
	Subscribe(ctx context.Context, topic Topic) (*Subscription, error)
}

// Broker is both ends of the realtime channel.
type Broker interface {
	Publisher
	Subscriber
}

// Subscription is a live stream of messages on one topic.
type Subscription struct {
	C     <-chan Message
	close func()
}

// Close stops delivery and releases the subscription. Safe to call twice.
func (s *Subscription) Close() {
	if s.close != nil {
		s.close()
	}
}
