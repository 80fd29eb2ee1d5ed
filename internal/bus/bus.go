// Package bus is the message bus between pipeline stages: JSON envelopes
// over Redis pub/sub, one channel per topic. Delivery is at-least-once from
// the consumer's point of view (retried pushes can duplicate); ordering per
// topic is not assumed. Consumers must dedup on their canonical keys.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Envelope is the wire format for every bus message.
type Envelope struct {
	MessageID  string            `json:"message_id"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Data       json.RawMessage   `json:"data"`
}

// Publisher is the outbound half of the bus. Stages depend on this
// interface so tests can capture published events in memory.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any, attrs map[string]string) error
}

// Bus publishes and subscribes over a shared Redis client.
type Bus struct {
	rdb *goredis.Client
}

// New creates a Bus on an existing Redis client.
func New(rdb *goredis.Client) *Bus {
	return &Bus{rdb: rdb}
}

// eventTyped is probed from payloads so the event kind always travels as a
// message attribute for subscription-side filtering.
type eventTyped struct {
	EventType string `json:"event_type"`
}

// Publish marshals payload into an envelope and publishes it on topic.
// When the payload carries an event_type field it is copied into the
// envelope attributes.
func (b *Bus) Publish(ctx context.Context, topic string, payload any, attrs map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus marshal: %w", err)
	}

	if attrs == nil {
		attrs = map[string]string{}
	}
	var et eventTyped
	if json.Unmarshal(data, &et) == nil && et.EventType != "" {
		attrs["event_type"] = et.EventType
	}

	env := Envelope{
		MessageID:  uuid.NewString(),
		Attributes: attrs,
		Data:       data,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus marshal envelope: %w", err)
	}

	if err := b.rdb.Publish(ctx, topic, raw).Err(); err != nil {
		return fmt.Errorf("bus publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe consumes envelopes from one or more topics until ctx is
// cancelled, invoking handle for each decoded envelope. Malformed messages
// are logged and acknowledged by skipping, never redelivered forever.
func (b *Bus) Subscribe(ctx context.Context, handle func(topic string, env Envelope), topics ...string) error {
	sub := b.rdb.Subscribe(ctx, topics...)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("bus subscription closed")
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				slog.Warn("bus envelope decode failed", "topic", msg.Channel, "err", err)
				continue
			}
			handle(msg.Channel, env)
		}
	}
}
