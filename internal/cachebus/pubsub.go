package cachebus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

// Envelope is the wire shape of every fan-out message published on a
// pub/sub topic, carried verbatim by the Gateway to its WebSocket
// clients (spec.md §4.4).
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func (b *Bus) publish(ctx context.Context, topic string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return apperr.Internal("marshal envelope", err)
	}
	if err := b.client.Publish(ctx, topic, data).Err(); err != nil {
		return apperr.DependencyUnavailable("publish", err)
	}
	return nil
}

// PublishToChat fans event out to every node subscribed to chatID's
// room, regardless of which node accepted the originating connection.
func (b *Bus) PublishToChat(ctx context.Context, chatID domain.ChatID, event string, payload any) error {
	return b.publish(ctx, chatTopic(chatID.String()), Envelope{Event: event, Payload: payload})
}

// PublishToUser fans event out to every active socket of a single
// user, across devices and nodes.
func (b *Bus) PublishToUser(ctx context.Context, userID domain.UserID, event string, payload any) error {
	return b.publish(ctx, userTopic(userID.String()), Envelope{Event: event, Payload: payload})
}

// PublishGlobalStatus broadcasts a presence change to every node; the
// Gateway relays it to every locally connected socket, with no
// per-recipient filtering.
func (b *Bus) PublishGlobalStatus(ctx context.Context, event string, payload any) error {
	return b.publish(ctx, globalStatusTopic, Envelope{Event: event, Payload: payload})
}

// Subscription wraps a redis.PubSub channel decoded into Envelopes.
type Subscription struct {
	ps *redis.PubSub
	C  <-chan Envelope
}

func (s *Subscription) Close() error { return s.ps.Close() }

func (b *Bus) subscribe(ctx context.Context, topics ...string) *Subscription {
	ps := b.client.Subscribe(ctx, topics...)
	out := make(chan Envelope, 64)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				if b.logger != nil {
					b.logger.WithError(err).Warn("cachebus: dropped malformed envelope")
				}
				continue
			}
			out <- env
		}
	}()
	return &Subscription{ps: ps, C: out}
}

// SubscribeChat subscribes to a single chat room's fan-out topic.
func (b *Bus) SubscribeChat(ctx context.Context, chatID domain.ChatID) *Subscription {
	return b.subscribe(ctx, chatTopic(chatID.String()))
}

// SubscribeUser subscribes to a single user's cross-device topic.
func (b *Bus) SubscribeUser(ctx context.Context, userID domain.UserID) *Subscription {
	return b.subscribe(ctx, userTopic(userID.String()))
}

// SubscribeGlobalStatus subscribes to the presence broadcast topic.
func (b *Bus) SubscribeGlobalStatus(ctx context.Context) *Subscription {
	return b.subscribe(ctx, globalStatusTopic)
}
