// Package cachebus is the single Redis-backed client behind the
// messaging core's Cache/Bus component (spec.md §4.2): session
// mirroring, presence tracking, cross-node pub/sub fan-out, and the
// durable delivery stream all share one connection.
package cachebus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/config"
)

// Bus wraps a single redis.UniversalClient (a plain client when
// redis.addrs has one entry, a cluster client otherwise — the same
// split the teacher's repository and cache manager made between
// *redis.Client and *redis.ClusterClient, unified here behind one
// interface per go-redis/v9 convention).
type Bus struct {
	client redis.UniversalClient
	logger *logrus.Logger
}

func New(cfg config.RedisConfig, logger *logrus.Logger) *Bus {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addrs,
		Password: cfg.Password,
	})
	return &Bus{client: client, logger: logger}
}

func (b *Bus) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return apperr.DependencyUnavailable("redis unreachable", err)
	}
	return nil
}

func (b *Bus) Close() error {
	return b.client.Close()
}

// Key patterns for the session mirror (spec.md §4.3): a session hash
// keyed by id, a session hash keyed by refresh secret, a per-user
// session-id set, and a socket→session pointer. MirrorSession and
// InvalidateSession write the first three together; AttachSocket
// patches only the by-id hash and sets the socket pointer.
func sessionByIDKey(sessionID string) string   { return fmt.Sprintf("session:byId:%s", sessionID) }
func sessionByRefreshKey(secret string) string { return fmt.Sprintf("session:byRefresh:%s", secret) }
func sessionByUserKey(userID string) string    { return fmt.Sprintf("session:byUser:%s", userID) }
func socketKey(socketID string) string         { return fmt.Sprintf("socket:%s", socketID) }

// Presence sorted set: member is userID, score is the unix timestamp
// of the last heartbeat (spec.md §4.7).
const presenceKey = "presence:online"

// Pub/sub topic names (spec.md §4.4 fan-out).
func chatTopic(chatID string) string { return fmt.Sprintf("chat:%s", chatID) }
func userTopic(userID string) string { return fmt.Sprintf("user:%s", userID) }

const globalStatusTopic = "status:global"

// Delivery stream + consumer group (spec.md §4.5).
const (
	deliveryStreamKey   = "delivery:stream"
	deliveryConsumerGrp = "delivery-workers"
)

var defaultHeartbeatTTL = 30 * time.Second
