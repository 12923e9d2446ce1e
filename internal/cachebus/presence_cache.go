package cachebus

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

// Heartbeat records userID as online as of now (spec.md §4.7); the
// PresenceTracker calls this on connect and on every client heartbeat.
func (b *Bus) Heartbeat(ctx context.Context, userID domain.UserID, at time.Time) error {
	err := b.client.ZAdd(ctx, presenceKey, redis.Z{Score: float64(at.Unix()), Member: userID.String()}).Err()
	if err != nil {
		return apperr.DependencyUnavailable("heartbeat", err)
	}
	return nil
}

// MarkOffline removes userID from the online set, used once the
// disconnect grace period (§4.7) elapses without a reconnect.
func (b *Bus) MarkOffline(ctx context.Context, userID domain.UserID) error {
	if err := b.client.ZRem(ctx, presenceKey, userID.String()).Err(); err != nil {
		return apperr.DependencyUnavailable("mark offline", err)
	}
	return nil
}

// IsOnline reports whether userID has a heartbeat newer than staleAfter.
func (b *Bus) IsOnline(ctx context.Context, userID domain.UserID, staleAfter time.Duration) (bool, error) {
	score, err := b.client.ZScore(ctx, presenceKey, userID.String()).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, apperr.DependencyUnavailable("is online", err)
	}
	return time.Unix(int64(score), 0).After(time.Now().Add(-staleAfter)), nil
}

// StaleUsers returns every userID whose last heartbeat is older than
// staleAfter, for the PresenceTracker's periodic sweep.
func (b *Bus) StaleUsers(ctx context.Context, staleAfter time.Duration) ([]domain.UserID, error) {
	cutoff := time.Now().Add(-staleAfter).Unix()
	members, err := b.client.ZRangeByScore(ctx, presenceKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return nil, apperr.DependencyUnavailable("stale users", err)
	}
	out := make([]domain.UserID, len(members))
	for i, m := range members {
		out[i] = domain.UserID(m)
	}
	return out, nil
}
