package cachebus

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

// sessionBlob is the hash shape mirrored at both session:byId:{id} and
// session:byRefresh:{secret}, so either key alone is enough to
// reconstruct a usable domain.Session without a Store round trip.
func sessionBlob(s *domain.Session) map[string]any {
	return map[string]any{
		"id":            s.ID.String(),
		"userId":        s.UserID.String(),
		"refreshSecret": s.RefreshSecret,
		"socketId":      derefOr(s.SocketID, ""),
		"active":        s.Active,
		"expiresAt":     s.ExpiresAt.Format(time.RFC3339),
	}
}

// MirrorSession writes all three session keys in a single pipeline so
// a reader never observes the socket pointer or the user-session set
// without the session blob also present (spec.md §4.3).
func (b *Bus) MirrorSession(ctx context.Context, s *domain.Session, ttl time.Duration) error {
	blob := sessionBlob(s)
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, sessionByIDKey(s.ID.String()), blob)
	pipe.Expire(ctx, sessionByIDKey(s.ID.String()), ttl)
	pipe.HSet(ctx, sessionByRefreshKey(s.RefreshSecret), blob)
	pipe.Expire(ctx, sessionByRefreshKey(s.RefreshSecret), ttl)
	pipe.SAdd(ctx, sessionByUserKey(s.UserID.String()), s.ID.String())
	pipe.Expire(ctx, sessionByUserKey(s.UserID.String()), ttl)
	if s.SocketID != nil {
		pipe.Set(ctx, socketKey(*s.SocketID), s.ID.String(), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.DependencyUnavailable("mirror session", err)
	}
	return nil
}

// AttachSocket updates the socket pointer for an already-mirrored
// session, used on (re)connect. The refresh-secret isn't known here,
// so only the byId hash (keyed by something the caller always has) is
// patched directly; a full MirrorSession call repopulates byRefresh
// too whenever the session is next re-read from Store.
func (b *Bus) AttachSocket(ctx context.Context, sessionID domain.SessionID, socketID string, ttl time.Duration) error {
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, sessionByIDKey(sessionID.String()), "socketId", socketID)
	pipe.Expire(ctx, sessionByIDKey(sessionID.String()), ttl)
	pipe.Set(ctx, socketKey(socketID), sessionID.String(), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.DependencyUnavailable("attach socket", err)
	}
	return nil
}

// ResolveByRefreshSecret reads the session:byRefresh:{secret} blob
// straight out of the cache (spec.md §4.3 "cache first, fall back to
// Store"). A miss is reported as apperr.NotFound so the caller knows
// to fall back to Store rather than treating it as a dependency error.
func (b *Bus) ResolveByRefreshSecret(ctx context.Context, refreshSecret string) (*domain.Session, error) {
	vals, err := b.client.HGetAll(ctx, sessionByRefreshKey(refreshSecret)).Result()
	if err != nil {
		return nil, apperr.DependencyUnavailable("resolve session by refresh secret", err)
	}
	if len(vals) == 0 {
		return nil, apperr.NotFound("session not mirrored")
	}
	expiresAt, err := time.Parse(time.RFC3339, vals["expiresAt"])
	if err != nil {
		return nil, apperr.Internal("parse cached session expiry", err)
	}
	s := &domain.Session{
		ID:            domain.SessionID(vals["id"]),
		UserID:        domain.UserID(vals["userId"]),
		RefreshSecret: vals["refreshSecret"],
		Active:        vals["active"] == "1",
		ExpiresAt:     expiresAt,
	}
	if vals["socketId"] != "" {
		socketID := vals["socketId"]
		s.SocketID = &socketID
	}
	return s, nil
}

// ResolveSocket maps a live socket connection back to its session id,
// used when a gateway event arrives and must be attributed.
func (b *Bus) ResolveSocket(ctx context.Context, socketID string) (domain.SessionID, error) {
	val, err := b.client.Get(ctx, socketKey(socketID)).Result()
	if err == redis.Nil {
		return "", apperr.NotFound("socket not mirrored")
	}
	if err != nil {
		return "", apperr.DependencyUnavailable("resolve socket", err)
	}
	return domain.SessionID(val), nil
}

// ListMirroredSessions returns every session id mirrored for a user,
// used by SessionRegistry.ListActive to avoid a Store round trip on
// the hot path.
func (b *Bus) ListMirroredSessions(ctx context.Context, userID domain.UserID) ([]string, error) {
	ids, err := b.client.SMembers(ctx, sessionByUserKey(userID.String())).Result()
	if err != nil {
		return nil, apperr.DependencyUnavailable("list mirrored sessions", err)
	}
	return ids, nil
}

// InvalidateSession removes both session hashes and the user-set
// entry; the socket pointer is left to expire on its own TTL since the
// gateway that owns that socket will get a close frame regardless.
func (b *Bus) InvalidateSession(ctx context.Context, s *domain.Session) error {
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, sessionByIDKey(s.ID.String()))
	pipe.Del(ctx, sessionByRefreshKey(s.RefreshSecret))
	pipe.SRem(ctx, sessionByUserKey(s.UserID.String()), s.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.DependencyUnavailable("invalidate session", err)
	}
	return nil
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
