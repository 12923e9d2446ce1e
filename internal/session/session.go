// Package session implements the SessionRegistry (spec.md §4.3):
// credential issuance, multi-device session tracking, and the
// short-lived access token / long-lived opaque refresh secret split.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/cachebus"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/config"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/store"
)

// Registry issues and validates credentials, persisting sessions to
// Store and mirroring the hot fields into the cache/bus.
type Registry struct {
	store store.Store
	bus   *cachebus.Bus
	cfg   config.AuthConfig
}

func New(st store.Store, bus *cachebus.Bus, cfg config.AuthConfig) *Registry {
	return &Registry{store: st, bus: bus, cfg: cfg}
}

// accessClaims is the JWT payload for short-lived access tokens.
type accessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// Credentials is the pair handed back to a client after authentication.
type Credentials struct {
	AccessToken   string
	RefreshSecret string
	Session       domain.Session
}

// Create mints a new session for userID on the given device, persists
// it, mirrors it into the cache, and returns a fresh credential pair.
func (r *Registry) Create(ctx context.Context, userID domain.UserID, deviceID *string, deviceKind domain.DeviceKind, deviceLabel, ip, userAgent *string) (*Credentials, error) {
	refreshSecret, err := randomSecret(32)
	if err != nil {
		return nil, apperr.Internal("generate refresh secret", err)
	}

	now := time.Now().UTC()
	s := &domain.Session{
		ID:             domain.NewSessionID(),
		UserID:         userID,
		RefreshSecret:  refreshSecret,
		DeviceID:       deviceID,
		DeviceKind:     deviceKind,
		DeviceLabel:    deviceLabel,
		IPAddress:      ip,
		UserAgent:      userAgent,
		Active:         true,
		LastActivityAt: now,
		CreatedAt:      now,
		ExpiresAt:      now.Add(r.cfg.RefreshTTL),
	}
	if err := r.store.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	if err := r.bus.MirrorSession(ctx, s, r.cfg.RefreshTTL); err != nil {
		return nil, err
	}

	access, err := r.signAccessToken(*s)
	if err != nil {
		return nil, err
	}
	return &Credentials{AccessToken: access, RefreshSecret: refreshSecret, Session: *s}, nil
}

func (r *Registry) signAccessToken(s domain.Session) (string, error) {
	now := time.Now().UTC()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.cfg.AccessTTL)),
		},
		SessionID: s.ID.String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.cfg.AccessSecret)
	if err != nil {
		return "", apperr.Internal("sign access token", err)
	}
	return signed, nil
}

// VerifyAccessToken validates an access token's signature and
// expiry and returns the session id and user id it was issued for.
func (r *Registry) VerifyAccessToken(tokenString string) (domain.SessionID, domain.UserID, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.Unauthenticated("unexpected signing method")
		}
		return r.cfg.AccessSecret, nil
	})
	if err != nil || !token.Valid {
		return "", "", apperr.Unauthenticated("invalid or expired access token")
	}
	return domain.SessionID(claims.SessionID), domain.UserID(claims.Subject), nil
}

// ResolveByRefresh exchanges a refresh secret for the session it
// belongs to, checking the cache before falling back to Store and
// repopulating the cache on a Store hit (spec.md §4.3).
func (r *Registry) ResolveByRefresh(ctx context.Context, refreshSecret string) (*domain.Session, error) {
	s, err := r.bus.ResolveByRefreshSecret(ctx, refreshSecret)
	if err != nil {
		s, err = r.store.FindSessionByRefreshSecret(ctx, refreshSecret)
		if err != nil {
			return nil, err
		}
		_ = r.bus.MirrorSession(ctx, s, r.cfg.RefreshTTL)
	}
	if !s.Usable(time.Now().UTC()) {
		return nil, apperr.Unauthenticated("session expired or invalidated")
	}
	return s, nil
}

// Extend rotates a session's access token from a still-valid refresh
// secret, resetting its expiry to now plus the configured refresh TTL.
func (r *Registry) Extend(ctx context.Context, refreshSecret string) (*Credentials, error) {
	s, err := r.ResolveByRefresh(ctx, refreshSecret)
	if err != nil {
		return nil, err
	}
	newExpiry := time.Now().UTC().Add(r.cfg.RefreshTTL)
	if err := r.store.ExtendSession(ctx, s.ID, newExpiry); err != nil {
		return nil, err
	}
	s.ExpiresAt = newExpiry

	access, err := r.signAccessToken(*s)
	if err != nil {
		return nil, err
	}
	if err := r.bus.MirrorSession(ctx, s, r.cfg.RefreshTTL); err != nil {
		return nil, err
	}
	return &Credentials{AccessToken: access, RefreshSecret: s.RefreshSecret, Session: *s}, nil
}

// AttachSocket records which live WebSocket connection a session owns,
// in both Store and the cache mirror.
func (r *Registry) AttachSocket(ctx context.Context, sessionID domain.SessionID, socketID string) error {
	now := time.Now().UTC()
	if err := r.store.AttachSocket(ctx, sessionID, socketID, now); err != nil {
		return err
	}
	return r.bus.AttachSocket(ctx, sessionID, socketID, r.cfg.RefreshTTL)
}

func (r *Registry) ListActive(ctx context.Context, userID domain.UserID) ([]domain.Session, error) {
	return r.store.ListActiveSessions(ctx, userID)
}

// Invalidate revokes a single session (logout from one device).
func (r *Registry) Invalidate(ctx context.Context, s *domain.Session) error {
	if err := r.store.InvalidateSession(ctx, s.ID); err != nil {
		return err
	}
	return r.bus.InvalidateSession(ctx, s)
}

// InvalidateAll revokes every session for a user (logout everywhere /
// credential compromise response).
func (r *Registry) InvalidateAll(ctx context.Context, userID domain.UserID) error {
	sessions, err := r.store.ListActiveSessions(ctx, userID)
	if err != nil {
		return err
	}
	if err := r.store.InvalidateAllSessions(ctx, userID); err != nil {
		return err
	}
	for i := range sessions {
		_ = r.bus.InvalidateSession(ctx, &sessions[i])
	}
	return nil
}

func randomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
