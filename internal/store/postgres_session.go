package store

import (
	"context"
	"time"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

func (p *Postgres) CreateSession(ctx context.Context, s *domain.Session) error {
	_, err := p.writer.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, refresh_secret, device_id, device_kind, device_label, socket_id, ip_address, user_agent, active, last_activity_at, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		s.ID, s.UserID, s.RefreshSecret, s.DeviceID, s.DeviceKind, s.DeviceLabel, s.SocketID, s.IPAddress, s.UserAgent, s.Active, s.LastActivityAt, s.CreatedAt, s.ExpiresAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("refresh secret collision")
	}
	if err != nil {
		return apperr.Internal("create session", err)
	}
	return nil
}

const sessionColumns = `id, user_id, refresh_secret, device_id, device_kind, device_label, socket_id, ip_address, user_agent, active, last_activity_at, created_at, expires_at`

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(&s.ID, &s.UserID, &s.RefreshSecret, &s.DeviceID, &s.DeviceKind, &s.DeviceLabel, &s.SocketID, &s.IPAddress, &s.UserAgent, &s.Active, &s.LastActivityAt, &s.CreatedAt, &s.ExpiresAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *Postgres) FindSessionByID(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	s, err := scanSession(p.reader.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id))
	if isNoRows(err) {
		return nil, apperr.NotFound("session not found")
	}
	if err != nil {
		return nil, apperr.Internal("find session", err)
	}
	return s, nil
}

func (p *Postgres) FindSessionByRefreshSecret(ctx context.Context, refreshSecret string) (*domain.Session, error) {
	s, err := scanSession(p.reader.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE refresh_secret=$1`, refreshSecret))
	if isNoRows(err) {
		return nil, apperr.Unauthenticated("unknown refresh credential")
	}
	if err != nil {
		return nil, apperr.Internal("find session by refresh secret", err)
	}
	return s, nil
}

func (p *Postgres) ListActiveSessions(ctx context.Context, userID domain.UserID) ([]domain.Session, error) {
	rows, err := p.reader.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE user_id=$1 AND active=true ORDER BY last_activity_at DESC`, userID)
	if err != nil {
		return nil, apperr.Internal("list active sessions", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, apperr.Internal("scan session", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *Postgres) AttachSocket(ctx context.Context, id domain.SessionID, socketID string, at time.Time) error {
	res, err := p.writer.ExecContext(ctx, `
		UPDATE sessions SET socket_id=$2, last_activity_at=$3 WHERE id=$1 AND active=true`, id, socketID, at)
	if err != nil {
		return apperr.Internal("attach socket", err)
	}
	return requireRowsAffected(res, "session not found or inactive")
}

func (p *Postgres) TouchSession(ctx context.Context, id domain.SessionID, at time.Time) error {
	_, err := p.writer.ExecContext(ctx, `UPDATE sessions SET last_activity_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return apperr.Internal("touch session", err)
	}
	return nil
}

func (p *Postgres) ExtendSession(ctx context.Context, id domain.SessionID, newExpiry time.Time) error {
	res, err := p.writer.ExecContext(ctx, `
		UPDATE sessions SET expires_at=$2 WHERE id=$1 AND active=true`, id, newExpiry)
	if err != nil {
		return apperr.Internal("extend session", err)
	}
	return requireRowsAffected(res, "session not found or inactive")
}

func (p *Postgres) InvalidateSession(ctx context.Context, id domain.SessionID) error {
	_, err := p.writer.ExecContext(ctx, `UPDATE sessions SET active=false WHERE id=$1`, id)
	if err != nil {
		return apperr.Internal("invalidate session", err)
	}
	return nil
}

func (p *Postgres) InvalidateAllSessions(ctx context.Context, userID domain.UserID) error {
	_, err := p.writer.ExecContext(ctx, `UPDATE sessions SET active=false WHERE user_id=$1`, userID)
	if err != nil {
		return apperr.Internal("invalidate all sessions", err)
	}
	return nil
}
