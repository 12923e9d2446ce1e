package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

func (p *Postgres) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := p.writer.ExecContext(ctx, `
		INSERT INTO users (id, handle, credential_hash, display_name, avatar_ref, status, last_seen_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.Handle, u.CredentialHash, u.DisplayName, u.AvatarRef, u.Status, u.LastSeenAt, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("handle already taken")
	}
	if err != nil {
		return apperr.Internal("create user", err)
	}
	return nil
}

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Handle, &u.CredentialHash, &u.DisplayName, &u.AvatarRef, &u.Status, &u.LastSeenAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *Postgres) FindUserByHandle(ctx context.Context, handle string) (*domain.User, error) {
	row := p.reader.QueryRowContext(ctx, `
		SELECT id, handle, credential_hash, display_name, avatar_ref, status, last_seen_at, created_at, updated_at
		FROM users WHERE handle = $1`, handle)
	u, err := scanUser(row)
	if isNoRows(err) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("find user by handle", err)
	}
	return u, nil
}

func (p *Postgres) FindUserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	u, err := scanUser(p.stmt(stmtFindUserByID).QueryRowContext(ctx, id))
	if isNoRows(err) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("find user by id", err)
	}
	return u, nil
}

func (p *Postgres) SearchUsersByHandle(ctx context.Context, prefix string, limit int) ([]*domain.User, error) {
	rows, err := p.reader.QueryContext(ctx, `
		SELECT id, handle, credential_hash, display_name, avatar_ref, status, last_seen_at, created_at, updated_at
		FROM users WHERE handle ILIKE $1 ORDER BY handle LIMIT $2`, prefix+"%", limit)
	if err != nil {
		return nil, apperr.Internal("search users", err)
	}
	defer rows.Close()

	var out []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperr.Internal("scan user", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateUser(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := p.writer.ExecContext(ctx, `
		UPDATE users SET display_name=$2, avatar_ref=$3, updated_at=$4 WHERE id=$1`,
		u.ID, u.DisplayName, u.AvatarRef, u.UpdatedAt)
	if err != nil {
		return apperr.Internal("update user", err)
	}
	return requireRowsAffected(res, "user not found")
}

func (p *Postgres) UpdatePresence(ctx context.Context, userID domain.UserID, status domain.UserStatus, lastSeenAt *time.Time) error {
	res, err := p.writer.ExecContext(ctx, `
		UPDATE users SET status=$2, last_seen_at=$3, updated_at=$4 WHERE id=$1`,
		userID, status, lastSeenAt, time.Now().UTC())
	if err != nil {
		return apperr.Internal("update presence", err)
	}
	return requireRowsAffected(res, "user not found")
}

func requireRowsAffected(res sql.Result, notFoundMsg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal("rows affected", err)
	}
	if n == 0 {
		return apperr.NotFound(notFoundMsg)
	}
	return nil
}
