package store

import (
	"context"
	"time"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

func (p *Postgres) AddReaction(ctx context.Context, r *domain.Reaction) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := p.writer.ExecContext(ctx, `
		INSERT INTO reactions (id, message_id, user_id, glyph, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (message_id, user_id, glyph) DO NOTHING`,
		r.ID, r.MessageID, r.UserID, r.Glyph, r.CreatedAt)
	if err != nil {
		return apperr.Internal("add reaction", err)
	}
	return nil
}

func (p *Postgres) RemoveReaction(ctx context.Context, reactionID domain.ReactionID, actor domain.UserID) error {
	res, err := p.writer.ExecContext(ctx, `
		DELETE FROM reactions WHERE id=$1 AND user_id=$2`, reactionID, actor)
	if err != nil {
		return apperr.Internal("remove reaction", err)
	}
	return requireRowsAffected(res, "reaction not found")
}
