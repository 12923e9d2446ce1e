package store

import (
	"context"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

// FullTextSearch ranks non-deleted messages across the caller's chats
// (or a single chat, when chatID is set) by relevance to query, using
// Postgres's built-in text search with the configured language
// (spec.md §9 Open Question, resolved in favor of a configurable
// regconfig rather than a hardcoded "simple" analyzer).
func (p *Postgres) FullTextSearch(ctx context.Context, userID domain.UserID, query string, chatID *domain.ChatID, limit int) ([]domain.Message, error) {
	args := []any{p.searchLanguage, query, userID, limit}
	where := `part.user_id = $3 AND part.left_at IS NULL AND m.deleted = false`
	if chatID != nil {
		args = append(args, *chatID)
		where += ` AND m.chat_id = $5`
	}

	rows, err := p.reader.QueryContext(ctx, `
		SELECT `+qualifiedMessageColumns+`
		FROM messages m
		JOIN participants part ON part.chat_id = m.chat_id
		WHERE `+where+`
		  AND to_tsvector($1::regconfig, m.body) @@ plainto_tsquery($1::regconfig, $2)
		ORDER BY ts_rank(to_tsvector($1::regconfig, m.body), plainto_tsquery($1::regconfig, $2)) DESC
		LIMIT $4`, args...)
	if err != nil {
		return nil, apperr.Internal("full text search", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, apperr.Internal("scan search result", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

const qualifiedMessageColumns = `m.id, m.chat_id, m.sender_id, m.body, m.kind, m.metadata, m.reply_to_id, m.edited, m.edited_at, m.deleted, m.deleted_at, m.created_at`
