package chatservice

import (
	"context"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

// Search runs a full-text query across every chat the caller belongs
// to, or a single chat when chatID is set (spec.md §4.6).
func (s *Service) Search(ctx context.Context, caller Caller, query string, chatID *domain.ChatID, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.FullTextSearch(ctx, caller.UserID, query, chatID, limit)
}
