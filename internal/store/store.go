// Package store is the relational persistence layer for the messaging
// core (spec.md §4.1). It owns every row described in spec.md §3
// exclusively; no business logic lives here, only typed operations and
// the transactions that back their invariants.
package store

import (
	"context"
	"time"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

// Cursor is an opaque pagination token for ListMessagesByChat; it
// round-trips through
// (createdAt, id) so pages are reproducible even under concurrent writes.
type Cursor struct {
	CreatedAt time.Time
	ID        domain.MessageID
}

// Store is the full set of typed relational operations the messaging
// core depends on. Implementations run every multi-row mutation inside
// a transaction matching its invariant (see spec.md §4.1).
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *domain.User) error
	FindUserByHandle(ctx context.Context, handle string) (*domain.User, error)
	FindUserByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	SearchUsersByHandle(ctx context.Context, prefix string, limit int) ([]*domain.User, error)
	UpdateUser(ctx context.Context, u *domain.User) error
	UpdatePresence(ctx context.Context, userID domain.UserID, status domain.UserStatus, lastSeenAt *time.Time) error

	// Chats
	CreateChat(ctx context.Context, c *domain.Chat, participantIDs []domain.UserID) error
	FindChatByID(ctx context.Context, id domain.ChatID) (*domain.Chat, error)
	FindDirectChatBetween(ctx context.Context, a, b domain.UserID) (*domain.Chat, error)
	UpdateChat(ctx context.Context, c *domain.Chat) error
	SoftDeleteChat(ctx context.Context, id domain.ChatID) error
	ListUserChats(ctx context.Context, userID domain.UserID) ([]domain.ChatSummary, error)

	// Participants
	AddParticipant(ctx context.Context, chatID domain.ChatID, userID domain.UserID, role domain.ParticipantRole) (*domain.Participant, error)
	RemoveParticipant(ctx context.Context, chatID domain.ChatID, userID domain.UserID) error
	ListActiveParticipantIDs(ctx context.Context, chatID domain.ChatID) ([]domain.UserID, error)
	IsActiveParticipant(ctx context.Context, chatID domain.ChatID, userID domain.UserID) (bool, error)
	CountActiveParticipants(ctx context.Context, chatID domain.ChatID) (int, error)
	GetParticipant(ctx context.Context, chatID domain.ChatID, userID domain.UserID) (*domain.Participant, error)

	// Messages
	PersistMessage(ctx context.Context, m *domain.Message, recipientIDs []domain.UserID) ([]domain.Delivery, error)
	FindMessageByID(ctx context.Context, id domain.MessageID) (*domain.Message, error)
	EditMessage(ctx context.Context, messageID domain.MessageID, actor domain.UserID, newBody string) (*domain.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID domain.MessageID, actor domain.UserID) error
	ListMessagesByChat(ctx context.Context, chatID domain.ChatID, limit int, cursor *Cursor) ([]domain.Message, *Cursor, error)

	// Delivery
	SetDeliveryStatus(ctx context.Context, messageID domain.MessageID, userID domain.UserID, status domain.DeliveryStatus, at time.Time) error
	ListPendingDeliveries(ctx context.Context, userID domain.UserID, limit int) ([]domain.Delivery, error)
	ResetUnread(ctx context.Context, chatID domain.ChatID, userID domain.UserID) error
	BulkMarkRead(ctx context.Context, chatID domain.ChatID, userID domain.UserID, upToMessageID domain.MessageID, at time.Time) ([]domain.Message, error)

	// Reactions
	AddReaction(ctx context.Context, r *domain.Reaction) error
	RemoveReaction(ctx context.Context, reactionID domain.ReactionID, actor domain.UserID) error

	// Search
	FullTextSearch(ctx context.Context, userID domain.UserID, query string, chatID *domain.ChatID, limit int) ([]domain.Message, error)

	// Sessions — the system of record behind SessionRegistry (spec.md
	// §4.3); the cache layer mirrors these rows but this store is
	// authoritative.
	CreateSession(ctx context.Context, s *domain.Session) error
	FindSessionByID(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	FindSessionByRefreshSecret(ctx context.Context, refreshSecret string) (*domain.Session, error)
	ListActiveSessions(ctx context.Context, userID domain.UserID) ([]domain.Session, error)
	AttachSocket(ctx context.Context, id domain.SessionID, socketID string, at time.Time) error
	TouchSession(ctx context.Context, id domain.SessionID, at time.Time) error
	ExtendSession(ctx context.Context, id domain.SessionID, newExpiry time.Time) error
	InvalidateSession(ctx context.Context, id domain.SessionID) error
	InvalidateAllSessions(ctx context.Context, userID domain.UserID) error

	Close() error
}
