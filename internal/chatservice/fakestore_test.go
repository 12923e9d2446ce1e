package chatservice_test

import (
	"context"
	"sync"
	"time"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/store"
)

// fakeStore is an in-memory stand-in for store.Store, scoped to the
// operations chatservice.Service actually exercises. It is not a
// general-purpose test double for every Store consumer.
type fakeStore struct {
	mu sync.Mutex

	users        map[domain.UserID]*domain.User
	chats        map[domain.ChatID]*domain.Chat
	participants map[domain.ChatID]map[domain.UserID]*domain.Participant
	messages     map[domain.MessageID]*domain.Message
	deliveries   map[domain.MessageID]map[domain.UserID]*domain.Delivery
	reactions    map[domain.ReactionID]*domain.Reaction
}

var _ store.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        make(map[domain.UserID]*domain.User),
		chats:        make(map[domain.ChatID]*domain.Chat),
		participants: make(map[domain.ChatID]map[domain.UserID]*domain.Participant),
		messages:     make(map[domain.MessageID]*domain.Message),
		deliveries:   make(map[domain.MessageID]map[domain.UserID]*domain.Delivery),
		reactions:    make(map[domain.ReactionID]*domain.Reaction),
	}
}

func (f *fakeStore) CreateUser(ctx context.Context, u *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) FindUserByHandle(ctx context.Context, handle string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Handle == handle {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (f *fakeStore) FindUserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user not found")
}

func (f *fakeStore) SearchUsersByHandle(ctx context.Context, prefix string, limit int) ([]*domain.User, error) {
	return nil, nil
}

func (f *fakeStore) UpdateUser(ctx context.Context, u *domain.User) error { return nil }

func (f *fakeStore) UpdatePresence(ctx context.Context, userID domain.UserID, status domain.UserStatus, lastSeenAt *time.Time) error {
	return nil
}

func (f *fakeStore) CreateChat(ctx context.Context, c *domain.Chat, participantIDs []domain.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats[c.ID] = c
	f.participants[c.ID] = make(map[domain.UserID]*domain.Participant)
	for _, uid := range participantIDs {
		role := domain.RoleMember
		if c.OwnerID != nil && *c.OwnerID == uid {
			role = domain.RoleOwner
		}
		f.participants[c.ID][uid] = &domain.Participant{
			ID:       domain.NewParticipantID(),
			ChatID:   c.ID,
			UserID:   uid,
			Role:     role,
			JoinedAt: time.Now().UTC(),
		}
	}
	return nil
}

func (f *fakeStore) FindChatByID(ctx context.Context, id domain.ChatID) (*domain.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.chats[id]; ok {
		return c, nil
	}
	return nil, apperr.NotFound("chat not found")
}

func (f *fakeStore) FindDirectChatBetween(ctx context.Context, a, b domain.UserID) (*domain.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for chatID, members := range f.participants {
		chat := f.chats[chatID]
		if chat.Kind != domain.ChatKindDirect {
			continue
		}
		_, hasA := members[a]
		_, hasB := members[b]
		if hasA && hasB && len(members) == 2 {
			return chat, nil
		}
	}
	return nil, apperr.NotFound("direct chat not found")
}

func (f *fakeStore) UpdateChat(ctx context.Context, c *domain.Chat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats[c.ID] = c
	return nil
}

func (f *fakeStore) SoftDeleteChat(ctx context.Context, id domain.ChatID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.chats[id]; ok {
		c.Deleted = true
	}
	return nil
}

func (f *fakeStore) ListUserChats(ctx context.Context, userID domain.UserID) ([]domain.ChatSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ChatSummary
	for chatID, members := range f.participants {
		if p, ok := members[userID]; ok && p.IsActive() {
			out = append(out, domain.ChatSummary{Chat: *f.chats[chatID], UnreadCount: p.UnreadCount})
		}
	}
	return out, nil
}

func (f *fakeStore) AddParticipant(ctx context.Context, chatID domain.ChatID, userID domain.UserID, role domain.ParticipantRole) (*domain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.participants[chatID]
	if members == nil {
		members = make(map[domain.UserID]*domain.Participant)
		f.participants[chatID] = members
	}
	active := 0
	for _, p := range members {
		if p.IsActive() {
			active++
		}
	}
	if existing, ok := members[userID]; ok && !existing.IsActive() {
		existing.LeftAt = nil
		existing.Role = role
		existing.JoinedAt = time.Now().UTC()
		return existing, nil
	}
	if active >= domain.MaxGroupParticipants {
		return nil, apperr.Conflict("group is at capacity")
	}
	p := &domain.Participant{ID: domain.NewParticipantID(), ChatID: chatID, UserID: userID, Role: role, JoinedAt: time.Now().UTC()}
	members[userID] = p
	return p, nil
}

func (f *fakeStore) RemoveParticipant(ctx context.Context, chatID domain.ChatID, userID domain.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.participants[chatID][userID]; ok {
		now := time.Now().UTC()
		p.LeftAt = &now
	}
	return nil
}

func (f *fakeStore) ListActiveParticipantIDs(ctx context.Context, chatID domain.ChatID) ([]domain.UserID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.UserID
	for uid, p := range f.participants[chatID] {
		if p.IsActive() {
			out = append(out, uid)
		}
	}
	return out, nil
}

func (f *fakeStore) IsActiveParticipant(ctx context.Context, chatID domain.ChatID, userID domain.UserID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[chatID][userID]
	return ok && p.IsActive(), nil
}

func (f *fakeStore) CountActiveParticipants(ctx context.Context, chatID domain.ChatID) (int, error) {
	ids, _ := f.ListActiveParticipantIDs(ctx, chatID)
	return len(ids), nil
}

func (f *fakeStore) GetParticipant(ctx context.Context, chatID domain.ChatID, userID domain.UserID) (*domain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.participants[chatID][userID]; ok {
		return p, nil
	}
	return nil, apperr.NotFound("participant not found")
}

func (f *fakeStore) PersistMessage(ctx context.Context, m *domain.Message, recipientIDs []domain.UserID) ([]domain.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.ID] = m
	byUser := f.deliveries[m.ID]
	if byUser == nil {
		byUser = make(map[domain.UserID]*domain.Delivery)
		f.deliveries[m.ID] = byUser
	}
	var out []domain.Delivery
	for _, uid := range recipientIDs {
		d := &domain.Delivery{ID: domain.NewDeliveryID(), MessageID: m.ID, UserID: uid, Status: domain.DeliveryStatusSent}
		byUser[uid] = d
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeStore) FindMessageByID(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.messages[id]; ok {
		return m, nil
	}
	return nil, apperr.NotFound("message not found")
}

func (f *fakeStore) EditMessage(ctx context.Context, messageID domain.MessageID, actor domain.UserID, newBody string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return nil, apperr.NotFound("message not found")
	}
	if m.Deleted {
		return nil, apperr.Conflict("message is deleted")
	}
	if m.SenderID == nil || *m.SenderID != actor {
		return nil, apperr.Forbidden("only the sender may edit this message")
	}
	m.Body = newBody
	m.Edited = true
	now := time.Now().UTC()
	m.EditedAt = &now
	return m, nil
}

func (f *fakeStore) SoftDeleteMessage(ctx context.Context, messageID domain.MessageID, actor domain.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return apperr.NotFound("message not found")
	}
	if m.SenderID == nil || *m.SenderID != actor {
		return apperr.Forbidden("only the sender may delete this message")
	}
	m.Deleted = true
	now := time.Now().UTC()
	m.DeletedAt = &now
	return nil
}

func (f *fakeStore) ListMessagesByChat(ctx context.Context, chatID domain.ChatID, limit int, cursor *store.Cursor) ([]domain.Message, *store.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for _, m := range f.messages {
		if m.ChatID == chatID {
			out = append(out, *m)
		}
	}
	return out, nil, nil
}

func (f *fakeStore) SetDeliveryStatus(ctx context.Context, messageID domain.MessageID, userID domain.UserID, status domain.DeliveryStatus, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	byUser, ok := f.deliveries[messageID]
	if !ok {
		return apperr.NotFound("delivery not found")
	}
	d, ok := byUser[userID]
	if !ok {
		return apperr.NotFound("delivery not found")
	}
	if !d.Status.CanTransitionTo(status) {
		return nil
	}
	d.Status = status
	return nil
}

func (f *fakeStore) ListPendingDeliveries(ctx context.Context, userID domain.UserID, limit int) ([]domain.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Delivery
	for _, byUser := range f.deliveries {
		if d, ok := byUser[userID]; ok && d.Status == domain.DeliveryStatusSent {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeStore) ResetUnread(ctx context.Context, chatID domain.ChatID, userID domain.UserID) error {
	return nil
}

func (f *fakeStore) BulkMarkRead(ctx context.Context, chatID domain.ChatID, userID domain.UserID, upToMessageID domain.MessageID, at time.Time) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var advanced []domain.Message
	for msgID, byUser := range f.deliveries {
		m, ok := f.messages[msgID]
		if !ok || m.ChatID != chatID {
			continue
		}
		if d, ok := byUser[userID]; ok && d.Status != domain.DeliveryStatusRead && d.Status.CanTransitionTo(domain.DeliveryStatusRead) {
			d.Status = domain.DeliveryStatusRead
			advanced = append(advanced, *m)
		}
	}
	if p, ok := f.participants[chatID][userID]; ok {
		p.UnreadCount = 0
	}
	return advanced, nil
}

func (f *fakeStore) AddReaction(ctx context.Context, r *domain.Reaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[r.ID] = r
	return nil
}

func (f *fakeStore) RemoveReaction(ctx context.Context, reactionID domain.ReactionID, actor domain.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reactions, reactionID)
	return nil
}

func (f *fakeStore) FullTextSearch(ctx context.Context, userID domain.UserID, query string, chatID *domain.ChatID, limit int) ([]domain.Message, error) {
	return nil, nil
}

func (f *fakeStore) CreateSession(ctx context.Context, s *domain.Session) error { return nil }
func (f *fakeStore) FindSessionByID(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return nil, apperr.NotFound("session not found")
}
func (f *fakeStore) FindSessionByRefreshSecret(ctx context.Context, refreshSecret string) (*domain.Session, error) {
	return nil, apperr.Unauthenticated("session not found")
}
func (f *fakeStore) ListActiveSessions(ctx context.Context, userID domain.UserID) ([]domain.Session, error) {
	return nil, nil
}
func (f *fakeStore) AttachSocket(ctx context.Context, id domain.SessionID, socketID string, at time.Time) error {
	return nil
}
func (f *fakeStore) TouchSession(ctx context.Context, id domain.SessionID, at time.Time) error {
	return nil
}
func (f *fakeStore) ExtendSession(ctx context.Context, id domain.SessionID, newExpiry time.Time) error {
	return nil
}
func (f *fakeStore) InvalidateSession(ctx context.Context, id domain.SessionID) error { return nil }
func (f *fakeStore) InvalidateAllSessions(ctx context.Context, userID domain.UserID) error {
	return nil
}

func (f *fakeStore) Close() error { return nil }
