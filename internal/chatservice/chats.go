package chatservice

import (
	"context"
	"time"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

// CreateDirect returns the existing direct chat between the caller and
// peer if one already exists, otherwise creates it — idempotent by
// construction (spec.md §8 testable property 1).
func (s *Service) CreateDirect(ctx context.Context, caller Caller, peer domain.UserID) (*domain.Chat, error) {
	if caller.UserID == peer {
		return nil, apperr.InvalidInput("peerId", "cannot start a direct chat with yourself")
	}
	existing, err := s.store.FindDirectChatBetween(ctx, caller.UserID, peer)
	if err == nil {
		return existing, nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}

	now := time.Now().UTC()
	chat := &domain.Chat{
		ID:        domain.NewChatID(),
		Kind:      domain.ChatKindDirect,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateChat(ctx, chat, []domain.UserID{caller.UserID, peer}); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, "chat.created", map[string]any{"chatId": chat.ID, "kind": chat.Kind})
	return chat, nil
}

// CreateGroup creates a named chat with the caller as owner and posts
// a system message announcing it (spec.md §4.6).
func (s *Service) CreateGroup(ctx context.Context, caller Caller, name string, memberIDs []domain.UserID) (*domain.Chat, error) {
	if name == "" {
		return nil, apperr.InvalidInput("name", "group chats require a name")
	}
	all := append([]domain.UserID{caller.UserID}, memberIDs...)
	if len(all) > domain.MaxGroupParticipants {
		return nil, apperr.TooLarge("group would exceed the participant cap")
	}

	now := time.Now().UTC()
	owner := caller.UserID
	chat := &domain.Chat{
		ID:        domain.NewChatID(),
		Kind:      domain.ChatKindGroup,
		Name:      &name,
		OwnerID:   &owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateChat(ctx, chat, all); err != nil {
		return nil, err
	}

	sys := &domain.Message{
		ID:        domain.NewMessageID(),
		ChatID:    chat.ID,
		Body:      "group created",
		Kind:      domain.MessageKindSystem,
		CreatedAt: now,
	}
	if _, err := s.store.PersistMessage(ctx, sys, memberIDs); err != nil {
		return nil, err
	}

	s.events.Publish(ctx, "chat.created", map[string]any{"chatId": chat.ID, "kind": chat.Kind})
	return chat, nil
}

// AddParticipants adds members to a group; only an owner or admin may
// call this (spec.md §4.6), and Store enforces the 300-cap
// transactionally so concurrent adds can't both succeed past it.
func (s *Service) AddParticipants(ctx context.Context, caller Caller, chatID domain.ChatID, memberIDs []domain.UserID) error {
	chat, err := s.store.FindChatByID(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.Kind != domain.ChatKindGroup {
		return apperr.InvalidInput("chatId", "only group chats accept new participants")
	}
	actor, err := s.store.GetParticipant(ctx, chatID, caller.UserID)
	if err != nil {
		return err
	}
	if !actor.IsActive() || !actor.Role.CanManageMembers() {
		return apperr.Forbidden("only an owner or admin may add participants")
	}

	for _, uid := range memberIDs {
		if _, err := s.store.AddParticipant(ctx, chatID, uid, domain.RoleMember); err != nil {
			return err
		}

		recipients, err := s.store.ListActiveParticipantIDs(ctx, chatID)
		if err != nil {
			return err
		}
		sys := &domain.Message{
			ID:        domain.NewMessageID(),
			ChatID:    chatID,
			Body:      "participant added",
			Kind:      domain.MessageKindSystem,
			CreatedAt: time.Now().UTC(),
		}
		if _, err := s.store.PersistMessage(ctx, sys, excludeSelf(recipients, uid)); err != nil {
			return err
		}

		s.events.Publish(ctx, "participant.added", map[string]any{"chatId": chatID, "userId": uid})
		_ = s.bus.PublishToChat(ctx, chatID, "participant-added", map[string]any{"userId": uid})
	}
	return nil
}

// RemoveParticipant removes a member; an owner/admin removing someone
// else, or any member removing themselves ("leave"), are both allowed.
// An owner leaving transfers ownership to the longest-tenured
// remaining admin, or the longest-tenured member if there is no admin.
func (s *Service) RemoveParticipant(ctx context.Context, caller Caller, chatID domain.ChatID, target domain.UserID) error {
	chat, err := s.store.FindChatByID(ctx, chatID)
	if err != nil {
		return err
	}

	if caller.UserID != target {
		actor, err := s.store.GetParticipant(ctx, chatID, caller.UserID)
		if err != nil {
			return err
		}
		if !actor.IsActive() || !actor.Role.CanManageMembers() {
			return apperr.Forbidden("only an owner or admin may remove other participants")
		}
	}

	if chat.OwnerID != nil && *chat.OwnerID == target {
		if err := s.transferOwnership(ctx, chat, target); err != nil {
			return err
		}
	}

	if err := s.store.RemoveParticipant(ctx, chatID, target); err != nil {
		return err
	}
	s.events.Publish(ctx, "participant.left", map[string]any{"chatId": chatID, "userId": target})
	_ = s.bus.PublishToChat(ctx, chatID, "participant-removed", map[string]any{"userId": target})
	return nil
}

func (s *Service) transferOwnership(ctx context.Context, chat *domain.Chat, leaving domain.UserID) error {
	remaining, err := s.store.ListActiveParticipantIDs(ctx, chat.ID)
	if err != nil {
		return err
	}

	var nextOwner *domain.UserID
	var bestRole domain.ParticipantRole
	var bestJoinedAt time.Time
	for _, uid := range remaining {
		if uid == leaving {
			continue
		}
		part, err := s.store.GetParticipant(ctx, chat.ID, uid)
		if err != nil {
			continue
		}
		if nextOwner == nil || higherPriority(part.Role, bestRole) || (part.Role == bestRole && part.JoinedAt.Before(bestJoinedAt)) {
			u := uid
			nextOwner = &u
			bestRole = part.Role
			bestJoinedAt = part.JoinedAt
		}
	}
	if nextOwner == nil {
		return nil // last participant leaving; chat has no members left to own it
	}

	chat.OwnerID = nextOwner
	if err := s.store.UpdateChat(ctx, chat); err != nil {
		return err
	}
	_, err = s.store.AddParticipant(ctx, chat.ID, *nextOwner, domain.RoleOwner)
	return err
}

func higherPriority(a, b domain.ParticipantRole) bool {
	rank := func(r domain.ParticipantRole) int {
		switch r {
		case domain.RoleAdmin:
			return 1
		default:
			return 0
		}
	}
	return rank(a) > rank(b)
}

func (s *Service) ListChats(ctx context.Context, caller Caller) ([]domain.ChatSummary, error) {
	return s.store.ListUserChats(ctx, caller.UserID)
}
