package chatservice

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/store"
)

// SendMessage validates membership, body length, and rate limit, then
// persists the message and its per-recipient delivery rows, and
// finally fans it out: an immediate pub/sub push for any node with a
// live socket, plus a durable delivery-stream job so offline
// recipients get it on reconnect (spec.md §4.5, §4.6).
func (s *Service) SendMessage(ctx context.Context, caller Caller, chatID domain.ChatID, body string, kind domain.MessageKind, replyTo *domain.MessageID, attachments []domain.Attachment) (*domain.Message, error) {
	if !s.limiterFor(caller.UserID).Allow() {
		return nil, apperr.RateLimited("message rate limit exceeded", time.Second)
	}

	active, err := s.store.IsActiveParticipant(ctx, chatID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, apperr.Forbidden("not an active participant of this chat")
	}

	body = normalizeBody(body)
	if kind == domain.MessageKindText && body == "" {
		return nil, apperr.InvalidInput("body", "message body cannot be empty")
	}
	if len(body) > domain.MaxBodyLength {
		return nil, apperr.TooLarge("message body exceeds the maximum length")
	}
	if kind == domain.MessageKindImage && len(attachments) == 0 {
		return nil, apperr.InvalidInput("attachments", "image messages require at least one attachment")
	}

	sender := caller.UserID
	now := time.Now().UTC()
	msg := &domain.Message{
		ID:        domain.NewMessageID(),
		ChatID:    chatID,
		SenderID:  &sender,
		Body:      sanitizeBody(body),
		Kind:      kind,
		ReplyToID: replyTo,
		CreatedAt: now,
	}

	recipients, err := s.store.ListActiveParticipantIDs(ctx, chatID)
	if err != nil {
		return nil, err
	}
	recipients = excludeSelf(recipients, caller.UserID)

	if _, err := s.store.PersistMessage(ctx, msg, recipients); err != nil {
		return nil, err
	}

	_ = s.bus.PublishToChat(ctx, chatID, "new-message", msg)
	if err := s.delivery.Enqueue(ctx, chatID, msg.ID, recipients); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, "message.sent", map[string]any{"chatId": chatID, "messageId": msg.ID, "senderId": sender})
	return msg, nil
}

func excludeSelf(ids []domain.UserID, self domain.UserID) []domain.UserID {
	out := make([]domain.UserID, 0, len(ids))
	for _, id := range ids {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}

func (s *Service) EditMessage(ctx context.Context, caller Caller, messageID domain.MessageID, newBody string) (*domain.Message, error) {
	newBody = normalizeBody(newBody)
	if newBody == "" {
		return nil, apperr.InvalidInput("body", "message body cannot be empty")
	}
	if len(newBody) > domain.MaxBodyLength {
		return nil, apperr.TooLarge("message body exceeds the maximum length")
	}

	msg, err := s.store.EditMessage(ctx, messageID, caller.UserID, sanitizeBody(newBody))
	if err != nil {
		return nil, err
	}
	_ = s.bus.PublishToChat(ctx, msg.ChatID, "message-edited", msg)
	s.events.Publish(ctx, "message.edited", map[string]any{"chatId": msg.ChatID, "messageId": msg.ID})
	return msg, nil
}

func (s *Service) DeleteMessage(ctx context.Context, caller Caller, messageID domain.MessageID) error {
	msg, err := s.store.FindMessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.store.SoftDeleteMessage(ctx, messageID, caller.UserID); err != nil {
		return err
	}
	_ = s.bus.PublishToChat(ctx, msg.ChatID, "message-deleted", map[string]any{"messageId": messageID})
	s.events.Publish(ctx, "message.deleted", map[string]any{"chatId": msg.ChatID, "messageId": messageID})
	return nil
}

func (s *Service) ListMessages(ctx context.Context, caller Caller, chatID domain.ChatID, limit int, cursor *store.Cursor) ([]domain.Message, *store.Cursor, error) {
	active, err := s.store.IsActiveParticipant(ctx, chatID, caller.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !active {
		return nil, nil, apperr.Forbidden("not an active participant of this chat")
	}
	return s.store.ListMessagesByChat(ctx, chatID, limit, cursor)
}

// MarkRead advances a single delivery to read (bypasses the delivery
// stream entirely — spec.md §4.5 "read receipts ... bypass the stream").
func (s *Service) MarkRead(ctx context.Context, caller Caller, messageID domain.MessageID) error {
	msg, err := s.store.FindMessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := s.store.SetDeliveryStatus(ctx, messageID, caller.UserID, domain.DeliveryStatusRead, now); err != nil {
		return err
	}
	if msg.SenderID != nil {
		_ = s.bus.PublishToUser(ctx, *msg.SenderID, "message-read", map[string]any{
			"messageId": messageID, "readBy": caller.UserID,
		})
	}
	s.events.Publish(ctx, "delivery.read", map[string]any{"messageId": messageID, "userId": caller.UserID})
	return nil
}

// MarkChatRead advances every delivery in chatID up to upTo to read in
// one transaction, used when a client catches up on an entire thread,
// then emits message-read to each sender whose message advanced
// (spec.md §4.6).
func (s *Service) MarkChatRead(ctx context.Context, caller Caller, chatID domain.ChatID, upTo domain.MessageID) error {
	now := time.Now().UTC()
	advanced, err := s.store.BulkMarkRead(ctx, chatID, caller.UserID, upTo, now)
	if err != nil {
		return err
	}
	for _, m := range advanced {
		if m.SenderID == nil {
			continue
		}
		_ = s.bus.PublishToUser(ctx, *m.SenderID, "message-read", map[string]any{
			"messageId": m.ID, "readBy": caller.UserID,
		})
	}
	return nil
}

func (s *Service) AddReaction(ctx context.Context, caller Caller, messageID domain.MessageID, glyph string) error {
	if n := utf8.RuneCountInString(glyph); n == 0 || n > domain.MaxGlyphLength {
		return apperr.InvalidInput("glyph", "reaction glyph must be 1-10 characters")
	}
	msg, err := s.store.FindMessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	r := &domain.Reaction{
		ID:        domain.NewReactionID(),
		MessageID: messageID,
		UserID:    caller.UserID,
		Glyph:     glyph,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AddReaction(ctx, r); err != nil {
		return err
	}
	_ = s.bus.PublishToChat(ctx, msg.ChatID, "reaction-added", r)
	return nil
}

func (s *Service) RemoveReaction(ctx context.Context, caller Caller, chatID domain.ChatID, reactionID domain.ReactionID) error {
	if err := s.store.RemoveReaction(ctx, reactionID, caller.UserID); err != nil {
		return err
	}
	_ = s.bus.PublishToChat(ctx, chatID, "reaction-removed", map[string]any{"reactionId": reactionID})
	return nil
}
