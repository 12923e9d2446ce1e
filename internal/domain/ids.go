// Package domain holds the plain data records and value objects shared
// by the messaging core: users, sessions, chats, participants, messages,
// deliveries, reactions, and attachments.
package domain

import (
	"errors"

	"github.com/google/uuid"
)

// ErrInvalidID is returned when a string fails to parse as an opaque ID.
var ErrInvalidID = errors.New("domain: invalid id")

// UserID is an opaque 128-bit identifier for a User.
type UserID string

// NewUserID generates a fresh UserID.
func NewUserID() UserID { return UserID(uuid.New().String()) }

// ParseUserID parses s into a UserID, rejecting malformed input.
func ParseUserID(s string) (UserID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", ErrInvalidID
	}
	return UserID(s), nil
}

func (id UserID) String() string { return string(id) }

// SessionID is an opaque 128-bit identifier for a Session.
type SessionID string

func NewSessionID() SessionID { return SessionID(uuid.New().String()) }

func ParseSessionID(s string) (SessionID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", ErrInvalidID
	}
	return SessionID(s), nil
}

func (id SessionID) String() string { return string(id) }

// ChatID is an opaque 128-bit identifier for a Chat.
type ChatID string

func NewChatID() ChatID { return ChatID(uuid.New().String()) }

func ParseChatID(s string) (ChatID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", ErrInvalidID
	}
	return ChatID(s), nil
}

func (id ChatID) String() string { return string(id) }

// ParticipantID is an opaque 128-bit identifier for a Participant row.
type ParticipantID string

func NewParticipantID() ParticipantID { return ParticipantID(uuid.New().String()) }

func (id ParticipantID) String() string { return string(id) }

// MessageID is an opaque 128-bit identifier for a Message.
type MessageID string

func NewMessageID() MessageID { return MessageID(uuid.New().String()) }

func ParseMessageID(s string) (MessageID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", ErrInvalidID
	}
	return MessageID(s), nil
}

func (id MessageID) String() string { return string(id) }

// EditEntryID is an opaque 128-bit identifier for an EditEntry.
type EditEntryID string

func NewEditEntryID() EditEntryID { return EditEntryID(uuid.New().String()) }

func (id EditEntryID) String() string { return string(id) }

// DeliveryID is an opaque 128-bit identifier for a Delivery row.
type DeliveryID string

func NewDeliveryID() DeliveryID { return DeliveryID(uuid.New().String()) }

func (id DeliveryID) String() string { return string(id) }

// ReactionID is an opaque 128-bit identifier for a Reaction.
type ReactionID string

func NewReactionID() ReactionID { return ReactionID(uuid.New().String()) }

func (id ReactionID) String() string { return string(id) }

// AttachmentID is an opaque 128-bit identifier for an Attachment.
type AttachmentID string

func NewAttachmentID() AttachmentID { return AttachmentID(uuid.New().String()) }

func (id AttachmentID) String() string { return string(id) }
