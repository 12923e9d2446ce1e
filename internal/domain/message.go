package domain

import "time"

// MessageKind distinguishes text, image, and server-generated system messages.
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindImage  MessageKind = "image"
	MessageKindSystem MessageKind = "system"
)

// MaxBodyLength is the hard cap on message body length (§3, §8 boundary).
const MaxBodyLength = 10_000

// TombstoneBody replaces a soft-deleted message's body on read.
const TombstoneBody = "[deleted message]"

// Message is a single chat message. SenderID is nil once the sender
// account has been deleted; Body is replaced with TombstoneBody once
// Deleted is true (§3).
type Message struct {
	ID         MessageID
	ChatID     ChatID
	SenderID   *UserID
	Body       string
	Kind       MessageKind
	Metadata   map[string]any
	ReplyToID  *MessageID
	Edited     bool
	EditedAt   *time.Time
	Deleted    bool
	DeletedAt  *time.Time
	CreatedAt  time.Time
}

// DisplayBody returns the tombstone placeholder for deleted messages and
// the real body otherwise.
func (m Message) DisplayBody() string {
	if m.Deleted {
		return TombstoneBody
	}
	return m.Body
}

// Before reports whether m sorts strictly before other under the
// lexicographic (createdAt,id) chat ordering (§3 invariant 4).
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// EditEntry is an append-only audit record of a prior message body/metadata
// before an edit overwrote it.
type EditEntry struct {
	ID            EditEntryID
	MessageID     MessageID
	PriorBody     string
	PriorMetadata map[string]any
	EditedAt      time.Time
}

// DeliveryStatus is the monotonic status of one message toward one recipient.
type DeliveryStatus string

const (
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusRead      DeliveryStatus = "read"
)

// rank orders statuses for monotonicity checks; higher is "more advanced".
func (s DeliveryStatus) rank() int {
	switch s {
	case DeliveryStatusSent:
		return 0
	case DeliveryStatusDelivered:
		return 1
	case DeliveryStatusRead:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next is monotonic
// (§3 invariant 5, §8 invariant 2): sent<delivered<read, no regressions,
// and same-status transitions are no-ops rather than violations.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	return next.rank() >= s.rank()
}

// Delivery tracks one message's status toward one recipient. There is
// exactly one row per (messageId,userId), never one for the sender.
type Delivery struct {
	ID          DeliveryID
	MessageID   MessageID
	UserID      UserID
	Status      DeliveryStatus
	DeliveredAt *time.Time
	ReadAt      *time.Time
}

// MaxGlyphLength caps a Reaction's glyph string (§3).
const MaxGlyphLength = 10

// Reaction is a single (message,user,glyph) reaction row.
type Reaction struct {
	ID        ReactionID
	MessageID MessageID
	UserID    UserID
	Glyph     string
	CreatedAt time.Time
}

// Attachment describes a blob already persisted by the external blob
// service; the core never processes image bytes, only references them.
type Attachment struct {
	ID            AttachmentID
	MessageID     MessageID
	FileName      string
	MimeType      string
	ByteSize      int64
	OriginalRef   string
	ThumbnailRef  *string
	MediumRef     *string
	OriginalURL   string
	ThumbnailURL  *string
	MediumURL     *string
	Width         *int
	Height        *int
	CreatedAt     time.Time
}
