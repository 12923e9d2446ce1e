package domain

import "time"

// ChatKind distinguishes direct (2-party) from group (named, <=300) chats.
type ChatKind string

const (
	ChatKindDirect ChatKind = "direct"
	ChatKindGroup  ChatKind = "group"
)

// MaxGroupParticipants is the hard cap on active group membership (§3, §5).
const MaxGroupParticipants = 300

// Chat is a conversation entity: direct (no name) or group (named, capped).
type Chat struct {
	ID            ChatID
	Kind          ChatKind
	Name          *string
	Slug          *string
	AvatarRef     *string
	OwnerID       *UserID
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastMessageAt *time.Time
	Deleted       bool
}

// ParticipantRole is a member's privilege level within a group chat.
type ParticipantRole string

const (
	RoleOwner  ParticipantRole = "owner"
	RoleAdmin  ParticipantRole = "admin"
	RoleMember ParticipantRole = "member"
)

// CanManageMembers reports whether the role may add/remove other members.
func (r ParticipantRole) CanManageMembers() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Participant is a user's membership (past or active) in a chat.
type Participant struct {
	ID                ParticipantID
	ChatID            ChatID
	UserID            UserID
	Role              ParticipantRole
	JoinedAt          time.Time
	LeftAt            *time.Time
	LastReadMessageID *MessageID
	UnreadCount       int
}

// IsActive reports whether the membership is currently active (§3 invariant 6).
func (p Participant) IsActive() bool { return p.LeftAt == nil }

// ChatSummary is a Chat joined with its unread count and last message,
// as returned in a single query by Store.ListUserChats (§4.1).
type ChatSummary struct {
	Chat        Chat
	UnreadCount int
	LastMessage *Message
}
