package domain

import "time"

// DeviceKind loosely categorizes the client device behind a Session.
type DeviceKind string

const (
	DeviceKindUnknown DeviceKind = ""
	DeviceKindMobile  DeviceKind = "mobile"
	DeviceKindDesktop DeviceKind = "desktop"
	DeviceKindWeb     DeviceKind = "web"
)

// Session is a single credentialed login on a single device. Users may
// hold many concurrent sessions (multi-device); see spec.md §3.
type Session struct {
	ID               SessionID
	UserID           UserID
	RefreshSecret    string
	DeviceID         *string
	DeviceKind       DeviceKind
	DeviceLabel      *string
	SocketID         *string
	IPAddress        *string
	UserAgent        *string
	Active           bool
	LastActivityAt   time.Time
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Expired reports whether the session's expiry has passed as of now.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Usable reports whether the session can still authenticate a connection.
func (s Session) Usable(now time.Time) bool {
	return s.Active && !s.Expired(now)
}
