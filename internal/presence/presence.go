// Package presence implements the PresenceTracker (spec.md §4.7):
// online/offline/away derivation from connection and heartbeat events,
// with a grace period before a disconnect is treated as going offline.
package presence

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/cachebus"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/store"
)

// DisconnectGrace is how long a user stays "online" after their last
// socket closes, to absorb a quick reconnect without flapping status
// (spec.md §4.7).
const DisconnectGrace = 10 * time.Second

// StaleAfter is how old a heartbeat can get before IsOnline reports false.
const StaleAfter = 30 * time.Second

type Tracker struct {
	store  store.Store
	bus    *cachebus.Bus
	logger *logrus.Logger

	pending map[domain.UserID]*time.Timer
}

func New(st store.Store, bus *cachebus.Bus, logger *logrus.Logger) *Tracker {
	return &Tracker{store: st, bus: bus, logger: logger, pending: make(map[domain.UserID]*time.Timer)}
}

// OnConnect marks userID online immediately and cancels any pending
// offline transition from a prior disconnect within the grace window.
func (t *Tracker) OnConnect(ctx context.Context, userID domain.UserID) error {
	if timer, ok := t.pending[userID]; ok {
		timer.Stop()
		delete(t.pending, userID)
	}
	now := time.Now().UTC()
	if err := t.bus.Heartbeat(ctx, userID, now); err != nil {
		return err
	}
	if err := t.store.UpdatePresence(ctx, userID, domain.UserStatusOnline, &now); err != nil {
		return err
	}
	return t.bus.PublishGlobalStatus(ctx, "user-status", statusPayload(userID, domain.UserStatusOnline))
}

// OnHeartbeat refreshes the presence timestamp for an already-connected user.
func (t *Tracker) OnHeartbeat(ctx context.Context, userID domain.UserID) error {
	return t.bus.Heartbeat(ctx, userID, time.Now().UTC())
}

// OnDisconnect schedules userID to go offline after DisconnectGrace
// unless OnConnect cancels it first (last socket for that user closing
// does not mean the user is gone — a reconnect may be seconds away).
func (t *Tracker) OnDisconnect(userID domain.UserID) {
	if existing, ok := t.pending[userID]; ok {
		existing.Stop()
	}
	t.pending[userID] = time.AfterFunc(DisconnectGrace, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		now := time.Now().UTC()
		if err := t.bus.MarkOffline(ctx, userID); err != nil && t.logger != nil {
			t.logger.WithError(err).WithField("userId", userID).Warn("presence: mark offline failed")
		}
		if err := t.store.UpdatePresence(ctx, userID, domain.UserStatusOffline, &now); err != nil && t.logger != nil {
			t.logger.WithError(err).WithField("userId", userID).Warn("presence: persist offline failed")
		}
		_ = t.bus.PublishGlobalStatus(ctx, "user-status", statusPayload(userID, domain.UserStatusOffline))
	})
}

// SetAway marks a still-connected user as away (idle client, not a
// disconnect) without touching the online heartbeat.
func (t *Tracker) SetAway(ctx context.Context, userID domain.UserID) error {
	now := time.Now().UTC()
	if err := t.store.UpdatePresence(ctx, userID, domain.UserStatusAway, &now); err != nil {
		return err
	}
	return t.bus.PublishGlobalStatus(ctx, "user-status", statusPayload(userID, domain.UserStatusAway))
}

func (t *Tracker) IsOnline(ctx context.Context, userID domain.UserID) (bool, error) {
	return t.bus.IsOnline(ctx, userID, StaleAfter)
}

type statusEvent struct {
	UserID string            `json:"userId"`
	Status domain.UserStatus `json:"status"`
}

func statusPayload(userID domain.UserID, status domain.UserStatus) statusEvent {
	return statusEvent{UserID: userID.String(), Status: status}
}
