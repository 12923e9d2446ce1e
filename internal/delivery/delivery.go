// Package delivery implements the DeliveryEngine (spec.md §4.5): a
// durable, retrying fan-out worker built on the Redis delivery stream,
// with presence-aware immediate push, stale-entry reclaim, dead-letter
// observability, and offline-recipient redelivery on reconnect.
package delivery

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/cachebus"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/events"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/presence"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/store"
)

const (
	claimBatch     = 10
	claimBlock     = 1 * time.Second
	reclaimAfter   = 60 * time.Second
	maxAttempts    = 5
	offlineCatchup = 100
	sweepInterval  = 30 * time.Second
)

type Engine struct {
	store    store.Store
	bus      *cachebus.Bus
	presence *presence.Tracker
	events   *events.Log
	logger   *logrus.Logger

	consumerID string
}

// New builds the engine. The consumer identity is {hostname,pid} so
// stale-entry attribution in XPENDING is meaningful across a fleet of
// nodes, logged once at startup (spec.md supplement).
func New(st store.Store, bus *cachebus.Bus, tracker *presence.Tracker, evts *events.Log, logger *logrus.Logger) *Engine {
	host, _ := os.Hostname()
	consumer := host + ":" + strconv.Itoa(os.Getpid())
	logger.WithField("consumer", consumer).Info("delivery: worker identity")
	return &Engine{store: st, bus: bus, presence: tracker, events: evts, logger: logger, consumerID: consumer}
}

// Enqueue pushes one durable job per recipient onto the delivery
// stream. The sent-status Delivery row was already written by
// Store.PersistMessage in the same request; this only schedules the push.
func (e *Engine) Enqueue(ctx context.Context, chatID domain.ChatID, messageID domain.MessageID, recipientIDs []domain.UserID) error {
	for _, uid := range recipientIDs {
		job := cachebus.StreamJob{
			MessageID:   messageID.String(),
			ChatID:      chatID.String(),
			RecipientID: uid.String(),
			Attempt:     0,
		}
		if err := e.bus.EnqueueDelivery(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// Run drives the claim/deliver worker loop and the periodic reclaim
// sweep until ctx is cancelled. Call it from its own goroutine.
func (e *Engine) Run(ctx context.Context) {
	if err := e.bus.EnsureDeliveryGroup(ctx); err != nil {
		e.logger.WithError(err).Error("delivery: failed to ensure consumer group")
		return
	}

	sweepTicker := time.NewTicker(sweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			e.sweepPending(ctx)
		default:
			e.claimAndDeliver(ctx)
		}
	}
}

func (e *Engine) claimAndDeliver(ctx context.Context) {
	jobs, err := e.bus.ClaimDeliveries(ctx, e.consumerID, claimBatch, claimBlock)
	if err != nil {
		e.logger.WithError(err).Warn("delivery: claim failed")
		return
	}
	for _, job := range jobs {
		e.process(ctx, job)
	}
}

// process attempts an immediate presence-aware push; online recipients
// get delivered marked right away and the entry is acked, offline
// recipients are left pending for the sweep or reconnect catch-up.
func (e *Engine) process(ctx context.Context, job cachebus.StreamJob) {
	recipient := domain.UserID(job.RecipientID)
	messageID := domain.MessageID(job.MessageID)

	online, err := e.presence.IsOnline(ctx, recipient)
	if err != nil {
		e.logger.WithError(err).Warn("delivery: presence check failed")
		return
	}
	if !online {
		return // left pending; reclaimed by sweepPending or redelivered on reconnect
	}

	msg, err := e.store.FindMessageByID(ctx, messageID)
	if err != nil {
		e.logger.WithError(err).Warn("delivery: load message failed")
		return
	}

	now := time.Now().UTC()
	if err := e.store.SetDeliveryStatus(ctx, messageID, recipient, domain.DeliveryStatusDelivered, now); err != nil {
		e.logger.WithError(err).Warn("delivery: set delivered failed")
		return
	}
	_ = e.bus.PublishToUser(ctx, recipient, "new-message", msg)
	if msg.SenderID != nil {
		_ = e.bus.PublishToUser(ctx, *msg.SenderID, "message-delivered", map[string]any{
			"messageId": msg.ID, "deliveredTo": recipient,
		})
	}
	if err := e.bus.AckDelivery(ctx, job.ID); err != nil {
		e.logger.WithError(err).Warn("delivery: ack failed")
	}
}

// sweepPending reclaims entries idle longer than reclaimAfter,
// dead-lettering anything that has already exceeded maxAttempts
// (spec.md §4.5).
func (e *Engine) sweepPending(ctx context.Context) {
	pending, err := e.bus.PendingOlderThan(ctx, reclaimAfter, 100)
	if err != nil {
		e.logger.WithError(err).Warn("delivery: pending sweep query failed")
		return
	}

	var toReclaim []string
	for _, p := range pending {
		if int(p.RetryCount) > maxAttempts {
			e.events.Publish(ctx, events.TypeDeliveryDeadLetter, map[string]any{"entryId": p.ID, "consumer": p.Consumer})
			if err := e.bus.DeadLetter(ctx, p.ID); err != nil {
				e.logger.WithError(err).Warn("delivery: dead-letter ack failed")
			}
			continue
		}
		toReclaim = append(toReclaim, p.ID)
	}
	if len(toReclaim) == 0 {
		return
	}

	jobs, err := e.bus.ClaimStale(ctx, e.consumerID, reclaimAfter, toReclaim)
	if err != nil {
		e.logger.WithError(err).Warn("delivery: reclaim failed")
		return
	}
	for _, job := range jobs {
		job.Attempt++
		e.process(ctx, job)
	}
}

// RedeliverOnReconnect pushes up to offlineCatchup still-pending
// messages to a user that just reconnected, in message-id order, without waiting
// for the stream sweep (spec.md §4.5 "offline recipient redelivery").
func (e *Engine) RedeliverOnReconnect(ctx context.Context, userID domain.UserID) error {
	pending, err := e.store.ListPendingDeliveries(ctx, userID, offlineCatchup)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, d := range pending {
		if d.Status == domain.DeliveryStatusRead {
			continue
		}
		msg, err := e.store.FindMessageByID(ctx, d.MessageID)
		if err != nil {
			e.logger.WithError(err).Warn("delivery: reconnect load message failed")
			continue
		}
		if err := e.store.SetDeliveryStatus(ctx, d.MessageID, userID, domain.DeliveryStatusDelivered, now); err != nil {
			e.logger.WithError(err).Warn("delivery: reconnect redeliver failed")
			continue
		}
		_ = e.bus.PublishToUser(ctx, userID, "new-message", msg)
		if msg.SenderID != nil {
			_ = e.bus.PublishToUser(ctx, *msg.SenderID, "message-delivered", map[string]any{
				"messageId": msg.ID, "deliveredTo": userID,
			})
		}
	}
	return nil
}
