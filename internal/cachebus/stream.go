package cachebus

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
)

// StreamJob is one delivery work item: one recipient to try to push
// one message to (spec.md §4.5).
type StreamJob struct {
	ID          string // Redis stream entry id, used to Ack/Claim
	MessageID   string
	ChatID      string
	RecipientID string
	Attempt     int
}

// EnsureDeliveryGroup creates the delivery consumer group if absent.
// MKSTREAM lets this run before the stream has any entries.
func (b *Bus) EnsureDeliveryGroup(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, deliveryStreamKey, deliveryConsumerGrp, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return apperr.DependencyUnavailable("ensure delivery group", err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

// EnqueueDelivery pushes one job onto the durable delivery stream.
func (b *Bus) EnqueueDelivery(ctx context.Context, job StreamJob) error {
	_, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: deliveryStreamKey,
		Values: map[string]any{
			"messageId":   job.MessageID,
			"chatId":      job.ChatID,
			"recipientId": job.RecipientID,
			"attempt":     job.Attempt,
		},
	}).Result()
	if err != nil {
		return apperr.DependencyUnavailable("enqueue delivery", err)
	}
	return nil
}

// ClaimDeliveries reads up to count new jobs for consumer, blocking up
// to block for at least one (spec.md §4.5 worker loop: "block 1s, batch 10").
func (b *Bus) ClaimDeliveries(ctx context.Context, consumer string, count int64, block time.Duration) ([]StreamJob, error) {
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    deliveryConsumerGrp,
		Consumer: consumer,
		Streams:  []string{deliveryStreamKey, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.DependencyUnavailable("claim deliveries", err)
	}
	return decodeStreamJobs(res), nil
}

func decodeStreamJobs(streams []redis.XStream) []StreamJob {
	var jobs []StreamJob
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			jobs = append(jobs, StreamJob{
				ID:          msg.ID,
				MessageID:   fieldString(msg.Values, "messageId"),
				ChatID:      fieldString(msg.Values, "chatId"),
				RecipientID: fieldString(msg.Values, "recipientId"),
				Attempt:     fieldInt(msg.Values, "attempt"),
			})
		}
	}
	return jobs
}

func fieldString(values map[string]any, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}

func fieldInt(values map[string]any, key string) int {
	switch v := values[key].(type) {
	case string:
		var n int
		for _, c := range v {
			if c < '0' || c > '9' {
				return 0
			}
			n = n*10 + int(c-'0')
		}
		return n
	default:
		return 0
	}
}

// AckDelivery acknowledges successful processing of a stream entry,
// removing it from the consumer group's pending entries list.
func (b *Bus) AckDelivery(ctx context.Context, entryID string) error {
	if err := b.client.XAck(ctx, deliveryStreamKey, deliveryConsumerGrp, entryID).Err(); err != nil {
		return apperr.DependencyUnavailable("ack delivery", err)
	}
	return nil
}

// PendingOlderThan lists pending entries idle longer than minIdle, for
// the reclaim sweep (spec.md §4.5 "reclaim >60s old").
func (b *Bus) PendingOlderThan(ctx context.Context, minIdle time.Duration, count int64) ([]redis.XPendingExt, error) {
	res, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: deliveryStreamKey,
		Group:  deliveryConsumerGrp,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, apperr.DependencyUnavailable("list pending deliveries", err)
	}
	return res, nil
}

// ClaimStale reassigns idle entries to consumer so a dead worker's
// jobs get retried elsewhere.
func (b *Bus) ClaimStale(ctx context.Context, consumer string, minIdle time.Duration, entryIDs []string) ([]StreamJob, error) {
	msgs, err := b.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   deliveryStreamKey,
		Group:    deliveryConsumerGrp,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: entryIDs,
	}).Result()
	if err != nil {
		return nil, apperr.DependencyUnavailable("claim stale deliveries", err)
	}
	jobs := make([]StreamJob, 0, len(msgs))
	for _, msg := range msgs {
		jobs = append(jobs, StreamJob{
			ID:          msg.ID,
			MessageID:   fieldString(msg.Values, "messageId"),
			ChatID:      fieldString(msg.Values, "chatId"),
			RecipientID: fieldString(msg.Values, "recipientId"),
			Attempt:     fieldInt(msg.Values, "attempt"),
		})
	}
	return jobs, nil
}

// DeadLetter removes a job from the pending list after it exceeds the
// retry budget; the caller is responsible for publishing the
// observability event (internal/events) before calling this.
func (b *Bus) DeadLetter(ctx context.Context, entryID string) error {
	return b.AckDelivery(ctx, entryID)
}
