package store

import (
	"context"
	"time"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

// SetDeliveryStatus advances one recipient's delivery row, refusing to
// regress status (§3 invariant 5, §8 property 2). A request that would
// regress is treated as a no-op, not an error, so redelivered or
// out-of-order acks from the DeliveryEngine never fail loudly.
func (p *Postgres) SetDeliveryStatus(ctx context.Context, messageID domain.MessageID, userID domain.UserID, status domain.DeliveryStatus, at time.Time) error {
	tx, err := p.writer.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal("begin set delivery status", err)
	}
	defer tx.Rollback()

	var current domain.DeliveryStatus
	if err := tx.QueryRowContext(ctx, `
		SELECT status FROM deliveries WHERE message_id=$1 AND user_id=$2 FOR UPDATE`, messageID, userID).Scan(&current); err != nil {
		if isNoRows(err) {
			return apperr.NotFound("delivery not found")
		}
		return apperr.Internal("lock delivery", err)
	}

	if !current.CanTransitionTo(status) {
		return tx.Commit()
	}
	if current == status {
		return tx.Commit()
	}

	switch status {
	case domain.DeliveryStatusDelivered:
		_, err = tx.ExecContext(ctx, `UPDATE deliveries SET status=$3, delivered_at=$4 WHERE message_id=$1 AND user_id=$2`,
			messageID, userID, status, at)
	case domain.DeliveryStatusRead:
		_, err = tx.ExecContext(ctx, `UPDATE deliveries SET status=$3, read_at=$4 WHERE message_id=$1 AND user_id=$2`,
			messageID, userID, status, at)
	default:
		_, err = tx.ExecContext(ctx, `UPDATE deliveries SET status=$3 WHERE message_id=$1 AND user_id=$2`,
			messageID, userID, status)
	}
	if err != nil {
		return apperr.Internal("update delivery status", err)
	}
	return tx.Commit()
}

func (p *Postgres) ListPendingDeliveries(ctx context.Context, userID domain.UserID, limit int) ([]domain.Delivery, error) {
	rows, err := p.reader.QueryContext(ctx, `
		SELECT id, message_id, user_id, status, delivered_at, read_at
		FROM deliveries
		WHERE user_id=$1 AND status='sent'
		ORDER BY message_id LIMIT $2`, userID, limit)
	if err != nil {
		return nil, apperr.Internal("list pending deliveries", err)
	}
	defer rows.Close()

	var out []domain.Delivery
	for rows.Next() {
		var d domain.Delivery
		if err := rows.Scan(&d.ID, &d.MessageID, &d.UserID, &d.Status, &d.DeliveredAt, &d.ReadAt); err != nil {
			return nil, apperr.Internal("scan delivery", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) ResetUnread(ctx context.Context, chatID domain.ChatID, userID domain.UserID) error {
	_, err := p.writer.ExecContext(ctx, `
		UPDATE participants SET unread_count=0 WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if err != nil {
		return apperr.Internal("reset unread", err)
	}
	return nil
}

// BulkMarkRead advances every delivery for userID in chatID up to and
// including upToMessageID to read, resets the unread counter, and
// records the participant's read cursor — all in one transaction
// (spec.md §4.5 "mark-chat-read"). It returns the messages whose
// delivery to userID actually advanced, so the caller can notify each
// sender with message-read (spec.md §4.6).
func (p *Postgres) BulkMarkRead(ctx context.Context, chatID domain.ChatID, userID domain.UserID, upToMessageID domain.MessageID, at time.Time) ([]domain.Message, error) {
	tx, err := p.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("begin bulk mark read", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		UPDATE deliveries d SET status='read', read_at=$4
		FROM messages m
		WHERE d.message_id = m.id AND m.chat_id = $1 AND d.user_id = $2
		  AND d.status <> 'read'
		  AND (m.created_at, m.id) <= (SELECT created_at, id FROM messages WHERE id = $3)
		RETURNING m.id, m.sender_id`,
		chatID, userID, upToMessageID, at)
	if err != nil {
		return nil, apperr.Internal("bulk update deliveries", err)
	}
	var advanced []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.SenderID); err != nil {
			rows.Close()
			return nil, apperr.Internal("scan advanced delivery", err)
		}
		advanced = append(advanced, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, apperr.Internal("bulk update deliveries", err)
	}
	rows.Close()

	_, err = tx.ExecContext(ctx, `
		UPDATE participants SET unread_count=0, last_read_message_id=$3
		WHERE chat_id=$1 AND user_id=$2`, chatID, userID, upToMessageID)
	if err != nil {
		return nil, apperr.Internal("update participant read cursor", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("commit bulk mark read", err)
	}
	return advanced, nil
}
