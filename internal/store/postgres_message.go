package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

// PersistMessage inserts the message, a sent-status delivery row for
// every recipient, bumps each recipient's unread_count, and advances
// the chat's last_message_at — all inside one transaction so a message
// never exists without its delivery rows (spec.md §3, §4.1).
func (p *Postgres) PersistMessage(ctx context.Context, m *domain.Message, recipientIDs []domain.UserID) ([]domain.Delivery, error) {
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return nil, apperr.Internal("marshal message metadata", err)
	}

	tx, err := p.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("begin persist message", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, body, kind, metadata, reply_to_id, edited, deleted, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,false,false,$8)`,
		m.ID, m.ChatID, m.SenderID, m.Body, m.Kind, metadata, m.ReplyToID, m.CreatedAt)
	if err != nil {
		return nil, apperr.Internal("insert message", err)
	}

	deliveries := make([]domain.Delivery, 0, len(recipientIDs))
	for _, uid := range recipientIDs {
		d := domain.Delivery{
			ID:        domain.NewDeliveryID(),
			MessageID: m.ID,
			UserID:    uid,
			Status:    domain.DeliveryStatusSent,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO deliveries (id, message_id, user_id, status) VALUES ($1,$2,$3,'sent')`,
			d.ID, d.MessageID, d.UserID)
		if err != nil {
			return nil, apperr.Internal("insert delivery", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE participants SET unread_count = unread_count + 1
			WHERE chat_id=$1 AND user_id=$2 AND left_at IS NULL`, m.ChatID, uid)
		if err != nil {
			return nil, apperr.Internal("bump unread count", err)
		}
		deliveries = append(deliveries, d)
	}

	_, err = tx.ExecContext(ctx, `UPDATE chats SET last_message_at=$2, updated_at=$2 WHERE id=$1`, m.ChatID, m.CreatedAt)
	if err != nil {
		return nil, apperr.Internal("bump chat last_message_at", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("commit persist message", err)
	}
	return deliveries, nil
}

func scanMessage(row interface{ Scan(...any) error }) (*domain.Message, error) {
	var m domain.Message
	var metadata []byte
	if err := row.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Body, &m.Kind, &metadata, &m.ReplyToID, &m.Edited, &m.EditedAt, &m.Deleted, &m.DeletedAt, &m.CreatedAt); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

const messageColumns = `id, chat_id, sender_id, body, kind, metadata, reply_to_id, edited, edited_at, deleted, deleted_at, created_at`

func (p *Postgres) FindMessageByID(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	row := p.reader.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, id)
	m, err := scanMessage(row)
	if isNoRows(err) {
		return nil, apperr.NotFound("message not found")
	}
	if err != nil {
		return nil, apperr.Internal("find message", err)
	}
	return m, nil
}

// EditMessage overwrites the body and records the prior body in
// edit_entries for audit (§3: edits are tracked, never silently lost).
func (p *Postgres) EditMessage(ctx context.Context, messageID domain.MessageID, actor domain.UserID, newBody string) (*domain.Message, error) {
	tx, err := p.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("begin edit message", err)
	}
	defer tx.Rollback()

	var senderID sql.NullString
	var priorBody string
	var deleted bool
	if err := tx.QueryRowContext(ctx, `
		SELECT sender_id, body, deleted FROM messages WHERE id=$1 FOR UPDATE`, messageID).Scan(&senderID, &priorBody, &deleted); err != nil {
		if isNoRows(err) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, apperr.Internal("lock message for edit", err)
	}
	if deleted {
		return nil, apperr.Conflict("cannot edit a deleted message")
	}
	if !senderID.Valid || senderID.String != actor.String() {
		return nil, apperr.Forbidden("only the sender may edit this message")
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `UPDATE messages SET body=$2, edited=true, edited_at=$3 WHERE id=$1`, messageID, newBody, now)
	if err != nil {
		return nil, apperr.Internal("update message body", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO edit_entries (id, message_id, prior_body, prior_metadata, edited_at)
		VALUES ($1,$2,$3,'{}',$4)`, domain.NewEditEntryID(), messageID, priorBody, now)
	if err != nil {
		return nil, apperr.Internal("insert edit entry", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("commit edit message", err)
	}
	return p.FindMessageByID(ctx, messageID)
}

func (p *Postgres) SoftDeleteMessage(ctx context.Context, messageID domain.MessageID, actor domain.UserID) error {
	res, err := p.writer.ExecContext(ctx, `
		UPDATE messages SET deleted=true, deleted_at=$3, body=$4
		WHERE id=$1 AND sender_id=$2 AND deleted=false`,
		messageID, actor, time.Now().UTC(), domain.TombstoneBody)
	if err != nil {
		return apperr.Internal("soft delete message", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal("rows affected", err)
	}
	if n == 0 {
		return apperr.Forbidden("message not found or not owned by actor")
	}
	return nil
}

// ListMessagesByChat returns up to limit messages strictly older than
// cursor (keyset pagination on the (createdAt,id) tuple — §3 invariant 4),
// newest first, along with the cursor for the next page.
func (p *Postgres) ListMessagesByChat(ctx context.Context, chatID domain.ChatID, limit int, cursor *Cursor) ([]domain.Message, *Cursor, error) {
	var rows *sql.Rows
	var err error
	if cursor == nil {
		rows, err = p.reader.QueryContext(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE chat_id=$1
			ORDER BY created_at DESC, id DESC LIMIT $2`, chatID, limit)
	} else {
		rows, err = p.reader.QueryContext(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE chat_id=$1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC LIMIT $4`, chatID, cursor.CreatedAt, cursor.ID, limit)
	}
	if err != nil {
		return nil, nil, apperr.Internal("list messages", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, nil, apperr.Internal("scan message", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperr.Internal("iterate messages", err)
	}

	var next *Cursor
	if len(out) == limit {
		last := out[len(out)-1]
		next = &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return out, next, nil
}
