package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

// CreateChat inserts the chat row and its initial participant rows in a
// single transaction (§3 invariant: a chat never exists without its
// participants).
func (p *Postgres) CreateChat(ctx context.Context, c *domain.Chat, participantIDs []domain.UserID) error {
	tx, err := p.writer.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal("begin create chat", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chats (id, kind, name, slug, avatar_ref, owner_id, created_at, updated_at, last_message_at, deleted)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,false)`,
		c.ID, c.Kind, c.Name, c.Slug, c.AvatarRef, c.OwnerID, c.CreatedAt, c.UpdatedAt, c.LastMessageAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("chat slug already exists")
	}
	if err != nil {
		return apperr.Internal("insert chat", err)
	}

	role := domain.RoleMember
	for _, uid := range participantIDs {
		r := role
		if c.OwnerID != nil && uid == *c.OwnerID {
			r = domain.RoleOwner
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO participants (id, chat_id, user_id, role, joined_at, unread_count)
			VALUES ($1,$2,$3,$4,$5,0)`,
			domain.NewParticipantID(), c.ID, uid, r, c.CreatedAt)
		if err != nil {
			return apperr.Internal("insert participant", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Internal("commit create chat", err)
	}
	return nil
}

func scanChat(row interface{ Scan(...any) error }) (*domain.Chat, error) {
	var c domain.Chat
	if err := row.Scan(&c.ID, &c.Kind, &c.Name, &c.Slug, &c.AvatarRef, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt, &c.LastMessageAt, &c.Deleted); err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *Postgres) FindChatByID(ctx context.Context, id domain.ChatID) (*domain.Chat, error) {
	c, err := scanChat(p.stmt(stmtFindChatByID).QueryRowContext(ctx, id))
	if isNoRows(err) {
		return nil, apperr.NotFound("chat not found")
	}
	if err != nil {
		return nil, apperr.Internal("find chat", err)
	}
	return c, nil
}

// FindDirectChatBetween looks up the (at most one) non-deleted direct
// chat between two users, backing CreateDirect's idempotency (§8 property 1).
func (p *Postgres) FindDirectChatBetween(ctx context.Context, a, b domain.UserID) (*domain.Chat, error) {
	row := p.reader.QueryRowContext(ctx, `
		SELECT c.id, c.kind, c.name, c.slug, c.avatar_ref, c.owner_id, c.created_at, c.updated_at, c.last_message_at, c.deleted
		FROM chats c
		JOIN participants p1 ON p1.chat_id = c.id AND p1.user_id = $1 AND p1.left_at IS NULL
		JOIN participants p2 ON p2.chat_id = c.id AND p2.user_id = $2 AND p2.left_at IS NULL
		WHERE c.kind = 'direct' AND c.deleted = false
		LIMIT 1`, a, b)
	c, err := scanChat(row)
	if isNoRows(err) {
		return nil, apperr.NotFound("direct chat not found")
	}
	if err != nil {
		return nil, apperr.Internal("find direct chat", err)
	}
	return c, nil
}

func (p *Postgres) UpdateChat(ctx context.Context, c *domain.Chat) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := p.writer.ExecContext(ctx, `
		UPDATE chats SET name=$2, avatar_ref=$3, owner_id=$4, updated_at=$5, last_message_at=$6
		WHERE id=$1 AND deleted=false`,
		c.ID, c.Name, c.AvatarRef, c.OwnerID, c.UpdatedAt, c.LastMessageAt)
	if err != nil {
		return apperr.Internal("update chat", err)
	}
	return requireRowsAffected(res, "chat not found")
}

func (p *Postgres) SoftDeleteChat(ctx context.Context, id domain.ChatID) error {
	res, err := p.writer.ExecContext(ctx, `UPDATE chats SET deleted=true, updated_at=$2 WHERE id=$1`, id, time.Now().UTC())
	if err != nil {
		return apperr.Internal("soft delete chat", err)
	}
	return requireRowsAffected(res, "chat not found")
}

// ListUserChats returns every chat the user actively participates in,
// each joined with its unread count and last message in one query
// (spec.md §4.1 — this is the single hot query behind a user's chat list).
func (p *Postgres) ListUserChats(ctx context.Context, userID domain.UserID) ([]domain.ChatSummary, error) {
	rows, err := p.reader.QueryContext(ctx, `
		SELECT c.id, c.kind, c.name, c.slug, c.avatar_ref, c.owner_id, c.created_at, c.updated_at, c.last_message_at, c.deleted,
		       part.unread_count,
		       lm.id, lm.chat_id, lm.sender_id, lm.body, lm.kind, lm.reply_to_id, lm.edited, lm.edited_at, lm.deleted, lm.deleted_at, lm.created_at
		FROM participants part
		JOIN chats c ON c.id = part.chat_id AND c.deleted = false
		LEFT JOIN LATERAL (
			SELECT * FROM messages m WHERE m.chat_id = c.id ORDER BY m.created_at DESC, m.id DESC LIMIT 1
		) lm ON true
		WHERE part.user_id = $1 AND part.left_at IS NULL
		ORDER BY c.last_message_at DESC NULLS LAST`, userID)
	if err != nil {
		return nil, apperr.Internal("list user chats", err)
	}
	defer rows.Close()

	var out []domain.ChatSummary
	for rows.Next() {
		var cs domain.ChatSummary
		var lmID, lmChatID, lmSenderID, lmBody, lmKind, lmReplyTo sql.NullString
		var lmEdited, lmDeleted sql.NullBool
		var lmEditedAt, lmDeletedAt, lmCreatedAt sql.NullTime

		if err := rows.Scan(
			&cs.Chat.ID, &cs.Chat.Kind, &cs.Chat.Name, &cs.Chat.Slug, &cs.Chat.AvatarRef, &cs.Chat.OwnerID,
			&cs.Chat.CreatedAt, &cs.Chat.UpdatedAt, &cs.Chat.LastMessageAt, &cs.Chat.Deleted,
			&cs.UnreadCount,
			&lmID, &lmChatID, &lmSenderID, &lmBody, &lmKind, &lmReplyTo, &lmEdited, &lmEditedAt, &lmDeleted, &lmDeletedAt, &lmCreatedAt,
		); err != nil {
			return nil, apperr.Internal("scan chat summary", err)
		}

		if lmID.Valid {
			m := &domain.Message{
				ID:       domain.MessageID(lmID.String),
				ChatID:   domain.ChatID(lmChatID.String),
				Body:     lmBody.String,
				Kind:     domain.MessageKind(lmKind.String),
				Edited:   lmEdited.Bool,
				Deleted:  lmDeleted.Bool,
				CreatedAt: lmCreatedAt.Time,
			}
			if lmSenderID.Valid {
				sid := domain.UserID(lmSenderID.String)
				m.SenderID = &sid
			}
			if lmReplyTo.Valid {
				rid := domain.MessageID(lmReplyTo.String)
				m.ReplyToID = &rid
			}
			if lmEditedAt.Valid {
				m.EditedAt = &lmEditedAt.Time
			}
			if lmDeletedAt.Valid {
				m.DeletedAt = &lmDeletedAt.Time
			}
			cs.LastMessage = m
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (p *Postgres) AddParticipant(ctx context.Context, chatID domain.ChatID, userID domain.UserID, role domain.ParticipantRole) (*domain.Participant, error) {
	tx, err := p.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("begin add participant", err)
	}
	defer tx.Rollback()

	// Lock the chat row so concurrent adds to the same chat serialize
	// on the count below instead of both passing the cap.
	if _, err := tx.ExecContext(ctx, `SELECT id FROM chats WHERE id=$1 FOR UPDATE`, chatID); err != nil {
		return nil, apperr.Internal("lock chat for add participant", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `
		SELECT count(*) FROM participants WHERE chat_id=$1 AND left_at IS NULL`, chatID).Scan(&count); err != nil {
		return nil, apperr.Internal("count participants", err)
	}
	if count >= domain.MaxGroupParticipants {
		return nil, apperr.Conflict("group has reached its participant cap")
	}

	part := &domain.Participant{
		ID:       domain.NewParticipantID(),
		ChatID:   chatID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO participants (id, chat_id, user_id, role, joined_at, unread_count)
		VALUES ($1,$2,$3,$4,$5,0)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET role=$4, joined_at=$5, left_at=NULL, unread_count=0`,
		part.ID, part.ChatID, part.UserID, part.Role, part.JoinedAt)
	if err != nil {
		return nil, apperr.Internal("insert participant", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("commit add participant", err)
	}
	return part, nil
}

func (p *Postgres) RemoveParticipant(ctx context.Context, chatID domain.ChatID, userID domain.UserID) error {
	res, err := p.writer.ExecContext(ctx, `
		UPDATE participants SET left_at=$3 WHERE chat_id=$1 AND user_id=$2 AND left_at IS NULL`,
		chatID, userID, time.Now().UTC())
	if err != nil {
		return apperr.Internal("remove participant", err)
	}
	return requireRowsAffected(res, "participant not found")
}

func (p *Postgres) ListActiveParticipantIDs(ctx context.Context, chatID domain.ChatID) ([]domain.UserID, error) {
	rows, err := p.reader.QueryContext(ctx, `
		SELECT user_id FROM participants WHERE chat_id=$1 AND left_at IS NULL`, chatID)
	if err != nil {
		return nil, apperr.Internal("list active participants", err)
	}
	defer rows.Close()

	var out []domain.UserID
	for rows.Next() {
		var uid domain.UserID
		if err := rows.Scan(&uid); err != nil {
			return nil, apperr.Internal("scan participant id", err)
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

func (p *Postgres) IsActiveParticipant(ctx context.Context, chatID domain.ChatID, userID domain.UserID) (bool, error) {
	var exists bool
	err := p.reader.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM participants WHERE chat_id=$1 AND user_id=$2 AND left_at IS NULL)`,
		chatID, userID).Scan(&exists)
	if err != nil {
		return false, apperr.Internal("check active participant", err)
	}
	return exists, nil
}

func (p *Postgres) CountActiveParticipants(ctx context.Context, chatID domain.ChatID) (int, error) {
	var count int
	err := p.reader.QueryRowContext(ctx, `
		SELECT count(*) FROM participants WHERE chat_id=$1 AND left_at IS NULL`, chatID).Scan(&count)
	if err != nil {
		return 0, apperr.Internal("count active participants", err)
	}
	return count, nil
}

func (p *Postgres) GetParticipant(ctx context.Context, chatID domain.ChatID, userID domain.UserID) (*domain.Participant, error) {
	var part domain.Participant
	err := p.reader.QueryRowContext(ctx, `
		SELECT id, chat_id, user_id, role, joined_at, left_at, last_read_message_id, unread_count
		FROM participants WHERE chat_id=$1 AND user_id=$2`, chatID, userID).Scan(
		&part.ID, &part.ChatID, &part.UserID, &part.Role, &part.JoinedAt, &part.LeftAt, &part.LastReadMessageID, &part.UnreadCount)
	if isNoRows(err) {
		return nil, apperr.NotFound("participant not found")
	}
	if err != nil {
		return nil, apperr.Internal("get participant", err)
	}
	return &part, nil
}
