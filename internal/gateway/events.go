package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/cachebus"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/chatservice"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

// clientEvent is the envelope for every inbound client→server command
// (spec.md §4.4): send, edit, delete, reaction-add/remove,
// typing-start/stop, mark-read, mark-chat-read, presence-heartbeat.
type clientEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// readPump is the per-connection FIFO dispatch loop: every frame is
// handled to completion before the next is read, so one socket's
// events are always applied in the order the client sent them.
func (g *Gateway) readPump(client *Client, sessionID domain.SessionID) {
	defer func() {
		g.hub.unregister <- client
		g.presence.OnDisconnect(client.userID)
		_ = client.conn.Close()
	}()

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				g.logger.WithError(err).WithField("socketId", client.socketID).Debug("gateway: connection closed")
			}
			return
		}
		if !client.limiter.Allow() {
			continue
		}
		client.touch()

		var evt clientEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			g.sendError(client, "", string(apperr.KindInvalidInput), "malformed event")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		g.dispatch(ctx, client, evt)
		cancel()
	}
}

func (g *Gateway) dispatch(ctx context.Context, client *Client, evt clientEvent) {
	caller := chatservice.Caller{UserID: client.userID}

	switch evt.Event {
	case "send":
		g.handleSend(ctx, client, caller, evt.Payload)
	case "edit":
		g.handleEdit(ctx, client, caller, evt.Payload)
	case "delete":
		g.handleDelete(ctx, client, caller, evt.Payload)
	case "reaction-add":
		g.handleReactionAdd(ctx, client, caller, evt.Payload)
	case "reaction-remove":
		g.handleReactionRemove(ctx, client, caller, evt.Payload)
	case "typing-start":
		g.handleTypingStart(client, evt.Payload)
	case "typing-stop":
		g.handleTypingStop(client, evt.Payload)
	case "mark-read":
		g.handleMarkRead(ctx, client, caller, evt.Payload)
	case "mark-chat-read":
		g.handleMarkChatRead(ctx, client, caller, evt.Payload)
	case "presence-heartbeat":
		g.handleHeartbeat(ctx, client)
	default:
		g.sendError(client, "", string(apperr.KindInvalidInput), "unknown event: "+evt.Event)
	}
}

// sendError emits message-error (spec.md §7): clientRef lets the
// client reconcile the failure against its local optimistic state,
// kind is an apperr.Kind (or invalid-input for transport-level
// failures that never reach a business service).
func (g *Gateway) sendError(client *Client, clientRef, kind, message string) {
	data, _ := json.Marshal(cachebus.Envelope{Event: "message-error", Payload: map[string]any{
		"clientRef": clientRef, "kind": kind, "message": message,
	}})
	client.enqueue(data)
}

type sendPayload struct {
	ClientRef   string              `json:"clientRef,omitempty"`
	ChatID      string              `json:"chatId"`
	Body        string              `json:"body"`
	Kind        domain.MessageKind  `json:"kind"`
	ReplyToID   *string             `json:"replyToId,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

// handleSend relies on the chat-room broadcast of new-message (already
// fanned out to every socket in the room, including the sender's own)
// to confirm a successful send; only a failure needs an explicit
// message-error reply back to the sending socket.
func (g *Gateway) handleSend(ctx context.Context, client *Client, caller chatservice.Caller, raw json.RawMessage) {
	var p sendPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		g.sendError(client, "", string(apperr.KindInvalidInput), "malformed payload")
		return
	}
	chatID, err := domain.ParseChatID(p.ChatID)
	if err != nil {
		g.sendError(client, p.ClientRef, string(apperr.KindInvalidInput), "invalid chatId")
		return
	}
	var replyTo *domain.MessageID
	if p.ReplyToID != nil {
		id, err := domain.ParseMessageID(*p.ReplyToID)
		if err == nil {
			replyTo = &id
		}
	}
	if p.Kind == "" {
		p.Kind = domain.MessageKindText
	}

	if _, err := g.chats.SendMessage(ctx, caller, chatID, p.Body, p.Kind, replyTo, p.Attachments); err != nil {
		g.sendError(client, p.ClientRef, string(apperr.KindOf(err)), err.Error())
	}
}

type editPayload struct {
	MessageID string `json:"messageId"`
	Body      string `json:"body"`
}

func (g *Gateway) handleEdit(ctx context.Context, client *Client, caller chatservice.Caller, raw json.RawMessage) {
	var p editPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		g.sendError(client, "", string(apperr.KindInvalidInput), "malformed payload")
		return
	}
	messageID, err := domain.ParseMessageID(p.MessageID)
	if err != nil {
		g.sendError(client, "", string(apperr.KindInvalidInput), "invalid messageId")
		return
	}
	if _, err := g.chats.EditMessage(ctx, caller, messageID, p.Body); err != nil {
		g.sendError(client, "", string(apperr.KindOf(err)), err.Error())
	}
}

type deletePayload struct {
	MessageID string `json:"messageId"`
}

func (g *Gateway) handleDelete(ctx context.Context, client *Client, caller chatservice.Caller, raw json.RawMessage) {
	var p deletePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		g.sendError(client, "", string(apperr.KindInvalidInput), "malformed payload")
		return
	}
	messageID, err := domain.ParseMessageID(p.MessageID)
	if err != nil {
		g.sendError(client, "", string(apperr.KindInvalidInput), "invalid messageId")
		return
	}
	if err := g.chats.DeleteMessage(ctx, caller, messageID); err != nil {
		g.sendError(client, "", string(apperr.KindOf(err)), err.Error())
	}
}

type reactionPayload struct {
	ChatID     string `json:"chatId"`
	MessageID  string `json:"messageId"`
	ReactionID string `json:"reactionId,omitempty"`
	Glyph      string `json:"glyph,omitempty"`
}

func (g *Gateway) handleReactionAdd(ctx context.Context, client *Client, caller chatservice.Caller, raw json.RawMessage) {
	var p reactionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		g.sendError(client, "", string(apperr.KindInvalidInput), "malformed payload")
		return
	}
	messageID, err := domain.ParseMessageID(p.MessageID)
	if err != nil {
		g.sendError(client, "", string(apperr.KindInvalidInput), "invalid messageId")
		return
	}
	if err := g.chats.AddReaction(ctx, caller, messageID, p.Glyph); err != nil {
		g.sendError(client, "", string(apperr.KindOf(err)), err.Error())
	}
}

func (g *Gateway) handleReactionRemove(ctx context.Context, client *Client, caller chatservice.Caller, raw json.RawMessage) {
	var p reactionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		g.sendError(client, "", string(apperr.KindInvalidInput), "malformed payload")
		return
	}
	chatID, err := domain.ParseChatID(p.ChatID)
	if err != nil {
		g.sendError(client, "", string(apperr.KindInvalidInput), "invalid chatId")
		return
	}
	if err := g.chats.RemoveReaction(ctx, caller, chatID, domain.ReactionID(p.ReactionID)); err != nil {
		g.sendError(client, "", string(apperr.KindOf(err)), err.Error())
	}
}

type typingPayload struct {
	ChatID string `json:"chatId"`
}

// handleTypingStart fans out typing-start directly through cachebus (no
// Store round trip — typing state is ephemeral) and auto-stops it after
// typingAutoStop if the client never sends typing-stop (spec.md §4.4).
func (g *Gateway) handleTypingStart(client *Client, raw json.RawMessage) {
	var p typingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	chatID, err := domain.ParseChatID(p.ChatID)
	if err != nil {
		return
	}

	client.mu.Lock()
	if t, ok := client.typingStop[chatID]; ok {
		t.Stop()
	}
	client.typingStop[chatID] = time.AfterFunc(typingAutoStop, func() {
		g.publishTyping(chatID, client.userID, "typing-stop")
	})
	client.mu.Unlock()

	g.publishTyping(chatID, client.userID, "typing-start")
}

func (g *Gateway) handleTypingStop(client *Client, raw json.RawMessage) {
	var p typingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	chatID, err := domain.ParseChatID(p.ChatID)
	if err != nil {
		return
	}

	client.mu.Lock()
	if t, ok := client.typingStop[chatID]; ok {
		t.Stop()
		delete(client.typingStop, chatID)
	}
	client.mu.Unlock()

	g.publishTyping(chatID, client.userID, "typing-stop")
}

func (g *Gateway) publishTyping(chatID domain.ChatID, userID domain.UserID, event string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = g.bus.PublishToChat(ctx, chatID, event, map[string]any{"userId": userID})
}

type markReadPayload struct {
	MessageID string `json:"messageId"`
}

func (g *Gateway) handleMarkRead(ctx context.Context, client *Client, caller chatservice.Caller, raw json.RawMessage) {
	var p markReadPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		g.sendError(client, "", string(apperr.KindInvalidInput), "malformed payload")
		return
	}
	messageID, err := domain.ParseMessageID(p.MessageID)
	if err != nil {
		g.sendError(client, "", string(apperr.KindInvalidInput), "invalid messageId")
		return
	}
	if err := g.chats.MarkRead(ctx, caller, messageID); err != nil {
		g.sendError(client, "", string(apperr.KindOf(err)), err.Error())
	}
}

type markChatReadPayload struct {
	ChatID        string `json:"chatId"`
	UpToMessageID string `json:"upToMessageId"`
}

func (g *Gateway) handleMarkChatRead(ctx context.Context, client *Client, caller chatservice.Caller, raw json.RawMessage) {
	var p markChatReadPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		g.sendError(client, "", string(apperr.KindInvalidInput), "malformed payload")
		return
	}
	chatID, err := domain.ParseChatID(p.ChatID)
	if err != nil {
		g.sendError(client, "", string(apperr.KindInvalidInput), "invalid chatId")
		return
	}
	upTo, err := domain.ParseMessageID(p.UpToMessageID)
	if err != nil {
		g.sendError(client, "", string(apperr.KindInvalidInput), "invalid upToMessageId")
		return
	}
	if err := g.chats.MarkChatRead(ctx, caller, chatID, upTo); err != nil {
		g.sendError(client, "", string(apperr.KindOf(err)), err.Error())
	}
}

func (g *Gateway) handleHeartbeat(ctx context.Context, client *Client) {
	_ = g.presence.OnHeartbeat(ctx, client.userID)
}
