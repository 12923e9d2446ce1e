package chatservice_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/cachebus"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/chatservice"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/config"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/events"
)

// fakeDelivery satisfies chatservice.Delivery without touching the
// Redis Stream; SendMessage only needs to know the enqueue happened.
type fakeDelivery struct {
	calls int
}

func (f *fakeDelivery) Enqueue(ctx context.Context, chatID domain.ChatID, messageID domain.MessageID, recipientIDs []domain.UserID) error {
	f.calls++
	return nil
}

// newTestService wires a Service against the in-memory fake store and
// a fakeDelivery; the bus and event log point at unreachable
// coordinates so their fire-and-forget publishes fail silently exactly
// as they do in production when a dependency is briefly down.
func newTestService(t *testing.T, sendPerSecond int) (*chatservice.Service, *fakeStore, *fakeDelivery) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	fs := newFakeStore()
	bus := cachebus.New(config.RedisConfig{Addrs: []string{"127.0.0.1:1"}}, logger)
	evts := events.New(config.KafkaConfig{Brokers: []string{"127.0.0.1:1"}, Topic: "test"}, logger)
	fd := &fakeDelivery{}
	rateCfg := config.RateLimitConfig{SendPerSecond: sendPerSecond}
	svc := chatservice.New(fs, bus, fd, evts, rateCfg)
	return svc, fs, fd
}

func TestCreateDirect_Idempotent(t *testing.T) {
	svc, _, _ := newTestService(t, 100)
	ctx := context.Background()
	alice := domain.NewUserID()
	bob := domain.NewUserID()
	caller := chatservice.Caller{UserID: alice}

	first, err := svc.CreateDirect(ctx, caller, bob)
	require.NoError(t, err)

	second, err := svc.CreateDirect(ctx, caller, bob)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// symmetric: bob initiating against alice finds the same chat
	third, err := svc.CreateDirect(ctx, chatservice.Caller{UserID: bob}, alice)
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)
}

func TestCreateDirect_RejectsSelf(t *testing.T) {
	svc, _, _ := newTestService(t, 100)
	alice := domain.NewUserID()
	_, err := svc.CreateDirect(context.Background(), chatservice.Caller{UserID: alice}, alice)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestCreateGroup_RejectsOverCapacity(t *testing.T) {
	svc, _, _ := newTestService(t, 100)
	caller := chatservice.Caller{UserID: domain.NewUserID()}
	members := make([]domain.UserID, domain.MaxGroupParticipants) // + caller = 301
	for i := range members {
		members[i] = domain.NewUserID()
	}
	_, err := svc.CreateGroup(context.Background(), caller, "too big", members)
	require.Error(t, err)
	assert.Equal(t, apperr.KindTooLarge, apperr.KindOf(err))
}

func TestCreateGroup_AtCapacitySucceeds(t *testing.T) {
	svc, _, _ := newTestService(t, 100)
	caller := chatservice.Caller{UserID: domain.NewUserID()}
	members := make([]domain.UserID, domain.MaxGroupParticipants-1) // + caller = 300
	for i := range members {
		members[i] = domain.NewUserID()
	}
	chat, err := svc.CreateGroup(context.Background(), caller, "exactly full", members)
	require.NoError(t, err)
	assert.Equal(t, domain.ChatKindGroup, chat.Kind)
}

func TestAddParticipants_EmitsSystemMessagePerAddition(t *testing.T) {
	svc, fs, _ := newTestService(t, 100)
	ctx := context.Background()
	owner := domain.NewUserID()
	alice := domain.NewUserID()
	bob := domain.NewUserID()

	chat, err := svc.CreateGroup(ctx, chatservice.Caller{UserID: owner}, "team", nil)
	require.NoError(t, err)

	require.NoError(t, svc.AddParticipants(ctx, chatservice.Caller{UserID: owner}, chat.ID, []domain.UserID{alice, bob}))

	systemCount := 0
	for _, m := range fs.messages {
		if m.ChatID == chat.ID && m.Kind == domain.MessageKindSystem {
			systemCount++
		}
	}
	// one from CreateGroup's "group created" plus one per added member.
	assert.Equal(t, 3, systemCount)
}

func TestAddParticipants_RejectsNonManagerCaller(t *testing.T) {
	svc, _, _ := newTestService(t, 100)
	ctx := context.Background()
	owner := domain.NewUserID()
	member := domain.NewUserID()
	outsider := domain.NewUserID()

	chat, err := svc.CreateGroup(ctx, chatservice.Caller{UserID: owner}, "team", []domain.UserID{member})
	require.NoError(t, err)

	err = svc.AddParticipants(ctx, chatservice.Caller{UserID: member}, chat.ID, []domain.UserID{outsider})
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestAddParticipants_RejectsAtCapacity(t *testing.T) {
	svc, _, _ := newTestService(t, 100)
	ctx := context.Background()
	owner := domain.NewUserID()
	members := make([]domain.UserID, domain.MaxGroupParticipants-1) // + owner = 300
	for i := range members {
		members[i] = domain.NewUserID()
	}
	chat, err := svc.CreateGroup(ctx, chatservice.Caller{UserID: owner}, "full", members)
	require.NoError(t, err)

	err = svc.AddParticipants(ctx, chatservice.Caller{UserID: owner}, chat.ID, []domain.UserID{domain.NewUserID()})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestSendMessage_RateLimitsEleventhSendWithinOneSecond(t *testing.T) {
	// burst = sendPerSecond*2, so sendPerSecond=5 gives a burst of 10.
	svc, fs, _ := newTestService(t, 5)
	ctx := context.Background()
	alice := domain.NewUserID()
	bob := domain.NewUserID()
	caller := chatservice.Caller{UserID: alice}

	chat, err := svc.CreateDirect(ctx, caller, bob)
	require.NoError(t, err)
	_ = fs

	for i := 0; i < 10; i++ {
		_, err := svc.SendMessage(ctx, caller, chat.ID, "hi", domain.MessageKindText, nil, nil)
		require.NoErrorf(t, err, "send %d should be within burst", i)
	}

	_, err = svc.SendMessage(ctx, caller, chat.ID, "eleventh", domain.MessageKindText, nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(err))
}

func TestSendMessage_RejectsNonParticipant(t *testing.T) {
	svc, _, _ := newTestService(t, 100)
	ctx := context.Background()
	alice := domain.NewUserID()
	bob := domain.NewUserID()
	outsider := domain.NewUserID()

	chat, err := svc.CreateDirect(ctx, chatservice.Caller{UserID: alice}, bob)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, chatservice.Caller{UserID: outsider}, chat.ID, "hi", domain.MessageKindText, nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestSendMessage_BodyLengthBoundary(t *testing.T) {
	svc, _, _ := newTestService(t, 1000)
	ctx := context.Background()
	alice := domain.NewUserID()
	bob := domain.NewUserID()
	caller := chatservice.Caller{UserID: alice}

	chat, err := svc.CreateDirect(ctx, caller, bob)
	require.NoError(t, err)

	ok := strings.Repeat("a", domain.MaxBodyLength)
	_, err = svc.SendMessage(ctx, caller, chat.ID, ok, domain.MessageKindText, nil, nil)
	require.NoError(t, err)

	tooLong := strings.Repeat("a", domain.MaxBodyLength+1)
	_, err = svc.SendMessage(ctx, caller, chat.ID, tooLong, domain.MessageKindText, nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindTooLarge, apperr.KindOf(err))
}

func TestSendMessage_ImageRequiresAttachment(t *testing.T) {
	svc, _, _ := newTestService(t, 1000)
	ctx := context.Background()
	alice := domain.NewUserID()
	bob := domain.NewUserID()
	caller := chatservice.Caller{UserID: alice}

	chat, err := svc.CreateDirect(ctx, caller, bob)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, caller, chat.ID, "", domain.MessageKindImage, nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestEditMessage_RoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t, 1000)
	ctx := context.Background()
	alice := domain.NewUserID()
	bob := domain.NewUserID()
	caller := chatservice.Caller{UserID: alice}

	chat, err := svc.CreateDirect(ctx, caller, bob)
	require.NoError(t, err)
	msg, err := svc.SendMessage(ctx, caller, chat.ID, "original", domain.MessageKindText, nil, nil)
	require.NoError(t, err)

	edited, err := svc.EditMessage(ctx, caller, msg.ID, "revised")
	require.NoError(t, err)
	assert.Equal(t, "revised", edited.Body)
	assert.True(t, edited.Edited)
}

func TestDeleteMessage_Tombstone(t *testing.T) {
	svc, fs, _ := newTestService(t, 1000)
	ctx := context.Background()
	alice := domain.NewUserID()
	bob := domain.NewUserID()
	caller := chatservice.Caller{UserID: alice}

	chat, err := svc.CreateDirect(ctx, caller, bob)
	require.NoError(t, err)
	msg, err := svc.SendMessage(ctx, caller, chat.ID, "to delete", domain.MessageKindText, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMessage(ctx, caller, msg.ID))

	stored, err := fs.FindMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Deleted)
	assert.Equal(t, domain.TombstoneBody, stored.DisplayBody())
}

func TestAddReaction_GlyphBoundary(t *testing.T) {
	svc, _, _ := newTestService(t, 1000)
	ctx := context.Background()
	alice := domain.NewUserID()
	bob := domain.NewUserID()
	caller := chatservice.Caller{UserID: alice}

	chat, err := svc.CreateDirect(ctx, caller, bob)
	require.NoError(t, err)
	msg, err := svc.SendMessage(ctx, caller, chat.ID, "react to me", domain.MessageKindText, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.AddReaction(ctx, caller, msg.ID, "👍"))

	err = svc.AddReaction(ctx, caller, msg.ID, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	err = svc.AddReaction(ctx, caller, msg.ID, strings.Repeat("x", domain.MaxGlyphLength+1))
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestMarkChatRead_ZeroesUnreadAndAdvancesDeliveries(t *testing.T) {
	svc, fs, _ := newTestService(t, 1000)
	ctx := context.Background()
	alice := domain.NewUserID()
	bob := domain.NewUserID()

	chat, err := svc.CreateDirect(ctx, chatservice.Caller{UserID: alice}, bob)
	require.NoError(t, err)
	msg, err := svc.SendMessage(ctx, chatservice.Caller{UserID: alice}, chat.ID, "catch up on this", domain.MessageKindText, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.MarkChatRead(ctx, chatservice.Caller{UserID: bob}, chat.ID, msg.ID))

	d := fs.deliveries[msg.ID][bob]
	require.NotNil(t, d)
	assert.Equal(t, domain.DeliveryStatusRead, d.Status)
	assert.Equal(t, 0, fs.participants[chat.ID][bob].UnreadCount)
}

func TestRemoveParticipant_OwnerLeavingTransfersOwnership(t *testing.T) {
	svc, fs, _ := newTestService(t, 1000)
	ctx := context.Background()
	owner := domain.NewUserID()
	admin := domain.NewUserID()
	member := domain.NewUserID()

	chat, err := svc.CreateGroup(ctx, chatservice.Caller{UserID: owner}, "team", []domain.UserID{admin, member})
	require.NoError(t, err)

	fs.mu.Lock()
	fs.participants[chat.ID][admin].Role = domain.RoleAdmin
	fs.mu.Unlock()

	require.NoError(t, svc.RemoveParticipant(ctx, chatservice.Caller{UserID: owner}, chat.ID, owner))

	updated, err := fs.FindChatByID(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.OwnerID)
	assert.Equal(t, admin, *updated.OwnerID)
}
