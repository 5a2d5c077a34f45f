package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wachat-ws/internal/domain"
	"wachat-ws/internal/infrastructure/memstore"
)

type deliveryFixture struct {
	registry      *Registry
	users         *memstore.Users
	messages      *memstore.Messages
	conversations *memstore.Conversations
	tracker       *DeliveryTracker
	events        *recordingPublisher
}

func newDeliveryFixture() *deliveryFixture {
	r, users := newTestRegistry()
	messages := memstore.NewMessages()
	conversations := memstore.NewConversations()
	events := &recordingPublisher{}
	return &deliveryFixture{
		registry:      r,
		users:         users,
		messages:      messages,
		conversations: conversations,
		tracker:       NewDeliveryTracker(messages, conversations, users, r, events, testLogger()),
		events:        events,
	}
}

func (f *deliveryFixture) status(t *testing.T, id string) domain.MessageStatus {
	t.Helper()
	m, err := f.messages.FindByID(context.Background(), id)
	require.NoError(t, err)
	return m.Status
}

func TestSendToOnlineReceiverMarksDelivered(t *testing.T) {
	f := newDeliveryFixture()
	conns := connectAll(t, f.registry, "alice", "bob")
	ctx := context.Background()

	msg, err := f.tracker.Send(ctx, "alice", domain.SendMessageBody{ReceiverID: "bob", Content: "hi"})
	require.NoError(t, err)

	received := conns["bob"].events(domain.EventReceiveMessage)
	require.Len(t, received, 1)
	assert.Equal(t, msg.ID, received[0].Payload.(domain.MessageView).ID)
	assert.Equal(t, domain.StatusDelivered, f.status(t, msg.ID))

	updates := conns["alice"].events(domain.EventMessageStatusUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, domain.MessageStatusPayload{MessageID: msg.ID, Status: domain.StatusDelivered}, updates[0].Payload)

	conv, ok := f.conversations.Get(msg.ConversationID)
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "bob"}, conv.Participants)
	assert.Equal(t, msg.ID, conv.LastMessage)
}

func TestReceivedMessageCarriesProfiles(t *testing.T) {
	f := newDeliveryFixture()
	f.users.Put(domain.User{ID: "alice", UserName: "Alice", ProfilePicture: "https://cdn/alice.png"})
	conns := connectAll(t, f.registry, "bob")

	msg, err := f.tracker.Send(context.Background(), "alice", domain.SendMessageBody{ReceiverID: "bob", Content: "hi"})
	require.NoError(t, err)

	received := conns["bob"].events(domain.EventReceiveMessage)
	require.Len(t, received, 1)
	view := received[0].Payload.(domain.MessageView)
	assert.Equal(t, msg.ID, view.ID)
	assert.Equal(t, domain.UserSummary{ID: "alice", UserName: "Alice", ProfilePicture: "https://cdn/alice.png"}, view.Sender)
	// bob's profile row only carries presence fields
	assert.Equal(t, "bob", view.Receiver.ID)
	assert.Empty(t, view.Receiver.UserName)

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	var wire struct {
		ID     string             `json:"_id"`
		Sender domain.UserSummary `json:"sender"`
	}
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, msg.ID, wire.ID)
	assert.Equal(t, "Alice", wire.Sender.UserName)
}

func TestMarkReadDoesNotWaitForTheBus(t *testing.T) {
	f := newDeliveryFixture()
	slow := &slowPublisher{delay: 200 * time.Millisecond}
	outbox := NewOutbox(slow, 16, testLogger())
	f.tracker.events = outbox
	conns := connectAll(t, f.registry, "alice", "bob")
	ctx := context.Background()

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = fmt.Sprintf("m%d", i)
		require.NoError(t, f.messages.Create(ctx, &domain.Message{ID: ids[i], SenderID: "alice", ReceiverID: "bob", Status: domain.StatusDelivered}))
	}

	start := time.Now()
	updated, err := f.tracker.MarkRead(ctx, "bob", ids, domain.EventMessageStatusUpdate)
	require.NoError(t, err)
	assert.Len(t, updated, 5)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Len(t, conns["alice"].events(domain.EventMessageStatusUpdate), 5)

	require.NoError(t, outbox.Close())
	assert.Equal(t, 5, slow.count())
}

func TestOfflineConnectReadFlow(t *testing.T) {
	f := newDeliveryFixture()
	conns := connectAll(t, f.registry, "alice")
	ctx := context.Background()

	msg, err := f.tracker.Send(ctx, "alice", domain.SendMessageBody{ReceiverID: "bob", Content: "are you there?"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSend, f.status(t, msg.ID))
	assert.Empty(t, conns["alice"].events(domain.EventMessageStatusUpdate))

	bob := newFakeConn("conn-bob")
	require.NoError(t, f.registry.Connect(ctx, "bob", bob))
	assert.Equal(t, domain.StatusSend, f.status(t, msg.ID))

	updated, err := f.tracker.MarkRead(ctx, "bob", []string{msg.ID}, domain.EventMessageStatusUpdate)
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, domain.StatusRead, f.status(t, msg.ID))

	updates := conns["alice"].events(domain.EventMessageStatusUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, domain.MessageStatusPayload{MessageID: msg.ID, Status: domain.StatusRead}, updates[0].Payload)
}

func TestMarkReadTwiceIsNoop(t *testing.T) {
	f := newDeliveryFixture()
	conns := connectAll(t, f.registry, "alice", "bob")
	ctx := context.Background()

	msg, err := f.tracker.Send(ctx, "alice", domain.SendMessageBody{ReceiverID: "bob", Content: "hi"})
	require.NoError(t, err)
	conns["alice"].reset()

	_, err = f.tracker.MarkRead(ctx, "bob", []string{msg.ID, msg.ID}, domain.EventMessageStatusUpdate)
	require.NoError(t, err)
	updated, err := f.tracker.MarkRead(ctx, "bob", []string{msg.ID}, domain.EventMessageStatusUpdate)
	require.NoError(t, err)
	assert.Empty(t, updated)
	assert.Len(t, conns["alice"].events(domain.EventMessageStatusUpdate), 1)
}

func TestDeliverNeverRegressesRead(t *testing.T) {
	f := newDeliveryFixture()
	conns := connectAll(t, f.registry, "alice", "bob")
	ctx := context.Background()
	require.NoError(t, f.messages.Create(ctx, &domain.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Content: "x", Status: domain.StatusRead}))

	_, err := f.tracker.Deliver(ctx, "m1", "alice")
	require.NoError(t, err)

	assert.Len(t, conns["bob"].events(domain.EventReceiveMessage), 1)
	assert.Equal(t, domain.StatusRead, f.status(t, "m1"))
	assert.Empty(t, conns["alice"].events(domain.EventMessageStatusUpdate))
}

func TestDeliverRequiresSender(t *testing.T) {
	f := newDeliveryFixture()
	connectAll(t, f.registry, "bob")
	ctx := context.Background()
	require.NoError(t, f.messages.Create(ctx, &domain.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Status: domain.StatusSend}))

	_, err := f.tracker.Deliver(ctx, "m1", "mallory")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, domain.StatusSend, f.status(t, "m1"))

	_, err = f.tracker.Deliver(ctx, "missing", "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFailedPushLeavesMessageSend(t *testing.T) {
	f := newDeliveryFixture()
	conns := connectAll(t, f.registry, "alice", "bob")
	conns["bob"].setFail(true)

	msg, err := f.tracker.Send(context.Background(), "alice", domain.SendMessageBody{ReceiverID: "bob", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSend, f.status(t, msg.ID))
	assert.Empty(t, conns["alice"].events(domain.EventMessageStatusUpdate))
}

func TestMarkReadIgnoresOwnMessages(t *testing.T) {
	f := newDeliveryFixture()
	conns := connectAll(t, f.registry, "alice", "bob")
	ctx := context.Background()
	require.NoError(t, f.messages.Create(ctx, &domain.Message{ID: "m1", SenderID: "bob", ReceiverID: "alice", Status: domain.StatusDelivered}))

	updated, err := f.tracker.MarkRead(ctx, "bob", []string{"m1"}, domain.EventMessageRead)
	require.NoError(t, err)
	assert.Empty(t, updated)
	assert.Equal(t, domain.StatusDelivered, f.status(t, "m1"))
	assert.Empty(t, conns["bob"].events(domain.EventMessageRead))
}

func TestSendValidation(t *testing.T) {
	f := newDeliveryFixture()
	ctx := context.Background()

	cases := []struct {
		name string
		body domain.SendMessageBody
	}{
		{"no receiver", domain.SendMessageBody{Content: "hi"}},
		{"self", domain.SendMessageBody{ReceiverID: "alice", Content: "hi"}},
		{"blank text", domain.SendMessageBody{ReceiverID: "bob", Content: "  "}},
		{"media without type", domain.SendMessageBody{ReceiverID: "bob", ImageOrVideoURL: "https://cdn/x.png"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.tracker.Send(ctx, "alice", tc.body)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	msg, err := f.tracker.Send(ctx, "alice", domain.SendMessageBody{ReceiverID: "bob", ImageOrVideoURL: "https://cdn/x.png", ContentType: domain.ContentImage})
	require.NoError(t, err)
	assert.Equal(t, domain.ContentImage, msg.ContentType)
}

func TestDeleteMessage(t *testing.T) {
	f := newDeliveryFixture()
	conns := connectAll(t, f.registry, "alice", "bob")
	ctx := context.Background()
	require.NoError(t, f.messages.Create(ctx, &domain.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Status: domain.StatusSend}))

	assert.ErrorIs(t, f.tracker.Delete(ctx, "m1", "bob"), domain.ErrForbidden)
	require.NoError(t, f.tracker.Delete(ctx, "m1", "alice"))

	got := conns["bob"].events(domain.EventMessageDelete)
	require.Len(t, got, 1)
	assert.Equal(t, domain.MessageDeletePayload{MessageID: "m1"}, got[0].Payload)

	_, err := f.messages.FindByID(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
