package kafka

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wachat-ws/internal/domain"
)

type recordingHandler struct {
	created []domain.MessageCreatedEvent
	read    []domain.MessagesReadEvent
}

func (h *recordingHandler) HandleMessageCreated(ctx context.Context, evt domain.MessageCreatedEvent) {
	h.created = append(h.created, evt)
}

func (h *recordingHandler) HandleMessagesRead(ctx context.Context, evt domain.MessagesReadEvent) {
	h.read = append(h.read, evt)
}

func TestTopicForMessage(t *testing.T) {
	assert.Equal(t, TopicPresenceEvents, topicForMessage(domain.PresenceEvent{}))
	assert.Equal(t, TopicDeliveryEvents, topicForMessage(domain.DeliveryEvent{}))
	assert.Equal(t, TopicReactionEvents, topicForMessage(domain.ReactionEvent{}))
	assert.Equal(t, TopicStatusEvents, topicForMessage(domain.StatusEvent{}))

	assert.Equal(t, "u1", keyForMessage(domain.PresenceEvent{UserID: "u1"}))
	assert.Equal(t, "s1", keyForMessage(domain.StatusEvent{StatusID: "s1"}))
}

func TestHandleMessageDispatchesByTopic(t *testing.T) {
	h := &recordingHandler{}
	c := &KafkaConsumer{handler: h, log: zerolog.Nop()}
	ctx := context.Background()

	c.handleMessage(ctx, TopicChatMessages, []byte(`{"message_id":"m1","sender_id":"alice"}`))
	c.handleMessage(ctx, TopicMessageReads, []byte(`{"reader_id":"bob","message_ids":["m1","m2"]}`))

	require.Len(t, h.created, 1)
	assert.Equal(t, "m1", h.created[0].MessageID)
	require.Len(t, h.read, 1)
	assert.Equal(t, []string{"m1", "m2"}, h.read[0].MessageIDs)
}

func TestHandleMessageDropsBadRecords(t *testing.T) {
	h := &recordingHandler{}
	c := &KafkaConsumer{handler: h, log: zerolog.Nop()}
	ctx := context.Background()

	c.handleMessage(ctx, TopicChatMessages, []byte(`not json`))
	c.handleMessage(ctx, TopicChatMessages, []byte(`{"sender_id":"alice"}`))
	c.handleMessage(ctx, TopicMessageReads, []byte(`{"reader_id":"bob","message_ids":[]}`))
	c.handleMessage(ctx, "other", []byte(`{}`))

	assert.Empty(t, h.created)
	assert.Empty(t, h.read)
}
