package realtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wachat-ws/internal/domain"
	"wachat-ws/internal/metrics"
)

// DeliveryTracker moves messages through SEND -> DELIVERED -> READ and tells
// the other party when that happens. Pushes are best effort; a failed push
// never undoes a committed status change.
type DeliveryTracker struct {
	messages      domain.MessageStore
	conversations domain.ConversationStore
	profiles      profiles
	peers         Locator
	events        EventPublisher
	now           func() time.Time
	log           zerolog.Logger
}

// NewDeliveryTracker builds a tracker. users resolves the profiles attached
// to pushed messages and may be nil.
func NewDeliveryTracker(messages domain.MessageStore, conversations domain.ConversationStore, users domain.UserDirectory, peers Locator, events EventPublisher, log zerolog.Logger) *DeliveryTracker {
	log = log.With().Str("component", "delivery").Logger()
	return &DeliveryTracker{
		messages:      messages,
		conversations: conversations,
		profiles:      profiles{users: users, log: log},
		peers:         peers,
		events:        events,
		now:           time.Now,
		log:           log,
	}
}

// Send persists a new message from senderID, attaching it to the canonical
// conversation of the pair, and runs the send path on it.
func (d *DeliveryTracker) Send(ctx context.Context, senderID string, body domain.SendMessageBody) (*domain.Message, error) {
	receiverID := strings.TrimSpace(body.ReceiverID)
	if senderID == "" || receiverID == "" || senderID == receiverID {
		return nil, fmt.Errorf("send message: sender and receiver required: %w", domain.ErrInvalidInput)
	}

	contentType, err := resolveContentType(body.Content, body.ContentType, body.ImageOrVideoURL)
	if err != nil {
		return nil, err
	}

	conv, err := d.conversations.FindOrCreate(ctx, domain.CanonicalPair(senderID, receiverID))
	if err != nil {
		return nil, err
	}

	now := d.now()
	msg := &domain.Message{
		ID:              uuid.NewString(),
		ConversationID:  conv.ID,
		SenderID:        senderID,
		ReceiverID:      receiverID,
		Content:         body.Content,
		ImageOrVideoURL: body.ImageOrVideoURL,
		ContentType:     contentType,
		Reactions:       []domain.Reaction{},
		Status:          domain.StatusSend,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := d.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	if err := d.conversations.RecordMessage(ctx, conv.ID, msg.ID); err != nil {
		d.log.Error().Err(err).Str("conversation_id", conv.ID).Str("message_id", msg.ID).Msg("failed to record last message")
	}

	d.deliver(ctx, msg)
	return msg, nil
}

// Deliver runs the send path for a message persisted elsewhere. A non-empty
// actorID must be the sender.
func (d *DeliveryTracker) Deliver(ctx context.Context, messageID, actorID string) (*domain.Message, error) {
	if messageID == "" {
		return nil, fmt.Errorf("deliver: message id required: %w", domain.ErrInvalidInput)
	}
	msg, err := d.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if actorID != "" && msg.SenderID != actorID {
		return nil, fmt.Errorf("deliver %s: %w", messageID, domain.ErrForbidden)
	}
	d.deliver(ctx, msg)
	return msg, nil
}

// deliver pushes msg to a present receiver and advances it to DELIVERED once
// the push went through. An absent receiver leaves the message at SEND.
func (d *DeliveryTracker) deliver(ctx context.Context, msg *domain.Message) {
	conn, ok := d.peers.Lookup(msg.ReceiverID)
	if !ok {
		d.log.Debug().Str("message_id", msg.ID).Str("receiver_id", msg.ReceiverID).Msg("receiver offline, message stays SEND")
		return
	}
	if err := push(d.log, conn, domain.EventReceiveMessage, d.profiles.message(ctx, msg)); err != nil {
		return
	}
	if !msg.Status.Precedes(domain.StatusDelivered) {
		return
	}

	changed, err := d.messages.UpdateStatus(ctx, msg.ID, domain.StatusDelivered)
	if err != nil {
		d.log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to mark message delivered")
		return
	}
	if !changed {
		return
	}
	msg.Status = domain.StatusDelivered
	metrics.RecordTransition(string(domain.StatusDelivered), 1)

	pushTo(d.log, d.peers, msg.SenderID, domain.EventMessageStatusUpdate, domain.MessageStatusPayload{
		MessageID: msg.ID,
		Status:    domain.StatusDelivered,
	})
	publish(ctx, d.log, d.events, domain.DeliveryEvent{
		Type:      "message_delivered",
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Status:    domain.StatusDelivered,
		Timestamp: d.now(),
	})
}

// MarkRead advances to READ the listed messages that readerID received and
// notifies each sender that is present with event. Messages readerID sent, or
// that are already READ, are left untouched.
func (d *DeliveryTracker) MarkRead(ctx context.Context, readerID string, messageIDs []string, event string) ([]domain.Message, error) {
	if readerID == "" {
		return nil, fmt.Errorf("mark read: reader required: %w", domain.ErrInvalidInput)
	}
	ids := uniqueNonEmpty(messageIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	updated, err := d.messages.BulkUpdateStatus(ctx, ids, readerID, domain.StatusRead)
	if err != nil {
		return nil, err
	}
	metrics.RecordTransition(string(domain.StatusRead), len(updated))

	now := d.now()
	for i := range updated {
		msg := &updated[i]
		pushTo(d.log, d.peers, msg.SenderID, event, domain.MessageStatusPayload{
			MessageID: msg.ID,
			Status:    domain.StatusRead,
		})
		publish(ctx, d.log, d.events, domain.DeliveryEvent{
			Type:      "message_read",
			MessageID: msg.ID,
			SenderID:  msg.SenderID,
			Status:    domain.StatusRead,
			Timestamp: now,
		})
	}
	return updated, nil
}

// Delete removes a message on behalf of its sender and tells the receiver.
func (d *DeliveryTracker) Delete(ctx context.Context, messageID, actorID string) error {
	if messageID == "" || actorID == "" {
		return fmt.Errorf("delete message: %w", domain.ErrInvalidInput)
	}
	msg, err := d.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != actorID {
		return fmt.Errorf("delete message %s: %w", messageID, domain.ErrForbidden)
	}
	if err := d.messages.Delete(ctx, messageID); err != nil {
		return err
	}

	pushTo(d.log, d.peers, msg.ReceiverID, domain.EventMessageDelete, domain.MessageDeletePayload{MessageID: messageID})
	return nil
}

func resolveContentType(content string, requested domain.ContentType, mediaURL string) (domain.ContentType, error) {
	if mediaURL != "" {
		if requested != domain.ContentImage && requested != domain.ContentVideo {
			return "", fmt.Errorf("media messages need IMAGE or VIDEO content type: %w", domain.ErrInvalidInput)
		}
		return requested, nil
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("message content is required: %w", domain.ErrInvalidInput)
	}
	return domain.ContentText, nil
}

func uniqueNonEmpty(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
