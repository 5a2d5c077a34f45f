package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"wachat-ws/internal/domain"
)

// Topics written by the gateway.
const (
	TopicPresenceEvents = "presence-events"
	TopicDeliveryEvents = "delivery-events"
	TopicReactionEvents = "reaction-events"
	TopicStatusEvents   = "status-events"
)

// Topics read by the gateway, written by the REST writers.
const (
	TopicChatMessages = "chat-messages"
	TopicMessageReads = "message-reads"
)

type KafkaProducer struct {
	Writer *kafka.Writer
	log    zerolog.Logger
}

func NewKafkaProducer(brokers []string, log zerolog.Logger) *KafkaProducer {
	p := &KafkaProducer{
		log: log.With().Str("component", "kafka_producer").Logger(),
	}
	p.Writer = &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
		// Optimize for low latency
		BatchSize:    1,
		BatchTimeout: time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		// WriteMessages returns once the record is queued; broker errors
		// surface in Completion.
		Async:      true,
		Completion: p.onCompletion,
	}
	return p
}

func (k *KafkaProducer) onCompletion(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range messages {
		k.log.Error().Err(err).Str("topic", m.Topic).Str("key", string(m.Key)).Msg("failed to send message to kafka")
	}
}

func (k *KafkaProducer) SendMessage(ctx context.Context, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	topic := topicForMessage(message)
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(keyForMessage(message)),
		Value: data,
	}

	if err := k.Writer.WriteMessages(ctx, msg); err != nil {
		k.log.Error().Err(err).Str("topic", topic).Msg("failed to queue message for kafka")
		return err
	}

	k.log.Debug().Str("topic", topic).Msg("message queued for kafka")
	return nil
}

func topicForMessage(message interface{}) string {
	switch message.(type) {
	case domain.PresenceEvent:
		return TopicPresenceEvents
	case domain.DeliveryEvent:
		return TopicDeliveryEvents
	case domain.ReactionEvent:
		return TopicReactionEvents
	case domain.StatusEvent:
		return TopicStatusEvents
	default:
		return TopicDeliveryEvents
	}
}

// keyForMessage keeps every record about one entity on one partition.
func keyForMessage(message interface{}) string {
	switch m := message.(type) {
	case domain.PresenceEvent:
		return m.UserID
	case domain.DeliveryEvent:
		return m.MessageID
	case domain.ReactionEvent:
		return m.MessageID
	case domain.StatusEvent:
		return m.StatusID
	default:
		return ""
	}
}

func (k *KafkaProducer) Close() error {
	return k.Writer.Close()
}
