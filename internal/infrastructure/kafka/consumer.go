package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"wachat-ws/internal/domain"
)

// MessageHandler runs the realtime side of records persisted by other services.
type MessageHandler interface {
	HandleMessageCreated(ctx context.Context, evt domain.MessageCreatedEvent)
	HandleMessagesRead(ctx context.Context, evt domain.MessagesReadEvent)
}

type KafkaConsumer struct {
	readers []*kafka.Reader
	handler MessageHandler
	log     zerolog.Logger
}

func NewKafkaConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, log zerolog.Logger) *KafkaConsumer {
	var readers []*kafka.Reader

	for _, topic := range topics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 100 * time.Millisecond,
			StartOffset:    kafka.LastOffset,
			MaxWait:        100 * time.Millisecond,
		})
		readers = append(readers, reader)
	}

	return &KafkaConsumer{
		readers: readers,
		handler: handler,
		log:     log.With().Str("component", "kafka_consumer").Logger(),
	}
}

// Start launches one reader goroutine per topic. They stop when ctx is done.
func (k *KafkaConsumer) Start(ctx context.Context) error {
	for i := range k.readers {
		go k.run(ctx, k.readers[i])
	}
	return nil
}

func (k *KafkaConsumer) run(ctx context.Context, reader *kafka.Reader) {
	topic := reader.Config().Topic
	defer func() {
		if r := recover(); r != nil {
			k.log.Error().Interface("panic", r).Str("topic", topic).Msg("recovered from panic in kafka reader")
		}
	}()

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				k.log.Info().Str("topic", topic).Msg("kafka reader stopping")
				return
			}
			if errors.Is(err, kafka.RebalanceInProgress) || errors.Is(err, kafka.LeaderNotAvailable) {
				k.log.Warn().Err(err).Str("topic", topic).Msg("kafka cluster busy, retrying")
				continue
			}
			k.log.Error().Err(err).Str("topic", topic).Msg("error reading kafka message")
			continue
		}

		if k.handler != nil {
			k.handleMessage(ctx, m.Topic, m.Value)
		}
	}
}

func (k *KafkaConsumer) handleMessage(ctx context.Context, topic string, value []byte) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Error().Interface("panic", r).Str("topic", topic).Msg("recovered from panic in handleMessage")
		}
	}()

	switch topic {
	case TopicChatMessages:
		var evt domain.MessageCreatedEvent
		if err := json.Unmarshal(value, &evt); err != nil {
			k.log.Error().Err(err).Str("topic", topic).Bytes("raw", value).Msg("error unmarshaling message created event")
			return
		}
		if evt.MessageID == "" {
			k.log.Warn().Str("topic", topic).Msg("message created event without message id")
			return
		}
		k.handler.HandleMessageCreated(ctx, evt)

	case TopicMessageReads:
		var evt domain.MessagesReadEvent
		if err := json.Unmarshal(value, &evt); err != nil {
			k.log.Error().Err(err).Str("topic", topic).Bytes("raw", value).Msg("error unmarshaling messages read event")
			return
		}
		if evt.ReaderID == "" || len(evt.MessageIDs) == 0 {
			k.log.Warn().Str("topic", topic).Msg("messages read event without reader or ids")
			return
		}
		k.handler.HandleMessagesRead(ctx, evt)

	default:
		k.log.Warn().Str("topic", topic).Msg("unknown topic")
	}
}

func (k *KafkaConsumer) Close() error {
	var errs []error
	for i := range k.readers {
		if err := k.readers[i].Close(); err != nil {
			k.log.Error().Err(err).Msg("error closing kafka reader")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
