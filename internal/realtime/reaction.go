package realtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wachat-ws/internal/domain"
)

// ReactionSynchronizer applies reactions and fans the result out to both
// participants of the message.
type ReactionSynchronizer struct {
	messages domain.MessageStore
	peers    Locator
	events   EventPublisher
	locks    *keyLock
	log      zerolog.Logger
}

func NewReactionSynchronizer(messages domain.MessageStore, peers Locator, events EventPublisher, log zerolog.Logger) *ReactionSynchronizer {
	return &ReactionSynchronizer{
		messages: messages,
		peers:    peers,
		events:   events,
		locks:    newKeyLock(),
		log:      log.With().Str("component", "reactions").Logger(),
	}
}

// React toggles emoji from actorID on messageID and returns the new reaction
// list. Concurrent reactions on the same message are applied one at a time.
func (s *ReactionSynchronizer) React(ctx context.Context, messageID, emoji, actorID string) ([]domain.Reaction, error) {
	emoji = strings.TrimSpace(emoji)
	if messageID == "" || emoji == "" || actorID == "" {
		return nil, fmt.Errorf("react: message, emoji and user required: %w", domain.ErrInvalidInput)
	}

	msg, reactions, err := s.apply(ctx, messageID, emoji, actorID)
	if err != nil {
		return nil, err
	}

	update := domain.ReactionPayload{MessageID: messageID, Reactions: reactions}
	for _, userID := range msg.Participants() {
		pushTo(s.log, s.peers, userID, domain.EventReactionUpdate, update)
	}

	publish(ctx, s.log, s.events, domain.ReactionEvent{
		Type:      "reaction_update",
		MessageID: messageID,
		UserID:    actorID,
		Reactions: reactions,
		Timestamp: time.Now(),
	})
	return reactions, nil
}

func (s *ReactionSynchronizer) apply(ctx context.Context, messageID, emoji, actorID string) (*domain.Message, []domain.Reaction, error) {
	unlock := s.locks.Lock(messageID)
	defer unlock()

	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	if !msg.HasParticipant(actorID) {
		return nil, nil, fmt.Errorf("react on %s: %w", messageID, domain.ErrForbidden)
	}

	reactions := domain.ApplyReaction(msg.Reactions, actorID, emoji)
	if err := s.messages.UpdateReactions(ctx, messageID, reactions); err != nil {
		return nil, nil, err
	}
	msg.Reactions = reactions
	return msg, reactions, nil
}
