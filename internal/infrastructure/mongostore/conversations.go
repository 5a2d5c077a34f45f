package mongostore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wachat-ws/internal/domain"
)

type Conversations struct {
	coll *mongo.Collection
}

// FindOrCreate upserts on pairKey, the joined sorted pair. A racing insert loses
// on the unique index and is answered with the winner's document.
func (s *Conversations) FindOrCreate(ctx context.Context, participants []string) (*domain.Conversation, error) {
	if len(participants) != 2 {
		return nil, fmt.Errorf("conversation needs two participants: %w", domain.ErrInvalidInput)
	}
	pair := append([]string{}, participants...)
	sort.Strings(pair)

	now := time.Now()
	filter := bson.M{"pairKey": strings.Join(pair, ":")}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":          uuid.NewString(),
		"participants": pair,
		"unreadCount":  0,
		"createdAt":    now,
		"updatedAt":    now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var c domain.Conversation
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&c)
	if mongo.IsDuplicateKeyError(err) {
		err = s.coll.FindOne(ctx, filter).Decode(&c)
	}
	if err != nil {
		return nil, wrapErr("find or create conversation", err)
	}
	return &c, nil
}

func (s *Conversations) RecordMessage(ctx context.Context, conversationID, messageID string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{
			"$set": bson.M{"lastMessage": messageID, "updatedAt": time.Now()},
			"$inc": bson.M{"unreadCount": 1},
		},
	)
	if err != nil {
		return wrapErr("record last message", err)
	}
	if res.MatchedCount == 0 {
		return wrapErr("record last message", mongo.ErrNoDocuments)
	}
	return nil
}
