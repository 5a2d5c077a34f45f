package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wachat-ws/internal/domain"
)

type Messages struct {
	coll *mongo.Collection
}

func (s *Messages) Create(ctx context.Context, msg *domain.Message) error {
	if msg.Reactions == nil {
		msg.Reactions = []domain.Reaction{}
	}
	if _, err := s.coll.InsertOne(ctx, msg); err != nil {
		return wrapErr("insert message", err)
	}
	return nil
}

func (s *Messages) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	var m domain.Message
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, wrapErr("find message", err)
	}
	return &m, nil
}

// UpdateStatus only matches documents whose status is still before the target,
// so concurrent writers cannot move a message backwards.
func (s *Messages) UpdateStatus(ctx context.Context, id string, status domain.MessageStatus) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "messageStatus": bson.M{"$in": status.Before()}},
		bson.M{"$set": bson.M{"messageStatus": status, "updatedAt": time.Now()}},
	)
	if err != nil {
		return false, wrapErr("update message status", err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	if err := s.exists(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Messages) UpdateReactions(ctx context.Context, id string, reactions []domain.Reaction) error {
	if reactions == nil {
		reactions = []domain.Reaction{}
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"reactions": reactions, "updatedAt": time.Now()}},
	)
	if err != nil {
		return wrapErr("update reactions", err)
	}
	if res.MatchedCount == 0 {
		return wrapErr("update reactions", mongo.ErrNoDocuments)
	}
	return nil
}

func (s *Messages) BulkUpdateStatus(ctx context.Context, ids []string, receiverID string, status domain.MessageStatus) ([]domain.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var out []domain.Message
	for _, id := range ids {
		var m domain.Message
		err := s.coll.FindOneAndUpdate(ctx,
			bson.M{"_id": id, "receiver": receiverID, "messageStatus": bson.M{"$in": status.Before()}},
			bson.M{"$set": bson.M{"messageStatus": status, "updatedAt": time.Now()}},
			opts,
		).Decode(&m)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return out, wrapErr("bulk update message status", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Messages) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return wrapErr("delete message", err)
	}
	if res.DeletedCount == 0 {
		return wrapErr("delete message", mongo.ErrNoDocuments)
	}
	return nil
}

func (s *Messages) exists(ctx context.Context, id string) error {
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return wrapErr("count message", err)
	}
	if n == 0 {
		return wrapErr("find message", mongo.ErrNoDocuments)
	}
	return nil
}
