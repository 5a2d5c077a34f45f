package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wachat-ws/internal/domain"
)

type Users struct {
	coll *mongo.Collection
}

func (s *Users) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, wrapErr("find user", err)
	}
	return &u, nil
}

func (s *Users) SetOnline(ctx context.Context, id string, at time.Time) error {
	return s.setPresence(ctx, id, true, at)
}

func (s *Users) SetOffline(ctx context.Context, id string, at time.Time) error {
	return s.setPresence(ctx, id, false, at)
}

func (s *Users) setPresence(ctx context.Context, id string, online bool, at time.Time) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"isOnline": online, "lastSeen": at}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return wrapErr("set presence", err)
	}
	return nil
}
