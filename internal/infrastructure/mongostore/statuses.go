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

type Statuses struct {
	coll *mongo.Collection
}

func (s *Statuses) Create(ctx context.Context, status *domain.Status) error {
	if status.Viewers == nil {
		status.Viewers = []string{}
	}
	if _, err := s.coll.InsertOne(ctx, status); err != nil {
		return wrapErr("insert status", err)
	}
	return nil
}

func (s *Statuses) FindByID(ctx context.Context, id string) (*domain.Status, error) {
	var st domain.Status
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&st); err != nil {
		return nil, wrapErr("find status", err)
	}
	return &st, nil
}

// AddViewer pushes viewerID only when it is absent, in one conditional update.
func (s *Statuses) AddViewer(ctx context.Context, id, viewerID string) (*domain.Status, bool, error) {
	var st domain.Status
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "viewers": bson.M{"$ne": viewerID}},
		bson.M{
			"$push": bson.M{"viewers": viewerID},
			"$set":  bson.M{"updatedAt": time.Now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&st)
	if err == nil {
		return &st, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, wrapErr("add status viewer", err)
	}

	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Statuses) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return wrapErr("delete status", err)
	}
	if res.DeletedCount == 0 {
		return wrapErr("delete status", mongo.ErrNoDocuments)
	}
	return nil
}

func (s *Statuses) FindActive(ctx context.Context, now time.Time) ([]domain.Status, error) {
	cur, err := s.coll.Find(ctx,
		bson.M{"expiresAt": bson.M{"$gt": now}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		return nil, wrapErr("find active statuses", err)
	}
	out := []domain.Status{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrapErr("decode active statuses", err)
	}
	return out, nil
}
