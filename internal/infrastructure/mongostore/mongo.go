// Package mongostore persists users, messages, conversations and statuses in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wachat-ws/internal/domain"
)

const (
	usersCollection         = "users"
	messagesCollection      = "messages"
	conversationsCollection = "conversations"
	statusesCollection      = "status"
)

type Client struct {
	client *mongo.Client
	db     *mongo.Database
	log    zerolog.Logger
}

// Connect dials uri, checks the primary answers and makes sure the indexes exist.
func Connect(ctx context.Context, uri, database string, log zerolog.Logger) (*Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	c := &Client{
		client: client,
		db:     client.Database(database),
		log:    log.With().Str("component", "mongo").Logger(),
	}
	if err := c.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	c.log.Info().Str("database", database).Msg("connected to mongo")
	return c, nil
}

func (c *Client) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		conversationsCollection: {
			{Keys: bson.D{{Key: "pairKey", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "participants", Value: 1}}},
		},
		messagesCollection: {
			{Keys: bson.D{{Key: "conversation", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "messageStatus", Value: 1}}},
		},
		statusesCollection: {
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := c.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

func (c *Client) Users() *Users {
	return &Users{coll: c.db.Collection(usersCollection)}
}

func (c *Client) Messages() *Messages {
	return &Messages{coll: c.db.Collection(messagesCollection)}
}

func (c *Client) Conversations() *Conversations {
	return &Conversations{coll: c.db.Collection(conversationsCollection)}
}

func (c *Client) Statuses() *Statuses {
	return &Statuses{coll: c.db.Collection(statusesCollection)}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// wrapErr maps driver errors onto the domain taxonomy.
func wrapErr(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: duplicate key: %w", op, domain.ErrInvalidInput)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrTransientIO, op, err)
}
