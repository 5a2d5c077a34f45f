package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// PresenceEntry is the value stored per user in the presence hash.
type PresenceEntry struct {
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

func (r *RedisClient) SetUserOnline(ctx context.Context, userID string, at time.Time) error {
	return r.setPresence(ctx, userID, PresenceEntry{IsOnline: true, LastSeen: at})
}

func (r *RedisClient) SetUserOffline(ctx context.Context, userID string, at time.Time) error {
	return r.setPresence(ctx, userID, PresenceEntry{IsOnline: false, LastSeen: at})
}

func (r *RedisClient) setPresence(ctx context.Context, userID string, entry PresenceEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, presenceKey, userID, entryJSON).Err()
}

func (r *RedisClient) SetUserTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	key := typingKey(conversationID, userID)
	if isTyping {
		return r.client.Set(ctx, key, "true", typingTTL).Err()
	}
	return r.client.Del(ctx, key).Err()
}

func typingKey(conversationID, userID string) string {
	return fmt.Sprintf("conversation:%s:typing:%s", conversationID, userID)
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
