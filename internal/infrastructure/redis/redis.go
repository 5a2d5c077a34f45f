package redis

import (
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	presenceKey = "presence:users"
	typingTTL   = 30 * time.Second
)

// RedisClient mirrors presence and typing state so services outside this
// process can read it without talking to the gateway.
type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(host, port, password string) *RedisClient {
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	return &RedisClient{client: client}
}
