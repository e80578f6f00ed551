package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"routeguard/internal/model"
)

// Redis shares plan results across API replicas. Failures degrade to a
// miss; the plan is recomputed rather than the request failing.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedis(redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client, ttl: ttl, prefix: "routeguard:plan:"}, nil
}

func (c *Redis) Close() error { return c.client.Close() }

func (c *Redis) Get(ctx context.Context, key string) (*model.RouteAssignmentResult, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("plan cache get: %v", err)
		return nil, false
	}
	var res model.RouteAssignmentResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false
	}
	return &res, true
}

func (c *Redis) Set(ctx context.Context, key string, res model.RouteAssignmentResult) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		log.Printf("plan cache set: %v", err)
	}
}
