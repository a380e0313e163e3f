package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"distledger/internal/domain"
)

type RedisSummaryCache struct {
	client *redis.Client
}

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisSummaryCache(client *redis.Client) *RedisSummaryCache {
	return &RedisSummaryCache{client: client}
}

func (c *RedisSummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSummaryCache) Close() error {
	return c.client.Close()
}

func summaryKey(groupID string) string {
	return "distledger:due:" + groupID
}

func (c *RedisSummaryCache) Get(ctx context.Context, groupID string) (*domain.GroupDue, bool, error) {
	val, err := c.client.Get(ctx, summaryKey(groupID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var due domain.GroupDue
	if err := json.Unmarshal([]byte(val), &due); err != nil {
		return nil, false, err
	}
	return &due, true, nil
}

func (c *RedisSummaryCache) Set(ctx context.Context, groupID string, value *domain.GroupDue, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey(groupID), payload, ttl).Err()
}

func (c *RedisSummaryCache) Delete(ctx context.Context, groupID string) error {
	return c.client.Del(ctx, summaryKey(groupID)).Err()
}
