package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/acharya-agent/backend/pkg/logger"
)

const translationPrefix = "translation:"

// Client caches translations. It satisfies translation.Cache.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized",
		zap.String("addr", fmt.Sprintf("%s:%d", host, port)),
		zap.Duration("ttl", ttl),
	)

	return NewFromClient(client, ttl), nil
}

// NewFromClient wraps an existing connection without pinging it.
func NewFromClient(client *redis.Client, ttl time.Duration) *Client {
	return &Client{client: client, ttl: ttl}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func translationKey(key string) string {
	return translationPrefix + key
}

func (c *Client) SetTranslation(ctx context.Context, key, text string) error {
	err := c.client.Set(ctx, translationKey(key), text, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set translation cache: %w", err)
	}

	logger.Debug("Translation cached", zap.String("key", key), zap.Duration("ttl", c.ttl))
	return nil
}

func (c *Client) GetTranslation(ctx context.Context, key string) (string, bool, error) {
	text, err := c.client.Get(ctx, translationKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get translation cache: %w", err)
	}

	logger.Debug("Translation cache hit", zap.String("key", key))
	return text, true, nil
}

// InvalidateTranslations drops every cached translation, for example after
// the glossary changes.
func (c *Client) InvalidateTranslations(ctx context.Context) (int, error) {
	deleted := 0
	iter := c.client.Scan(ctx, 0, translationPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Translation cache invalidated", zap.Int("deleted", deleted))
	return deleted, nil
}
