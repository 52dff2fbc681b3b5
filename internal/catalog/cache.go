package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/botmarket/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache stores template detail documents keyed by slug.
type Cache interface {
	GetTemplate(ctx context.Context, slug string) (*domain.Template, error)
	SetTemplate(ctx context.Context, template *domain.Template) error
	DeleteTemplate(ctx context.Context, slug string) error
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// ConnectRedis opens a client and verifies the connection.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func templateKey(slug string) string {
	return "template:" + slug
}

func (c *RedisCache) GetTemplate(ctx context.Context, slug string) (*domain.Template, error) {
	data, err := c.client.Get(ctx, templateKey(slug)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var template domain.Template
	if err := json.Unmarshal(data, &template); err != nil {
		return nil, fmt.Errorf("decode cached template %s: %w", slug, err)
	}
	return &template, nil
}

func (c *RedisCache) SetTemplate(ctx context.Context, template *domain.Template) error {
	data, err := json.Marshal(template)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, templateKey(template.Slug), data, c.ttl).Err()
}

func (c *RedisCache) DeleteTemplate(ctx context.Context, slug string) error {
	return c.client.Del(ctx, templateKey(slug)).Err()
}
