// Package events транслирует переходы заявок через Redis Pub/Sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/requestflow/internal/domain"
	"github.com/xela07ax/requestflow/internal/infra"
)

type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Publish шлёт событие в общий канал и в канал заявки одним pipeline.
func (p *RedisPublisher) Publish(ctx context.Context, e domain.LifecycleEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}

	pipe := p.rdb.Pipeline()
	pipe.Publish(ctx, infra.RedisChanRequestEvents, payload)
	pipe.Publish(ctx, infra.RequestEventsChannel(e.RequestID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("events: publish %s: %w", e.Type, err)
	}
	return nil
}
