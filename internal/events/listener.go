package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/domain"
)

const (
	subscribeRetryDelay = 5 * time.Second
	reconnectDelay      = time.Second
)

// ListenResilient: "живучая" подписка на канал событий: переподключается, пока жив ctx.
// Битые сообщения логируются и пропускаются.
func ListenResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onEvent func(domain.LifecycleEvent),
) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			if !sleep(ctx, subscribeRetryDelay) {
				return
			}
			continue
		}
		logger.Info("subscribed to lifecycle events", zap.String("chan", channel))

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				e, err := Decode(msg.Payload)
				if err != nil {
					logger.Error("invalid event payload", zap.String("payload", msg.Payload), zap.Error(err))
					continue
				}
				onEvent(e)
			}
		}

		_ = pubsub.Close()
		if !sleep(ctx, reconnectDelay) {
			return
		}
	}
}

// Decode разбирает и проверяет событие из канала.
func Decode(payload string) (domain.LifecycleEvent, error) {
	var e domain.LifecycleEvent
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return e, fmt.Errorf("events: decode: %w", err)
	}
	if e.ID == "" || e.RequestID == "" || e.Type == "" {
		return e, fmt.Errorf("events: incomplete event %q", payload)
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return e, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
