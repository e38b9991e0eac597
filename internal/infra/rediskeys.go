package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "requestflow"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanRequestEvents: общий канал событий жизненного цикла заявок.
	RedisChanRequestEvents = RedisNamespace + ":requests:events"
)

// RequestEventsChannel: персональный канал одной заявки, на него подписываются UI-клиенты.
func RequestEventsChannel(requestID string) string {
	return fmt.Sprintf("%s:requests:%s:events", RedisNamespace, requestID)
}
