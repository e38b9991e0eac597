package domain

import "time"

type EventType string

const (
	EventCreated   EventType = "request.created"
	EventEstimated EventType = "request.estimated"
	EventApproved  EventType = "request.approved"
	EventRejected  EventType = "request.rejected"
	EventCanceled  EventType = "request.canceled"
)

// LifecycleEvent фиксирует сохранённый переход заявки.
type LifecycleEvent struct {
	ID         string            `json:"id"`
	RequestID  string            `json:"request_id"`
	Type       EventType         `json:"type"`
	Status     RequestStatus     `json:"status"`
	Actor      string            `json:"actor"`
	OccurredAt time.Time         `json:"occurred_at"`
	Details    map[string]string `json:"details,omitempty"`
}
