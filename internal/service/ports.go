// Package service содержит use-case слой: проверка прав, переходы заявки,
// сохранение и best-effort уведомления внешних систем.
package service

import (
	"context"

	"github.com/xela07ax/requestflow/internal/domain"
)

// RequestRepository описывает требования к хранилищу заявок.
// FindByID возвращает ошибку вида NotFound, если заявки нет.
type RequestRepository interface {
	Save(ctx context.Context, r *domain.Request) error
	Update(ctx context.Context, r *domain.Request) error
	FindByID(ctx context.Context, id string) (*domain.Request, error)
	FindAll(ctx context.Context, includeCanceled bool) ([]*domain.Request, error)
	FindByClientID(ctx context.Context, clientID string, includeCanceled bool) ([]*domain.Request, error)
	Delete(ctx context.Context, id string) error
}

// IssueTracker: внешний трекер задач. Все вызовы best-effort.
type IssueTracker interface {
	CreateIssue(ctx context.Context, in domain.IssueInput) (*domain.Issue, error)
	UpdateIssueStatus(ctx context.Context, key, status string) error
	AddComment(ctx context.Context, key, text string) error
	AddLabel(ctx context.Context, key, label string) (bool, error)
	GetIssue(ctx context.Context, key string) (*domain.Issue, error)
}

type Advisor interface {
	IsAvailable(ctx context.Context) bool
	Analyze(ctx context.Context, in domain.AnalysisInput) (*domain.Suggestion, error)
}

// EventPublisher транслирует уже сохранённые переходы подписчикам (журнал аудита).
type EventPublisher interface {
	Publish(ctx context.Context, e domain.LifecycleEvent) error
}
