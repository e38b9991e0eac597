package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/domain"
	"github.com/xela07ax/requestflow/internal/infra"
	"github.com/xela07ax/requestflow/internal/metrics"
)

const targetJira = "jira"

type RequestService struct {
	cfg     *infra.Config
	repo    RequestRepository
	tracker IssueTracker
	advisor Advisor
	events  EventPublisher
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewRequestService собирает use-case слой. events может быть nil: тогда переходы никуда не транслируются.
func NewRequestService(
	cfg *infra.Config,
	repo RequestRepository,
	tracker IssueTracker,
	advisor Advisor,
	events EventPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *RequestService {
	if m == nil {
		m = metrics.NewMetrics(nil)
	}
	return &RequestService{
		cfg:     cfg,
		repo:    repo,
		tracker: tracker,
		advisor: advisor,
		events:  events,
		metrics: m,
		logger:  logger.Named("request-service"),
	}
}

// observe вызывается через defer с именованной ошибкой use-case.
func (s *RequestService) observe(name string, started time.Time, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = strings.ToLower(string(domain.KindOf(*err)))
	}
	s.metrics.ObserveUseCase(name, started, outcome)
}

// authorize применяет гейт только при включённом permissions.enforce.
func (s *RequestService) authorize(actor domain.Actor, perm domain.Permission, message string) error {
	if !s.cfg.Permissions.Enforce {
		return nil
	}
	if !actor.Can(perm) {
		return domain.Unauthorized("%s", message)
	}
	return nil
}

// publish: best-effort: ошибка доставки события не влияет на результат use-case.
func (s *RequestService) publish(ctx context.Context, r *domain.Request, typ domain.EventType, actor string, details map[string]string) {
	if s.events == nil {
		return
	}
	e := domain.LifecycleEvent{
		ID:         uuid.NewString(),
		RequestID:  r.ID,
		Type:       typ,
		Status:     r.Status,
		Actor:      actor,
		OccurredAt: time.Now().UTC(),
		Details:    details,
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.metrics.SideEffectFailed("events", string(typ))
		s.logger.Warn("lifecycle event delivery failed",
			zap.String("request_id", r.ID),
			zap.String("type", string(typ)),
			zap.Error(err))
	}
}

func (s *RequestService) load(ctx context.Context, id string) (*domain.Request, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.InvalidInput("request ID is required")
	}
	return s.repo.FindByID(ctx, id)
}

func (s *RequestService) jiraFailed(op, key string, err error) {
	s.metrics.SideEffectFailed(targetJira, op)
	s.logger.Warn("jira side effect failed",
		zap.String("operation", op),
		zap.String("issue_key", key),
		zap.Error(err))
}
