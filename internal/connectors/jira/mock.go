package jira

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/domain"
)

// Mock используется, когда Jira не настроена: задачи "создаются" локально, остальное только логируется.
type Mock struct {
	projectKey string
	logger     *zap.Logger
}

func NewMock(projectKey string, logger *zap.Logger) *Mock {
	return &Mock{projectKey: projectKey, logger: logger.Named("jira-mock")}
}

func (m *Mock) CreateIssue(_ context.Context, in domain.IssueInput) (*domain.Issue, error) {
	key := fmt.Sprintf("%s-MOCK-%d", m.projectKey, time.Now().UnixMilli())
	m.logger.Info("mock issue created", zap.String("key", key), zap.String("request_id", in.RequestID))
	return &domain.Issue{
		Key:    key,
		URL:    "https://jira.example.com/browse/" + key,
		Status: statusPendingApproval,
	}, nil
}

func (m *Mock) UpdateIssueStatus(_ context.Context, key, status string) error {
	m.logger.Info("would update issue status", zap.String("key", key), zap.String("status", status))
	return nil
}

func (m *Mock) AddComment(_ context.Context, key, text string) error {
	m.logger.Info("would add comment", zap.String("key", key), zap.String("comment", text))
	return nil
}

func (m *Mock) AddLabel(_ context.Context, key, label string) (bool, error) {
	m.logger.Info("would add label", zap.String("key", key), zap.String("label", label))
	return true, nil
}

func (m *Mock) GetIssue(context.Context, string) (*domain.Issue, error) {
	return nil, nil
}
