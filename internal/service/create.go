package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/domain"
)

type CreateInput struct {
	Title       string
	Description string
	ClientID    string
	ClientName  string
}

type CreateResult struct {
	Request      *domain.Request    `json:"request"`
	JiraIssue    *domain.Issue      `json:"jiraIssue,omitempty"`
	AISuggestion *domain.Suggestion `json:"aiSuggestion,omitempty"`
}

// Create регистрирует новую заявку. Задача в трекере и оценка советника необязательны:
// их сбой только логируется, а заявка сохраняется без них.
func (s *RequestService) Create(ctx context.Context, in CreateInput) (res *CreateResult, err error) {
	defer s.observe("create", time.Now(), &err)

	req, err := domain.NewRequest(domain.NewRequestInput{
		Title:       in.Title,
		Description: in.Description,
		ClientID:    in.ClientID,
		ClientName:  in.ClientName,
	})
	if err != nil {
		return nil, err
	}

	res = &CreateResult{}

	// 1. Задача в трекере
	issue, err := s.tracker.CreateIssue(ctx, domain.IssueInput{
		Summary:     req.Title,
		Description: req.Description,
		ClientName:  req.ClientName,
		RequestID:   req.ID,
	})
	switch {
	case err != nil:
		s.jiraFailed("create_issue", "", err)
	case issue != nil:
		req.SetJiraIssue(issue.Key, issue.URL)
		res.JiraIssue = issue
	}

	// 2. Предварительная оценка
	res.AISuggestion = s.analyze(ctx, req)

	// 3. Persistence Layer: единственный обязательный шаг
	if err = s.repo.Save(ctx, req); err != nil {
		s.logger.Error("failed to persist new request",
			zap.String("request_id", req.ID),
			zap.Error(err))
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.logger.Info("request created",
		zap.String("request_id", req.ID),
		zap.String("client_id", req.ClientID),
		zap.String("jira_issue", req.JiraIssueKey))
	s.publish(ctx, req, domain.EventCreated, req.ClientID, nil)

	res.Request = req
	return res, nil
}

func (s *RequestService) analyze(ctx context.Context, req *domain.Request) *domain.Suggestion {
	if s.advisor == nil || !s.advisor.IsAvailable(ctx) {
		return nil
	}
	suggestion, err := s.advisor.Analyze(ctx, domain.AnalysisInput{
		Title:       req.Title,
		Description: req.Description,
		ClientName:  req.ClientName,
	})
	if err != nil {
		s.metrics.SideEffectFailed("advisory", "analyze")
		s.logger.Warn("advisory analysis failed", zap.String("request_id", req.ID), zap.Error(err))
		return nil
	}
	return suggestion
}
