package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/domain"
)

type EstimateInput struct {
	RequestID     string
	EstimatedDays int
	Comment       string
	Actor         domain.Actor
}

type EstimateResult struct {
	Request *domain.Request `json:"request"`
}

func (s *RequestService) Estimate(ctx context.Context, in EstimateInput) (res *EstimateResult, err error) {
	defer s.observe("estimate", time.Now(), &err)

	if err = s.authorize(in.Actor, domain.PermEstimateRequest, "only INTERNAL users can estimate requests"); err != nil {
		return nil, err
	}
	if in.EstimatedDays <= 0 {
		return nil, domain.InvalidInput("estimated days must be a positive number")
	}
	comment := strings.TrimSpace(in.Comment)
	if comment == "" {
		return nil, domain.InvalidInput("estimation comment is required")
	}

	req, err := s.load(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if err = req.Estimate(in.EstimatedDays, comment, in.Actor.UserName); err != nil {
		return nil, err
	}
	if err = s.repo.Update(ctx, req); err != nil {
		s.logger.Error("failed to persist estimation", zap.String("request_id", req.ID), zap.Error(err))
		return nil, fmt.Errorf("estimate request: %w", err)
	}

	s.logger.Info("request estimated",
		zap.String("request_id", req.ID),
		zap.Int("days", in.EstimatedDays),
		zap.String("by", in.Actor.UserName))
	s.publish(ctx, req, domain.EventEstimated, in.Actor.UserName, map[string]string{
		"estimated_days": strconv.Itoa(in.EstimatedDays),
	})

	return &EstimateResult{Request: req}, nil
}

type DecisionAction string

const (
	ActionApprove DecisionAction = "approve"
	ActionReject  DecisionAction = "reject"
)

type DecisionInput struct {
	RequestID string
	Action    DecisionAction
	Comment   string
	Actor     domain.Actor
}

type DecisionResult struct {
	Request     *domain.Request `json:"request"`
	JiraUpdated bool            `json:"jiraUpdated"`
}

// Decide одобряет или отклоняет оценённую заявку и переносит решение в трекер.
func (s *RequestService) Decide(ctx context.Context, in DecisionInput) (res *DecisionResult, err error) {
	defer s.observe("decide", time.Now(), &err)

	comment := strings.TrimSpace(in.Comment)
	switch in.Action {
	case ActionApprove:
		err = s.authorize(in.Actor, domain.PermApproveRequest, "only APPROVER users can approve requests")
	case ActionReject:
		err = s.authorize(in.Actor, domain.PermRejectRequest, "only APPROVER users can reject requests")
		if err == nil && comment == "" {
			err = domain.InvalidInput("comment is required when rejecting a request")
		}
	default:
		err = domain.InvalidInput("action must be either approve or reject, got %q", in.Action)
	}
	if err != nil {
		return nil, err
	}

	req, err := s.load(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}

	event, jiraStatus := domain.EventApproved, "Approved"
	if in.Action == ActionApprove {
		err = req.Approve(in.Actor.UserName, comment)
	} else {
		err = req.Reject(in.Actor.UserName, comment)
		event, jiraStatus = domain.EventRejected, "Rejected"
	}
	if err != nil {
		return nil, err
	}

	if err = s.repo.Update(ctx, req); err != nil {
		s.logger.Error("failed to persist decision",
			zap.String("request_id", req.ID),
			zap.String("action", string(in.Action)),
			zap.Error(err))
		return nil, fmt.Errorf("%s request: %w", in.Action, err)
	}

	s.logger.Info("request decided",
		zap.String("request_id", req.ID),
		zap.String("status", string(req.Status)),
		zap.String("by", in.Actor.UserName))
	s.publish(ctx, req, event, in.Actor.UserName, map[string]string{"comment": comment})

	res = &DecisionResult{Request: req}
	if req.HasJiraIssue() {
		res.JiraUpdated = s.syncDecision(ctx, req.JiraIssueKey, jiraStatus, in.Action, in.Actor.UserName, comment)
	}
	return res, nil
}

// syncDecision: статус, затем комментарий. Любой сбой даёт false, но не ошибку.
func (s *RequestService) syncDecision(ctx context.Context, key, status string, action DecisionAction, by, comment string) bool {
	if err := s.tracker.UpdateIssueStatus(ctx, key, status); err != nil {
		s.jiraFailed("update_status", key, err)
		return false
	}
	if comment == "" {
		return true
	}
	text := fmt.Sprintf("Request %sd by %s: %s", action, by, comment)
	if err := s.tracker.AddComment(ctx, key, text); err != nil {
		s.jiraFailed("add_comment", key, err)
		return false
	}
	return true
}

type CancelInput struct {
	RequestID string
	Reason    string
	Actor     domain.Actor
}

type CancelResult struct {
	Request     *domain.Request `json:"request"`
	JiraUpdated bool            `json:"jiraUpdated"`
}

// Cancel доступен любому аутентифицированному пользователю и идемпотентен.
// Фатальна только ошибка записи в хранилище.
// Повторная отмена уже отменённой заявки ничего не пишет и всегда возвращает jiraUpdated=false.
func (s *RequestService) Cancel(ctx context.Context, in CancelInput) (res *CancelResult, err error) {
	defer s.observe("cancel", time.Now(), &err)

	reason := strings.TrimSpace(in.Reason)
	by := in.Actor.UserName

	req, changed, err := s.cancel(ctx, in.RequestID, by, reason)
	if err != nil && domain.IsKind(err, domain.KindConflict) && !errors.Is(err, domain.ErrNotCancelable) {
		// Гонка версий: перечитываем и повторяем один раз. Если заявку уже отменили, это no-op.
		s.logger.Info("cancel raced with another update, retrying", zap.String("request_id", in.RequestID))
		req, changed, err = s.cancel(ctx, in.RequestID, by, reason)
	}
	if err != nil {
		return nil, err
	}

	res = &CancelResult{Request: req}
	if !changed {
		return res, nil
	}

	s.logger.Info("request canceled",
		zap.String("request_id", req.ID),
		zap.String("by", by))
	s.publish(ctx, req, domain.EventCanceled, by, map[string]string{"reason": reason})

	if req.HasJiraIssue() {
		res.JiraUpdated = s.markCanceled(ctx, req.JiraIssueKey, by, reason)
	}
	return res, nil
}

// cancel возвращает changed=false, если заявка уже была отменена.
func (s *RequestService) cancel(ctx context.Context, id, by, reason string) (*domain.Request, bool, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if req.Status == domain.StatusCanceled {
		return req, false, nil
	}

	if err := req.Cancel(by, reason); err != nil {
		if errors.Is(err, domain.ErrNotCancelable) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("cancel request: %w", err)
	}

	if err := s.repo.Update(ctx, req); err != nil {
		s.logger.Error("failed to persist cancellation", zap.String("request_id", req.ID), zap.Error(err))
		return nil, false, fmt.Errorf("cancel request: %w", err)
	}
	return req, true, nil
}

// markCanceled: комментарий и метка независимы, успех любого из них считается обновлением.
func (s *RequestService) markCanceled(ctx context.Context, key, by, reason string) bool {
	reasonText := reason
	if reasonText == "" {
		reasonText = "No reason provided"
	}

	commentOK := true
	text := fmt.Sprintf("Request canceled in RequestFlow. Reason: %s. Canceled by %s.", reasonText, by)
	if err := s.tracker.AddComment(ctx, key, text); err != nil {
		s.jiraFailed("add_comment", key, err)
		commentOK = false
	}

	label := s.cfg.Jira.CanceledLabel
	labelOK, err := s.tracker.AddLabel(ctx, key, label)
	if err != nil {
		s.jiraFailed("add_label", key, err)
		labelOK = false
	}

	return commentOK || labelOK
}
