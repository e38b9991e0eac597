// Package jira реализует интеграцию с Jira Cloud REST API v3.
package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/connectors"
	"github.com/xela07ax/requestflow/internal/domain"
	"github.com/xela07ax/requestflow/internal/infra"
)

const statusPendingApproval = "Pending Approval"

// Метки, которые ставятся на каждую новую задачу
var createLabels = []string{"client-request", "pending-approval"}

// Tracker: набор операций, который нужен use-case слою.
type Tracker interface {
	CreateIssue(ctx context.Context, in domain.IssueInput) (*domain.Issue, error)
	UpdateIssueStatus(ctx context.Context, key, status string) error
	AddComment(ctx context.Context, key, text string) error
	AddLabel(ctx context.Context, key, label string) (bool, error)
	GetIssue(ctx context.Context, key string) (*domain.Issue, error)
}

// NewTracker возвращает настоящий клиент или mock, если реквизиты не заданы.
func NewTracker(cfg infra.JiraConfig, guard *connectors.Guard, logger *zap.Logger) Tracker {
	if !cfg.Configured() {
		logger.Warn("jira is not configured, using mock tracker")
		return NewMock(cfg.ProjectKey, logger)
	}
	return NewClient(cfg, guard, logger)
}

// Client provides HTTP access to a Jira instance.
type Client struct {
	baseURL    string
	projectKey string
	authHeader string
	httpClient *http.Client
	guard      *connectors.Guard
	logger     *zap.Logger
}

func NewClient(cfg infra.JiraConfig, guard *connectors.Guard, logger *zap.Logger) *Client {
	credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.APIToken))
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		projectKey: cfg.ProjectKey,
		authHeader: "Basic " + credentials,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		guard:      guard,
		logger:     logger.Named("jira"),
	}
}

func (c *Client) browseURL(key string) string {
	return fmt.Sprintf("%s/browse/%s", c.baseURL, key)
}

// CreateIssue заводит задачу типа Task с описанием в формате ADF.
func (c *Client) CreateIssue(ctx context.Context, in domain.IssueInput) (*domain.Issue, error) {
	payload := map[string]any{
		"fields": map[string]any{
			"project":     map[string]string{"key": c.projectKey},
			"summary":     in.Summary,
			"description": paragraphsToADF(in.Description, "Client: "+in.ClientName, "Request ID: "+in.RequestID),
			"issuetype":   map[string]string{"name": "Task"},
			"labels":      createLabels,
		},
	}

	var created struct {
		ID   string `json:"id"`
		Key  string `json:"key"`
		Self string `json:"self"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/issue", payload, &created); err != nil {
		return nil, err
	}
	if created.Key == "" {
		return nil, domain.ExternalService("JIRA", errors.New("create response has no issue key"))
	}

	c.logger.Info("jira issue created", zap.String("key", created.Key), zap.String("request_id", in.RequestID))
	return &domain.Issue{Key: created.Key, URL: c.browseURL(created.Key), Status: statusPendingApproval}, nil
}

type transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UpdateIssueStatus переводит задачу по переходу с совпадающим (без учёта регистра) именем.
func (c *Client) UpdateIssueStatus(ctx context.Context, key, status string) error {
	var resp struct {
		Transitions []transition `json:"transitions"`
	}
	path := "/issue/" + url.PathEscape(key) + "/transitions"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}

	idx := slices.IndexFunc(resp.Transitions, func(t transition) bool {
		return strings.EqualFold(t.Name, status)
	})
	if idx < 0 {
		c.logger.Warn("no jira transition found for status", zap.String("key", key), zap.String("status", status))
		return nil
	}

	body := map[string]any{"transition": map[string]string{"id": resp.Transitions[idx].ID}}
	return c.doRequest(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) AddComment(ctx context.Context, key, text string) error {
	body := map[string]any{"body": paragraphsToADF(text)}
	return c.doRequest(ctx, http.MethodPost, "/issue/"+url.PathEscape(key)+"/comment", body, nil)
}

// GetIssue возвращает nil, если задача не найдена.
func (c *Client) GetIssue(ctx context.Context, key string) (*domain.Issue, error) {
	var resp struct {
		Key    string `json:"key"`
		Fields struct {
			Status struct {
				Name string `json:"name"`
			} `json:"status"`
		} `json:"fields"`
	}
	err := c.doRequest(ctx, http.MethodGet, "/issue/"+url.PathEscape(key)+"?fields=status", nil, &resp)
	if err != nil {
		var sErr *connectors.StatusError
		if errors.As(err, &sErr) && sErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &domain.Issue{Key: resp.Key, URL: c.browseURL(resp.Key), Status: resp.Fields.Status.Name}, nil
}

func (c *Client) GetIssueLabels(ctx context.Context, key string) ([]string, error) {
	var resp struct {
		Fields struct {
			Labels []string `json:"labels"`
		} `json:"fields"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/issue/"+url.PathEscape(key)+"?fields=labels", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Fields.Labels, nil
}

// AddLabel добавляет метку, не затирая существующие. Если метка уже есть, true без записи.
func (c *Client) AddLabel(ctx context.Context, key, label string) (bool, error) {
	current, err := c.GetIssueLabels(ctx, key)
	if err != nil {
		// без текущего списка PUT затёр бы чужие метки
		return false, fmt.Errorf("read labels of %s: %w", key, err)
	}
	if slices.Contains(current, label) {
		c.logger.Debug("jira label already present", zap.String("key", key), zap.String("label", label))
		return true, nil
	}

	body := map[string]any{"fields": map[string]any{"labels": append(current, label)}}
	if err := c.doRequest(ctx, http.MethodPut, "/issue/"+url.PathEscape(key), body, nil); err != nil {
		return false, err
	}
	c.logger.Info("jira label added", zap.String("key", key), zap.String("label", label))
	return true, nil
}

// doRequest выполняет запрос под Guard и декодирует ответ в out (если out != nil).
// POST создаёт задачи, комментарии и переходы, поэтому уходит ровно один раз.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal jira request: %w", err)
		}
	}

	apiURL := c.baseURL + "/rest/api/3" + path
	run := c.guard.Do
	if method == http.MethodPost {
		run = c.guard.DoOnce
	}

	var respBody []byte
	err := run(ctx, func(ctx context.Context) error {
		var callErr error
		respBody, callErr = c.send(ctx, method, apiURL, data)
		return callErr
	})
	if err != nil {
		return domain.ExternalService("JIRA", err)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return domain.ExternalService("JIRA", fmt.Errorf("parse response: %w", err))
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, apiURL string, data []byte) ([]byte, error) {
	var bodyReader io.Reader
	if data != nil {
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "requestflow/1.0")
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &connectors.ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      &connectors.StatusError{Code: resp.StatusCode, Body: string(respBody)},
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &connectors.StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func parseRetryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}

// paragraphsToADF собирает документ Atlassian Document Format, по абзацу на строку.
func paragraphsToADF(paragraphs ...string) map[string]any {
	content := make([]any, 0, len(paragraphs))
	for _, p := range paragraphs {
		content = append(content, map[string]any{
			"type": "paragraph",
			"content": []any{
				map[string]any{"type": "text", "text": p},
			},
		})
	}
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": content,
	}
}
