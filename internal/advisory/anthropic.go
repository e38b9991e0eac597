package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/template"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/connectors"
	"github.com/xela07ax/requestflow/internal/domain"
	"github.com/xela07ax/requestflow/internal/infra"
)

var errAPIKeyRequired = errors.New("anthropic API key required")

const analysisPromptTemplate = `You are helping a delivery team triage an incoming client work request.

**Title:** {{.Title}}
**Client:** {{.ClientName}}

**Description:**
{{.Description}}

Respond with a single JSON object and nothing else, using exactly these fields:
{"suggested_tasks": [string], "complexity": "low" | "medium" | "high", "estimated_days": integer, "risks": [string]}`

// Anthropic спрашивает модель Claude. При сбое отдаёт результат fallback-советника, если он задан.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	prompt    *template.Template
	guard     *connectors.Guard
	fallback  *Heuristic
	logger    *zap.Logger
}

func NewAnthropic(cfg infra.AdvisoryConfig, guard *connectors.Guard, fallback *Heuristic, logger *zap.Logger, opts ...option.RequestOption) (*Anthropic, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("%w: set ADVISORY_ANTHROPIC_API_KEY", errAPIKeyRequired)
	}

	tmpl, err := template.New("analysis").Parse(analysisPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}

	// повторы делает Guard
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.AnthropicAPIKey), option.WithMaxRetries(0)}, opts...)

	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
		prompt:    tmpl,
		guard:     guard,
		fallback:  fallback,
		logger:    logger.Named("advisory-anthropic"),
	}, nil
}

func (a *Anthropic) IsAvailable(context.Context) bool { return true }

func (a *Anthropic) Analyze(ctx context.Context, in domain.AnalysisInput) (*domain.Suggestion, error) {
	s, err := a.ask(ctx, in)
	if err == nil {
		return s, nil
	}
	if a.fallback == nil {
		return nil, err
	}
	a.logger.Warn("model analysis failed, using heuristic", zap.Error(err))
	return a.fallback.Analyze(ctx, in)
}

func (a *Anthropic) ask(ctx context.Context, in domain.AnalysisInput) (*domain.Suggestion, error) {
	var buf bytes.Buffer
	if err := a.prompt.Execute(&buf, in); err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buf.String())),
		},
	}

	var text string
	err := a.guard.Do(ctx, func(ctx context.Context) error {
		message, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return classify(err)
		}
		if len(message.Content) == 0 || message.Content[0].Type != "text" {
			return &connectors.StatusError{Code: http.StatusUnprocessableEntity, Body: "unexpected response format"}
		}
		text = message.Content[0].Text
		return nil
	})
	if err != nil {
		return nil, domain.ExternalService("ANTHROPIC", err)
	}

	return parseSuggestion(text)
}

// classify переводит ошибку API в термины Guard: 4xx кроме 429 не повторяем.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return err
		}
		return &connectors.StatusError{Code: apiErr.StatusCode, Body: err.Error()}
	}
	return err
}

func parseSuggestion(text string) (*domain.Suggestion, error) {
	text = strings.TrimSpace(text)
	// модель иногда оборачивает JSON в markdown-блок
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	var s domain.Suggestion
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("parse model suggestion: %w", err)
	}
	switch s.Complexity {
	case domain.ComplexityLow, domain.ComplexityMedium, domain.ComplexityHigh:
	default:
		return nil, fmt.Errorf("model returned unknown complexity %q", s.Complexity)
	}
	if s.EstimatedDays <= 0 {
		return nil, fmt.Errorf("model returned non-positive estimate %d", s.EstimatedDays)
	}
	return &s, nil
}
