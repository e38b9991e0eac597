// Package advisory даёт предварительную оценку заявки: сложность, срок, задачи и риски.
package advisory

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/domain"
)

var (
	highComplexityKeywords = []string{
		"integration", "migration", "architecture", "security", "performance", "scalability",
		"real-time", "distributed", "microservices", "machine learning", "ai", "blockchain",
	}
	mediumComplexityKeywords = []string{
		"api", "database", "authentication", "reporting", "dashboard", "automation", "workflow", "notification",
	}

	baseTasks = []string{
		"Requirements analysis and clarification",
		"Technical design document",
		"Development and implementation",
		"Unit testing",
		"Integration testing",
		"Documentation update",
		"Code review",
		"Deployment preparation",
	}
	extraTasks = map[domain.Complexity][]string{
		domain.ComplexityMedium: {
			"Database schema design",
			"API endpoint development",
			"User acceptance testing",
		},
		domain.ComplexityHigh: {
			"Architecture review",
			"Security assessment",
			"Performance testing",
			"Load testing",
			"Disaster recovery planning",
			"Team knowledge transfer",
		},
	}
	baseDays = map[domain.Complexity]int{
		domain.ComplexityLow:    3,
		domain.ComplexityMedium: 8,
		domain.ComplexityHigh:   20,
	}
)

// Heuristic: советник на ключевых словах, без внешних вызовов.
type Heuristic struct {
	delay  time.Duration
	logger *zap.Logger
}

func NewHeuristic(delay time.Duration, logger *zap.Logger) *Heuristic {
	return &Heuristic{delay: delay, logger: logger.Named("advisory")}
}

func (h *Heuristic) IsAvailable(context.Context) bool { return true }

func (h *Heuristic) Analyze(ctx context.Context, in domain.AnalysisInput) (*domain.Suggestion, error) {
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	complexity := Complexity(in.Description)
	s := &domain.Suggestion{
		SuggestedTasks: Tasks(complexity),
		Complexity:     complexity,
		EstimatedDays:  EstimateDays(complexity, in.Description),
		Risks:          Risks(in.Description, complexity),
	}
	h.logger.Debug("request analyzed",
		zap.String("complexity", string(complexity)),
		zap.Int("estimated_days", s.EstimatedDays))
	return s, nil
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(text, k) {
			n++
		}
	}
	return n
}

func Complexity(description string) domain.Complexity {
	lower := strings.ToLower(description)
	high := countMatches(lower, highComplexityKeywords)
	medium := countMatches(lower, mediumComplexityKeywords)

	switch {
	case high >= 2 || (high >= 1 && len(description) > 500):
		return domain.ComplexityHigh
	case medium >= 2 || (medium >= 1 && len(description) > 200):
		return domain.ComplexityMedium
	default:
		return domain.ComplexityLow
	}
}

// EstimateDays: чем подробнее описание, тем больше работы.
func EstimateDays(c domain.Complexity, description string) int {
	days := baseDays[c]
	if len(description) > 300 {
		days += 2
	}
	if len(description) > 600 {
		days += 3
	}
	return days
}

func Tasks(c domain.Complexity) []string {
	tasks := make([]string, 0, len(baseTasks)+len(extraTasks[c]))
	tasks = append(tasks, baseTasks...)
	return append(tasks, extraTasks[c]...)
}

func Risks(description string, c domain.Complexity) []string {
	lower := strings.ToLower(description)
	var risks []string

	if strings.Contains(lower, "integration") {
		risks = append(risks, "Third-party integration dependencies may cause delays")
	}
	if strings.Contains(lower, "migration") {
		risks = append(risks, "Data migration may require extended downtime")
	}
	if strings.Contains(lower, "security") {
		risks = append(risks, "Security requirements may need compliance review")
	}
	if strings.Contains(lower, "deadline") || strings.Contains(lower, "urgent") {
		risks = append(risks, "Tight timeline may impact quality")
	}

	switch c {
	case domain.ComplexityHigh:
		risks = append(risks,
			"Complex requirements may evolve during development",
			"Resource availability may be a constraint")
	case domain.ComplexityMedium:
		risks = append(risks, "Scope creep potential - clear boundaries needed")
	}

	if len(risks) == 0 {
		risks = append(risks,
			"Standard project risks apply",
			"Timeline estimates subject to requirements changes")
	}
	return risks
}
