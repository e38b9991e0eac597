package advisory

import (
	"context"

	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/connectors"
	"github.com/xela07ax/requestflow/internal/domain"
	"github.com/xela07ax/requestflow/internal/infra"
)

// Advisor: контракт, который потребляет use-case создания заявки.
type Advisor interface {
	IsAvailable(ctx context.Context) bool
	Analyze(ctx context.Context, in domain.AnalysisInput) (*domain.Suggestion, error)
}

// Disabled никогда не доступен: use-case просто пропускает анализ.
type Disabled struct{}

func (Disabled) IsAvailable(context.Context) bool { return false }

func (Disabled) Analyze(context.Context, domain.AnalysisInput) (*domain.Suggestion, error) {
	return nil, nil
}

// New выбирает реализацию по advisory.provider.
func New(cfg infra.AdvisoryConfig, guard *connectors.Guard, logger *zap.Logger) (Advisor, error) {
	switch cfg.Provider {
	case infra.AdvisoryNone:
		return Disabled{}, nil
	case infra.AdvisoryAnthropic:
		return NewAnthropic(cfg, guard, NewHeuristic(0, logger), logger)
	default:
		return NewHeuristic(cfg.MockDelay, logger), nil
	}
}
