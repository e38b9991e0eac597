package connectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/requestflow/internal/metrics"
)

type GuardSettings struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration // через сколько CB попробует "закрыться"
	Attempts    uint
	CallTimeout time.Duration
	MaxDelay    time.Duration // потолок паузы между попытками, включая Retry-After
	RPS         float64
	Burst       int
}

const defaultMaxDelay = 5 * time.Second

// Guard оборачивает вызовы внешней системы: лимитер, предохранитель, повторы.
type Guard struct {
	name        string
	cb          *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	attempts    uint
	callTimeout time.Duration
	maxDelay    time.Duration
}

func NewGuard(s GuardSettings, m *metrics.Metrics, logger *zap.Logger) *Guard {
	log := logger.With(zap.String("mod", "guard"), zap.String("name", s.Name))

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд, открываемся
			return counts.ConsecutiveFailures > 5
		},
		// Отказы по вине клиента (4xx) не должны размыкать цепь
		IsSuccessful: func(err error) bool {
			return err == nil || !Retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})

	limit := rate.Inf
	if s.RPS > 0 {
		limit = rate.Limit(s.RPS)
	}
	burst := s.Burst
	if burst <= 0 {
		burst = 1
	}
	attempts := s.Attempts
	if attempts == 0 {
		attempts = 1
	}
	maxDelay := s.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	return &Guard{
		name:        s.Name,
		cb:          cb,
		limiter:     rate.NewLimiter(limit, burst),
		attempts:    attempts,
		callTimeout: s.CallTimeout,
		maxDelay:    maxDelay,
	}
}

// Do выполняет fn под защитой с повторами. Только для идемпотентных вызовов.
// Каждая попытка получает свой таймаут.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return g.run(ctx, g.attempts, fn)
}

// DoOnce: лимитер, предохранитель и таймаут без повторов. Для вызовов, которые что-то создают:
// ответ мог потеряться после того, как внешняя система уже применила запрос.
func (g *Guard) DoOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	return g.run(ctx, 1, fn)
}

func (g *Guard) run(ctx context.Context, attempts uint, fn func(ctx context.Context) error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit exceeded: %w", g.name, err)
	}

	_, err := g.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(attempts),
			retry.MaxDelay(g.maxDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(Retryable),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Retry-After соблюдаем, но не дольше maxDelay
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return min(tErr.RetryAfter, g.maxDelay)
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		return nil, r.Do(func() error {
			callCtx := ctx
			if g.callTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, g.callTimeout)
				defer cancel()
			}
			return fn(callCtx)
		})
	})
	return err
}
