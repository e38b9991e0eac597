package audit

/*
Файл journal.go реализует журнал переходов заявок.

- Log не блокирует вызывающего: событие кладётся в буферизованный канал,
  при переполнении сбрасывается с Error-логом (load shedding).
- Воркер копит пачку и пишет её одним запросом по размеру пачки или по тикеру.
- Stop закрывает вход и ждёт, пока воркер вычитает остаток и сделает финальный flush.
*/

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/domain"
	"github.com/xela07ax/requestflow/internal/infra"
	"github.com/xela07ax/requestflow/internal/metrics"
)

// Storage определяет, куда физически сохраняются события.
type Storage interface {
	WriteBatch(ctx context.Context, events []domain.LifecycleEvent) error
}

type Journal struct {
	ch            chan domain.LifecycleEvent
	repo          Storage
	batchSize     int
	flushInterval time.Duration
	metrics       *metrics.Metrics
	logger        *zap.Logger
	wg            sync.WaitGroup

	mu     sync.RWMutex // защищает closed и закрытие ch
	closed bool
}

func NewJournal(cfg infra.AuditConfig, repo Storage, m *metrics.Metrics, logger *zap.Logger) *Journal {
	if m == nil {
		m = metrics.NewMetrics(nil)
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	return &Journal{
		ch:            make(chan domain.LifecycleEvent, bufferSize),
		repo:          repo,
		batchSize:     batchSize,
		flushInterval: interval,
		metrics:       m,
		logger:        logger.With(zap.String("mod", "journal")),
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop запирает вход и ждёт финальный flush. Повторный вызов безопасен.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	j.logger.Info("stopping journal: flushing buffer...")
	j.wg.Wait()
	j.logger.Info("journal stopped gracefully")
}

func (j *Journal) Log(e domain.LifecycleEvent) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		j.metrics.AuditDropped.Inc()
		j.logger.Warn("event dropped: journal is stopping", zap.String("id", e.ID))
		return
	}

	select {
	case j.ch <- e:
		j.metrics.AuditBufferFill.Set(float64(len(j.ch)))
	default:
		j.metrics.AuditDropped.Inc()
		j.logger.Error("journal_buffer_overflow",
			zap.String("request_id", e.RequestID),
			zap.String("type", string(e.Type)))
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]domain.LifecycleEvent, 0, j.batchSize)
	ticker := time.NewTicker(j.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: контекст сервиса к этому моменту может быть уже закрыт
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
		j.metrics.AuditBufferFill.Set(float64(len(j.ch)))
	}

	for {
		select {
		case e, ok := <-j.ch:
			if !ok {
				flush() // Финальный сброс
				j.logger.Info("journal worker finished")
				return
			}
			batch = append(batch, e)
			if len(batch) >= j.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
