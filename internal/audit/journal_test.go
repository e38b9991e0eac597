package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/domain"
	"github.com/xela07ax/requestflow/internal/infra"
	"github.com/xela07ax/requestflow/internal/metrics"
)

type memStorage struct {
	mu      sync.Mutex
	batches [][]domain.LifecycleEvent
	err     error
}

func (s *memStorage) WriteBatch(_ context.Context, events []domain.LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]domain.LifecycleEvent, len(events))
	copy(cp, events)
	s.batches = append(s.batches, cp)
	return s.err
}

func (s *memStorage) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func event(id string) domain.LifecycleEvent {
	return domain.LifecycleEvent{ID: id, RequestID: "r-1", Type: domain.EventCreated, Status: domain.StatusNew}
}

func TestJournalFlushesOnBatchSize(t *testing.T) {
	store := &memStorage{}
	j := NewJournal(infra.AuditConfig{BatchSize: 2, FlushInterval: time.Hour}, store, nil, zap.NewNop())
	j.Start()
	defer j.Stop()

	j.Log(event("e-1"))
	j.Log(event("e-2"))

	require.Eventually(t, func() bool { return store.total() == 2 }, time.Second, 10*time.Millisecond)
}

func TestJournalFlushesOnTicker(t *testing.T) {
	store := &memStorage{}
	j := NewJournal(infra.AuditConfig{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, store, nil, zap.NewNop())
	j.Start()
	defer j.Stop()

	j.Log(event("e-1"))

	require.Eventually(t, func() bool { return store.total() == 1 }, time.Second, 10*time.Millisecond)
}

func TestJournalDrainsOnStop(t *testing.T) {
	store := &memStorage{}
	j := NewJournal(infra.AuditConfig{BatchSize: 100, FlushInterval: time.Hour}, store, nil, zap.NewNop())
	j.Start()

	for _, id := range []string{"e-1", "e-2", "e-3"} {
		j.Log(event(id))
	}
	j.Stop()

	require.Equal(t, 3, store.total())
	require.NotPanics(t, j.Stop)
}

func TestJournalDropsAfterStopAndOnOverflow(t *testing.T) {
	m := metrics.NewMetrics(nil)
	store := &memStorage{}

	// воркер не запущен: буфер на одно событие
	j := NewJournal(infra.AuditConfig{BufferSize: 1}, store, m, zap.NewNop())
	j.Log(event("e-1"))
	j.Log(event("e-2"))
	require.InDelta(t, 1, testutil.ToFloat64(m.AuditDropped), 0)

	j.Start()
	j.Stop()
	j.Log(event("e-3"))
	require.InDelta(t, 2, testutil.ToFloat64(m.AuditDropped), 0)
	require.Equal(t, 1, store.total())
}

func TestJournalSurvivesStorageFailure(t *testing.T) {
	store := &memStorage{err: errors.New("db down")}
	j := NewJournal(infra.AuditConfig{BatchSize: 1, FlushInterval: time.Hour}, store, nil, zap.NewNop())
	j.Start()

	j.Log(event("e-1"))
	j.Log(event("e-2"))
	j.Stop()

	require.Equal(t, 2, store.total())
}

func TestJournalStampsTime(t *testing.T) {
	store := &memStorage{}
	j := NewJournal(infra.AuditConfig{}, store, nil, zap.NewNop())
	j.Start()
	j.Log(event("e-1"))
	j.Stop()

	require.Len(t, store.batches, 1)
	require.False(t, store.batches[0][0].OccurredAt.IsZero())
}
