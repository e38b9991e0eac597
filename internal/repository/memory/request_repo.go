// Package memory: хранилище заявок в памяти процесса. Используется, когда database.url пуст, и в тестах.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xela07ax/requestflow/internal/domain"
)

type RequestRepo struct {
	mu    sync.RWMutex
	items map[string]*domain.Request
}

func NewRequestRepo() *RequestRepo {
	return &RequestRepo{items: make(map[string]*domain.Request)}
}

func (r *RequestRepo) Save(_ context.Context, req *domain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[req.ID]; ok {
		return domain.Conflict("request %s already exists", req.ID)
	}
	req.Version = 1
	r.items[req.ID] = req.Clone()
	return nil
}

// Update применяет то же правило версий, что и Postgres: запись только поверх прочитанной версии.
func (r *RequestRepo) Update(_ context.Context, req *domain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[req.ID]
	if !ok {
		return domain.NotFound("request with ID %s not found", req.ID)
	}
	if stored.Version != req.Version {
		return domain.Conflict("request %s was modified concurrently", req.ID)
	}
	req.Version++
	r.items[req.ID] = req.Clone()
	return nil
}

func (r *RequestRepo) FindByID(_ context.Context, id string) (*domain.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.items[id]
	if !ok {
		return nil, domain.NotFound("request with ID %s not found", id)
	}
	c := stored.Clone()
	c.Status = domain.NormalizeStatus(c.Status)
	return c, nil
}

func (r *RequestRepo) FindAll(_ context.Context, includeCanceled bool) ([]*domain.Request, error) {
	return r.filter(func(*domain.Request) bool { return true }, includeCanceled), nil
}

func (r *RequestRepo) FindByClientID(_ context.Context, clientID string, includeCanceled bool) ([]*domain.Request, error) {
	return r.filter(func(req *domain.Request) bool { return req.ClientID == clientID }, includeCanceled), nil
}

func (r *RequestRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.NotFound("request with ID %s not found", id)
	}
	delete(r.items, id)
	return nil
}

// filter отдаёт копии, новые сверху.
func (r *RequestRepo) filter(match func(*domain.Request) bool, includeCanceled bool) []*domain.Request {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Request, 0, len(r.items))
	for _, stored := range r.items {
		if !match(stored) {
			continue
		}
		if !includeCanceled && stored.Status == domain.StatusCanceled {
			continue
		}
		c := stored.Clone()
		c.Status = domain.NormalizeStatus(c.Status)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
