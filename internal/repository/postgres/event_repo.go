package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/requestflow/internal/domain"
)

// EventRepo хранит журнал переходов заявок (таблица request_events).
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

// WriteBatch вставляет пачку одним запросом. Повтор id пропускается, чтобы переотправка после сбоя была безопасной.
func (r *EventRepo) WriteBatch(ctx context.Context, events []domain.LifecycleEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице request_events
	const numFields = 7
	placeholders := make([]string, 0, len(events))
	vals := make([]any, 0, len(events)*numFields)

	for i, e := range events {
		p := i * numFields
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7))

		details := e.Details
		if details == nil {
			details = map[string]string{}
		}
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("postgres: marshal event details: %w", err)
		}

		vals = append(vals,
			e.ID, e.RequestID, string(e.Type), string(e.Status), e.Actor, raw, e.OccurredAt,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO request_events (id, request_id, type, status, actor, details, occurred_at) VALUES %s ON CONFLICT (id) DO NOTHING",
		strings.Join(placeholders, ", "),
	)

	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: failed to write event batch: %w", err)
	}
	return nil
}
