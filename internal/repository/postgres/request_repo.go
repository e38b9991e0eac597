package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xela07ax/requestflow/internal/domain"
)

const uniqueViolation = "23505"

const requestColumns = `id, title, description, client_id, client_name, status,
	estimated_days, estimation_comment, estimated_by, estimated_at,
	approved_by, approval_comment, approved_at,
	canceled_by, canceled_at, cancel_reason,
	jira_issue_key, jira_issue_url, created_at, updated_at, version`

type RequestRepo struct {
	db *sql.DB
}

func NewRequestRepo(db *sql.DB) *RequestRepo {
	return &RequestRepo{db: db}
}

// Save: только создание. Повтор id даёт Conflict.
func (r *RequestRepo) Save(ctx context.Context, req *domain.Request) error {
	query := `INSERT INTO requests (` + requestColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, 1)`

	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.Title, req.Description, req.ClientID, req.ClientName, string(req.Status),
		nullInt(req.EstimatedDays), nullString(req.EstimationComment), nullString(req.EstimatedBy), nullTime(req.EstimatedAt),
		nullString(req.ApprovedBy), nullString(req.ApprovalComment), nullTime(req.ApprovedAt),
		nullString(req.CanceledBy), nullTime(req.CanceledAt), nullString(req.CancelReason),
		nullString(req.JiraIssueKey), nullString(req.JiraIssueURL), req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Conflict("request %s already exists", req.ID)
		}
		return fmt.Errorf("postgres: failed to insert request: %w", err)
	}
	req.Version = 1
	return nil
}

// Update пишет изменяемые поля поверх прочитанной версии и увеличивает её.
func (r *RequestRepo) Update(ctx context.Context, req *domain.Request) error {
	query := `UPDATE requests SET
	              status = $2,
	              estimated_days = $3, estimation_comment = $4, estimated_by = $5, estimated_at = $6,
	              approved_by = $7, approval_comment = $8, approved_at = $9,
	              canceled_by = $10, canceled_at = $11, cancel_reason = $12,
	              jira_issue_key = $13, jira_issue_url = $14, updated_at = $15,
	              version = version + 1
	          WHERE id = $1 AND version = $16`

	res, err := r.db.ExecContext(ctx, query,
		req.ID, string(req.Status),
		nullInt(req.EstimatedDays), nullString(req.EstimationComment), nullString(req.EstimatedBy), nullTime(req.EstimatedAt),
		nullString(req.ApprovedBy), nullString(req.ApprovalComment), nullTime(req.ApprovedAt),
		nullString(req.CanceledBy), nullTime(req.CanceledAt), nullString(req.CancelReason),
		nullString(req.JiraIssueKey), nullString(req.JiraIssueURL), req.UpdatedAt,
		req.Version,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update request: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 1 {
		req.Version++
		return nil
	}

	// Ни одной строки: либо заявки нет, либо версия устарела
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM requests WHERE id = $1)`, req.ID).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: failed to check request: %w", err)
	}
	if !exists {
		return domain.NotFound("request with ID %s not found", req.ID)
	}
	return domain.Conflict("request %s was modified concurrently", req.ID)
}

func (r *RequestRepo) FindByID(ctx context.Context, id string) (*domain.Request, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("request with ID %s not found", id)
		}
		return nil, fmt.Errorf("postgres: failed to get request: %w", err)
	}
	return req, nil
}

func (r *RequestRepo) FindAll(ctx context.Context, includeCanceled bool) ([]*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests`
	var args []any
	if !includeCanceled {
		query += ` WHERE status <> $1`
		args = append(args, string(domain.StatusCanceled))
	}
	query += ` ORDER BY created_at DESC`
	return r.list(ctx, query, args...)
}

func (r *RequestRepo) FindByClientID(ctx context.Context, clientID string, includeCanceled bool) ([]*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE client_id = $1`
	args := []any{clientID}
	if !includeCanceled {
		query += ` AND status <> $2`
		args = append(args, string(domain.StatusCanceled))
	}
	query += ` ORDER BY created_at DESC`
	return r.list(ctx, query, args...)
}

func (r *RequestRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 0 {
		return domain.NotFound("request with ID %s not found", id)
	}
	return nil
}

func (r *RequestRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Request, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query requests: %w", err)
	}
	defer rows.Close()

	// пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan request: %w", err)
		}
		results = append(results, req)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRequest маппит NULL в нулевые значения и нормализует устаревший статус.
func scanRequest(s scanner) (*domain.Request, error) {
	var (
		req    domain.Request
		status string

		estimatedDays                              sql.NullInt64
		estimationComment, estimatedBy             sql.NullString
		approvedBy, approvalComment                sql.NullString
		canceledBy, cancelReason, jiraKey, jiraURL sql.NullString
		estimatedAt, approvedAt, canceledAt        sql.NullTime
	)

	err := s.Scan(
		&req.ID, &req.Title, &req.Description, &req.ClientID, &req.ClientName, &status,
		&estimatedDays, &estimationComment, &estimatedBy, &estimatedAt,
		&approvedBy, &approvalComment, &approvedAt,
		&canceledBy, &canceledAt, &cancelReason,
		&jiraKey, &jiraURL, &req.CreatedAt, &req.UpdatedAt, &req.Version,
	)
	if err != nil {
		return nil, err
	}

	req.Status = domain.NormalizeStatus(domain.RequestStatus(status))
	if estimatedDays.Valid {
		d := int(estimatedDays.Int64)
		req.EstimatedDays = &d
	}
	req.EstimationComment = estimationComment.String
	req.EstimatedBy = estimatedBy.String
	req.EstimatedAt = timePtr(estimatedAt)
	req.ApprovedBy = approvedBy.String
	req.ApprovalComment = approvalComment.String
	req.ApprovedAt = timePtr(approvedAt)
	req.CanceledBy = canceledBy.String
	req.CanceledAt = timePtr(canceledAt)
	req.CancelReason = cancelReason.String
	req.JiraIssueKey = jiraKey.String
	req.JiraIssueURL = jiraURL.String
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	return &req, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
