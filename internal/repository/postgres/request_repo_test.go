package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/requestflow/internal/domain"
)

var columns = []string{
	"id", "title", "description", "client_id", "client_name", "status",
	"estimated_days", "estimation_comment", "estimated_by", "estimated_at",
	"approved_by", "approval_comment", "approved_at",
	"canceled_by", "canceled_at", "cancel_reason",
	"jira_issue_key", "jira_issue_url", "created_at", "updated_at", "version",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func sampleRequest(t *testing.T) *domain.Request {
	t.Helper()
	r, err := domain.NewRequest(domain.NewRequestInput{
		Title: "Fix login bug", Description: "SSO", ClientID: "c1", ClientName: "Acme",
	})
	require.NoError(t, err)
	return r
}

func TestSave(t *testing.T) {
	db, mock := newMock(t)
	r := sampleRequest(t)

	mock.ExpectExec("INSERT INTO requests").
		WithArgs(anyArgs(20)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewRequestRepo(db).Save(context.Background(), r))
	require.EqualValues(t, 1, r.Version)
}

func TestSaveDuplicateIsConflict(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("INSERT INTO requests").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := NewRequestRepo(db).Save(context.Background(), sampleRequest(t))
	require.True(t, domain.IsKind(err, domain.KindConflict))
}

func TestUpdateBumpsVersion(t *testing.T) {
	db, mock := newMock(t)
	r := sampleRequest(t)
	r.Version = 2

	args := append(anyArgs(15), int64(2))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND version = $16")).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewRequestRepo(db).Update(context.Background(), r))
	require.EqualValues(t, 3, r.Version)
}

func TestUpdateStaleVersionIsConflict(t *testing.T) {
	db, mock := newMock(t)
	r := sampleRequest(t)

	mock.ExpectExec("UPDATE requests SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(r.ID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := NewRequestRepo(db).Update(context.Background(), r)
	require.True(t, domain.IsKind(err, domain.KindConflict))
}

func TestUpdateMissingIsNotFound(t *testing.T) {
	db, mock := newMock(t)
	r := sampleRequest(t)

	mock.ExpectExec("UPDATE requests SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(r.ID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := NewRequestRepo(db).Update(context.Background(), r)
	require.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestFindByIDNormalizesLegacyStatus(t *testing.T) {
	db, mock := newMock(t)
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	estimated := created.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM requests WHERE id = $1")).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"r-1", "Fix login bug", "SSO", "c1", "Acme", "ESTIMATED",
			int64(5), "ok", "bob", estimated,
			nil, nil, nil,
			nil, nil, nil,
			"REQ-7", "https://jira.test/browse/REQ-7", created, estimated, int64(2),
		))

	r, err := NewRequestRepo(db).FindByID(context.Background(), "r-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingApproval, r.Status)
	require.Equal(t, 5, *r.EstimatedDays)
	require.Equal(t, estimated, *r.EstimatedAt)
	require.Nil(t, r.ApprovedAt)
	require.Empty(t, r.ApprovedBy)
	require.Equal(t, "REQ-7", r.JiraIssueKey)
	require.EqualValues(t, 2, r.Version)
}

func TestFindByIDNotFound(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM requests WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := NewRequestRepo(db).FindByID(context.Background(), "missing")
	require.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestFindByClientIDExcludesCanceled(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE client_id = $1 AND status <> $2 ORDER BY created_at DESC")).
		WithArgs("c1", "CANCELED").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("r-2", "B", "d", "c1", "Acme", "NEW",
				nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, now, now, int64(1)).
			AddRow("r-1", "A", "d", "c1", "Acme", "APPROVED",
				int64(3), "ok", "bob", now, "alice", "go", now, nil, nil, nil, nil, nil, now.Add(-time.Hour), now, int64(3)))

	list, err := NewRequestRepo(db).FindByClientID(context.Background(), "c1", false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "r-2", list[0].ID)
	require.Equal(t, domain.StatusApproved, list[1].Status)
	require.Equal(t, "alice", list[1].ApprovedBy)
}

func TestFindAllIncludingCanceled(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM requests ORDER BY created_at DESC")).
		WithArgs().
		WillReturnRows(sqlmock.NewRows(columns))

	list, err := NewRequestRepo(db).FindAll(context.Background(), true)
	require.NoError(t, err)
	require.NotNil(t, list)
	require.Empty(t, list)
}

func TestDeleteMissing(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM requests WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewRequestRepo(db).Delete(context.Background(), "missing")
	require.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestWriteBatch(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	events := []domain.LifecycleEvent{
		{ID: "e-1", RequestID: "r-1", Type: domain.EventCreated, Status: domain.StatusNew, Actor: "c1", OccurredAt: now},
		{ID: "e-2", RequestID: "r-1", Type: domain.EventCanceled, Status: domain.StatusCanceled, Actor: "c1", OccurredAt: now,
			Details: map[string]string{"reason": "dup"}},
	}

	args := anyArgs(14)
	args[5] = []byte(`{}`)
	args[12] = []byte(`{"reason":"dup"}`)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_events (id, request_id, type, status, actor, details, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, $7), ($8,")).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, NewEventRepo(db).WriteBatch(context.Background(), events))
}

func TestWriteBatchEmpty(t *testing.T) {
	db, _ := newMock(t)
	require.NoError(t, NewEventRepo(db).WriteBatch(context.Background(), nil))
}

func TestMigrateFromScratch(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_version").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_version").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_version (version) VALUES (0)")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS requests").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS request_events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE schema_version SET version").WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	v, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestMigrateUpToDate(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_version").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_version").WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(2)))
	mock.ExpectExec("UPDATE schema_version SET version").WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	v, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	require.Equal(t, 2, v)
}
