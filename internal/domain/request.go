package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Статусы State Machine
type RequestStatus string

const (
	StatusNew             RequestStatus = "NEW"
	StatusPendingApproval RequestStatus = "PENDING_APPROVAL"
	StatusApproved        RequestStatus = "APPROVED"
	StatusRejected        RequestStatus = "REJECTED"
	StatusCanceled        RequestStatus = "CANCELED"

	// StatusEstimated встречается только в старых записях хранилища.
	StatusEstimated RequestStatus = "ESTIMATED"
)

var (
	ErrInvalidTransition = errors.New("invalid request status transition")
	ErrNotCancelable     = errors.New("request cannot be canceled")
)

var transitions = map[RequestStatus][]RequestStatus{
	StatusNew:             {StatusPendingApproval, StatusCanceled},
	StatusPendingApproval: {StatusApproved, StatusRejected, StatusCanceled},
	StatusApproved:        nil,
	StatusRejected:        nil,
	StatusCanceled:        nil,
}

// NormalizeStatus переводит устаревшие метки в актуальные. Только в одну сторону.
func NormalizeStatus(s RequestStatus) RequestStatus {
	if s == StatusEstimated {
		return StatusPendingApproval
	}
	return s
}

func (s RequestStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s RequestStatus) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransition проверяет таблицу переходов.
func CanTransition(from, to RequestStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Request struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	ClientID    string        `json:"clientId"`
	ClientName  string        `json:"clientName"`
	Status      RequestStatus `json:"status"`

	EstimatedDays     *int       `json:"estimatedDays,omitempty"`
	EstimationComment string     `json:"estimationComment,omitempty"`
	EstimatedBy       string     `json:"estimatedBy,omitempty"`
	EstimatedAt       *time.Time `json:"estimatedAt,omitempty"`

	ApprovedBy      string     `json:"approvedBy,omitempty"`
	ApprovalComment string     `json:"approvalComment,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`

	CanceledBy   string     `json:"canceledBy,omitempty"`
	CanceledAt   *time.Time `json:"canceledAt,omitempty"`
	CancelReason string     `json:"cancelReason,omitempty"`

	JiraIssueKey string `json:"jiraIssueKey,omitempty"`
	JiraIssueURL string `json:"jiraIssueUrl,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Version используется хранилищем для оптимистичной блокировки.
	Version int64 `json:"-"`
}

// NewRequestInput: исходные данные для фабрики.
type NewRequestInput struct {
	Title       string
	Description string
	ClientID    string
	ClientName  string
}

// NewRequest: валидирующая фабрика. Новая заявка всегда в статусе NEW.
func NewRequest(in NewRequestInput) (*Request, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	clientID := strings.TrimSpace(in.ClientID)
	clientName := strings.TrimSpace(in.ClientName)

	switch {
	case title == "":
		return nil, InvalidInput("request title is required")
	case description == "":
		return nil, InvalidInput("request description is required")
	case clientID == "":
		return nil, InvalidInput("client ID is required")
	case clientName == "":
		return nil, InvalidInput("client name is required")
	}

	now := time.Now().UTC()
	return &Request{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		ClientID:    clientID,
		ClientName:  clientName,
		Status:      StatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanTransitionTo проверяет правила конечного автомата
func (r *Request) CanTransitionTo(next RequestStatus) bool {
	return CanTransition(r.Status, next)
}

func (r *Request) IsTerminal() bool {
	return r.Status.IsTerminal()
}

func (r *Request) Estimate(days int, comment, by string) error {
	if r.Status != StatusNew {
		return &Error{Kind: KindInvalidState, Message: "cannot estimate request in " + string(r.Status) + " status", Err: ErrInvalidTransition}
	}
	if days <= 0 {
		return InvalidInput("estimated days must be greater than 0")
	}

	now := time.Now().UTC()
	r.EstimatedDays = &days
	r.EstimationComment = comment
	r.EstimatedBy = by
	r.EstimatedAt = &now
	r.Status = StatusPendingApproval
	r.UpdatedAt = now
	return nil
}

func (r *Request) Approve(by, comment string) error {
	if r.Status != StatusPendingApproval {
		return &Error{
			Kind:    KindInvalidState,
			Message: "cannot approve request in " + string(r.Status) + " status, request must be estimated first",
			Err:     ErrInvalidTransition,
		}
	}
	r.decide(StatusApproved, by, comment)
	return nil
}

func (r *Request) Reject(by, comment string) error {
	if r.Status != StatusPendingApproval {
		return &Error{
			Kind:    KindInvalidState,
			Message: "cannot reject request in " + string(r.Status) + " status, request must be estimated first",
			Err:     ErrInvalidTransition,
		}
	}
	if strings.TrimSpace(comment) == "" {
		return InvalidInput("rejection comment is required")
	}
	r.decide(StatusRejected, by, comment)
	return nil
}

// decide фиксирует решение. Отклонение использует те же поля, что и одобрение.
func (r *Request) decide(status RequestStatus, by, comment string) {
	now := time.Now().UTC()
	r.ApprovedBy = by
	r.ApprovalComment = comment
	r.ApprovedAt = &now
	r.Status = status
	r.UpdatedAt = now
}

// Cancel идемпотентен: повторная отмена ничего не меняет и не возвращает ошибку.
func (r *Request) Cancel(by, reason string) error {
	if r.Status == StatusCanceled {
		return nil
	}
	if !r.CanTransitionTo(StatusCanceled) {
		return &Error{
			Kind:    KindConflict,
			Message: "cannot cancel request in " + string(r.Status) + " status",
			Err:     ErrNotCancelable,
		}
	}

	now := time.Now().UTC()
	r.CanceledBy = by
	r.CancelReason = reason
	r.CanceledAt = &now
	r.Status = StatusCanceled
	r.UpdatedAt = now
	return nil
}

func (r *Request) SetJiraIssue(key, url string) {
	r.JiraIssueKey = key
	r.JiraIssueURL = url
	r.UpdatedAt = time.Now().UTC()
}

func (r *Request) HasJiraIssue() bool {
	return r.JiraIssueKey != ""
}

// Clone возвращает независимую копию (для хранилищ в памяти).
func (r *Request) Clone() *Request {
	c := *r
	if r.EstimatedDays != nil {
		d := *r.EstimatedDays
		c.EstimatedDays = &d
	}
	c.EstimatedAt = cloneTime(r.EstimatedAt)
	c.ApprovedAt = cloneTime(r.ApprovedAt)
	c.CanceledAt = cloneTime(r.CanceledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
