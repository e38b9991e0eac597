package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/domain"
	"github.com/xela07ax/requestflow/internal/infra/auth"
	"github.com/xela07ax/requestflow/internal/service"
)

// RequestService описывает, что обработчику нужно от use-case слоя.
type RequestService interface {
	Create(ctx context.Context, in service.CreateInput) (*service.CreateResult, error)
	Estimate(ctx context.Context, in service.EstimateInput) (*service.EstimateResult, error)
	Decide(ctx context.Context, in service.DecisionInput) (*service.DecisionResult, error)
	Cancel(ctx context.Context, in service.CancelInput) (*service.CancelResult, error)
	GetByID(ctx context.Context, in service.GetByIDInput) (*service.GetByIDResult, error)
	List(ctx context.Context, in service.ListInput) (*service.ListResult, error)
}

type RequestHandler struct {
	service RequestService
	logger  *zap.Logger
}

func NewRequestHandler(s RequestService, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{service: s, logger: logger.Named("request-handler")}
}

// Routes монтируется в /requests под middleware аутентификации.
func (h *RequestHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/estimate", h.Estimate)
		r.Patch("/approve", h.Decide)
		r.Patch("/cancel", h.Cancel)
	})
}

type createRequestBody struct {
	Title       string `json:"title" validate:"required,max=500"`
	Description string `json:"description" validate:"required"`
}

func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if !actor.Can(domain.PermCreateRequest) {
		h.fail(w, domain.Unauthorized("Only CLIENT users can create requests"))
		return
	}

	var body createRequestBody
	if err := decodeBody(r, &body); err != nil {
		h.fail(w, err)
		return
	}

	res, err := h.service.Create(r.Context(), service.CreateInput{
		Title:       strings.TrimSpace(body.Title),
		Description: strings.TrimSpace(body.Description),
		ClientID:    actor.UserID,
		ClientName:  actor.UserName,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Message: successMessage("Request", "created"), Data: res})
}

func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	res, err := h.service.List(r.Context(), service.ListInput{
		Actor:           actor,
		IncludeCanceled: strings.EqualFold(r.URL.Query().Get("includeCanceled"), "true"),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: successMessage("Requests", "retrieved"), Data: res})
}

func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, err)
		return
	}

	res, err := h.service.GetByID(r.Context(), service.GetByIDInput{RequestID: id, Actor: actor})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: successMessage("Request", "retrieved"), Data: res})
}

type estimateBody struct {
	EstimatedDays int    `json:"estimated_days" validate:"gt=0"`
	Comment       string `json:"comment" validate:"required"`
}

func (h *RequestHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var body estimateBody
	if err := decodeBody(r, &body); err != nil {
		h.fail(w, err)
		return
	}

	res, err := h.service.Estimate(r.Context(), service.EstimateInput{
		RequestID:     id,
		EstimatedDays: body.EstimatedDays,
		Comment:       strings.TrimSpace(body.Comment),
		Actor:         actor,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: successMessage("Request", "estimated"), Data: res})
}

type decisionBody struct {
	Action  string `json:"action" validate:"required,oneof=approve reject"`
	Comment string `json:"comment"`
}

func (h *RequestHandler) Decide(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var body decisionBody
	if err := decodeBody(r, &body); err != nil {
		h.fail(w, err)
		return
	}

	action := service.DecisionAction(body.Action)
	res, err := h.service.Decide(r.Context(), service.DecisionInput{
		RequestID: id,
		Action:    action,
		Comment:   strings.TrimSpace(body.Comment),
		Actor:     actor,
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	verb := "approved"
	if action == service.ActionReject {
		verb = "rejected"
	}
	writeJSON(w, http.StatusOK, envelope{Message: successMessage("Request", verb), Data: res})
}

type cancelBody struct {
	Reason string `json:"reason"`
}

// Cancel: тело необязательно, нечитаемое тело трактуется как отсутствие причины.
func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var body cancelBody
	if err := decodeBody(r, &body); err != nil {
		body = cancelBody{}
	}

	res, err := h.service.Cancel(r.Context(), service.CancelInput{
		RequestID: id,
		Reason:    strings.TrimSpace(body.Reason),
		Actor:     actor,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: successMessage("Request", "canceled"), Data: res})
}

func (h *RequestHandler) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.fail(w, domain.Unauthorized("missing user identity"))
	}
	return actor, ok
}

func (h *RequestHandler) fail(w http.ResponseWriter, err error) {
	writeError(w, h.logger, err)
}
