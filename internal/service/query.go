package service

import (
	"context"
	"time"

	"github.com/xela07ax/requestflow/internal/domain"
)

type GetByIDInput struct {
	RequestID string
	Actor     domain.Actor
}

type GetByIDResult struct {
	Request *domain.Request `json:"request"`
}

func (s *RequestService) GetByID(ctx context.Context, in GetByIDInput) (res *GetByIDResult, err error) {
	defer s.observe("get", time.Now(), &err)

	req, err := s.load(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}

	isOwner := req.ClientID == in.Actor.UserID
	if !in.Actor.Can(domain.PermViewAllRequests) && !(in.Actor.Can(domain.PermViewOwnRequests) && isOwner) {
		return nil, domain.Unauthorized("you do not have permission to view this request")
	}
	return &GetByIDResult{Request: req}, nil
}

type ListInput struct {
	Actor           domain.Actor
	IncludeCanceled bool
}

type ListResult struct {
	Requests []*domain.Request `json:"requests"`
	Count    int               `json:"count"`
}

// List: VIEW_ALL видит все заявки, VIEW_OWN только свои.
func (s *RequestService) List(ctx context.Context, in ListInput) (res *ListResult, err error) {
	defer s.observe("list", time.Now(), &err)

	var requests []*domain.Request
	switch {
	case in.Actor.Can(domain.PermViewAllRequests):
		requests, err = s.repo.FindAll(ctx, in.IncludeCanceled)
	case in.Actor.Can(domain.PermViewOwnRequests):
		requests, err = s.repo.FindByClientID(ctx, in.Actor.UserID, in.IncludeCanceled)
	default:
		return nil, domain.Unauthorized("user does not have permission to view requests")
	}
	if err != nil {
		return nil, err
	}
	if requests == nil {
		requests = []*domain.Request{}
	}
	return &ListResult{Requests: requests, Count: len(requests)}, nil
}
