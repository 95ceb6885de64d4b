package handler

import (
	"context"
	"errors"
	"time"

	"github.com/goevery/realtimesync/internal/auth"
	"github.com/goevery/realtimesync/internal/broadcaster"
	"github.com/goevery/realtimesync/internal/ierr"
	"github.com/goevery/realtimesync/internal/persistence"
)

const maxListLimit = 500

type ListEventsRequest struct {
	ResourceType string
	SubjectId    string
	After        time.Time
	Limit        int
}

type ListEventsResponse struct {
	Events []broadcaster.Message `json:"events"`
}

type ListEventsHandlerInterface interface {
	Handle(ctx context.Context, req ListEventsRequest) (ListEventsResponse, error)
}

type ListEventsHandler struct {
	topicValidator    *TopicValidator
	persistenceEngine persistence.Engine
}

func NewListEventsHandler(
	topicValidator *TopicValidator,
	persistenceEngine persistence.Engine,
) *ListEventsHandler {
	return &ListEventsHandler{
		topicValidator,
		persistenceEngine,
	}
}

func (h *ListEventsHandler) Handle(ctx context.Context, req ListEventsRequest) (ListEventsResponse, error) {
	authentication, ok := auth.AuthenticationFromContext(ctx)
	if !ok {
		return ListEventsResponse{}, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("user not authenticated"))
	}

	topic, err := h.topicValidator.Validate(req.ResourceType, req.SubjectId)
	if err != nil {
		return ListEventsResponse{}, err
	}

	if !authentication.IsAuthorized(topic) {
		return ListEventsResponse{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("user not authorized to read this topic"))
	}

	if req.Limit < 0 || req.Limit > maxListLimit {
		return ListEventsResponse{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("limit out of range"))
	}

	events, err := h.persistenceEngine.List(ctx, persistence.ListRequest{
		ResourceType: req.ResourceType,
		SubjectId:    req.SubjectId,
		After:        req.After,
		Limit:        req.Limit,
	})
	if err != nil {
		return ListEventsResponse{}, ierr.New(ierr.ErrorCodeUnavailable, err)
	}

	return ListEventsResponse{
		Events: events,
	}, nil
}
