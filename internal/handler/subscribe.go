package handler

import (
	"context"
	"errors"
	"time"

	"github.com/goevery/realtimesync/internal/broadcaster"
	"github.com/goevery/realtimesync/internal/ierr"
)

type SubscribeRequest struct {
	ResourceType string `json:"resourceType"`
	SubjectId    string `json:"subjectId,omitempty"`
}

type SubscribeResponse struct {
	SubscriptionId string    `json:"subscriptionId"`
	Topic          string    `json:"topic"`
	Timestamp      time.Time `json:"timestamp"`
}

type SubscribeHandlerInterface interface {
	Handle(ctx context.Context, req SubscribeRequest) (SubscribeResponse, error)
}

type SubscribeHandler struct {
	topicValidator       *TopicValidator
	subscriptionRegistry broadcaster.Registry
	authRequired         bool
}

func NewSubscribeHandler(
	topicValidator *TopicValidator,
	subscriptionRegistry broadcaster.Registry,
	authRequired bool,
) *SubscribeHandler {
	return &SubscribeHandler{
		topicValidator,
		subscriptionRegistry,
		authRequired,
	}
}

func (h *SubscribeHandler) Handle(ctx context.Context, req SubscribeRequest) (SubscribeResponse, error) {
	topic, err := h.topicValidator.Validate(req.ResourceType, req.SubjectId)
	if err != nil {
		return SubscribeResponse{}, err
	}

	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return SubscribeResponse{}, errors.New("connection not found in context")
	}

	if connection.Topic != topic {
		return SubscribeResponse{},
			ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("connection is bound to another topic"))
	}

	if h.authRequired {
		auth := connection.GetAuthentication()
		if auth == nil {
			return SubscribeResponse{},
				ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("authentication required"))
		}

		if !auth.IsSubscriber() {
			return SubscribeResponse{},
				ierr.New(ierr.ErrorCodePermissionDenied, errors.New("subscribe scope required to follow updates"))
		}

		if !auth.IsAuthorized(topic) {
			return SubscribeResponse{},
				ierr.New(ierr.ErrorCodePermissionDenied, errors.New("user not authorized to follow this topic"))
		}
	}

	err = h.subscriptionRegistry.Register(connection)
	if err != nil {
		return SubscribeResponse{}, err
	}

	return SubscribeResponse{
		SubscriptionId: connection.Id,
		Topic:          topic,
		Timestamp:      time.Now(),
	}, nil
}
