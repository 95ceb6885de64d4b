package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/goevery/realtimesync/internal/auth"
	"github.com/goevery/realtimesync/internal/broadcaster"
	"github.com/goevery/realtimesync/internal/ierr"
	"github.com/goevery/realtimesync/internal/metrics"
	"github.com/goevery/realtimesync/internal/persistence"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type PublishRequest struct {
	ResourceType string          `json:"resourceType"`
	SubjectId    string          `json:"subjectId,omitempty"`
	Type         string          `json:"type"`
	Data         json.RawMessage `json:"data,omitempty"`
}

type PublishHandlerInterface interface {
	Handle(ctx context.Context, req PublishRequest) (broadcaster.Message, error)
}

type PublishHandler struct {
	topicValidator       *TopicValidator
	persistenceEngine    persistence.Engine
	subscriptionRegistry broadcaster.Registry
}

func NewPublishHandler(
	topicValidator *TopicValidator,
	persistenceEngine persistence.Engine,
	subscriptionRegistry broadcaster.Registry,
) *PublishHandler {
	return &PublishHandler{
		topicValidator,
		persistenceEngine,
		subscriptionRegistry,
	}
}

// Handle stores the update and fans it out to the resource feed and, when a
// subject is given, to the subject feed.
func (h *PublishHandler) Handle(ctx context.Context, req PublishRequest) (broadcaster.Message, error) {
	authentication, ok := auth.AuthenticationFromContext(ctx)
	if !ok {
		return broadcaster.Message{}, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("user not authenticated"))
	}

	if !authentication.IsPublisher() {
		return broadcaster.Message{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("user not authorized to publish messages"))
	}

	topic, err := h.topicValidator.Validate(req.ResourceType, req.SubjectId)
	if err != nil {
		return broadcaster.Message{}, err
	}

	if !authentication.IsAuthorized(topic) {
		return broadcaster.Message{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("user not authorized to publish to this topic"))
	}

	if req.Type == "" {
		return broadcaster.Message{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("type is required"))
	}

	message := broadcaster.Message{
		Id:           gonanoid.Must(),
		Type:         req.Type,
		ResourceType: req.ResourceType,
		SubjectId:    req.SubjectId,
		Data:         req.Data,
		Timestamp:    time.Now().UTC(),
	}

	err = h.persistenceEngine.Save(ctx, message)
	if err != nil {
		return broadcaster.Message{}, ierr.New(ierr.ErrorCodeUnavailable, err)
	}

	h.subscriptionRegistry.Broadcast(message)
	metrics.RelayMessagesPublished.WithLabelValues(message.Type).Inc()

	return message, nil
}
