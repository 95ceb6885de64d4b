package invalidation

import (
	"github.com/goevery/realtimesync/internal/metrics"
	"go.uber.org/zap"
)

// Router maps inbound update messages to cache tag invalidations. It holds no
// per-message state.
type Router struct {
	logger *zap.Logger
	sink   Sink

	// scopeSubjectId is used when a message arrives without a subjectId.
	scopeSubjectId string
}

func NewRouter(logger *zap.Logger, sink Sink, scopeSubjectId string) *Router {
	return &Router{
		logger,
		sink,
		scopeSubjectId,
	}
}

// Route returns the invalidation request for msg. The second return value is
// false for unrecognized types and for messages that produce no tags.
func (r *Router) Route(msg InboundMessage) (Request, bool) {
	subjectId := msg.SubjectId
	if subjectId == "" {
		subjectId = r.scopeSubjectId
	}

	var tags []Tag

	switch msg.Type {
	case TypeCustomerUpdated, TypeVerificationStatusChanged:
		tags = appendSubject(tags, KindCustomer, subjectId)
		tags = append(tags, Tag{KindCustomer, ListId})
	case TypeCustomerCreated:
		tags = append(tags, Tag{KindCustomer, ListId})
	case TypeTransactionCompleted:
		tags = appendSubject(tags, KindCustomerTransaction, subjectId)
		tags = appendSubject(tags, KindCustomerStats, subjectId)
		tags = appendSubject(tags, KindCustomer, subjectId)
	default:
		return Request{}, false
	}

	if len(tags) == 0 {
		return Request{}, false
	}

	return Request{Tags: tags}, true
}

// Dispatch parses payload and forwards its tags to the sink. Parse failures
// are returned so the caller can log them; nothing is invalidated in that case.
func (r *Router) Dispatch(payload []byte) error {
	msg, err := ParseMessage(payload)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues("malformed").Inc()

		return err
	}

	metrics.MessagesReceived.WithLabelValues(msg.Type).Inc()

	request, ok := r.Route(msg)
	if !ok {
		reason := "unknown_type"
		if isKnownType(msg.Type) {
			reason = "no_tags"
		}
		metrics.MessagesDropped.WithLabelValues(reason).Inc()

		r.logger.Warn("dropping update message",
			zap.String("type", msg.Type),
			zap.String("subjectId", msg.SubjectId),
			zap.String("reason", reason))

		return nil
	}

	r.logger.Debug("routing update message",
		zap.String("type", msg.Type),
		zap.String("subjectId", msg.SubjectId),
		zap.Int("tags", len(request.Tags)))

	r.sink.InvalidateTags(request.Tags)

	return nil
}

func appendSubject(tags []Tag, kind string, subjectId string) []Tag {
	if subjectId == "" {
		return tags
	}

	return append(tags, Tag{kind, subjectId})
}

func isKnownType(messageType string) bool {
	switch messageType {
	case TypeCustomerUpdated, TypeCustomerCreated, TypeTransactionCompleted, TypeVerificationStatusChanged:
		return true
	}

	return false
}
