package invalidation

import (
	"github.com/goevery/realtimesync/internal/metrics"
	"go.uber.org/zap"
)

const (
	KindCustomer            = "Customer"
	KindCustomerTransaction = "CustomerTransaction"
	KindCustomerStats       = "CustomerStats"

	// ListId tags the collection queries of a kind.
	ListId = "LIST"
)

type Tag struct {
	Kind string `json:"kind"`
	Id   string `json:"id"`
}

func (t Tag) String() string {
	return t.Kind + ":" + t.Id
}

// Request is the ordered set of tags sent to the cache store for one message.
// Tags are not deduplicated.
type Request struct {
	Tags []Tag `json:"tags"`
}

// Sink is the query cache store. Invalidation is fire-and-forget.
type Sink interface {
	InvalidateTags(tags []Tag)
}

type SinkFunc func(tags []Tag)

func (f SinkFunc) InvalidateTags(tags []Tag) {
	f(tags)
}

type LoggingSink struct {
	logger *zap.Logger
}

func NewLoggingSink(logger *zap.Logger) *LoggingSink {
	return &LoggingSink{
		logger,
	}
}

func (s *LoggingSink) InvalidateTags(tags []Tag) {
	names := make([]string, len(tags))
	for i, tag := range tags {
		names[i] = tag.String()
	}

	s.logger.Info("cache tags invalidated",
		zap.Strings("tags", names))
}

// MeteredSink counts invalidated tags before handing them to the next sink.
type MeteredSink struct {
	next Sink
}

func NewMeteredSink(next Sink) *MeteredSink {
	return &MeteredSink{
		next,
	}
}

func (s *MeteredSink) InvalidateTags(tags []Tag) {
	for _, tag := range tags {
		metrics.TagsInvalidated.WithLabelValues(tag.Kind).Inc()
	}

	s.next.InvalidateTags(tags)
}
