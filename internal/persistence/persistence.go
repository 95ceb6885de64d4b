package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/goevery/realtimesync/internal/broadcaster"
)

const DefaultListLimit = 100

// Engine stores published update events so a client coming back from an
// outage can catch up on what it missed.
type Engine interface {
	Setup(ctx context.Context) error
	Save(ctx context.Context, message broadcaster.Message) error
	List(ctx context.Context, request ListRequest) ([]broadcaster.Message, error)
}

// ListRequest selects the events of one topic newer than After, oldest first.
// An empty SubjectId selects every event of the resource type.
type ListRequest struct {
	ResourceType string
	SubjectId    string
	After        time.Time
	Limit        int
}

func (r ListRequest) matches(message broadcaster.Message) bool {
	if message.ResourceType != r.ResourceType {
		return false
	}

	if r.SubjectId != "" && message.SubjectId != r.SubjectId {
		return false
	}

	return message.Timestamp.After(r.After)
}

// MemoryEngine keeps the most recent events in process memory.
type MemoryEngine struct {
	mu       sync.RWMutex
	capacity int
	messages []broadcaster.Message
}

func NewMemoryEngine(capacity int) *MemoryEngine {
	return &MemoryEngine{
		capacity: capacity,
	}
}

func (e *MemoryEngine) Setup(ctx context.Context) error {
	return nil
}

func (e *MemoryEngine) Save(ctx context.Context, message broadcaster.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.messages = append(e.messages, message)
	if overflow := len(e.messages) - e.capacity; overflow > 0 {
		e.messages = append(e.messages[:0:0], e.messages[overflow:]...)
	}

	return nil
}

func (e *MemoryEngine) List(ctx context.Context, request ListRequest) ([]broadcaster.Message, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	limit := request.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	messages := []broadcaster.Message{}
	for _, message := range e.messages {
		if !request.matches(message) {
			continue
		}

		messages = append(messages, message)
		if len(messages) == limit {
			break
		}
	}

	return messages, nil
}
