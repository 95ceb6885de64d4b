package broadcaster

import (
	"context"
	"sync"

	"github.com/goevery/realtimesync/internal/auth"
	"github.com/google/uuid"
)

// Connection is a subscriber bound to exactly one topic for its lifetime.
type Connection struct {
	Id    string
	Topic string
	Send  chan Message

	mu             sync.RWMutex
	authentication *auth.Authentication
}

func NewConnection(topic string, bufferSize int) *Connection {
	return &Connection{
		Id:    uuid.NewString(),
		Topic: topic,
		Send:  make(chan Message, bufferSize),
	}
}

func (c *Connection) SetAuthentication(auth *auth.Authentication) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.authentication = auth
}

func (c *Connection) GetAuthentication() *auth.Authentication {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.authentication
}

func (c *Connection) GetUserId() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.authentication == nil {
		return ""
	}

	return c.authentication.Subject
}

type contextKey string

const connectionKey contextKey = "connection"

func WithConnection(ctx context.Context, conn *Connection) context.Context {
	return context.WithValue(ctx, connectionKey, conn)
}

func ConnectionFromContext(ctx context.Context) (*Connection, bool) {
	conn, ok := ctx.Value(connectionKey).(*Connection)

	return conn, ok
}
