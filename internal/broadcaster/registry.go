package broadcaster

import (
	"errors"
	"sync"

	"github.com/goevery/realtimesync/internal/ierr"
	"github.com/goevery/realtimesync/internal/metrics"
	"go.uber.org/zap"
)

type Registry interface {
	Broadcast(message Message)
	Register(connection *Connection) error
	Disconnect(connectionId string)
}

type InMemoryRegistry struct {
	logger *zap.Logger
	mu     sync.RWMutex

	connections        map[string]*Connection
	connectionsByTopic map[string]map[string]struct{}
}

func NewInMemoryRegistry(
	logger *zap.Logger,
) *InMemoryRegistry {
	return &InMemoryRegistry{
		logger:             logger,
		connections:        make(map[string]*Connection),
		connectionsByTopic: make(map[string]map[string]struct{}),
	}
}

// Broadcast delivers message to every connection on one of its topics. A
// connection whose send buffer is full is disconnected instead of blocking
// the publisher.
func (r *InMemoryRegistry) Broadcast(message Message) {
	r.mu.RLock()

	var connections []*Connection
	for _, topic := range message.Topics() {
		for connectionId := range r.connectionsByTopic[topic] {
			if connection, ok := r.connections[connectionId]; ok {
				connections = append(connections, connection)
			}
		}
	}

	var staleConnectionIds []string

	for _, connection := range connections {
		select {
		case connection.Send <- message:
		default:
			r.logger.Warn("connection send channel is full, closing connection",
				zap.String("connectionId", connection.Id),
				zap.String("topic", connection.Topic))

			staleConnectionIds = append(staleConnectionIds, connection.Id)
		}
	}

	r.mu.RUnlock()

	if len(staleConnectionIds) == 0 {
		return
	}

	metrics.RelaySlowConnections.Add(float64(len(staleConnectionIds)))

	r.mu.Lock()

	for _, connectionId := range staleConnectionIds {
		r.disconnectLocked(connectionId)
	}

	r.mu.Unlock()
}

func (r *InMemoryRegistry) Register(connection *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[connection.Id]; ok {
		return ierr.New(ierr.ErrorCodeAlreadyExists, errors.New("connection already registered"))
	}

	if _, ok := r.connectionsByTopic[connection.Topic]; !ok {
		r.connectionsByTopic[connection.Topic] = make(map[string]struct{})
	}

	r.connectionsByTopic[connection.Topic][connection.Id] = struct{}{}
	r.connections[connection.Id] = connection

	metrics.RelayConnections.Inc()

	return nil
}

func (r *InMemoryRegistry) Disconnect(connectionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.disconnectLocked(connectionId)
}

// Subscribers returns the number of connections on topic.
func (r *InMemoryRegistry) Subscribers(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connectionsByTopic[topic])
}

// IMPORTANT: It must be called only when a write lock is already held.
func (r *InMemoryRegistry) disconnectLocked(connectionId string) {
	connection, ok := r.connections[connectionId]
	if !ok {
		return
	}

	topicConnections, ok := r.connectionsByTopic[connection.Topic]
	if !ok {
		panic("inconsistent state: topic not found in connectionsByTopic")
	}

	delete(topicConnections, connectionId)
	if len(topicConnections) == 0 {
		delete(r.connectionsByTopic, connection.Topic)
	}

	delete(r.connections, connectionId)
	close(connection.Send)

	metrics.RelayConnections.Dec()
}
