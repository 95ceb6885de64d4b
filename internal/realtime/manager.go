// Package realtime wires the connection controller, the reconnect scheduler
// and the message router into one activation scoped session.
package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/goevery/realtimesync/internal/auth"
	"github.com/goevery/realtimesync/internal/connection"
	"github.com/goevery/realtimesync/internal/ierr"
	"github.com/goevery/realtimesync/internal/invalidation"
	"github.com/goevery/realtimesync/internal/reconnect"
	"go.uber.org/zap"
)

const DefaultResourceType = "customers"

var (
	ErrAlreadyActive = ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("realtime sync is already active"))
	ErrNotActive     = ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("realtime sync is not active"))
)

type Config struct {
	BaseURL      string
	ResourceType string
	Policy       reconnect.Policy
}

func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		ResourceType: DefaultResourceType,
		Policy:       reconnect.DefaultPolicy(),
	}
}

// Manager owns at most one live session. Every Activate builds a fresh
// scheduler, router and controller; Deactivate tears them down.
type Manager struct {
	ctx          context.Context
	logger       *zap.Logger
	cfg          Config
	newTransport connection.TransportFactory
	clock        reconnect.Clock
	tokens       auth.TokenSource
	sink         invalidation.Sink

	mu         sync.Mutex
	controller *connection.Controller
	scheduler  *reconnect.Scheduler
	endpoint   string

	observerMu sync.Mutex
	observer   func(connection.Status)
}

func NewManager(
	ctx context.Context,
	logger *zap.Logger,
	cfg Config,
	newTransport connection.TransportFactory,
	clock reconnect.Clock,
	tokens auth.TokenSource,
	sink invalidation.Sink,
) *Manager {
	if cfg.ResourceType == "" {
		cfg.ResourceType = DefaultResourceType
	}

	return &Manager{
		ctx:          ctx,
		logger:       logger,
		cfg:          cfg,
		newTransport: newTransport,
		clock:        clock,
		tokens:       tokens,
		sink:         sink,
	}
}

// OnStatusChange registers f to receive every status transition of the
// active session.
func (m *Manager) OnStatusChange(f func(connection.Status)) {
	m.observerMu.Lock()
	defer m.observerMu.Unlock()

	m.observer = f
}

// Activate connects to the update feed of subjectId, or to the global feed
// of the resource type when subjectId is empty.
func (m *Manager) Activate(subjectId string) error {
	m.mu.Lock()

	if m.controller != nil {
		m.mu.Unlock()

		return ErrAlreadyActive
	}

	endpoint, err := connection.BuildEndpoint(m.cfg.BaseURL, m.cfg.ResourceType, subjectId)
	if err != nil {
		m.mu.Unlock()

		return err
	}

	token, err := m.tokens.Token()
	if err != nil {
		m.mu.Unlock()

		return err
	}

	logger := m.logger.With(
		zap.String("resourceType", m.cfg.ResourceType),
		zap.String("subjectId", subjectId),
	)

	scheduler := reconnect.NewScheduler(m.clock, m.cfg.Policy)
	router := invalidation.NewRouter(logger, m.sink, subjectId)
	controller := connection.NewController(m.ctx, logger, m.newTransport, router, scheduler)
	controller.OnStatusChange(m.notify)

	m.controller = controller
	m.scheduler = scheduler
	m.endpoint = endpoint

	m.mu.Unlock()

	if _, err := controller.Connect(endpoint, token); err != nil {
		m.mu.Lock()
		if m.controller == controller {
			m.controller = nil
			m.scheduler = nil
		}
		m.mu.Unlock()

		controller.Teardown()

		return err
	}

	logger.Info("realtime sync activated")

	return nil
}

// Deactivate closes the session without reconnect. It is a no-op when
// nothing is active.
func (m *Manager) Deactivate() {
	m.mu.Lock()
	controller, scheduler := m.controller, m.scheduler
	m.controller = nil
	m.scheduler = nil
	m.mu.Unlock()

	if controller == nil {
		return
	}

	controller.Close(connection.CloseNormalClosure, "component unmounting")
	scheduler.Cancel(controller.PendingReconnect())
	controller.Teardown()

	m.logger.Info("realtime sync deactivated")
}

// ForceReconnect drops the current transport and connects again at once with
// the attempt count reset.
func (m *Manager) ForceReconnect() error {
	m.mu.Lock()
	controller, scheduler, endpoint := m.controller, m.scheduler, m.endpoint
	m.mu.Unlock()

	if controller == nil {
		return ErrNotActive
	}

	token, err := m.tokens.Token()
	if err != nil {
		return err
	}

	controller.Close(connection.CloseNormalClosure, "forced reconnect")
	scheduler.Reset()

	_, err = controller.Connect(endpoint, token)

	return err
}

func (m *Manager) NetworkOnline() {
	if m.IsConnected() {
		return
	}

	if err := m.ForceReconnect(); err != nil && !errors.Is(err, ErrNotActive) {
		m.logger.Warn("reconnect on network online failed", zap.Error(err))
	}
}

func (m *Manager) NetworkOffline() {
	m.logger.Info("network offline")
}

func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.controller != nil
}

func (m *Manager) IsConnected() bool {
	return m.Status().Connected()
}

func (m *Manager) Status() connection.Status {
	m.mu.Lock()
	controller := m.controller
	m.mu.Unlock()

	if controller == nil {
		return connection.Status{State: connection.StateIdle}
	}

	return controller.Status()
}

func (m *Manager) Endpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.endpoint
}

func (m *Manager) notify(status connection.Status) {
	m.observerMu.Lock()
	observer := m.observer
	m.observerMu.Unlock()

	if observer != nil {
		observer(status)
	}
}
