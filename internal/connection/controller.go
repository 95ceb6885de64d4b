// Package connection owns the lifecycle of the realtime transport: opening it,
// forwarding inbound frames, and deciding after every close whether a
// reconnect is armed.
package connection

import (
	"context"
	"errors"
	"sync"

	"github.com/goccy/go-json"
	"github.com/goevery/realtimesync/internal/ierr"
	"github.com/goevery/realtimesync/internal/metrics"
	"github.com/goevery/realtimesync/internal/reconnect"
	"go.uber.org/zap"
)

var ErrTornDown = ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("connection controller was torn down"))

// Dispatcher consumes every inbound frame of an open connection.
type Dispatcher interface {
	Dispatch(payload []byte) error
}

type authFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// Controller is the connection state machine. Transitions are serialized by
// mu; transports, the dispatcher and status observers are always called with
// mu released.
//
// Every transport is tagged with a generation. Events from a transport that
// has been superseded, or that arrive after Teardown, are ignored.
type Controller struct {
	ctx          context.Context
	logger       *zap.Logger
	newTransport TransportFactory
	dispatcher   Dispatcher
	scheduler    *reconnect.Scheduler

	mu                  sync.Mutex
	state               State
	transport           Transport
	generation          uint64
	endpoint            string
	authToken           string
	cleanCloseRequested bool
	tornDown            bool
	gaveUp              bool
	pending             *reconnect.Handle
	reportedConnected   bool

	observerMu sync.Mutex
	observer   func(Status)
}

func NewController(
	ctx context.Context,
	logger *zap.Logger,
	newTransport TransportFactory,
	dispatcher Dispatcher,
	scheduler *reconnect.Scheduler,
) *Controller {
	return &Controller{
		ctx:          ctx,
		logger:       logger,
		newTransport: newTransport,
		dispatcher:   dispatcher,
		scheduler:    scheduler,
		state:        StateIdle,
	}
}

// OnStatusChange registers f to receive a snapshot after every transition.
func (c *Controller) OnStatusChange(f func(Status)) {
	c.observerMu.Lock()
	defer c.observerMu.Unlock()

	c.observer = f
}

// Connect opens a transport to endpoint unless one is already open or
// connecting. A non-empty authToken is sent as the first frame once the
// transport opens.
func (c *Controller) Connect(endpoint string, authToken string) (State, error) {
	if endpoint == "" {
		return c.State(), ErrEndpointNotConfigured
	}

	c.mu.Lock()

	if c.tornDown {
		c.mu.Unlock()

		return StateClosed, ErrTornDown
	}

	if c.state == StateOpen || c.state == StateConnecting {
		state := c.state
		c.mu.Unlock()

		return state, nil
	}

	// a direct connect supersedes any armed reconnect
	c.scheduler.Cancel(c.pending)
	c.pending = nil

	c.generation++
	generation := c.generation
	transport := c.newTransport()

	c.transport = transport
	c.endpoint = endpoint
	c.authToken = authToken
	c.cleanCloseRequested = false
	c.gaveUp = false
	c.state = StateConnecting
	status := c.statusLocked()

	c.mu.Unlock()

	c.logger.Info("connecting", zap.String("endpoint", endpoint), zap.Uint64("generation", generation))
	c.notify(status)

	transport.Open(c.ctx, endpoint, &transportEvents{c, generation})

	return StateConnecting, nil
}

// Close requests a clean close of the current transport. No reconnect is
// armed for a close that was requested here.
func (c *Controller) Close(code int, reason string) {
	c.mu.Lock()

	if c.state != StateOpen && c.state != StateConnecting {
		c.mu.Unlock()

		return
	}

	c.cleanCloseRequested = true
	c.state = StateClosing
	transport := c.transport
	status := c.statusLocked()

	c.mu.Unlock()

	c.notify(status)

	if err := transport.Close(code, reason); err != nil {
		c.logger.Debug("error closing transport", zap.Error(err))
	}
}

// Teardown detaches the controller for good: the pending reconnect is
// cancelled, the transport is closed and any later transport event is
// ignored.
func (c *Controller) Teardown() {
	c.mu.Lock()

	if c.tornDown {
		c.mu.Unlock()

		return
	}

	c.tornDown = true
	c.scheduler.Cancel(c.pending)
	c.pending = nil

	transport := c.transport
	closeNeeded := c.state == StateOpen || c.state == StateConnecting
	c.transport = nil
	c.state = StateClosed
	status := c.statusLocked()

	c.mu.Unlock()

	if closeNeeded && transport != nil {
		if err := transport.Close(CloseNormalClosure, "teardown"); err != nil {
			c.logger.Debug("error closing transport", zap.Error(err))
		}
	}

	c.logger.Debug("connection controller torn down")
	c.notify(status)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.statusLocked()
}

// PendingReconnect returns the armed reconnect handle, or nil.
func (c *Controller) PendingReconnect() *reconnect.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pending
}

// Endpoint returns the endpoint of the last connect.
func (c *Controller) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.endpoint
}

func (c *Controller) retry() {
	c.mu.Lock()

	if c.tornDown {
		c.mu.Unlock()

		return
	}

	c.pending = nil
	endpoint, authToken := c.endpoint, c.authToken

	c.mu.Unlock()

	if _, err := c.Connect(endpoint, authToken); err != nil {
		c.logger.Warn("reconnect failed", zap.Error(err))
	}
}

func (c *Controller) handleOpen(generation uint64) {
	c.mu.Lock()

	// a close requested while dialing keeps the controller in Closing
	if !c.isCurrentLocked(generation) || c.state != StateConnecting {
		c.mu.Unlock()

		return
	}

	c.state = StateOpen
	c.scheduler.Reset()
	c.pending = nil
	c.gaveUp = false

	transport, authToken := c.transport, c.authToken
	status := c.statusLocked()

	c.mu.Unlock()

	metrics.ConnectionsOpened.Inc()
	c.logger.Info("connection open", zap.Uint64("generation", generation))

	if authToken != "" {
		c.sendAuth(transport, authToken)
	}

	c.notify(status)
}

func (c *Controller) sendAuth(transport Transport, authToken string) {
	payload, err := json.Marshal(authFrame{Type: "auth", Token: authToken})
	if err != nil {
		c.logger.Error("failed to encode auth frame", zap.Error(err))

		return
	}

	if err := transport.Send(payload); err != nil {
		c.logger.Warn("failed to send auth frame", zap.Error(err))
	}
}

func (c *Controller) handleMessage(generation uint64, payload []byte) {
	c.mu.Lock()
	current := c.isCurrentLocked(generation)
	c.mu.Unlock()

	if !current {
		return
	}

	if err := c.dispatcher.Dispatch(payload); err != nil {
		c.logger.Warn("dropping inbound message", zap.Error(err))
	}
}

func (c *Controller) handleClose(generation uint64, code int, reason string) {
	c.mu.Lock()

	if !c.isCurrentLocked(generation) {
		c.mu.Unlock()

		return
	}

	c.state = StateClosed
	c.transport = nil

	clean := c.cleanCloseRequested || code == CloseNormalClosure

	var (
		handle    *reconnect.Handle
		scheduled bool
	)
	if !clean {
		handle, scheduled = c.scheduler.ScheduleNext(c.retry)
		if scheduled {
			c.pending = handle
		} else {
			c.gaveUp = true
		}
	}

	status := c.statusLocked()

	c.mu.Unlock()

	fields := []zap.Field{
		zap.Int("code", code),
		zap.String("reason", reason),
		zap.Uint64("generation", generation),
	}

	switch {
	case clean:
		metrics.ConnectionsClosed.WithLabelValues("clean").Inc()
		c.logger.Info("connection closed", fields...)
	case scheduled:
		metrics.ConnectionsClosed.WithLabelValues("abnormal").Inc()
		metrics.ReconnectsScheduled.Inc()
		c.logger.Warn("connection lost, reconnect scheduled",
			append(fields,
				zap.Int("attempt", handle.Attempt()),
				zap.Duration("delay", handle.Delay()))...)
	default:
		metrics.ConnectionsClosed.WithLabelValues("abnormal").Inc()
		metrics.ReconnectGiveUps.Inc()
		c.logger.Error("connection lost, reconnect attempts exhausted", fields...)
	}

	c.notify(status)
}

func (c *Controller) handleError(generation uint64, err error) {
	c.mu.Lock()
	current := c.isCurrentLocked(generation)
	c.mu.Unlock()

	if !current {
		return
	}

	// a close event follows every transport error
	c.logger.Warn("transport error", zap.Error(err), zap.Uint64("generation", generation))
}

// IMPORTANT: It must be called only when c.mu is held.
func (c *Controller) isCurrentLocked(generation uint64) bool {
	return !c.tornDown && generation == c.generation
}

// IMPORTANT: It must be called only when c.mu is held.
func (c *Controller) statusLocked() Status {
	status := Status{
		State:            c.state,
		ReconnectPending: c.pending != nil,
		Attempt:          c.scheduler.Attempt(),
		GaveUp:           c.gaveUp,
	}

	if connected := status.Connected(); connected != c.reportedConnected {
		c.reportedConnected = connected
		if connected {
			metrics.Connected.Inc()
		} else {
			metrics.Connected.Dec()
		}
	}

	return status
}

func (c *Controller) notify(status Status) {
	c.observerMu.Lock()
	observer := c.observer
	c.observerMu.Unlock()

	if observer != nil {
		observer(status)
	}
}

type transportEvents struct {
	controller *Controller
	generation uint64
}

func (e *transportEvents) OnOpen() {
	e.controller.handleOpen(e.generation)
}

func (e *transportEvents) OnMessage(payload []byte) {
	e.controller.handleMessage(e.generation, payload)
}

func (e *transportEvents) OnClose(code int, reason string) {
	e.controller.handleClose(e.generation, code, reason)
}

func (e *transportEvents) OnError(err error) {
	e.controller.handleError(e.generation, err)
}
