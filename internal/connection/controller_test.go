package connection_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goevery/realtimesync/internal/connection"
	"github.com/goevery/realtimesync/internal/connection/connectiontest"
	"github.com/goevery/realtimesync/internal/ierr"
	"github.com/goevery/realtimesync/internal/reconnect"
	"github.com/goevery/realtimesync/internal/reconnect/reconnecttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const endpoint = "ws://localhost:8000/customers/CUST-1/updates"

type recordingDispatcher struct {
	mu       sync.Mutex
	payloads []string
	err      error
}

func (d *recordingDispatcher) Dispatch(payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.payloads = append(d.payloads, string(payload))

	return d.err
}

func (d *recordingDispatcher) Payloads() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.payloads...)
}

type harness struct {
	clock      *reconnecttest.Clock
	dialer     *connectiontest.Dialer
	dispatcher *recordingDispatcher
	scheduler  *reconnect.Scheduler
	controller *connection.Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger, _ := zap.NewDevelopment()

	h := &harness{
		clock:      reconnecttest.NewClock(),
		dialer:     connectiontest.NewDialer(),
		dispatcher: &recordingDispatcher{},
	}
	h.scheduler = reconnect.NewScheduler(h.clock, reconnect.DefaultPolicy())
	h.controller = connection.NewController(
		context.Background(),
		logger,
		h.dialer.Factory(),
		h.dispatcher,
		h.scheduler,
	)

	return h
}

func (h *harness) connect(t *testing.T, authToken string) *connectiontest.Transport {
	t.Helper()

	state, err := h.controller.Connect(endpoint, authToken)
	require.NoError(t, err)
	require.Equal(t, connection.StateConnecting, state)

	return h.dialer.Last()
}

// advance moves the clock by d and waits until the reconnect it fires has
// opened transport number n.
func (h *harness) advance(t *testing.T, d time.Duration, n int) *connectiontest.Transport {
	t.Helper()

	h.clock.Add(d)

	require.Eventually(t, func() bool {
		return h.dialer.Opened(n)
	}, time.Second, time.Millisecond)

	return h.dialer.Last()
}

func TestController_Connect(t *testing.T) {
	t.Run("missing endpoint", func(t *testing.T) {
		h := newHarness(t)

		state, err := h.controller.Connect("", "")

		require.Error(t, err)
		assert.True(t, ierr.HasCode(err, ierr.ErrorCodeFailedPrecondition))
		assert.Equal(t, connection.StateIdle, state)
		assert.Equal(t, 0, h.dialer.Count())
	})

	t.Run("opens transport to endpoint", func(t *testing.T) {
		h := newHarness(t)

		transport := h.connect(t, "")

		assert.Equal(t, endpoint, transport.Endpoint())
		assert.Equal(t, connection.StateConnecting, h.controller.State())

		transport.EmitOpen()

		assert.Equal(t, connection.StateOpen, h.controller.State())
		assert.True(t, h.controller.Status().Connected())
	})

	t.Run("no second transport while connecting or open", func(t *testing.T) {
		h := newHarness(t)

		transport := h.connect(t, "")

		state, err := h.controller.Connect(endpoint, "")
		require.NoError(t, err)
		assert.Equal(t, connection.StateConnecting, state)

		transport.EmitOpen()

		state, err = h.controller.Connect(endpoint, "")
		require.NoError(t, err)
		assert.Equal(t, connection.StateOpen, state)

		assert.Equal(t, 1, h.dialer.Count())
	})
}

func TestController_AuthFrame(t *testing.T) {
	t.Run("sent first after open", func(t *testing.T) {
		h := newHarness(t)

		transport := h.connect(t, "secret-token")
		assert.Empty(t, transport.Sent())

		transport.EmitOpen()

		sent := transport.Sent()
		require.Len(t, sent, 1)
		assert.JSONEq(t, `{"type":"auth","token":"secret-token"}`, string(sent[0]))
	})

	t.Run("skipped without token", func(t *testing.T) {
		h := newHarness(t)

		transport := h.connect(t, "")
		transport.EmitOpen()

		assert.Empty(t, transport.Sent())
	})

	t.Run("send failure keeps connection open", func(t *testing.T) {
		h := newHarness(t)

		transport := h.connect(t, "secret-token")
		transport.FailSends(connection.ErrNotConnected)
		transport.EmitOpen()

		assert.Equal(t, connection.StateOpen, h.controller.State())
	})
}

func TestController_Messages(t *testing.T) {
	h := newHarness(t)

	transport := h.connect(t, "")
	transport.EmitOpen()

	transport.EmitMessage(`{"type":"customer_updated","subjectId":"CUST-1"}`)
	transport.EmitMessage(`{"type":"customer_created"}`)

	assert.Equal(t, []string{
		`{"type":"customer_updated","subjectId":"CUST-1"}`,
		`{"type":"customer_created"}`,
	}, h.dispatcher.Payloads())

	t.Run("dispatch error is not fatal", func(t *testing.T) {
		h.dispatcher.err = errors.New("malformed")

		assert.NotPanics(t, func() {
			transport.EmitMessage(`not json`)
		})
		assert.Equal(t, connection.StateOpen, h.controller.State())
	})
}

func TestController_ReconnectBackoffUntilGiveUp(t *testing.T) {
	h := newHarness(t)

	transport := h.connect(t, "")
	transport.EmitOpen()
	transport.EmitClose(connection.CloseAbnormalClosure, "")

	for i := 0; i < 5; i++ {
		status := h.controller.Status()
		require.True(t, status.ReconnectPending, "attempt %d", i+1)
		assert.Equal(t, i+1, status.Attempt)
		assert.Equal(t, connection.StateClosed, status.State)

		h.advance(t, h.clock.Requested()[i], i+2).EmitClose(connection.CloseAbnormalClosure, "")
	}

	assert.Equal(t, []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}, h.clock.Requested())

	status := h.controller.Status()
	assert.True(t, status.GaveUp)
	assert.False(t, status.ReconnectPending)
	assert.Equal(t, connection.StateClosed, status.State)

	h.clock.Add(time.Hour)
	assert.Equal(t, 6, h.dialer.Count())

	t.Run("explicit connect starts a new cycle", func(t *testing.T) {
		h.scheduler.Reset()

		transport := h.connect(t, "")
		assert.False(t, h.controller.Status().GaveUp)

		transport.EmitOpen()
		transport.EmitClose(connection.CloseAbnormalClosure, "")

		assert.True(t, h.controller.Status().ReconnectPending)
		assert.Equal(t, time.Second, h.controller.PendingReconnect().Delay())
	})
}

func TestController_OpenResetsBackoff(t *testing.T) {
	h := newHarness(t)

	transport := h.connect(t, "")
	transport.EmitOpen()
	transport.EmitClose(connection.CloseAbnormalClosure, "")

	transport = h.advance(t, time.Second, 2)
	transport.EmitClose(connection.CloseAbnormalClosure, "")
	require.Equal(t, 2, h.controller.Status().Attempt)

	transport = h.advance(t, 2*time.Second, 3)
	transport.EmitOpen()

	assert.Equal(t, 0, h.controller.Status().Attempt)

	transport.EmitClose(connection.CloseAbnormalClosure, "")

	handle := h.controller.PendingReconnect()
	require.NotNil(t, handle)
	assert.Equal(t, 1, handle.Attempt())
	assert.Equal(t, time.Second, handle.Delay())
}

func TestController_CleanClose(t *testing.T) {
	t.Run("server close with normal code", func(t *testing.T) {
		h := newHarness(t)

		transport := h.connect(t, "")
		transport.EmitOpen()
		transport.EmitClose(connection.CloseNormalClosure, "bye")

		assert.Equal(t, connection.StateClosed, h.controller.State())
		assert.Nil(t, h.controller.PendingReconnect())
		assert.Empty(t, h.clock.Requested())
	})

	t.Run("requested close is never retried", func(t *testing.T) {
		h := newHarness(t)

		transport := h.connect(t, "")
		transport.EmitOpen()

		h.controller.Close(connection.CloseNormalClosure, "component unmounting")

		assert.Equal(t, connection.StateClosing, h.controller.State())
		closed, code, reason := transport.Closed()
		assert.True(t, closed)
		assert.Equal(t, connection.CloseNormalClosure, code)
		assert.Equal(t, "component unmounting", reason)

		transport.EmitClose(connection.CloseAbnormalClosure, "")

		assert.Equal(t, connection.StateClosed, h.controller.State())
		assert.Empty(t, h.clock.Requested())
	})

	t.Run("open after requested close is ignored", func(t *testing.T) {
		h := newHarness(t)

		transport := h.connect(t, "secret-token")
		h.controller.Close(connection.CloseNormalClosure, "bye")
		require.Equal(t, connection.StateClosing, h.controller.State())

		transport.EmitOpen()

		assert.Equal(t, connection.StateClosing, h.controller.State())
		assert.False(t, h.controller.Status().Connected())
		assert.Empty(t, transport.Sent())

		transport.EmitClose(connection.CloseNormalClosure, "bye")

		assert.Equal(t, connection.StateClosed, h.controller.State())
		assert.Empty(t, h.clock.Requested())
	})

	t.Run("close is a no-op when idle", func(t *testing.T) {
		h := newHarness(t)

		h.controller.Close(connection.CloseNormalClosure, "")

		assert.Equal(t, connection.StateIdle, h.controller.State())
	})
}

func TestController_Teardown(t *testing.T) {
	t.Run("cancels pending reconnect", func(t *testing.T) {
		h := newHarness(t)

		transport := h.connect(t, "")
		transport.EmitOpen()
		transport.EmitClose(connection.CloseAbnormalClosure, "")
		require.NotNil(t, h.controller.PendingReconnect())

		h.controller.Teardown()

		assert.Nil(t, h.controller.PendingReconnect())

		h.clock.Add(time.Minute)
		h.clock.FireLast()
		assert.Equal(t, 1, h.dialer.Count())
	})

	t.Run("ignores late transport events", func(t *testing.T) {
		h := newHarness(t)

		transport := h.connect(t, "")
		transport.EmitOpen()

		h.controller.Teardown()

		closed, _, _ := transport.Closed()
		assert.True(t, closed)

		transport.EmitMessage(`{"type":"customer_created"}`)
		transport.EmitClose(connection.CloseAbnormalClosure, "")

		assert.Empty(t, h.dispatcher.Payloads())
		assert.Empty(t, h.clock.Requested())
		assert.Equal(t, connection.StateClosed, h.controller.State())
	})

	t.Run("connect after teardown fails", func(t *testing.T) {
		h := newHarness(t)

		h.controller.Teardown()
		h.controller.Teardown()

		_, err := h.controller.Connect(endpoint, "")

		assert.ErrorIs(t, err, connection.ErrTornDown)
		assert.Equal(t, 0, h.dialer.Count())
	})
}

func TestController_SupersededTransport(t *testing.T) {
	h := newHarness(t)

	first := h.connect(t, "")
	first.EmitOpen()

	h.controller.Close(connection.CloseNormalClosure, "forced reconnect")
	second := h.connect(t, "")
	require.NotSame(t, first, second)

	first.EmitMessage(`{"type":"customer_created"}`)
	first.EmitClose(connection.CloseAbnormalClosure, "")

	assert.Empty(t, h.dispatcher.Payloads())
	assert.Equal(t, connection.StateConnecting, h.controller.State())
	assert.Empty(t, h.clock.Requested())

	second.EmitOpen()
	assert.Equal(t, connection.StateOpen, h.controller.State())
}

func TestController_ErrorThenClose(t *testing.T) {
	h := newHarness(t)

	transport := h.connect(t, "")
	transport.EmitError(errors.New("dial tcp: connection refused"))

	assert.Equal(t, connection.StateConnecting, h.controller.State())

	transport.EmitClose(connection.CloseAbnormalClosure, "")

	assert.True(t, h.controller.Status().ReconnectPending)
}

func TestController_OnStatusChange(t *testing.T) {
	h := newHarness(t)

	var states []connection.State
	h.controller.OnStatusChange(func(status connection.Status) {
		states = append(states, status.State)
	})

	transport := h.connect(t, "")
	transport.EmitOpen()
	transport.EmitClose(connection.CloseNormalClosure, "")

	assert.Equal(t, []connection.State{
		connection.StateConnecting,
		connection.StateOpen,
		connection.StateClosed,
	}, states)
}
