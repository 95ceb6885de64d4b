package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval is how often a ping is written. The read deadline is twice
	// the interval and is extended by every pong and message. Zero disables
	// keepalive.
	PingInterval time.Duration
	// CloseTimeout bounds how long Close waits for the peer's close frame
	// before dropping the connection.
	CloseTimeout time.Duration
	ReadLimit    int64
}

func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		CloseTimeout:     time.Second,
		ReadLimit:        1 << 20,
	}
}

func NewWebSocketTransportFactory(logger *zap.Logger, cfg WebSocketConfig) TransportFactory {
	return func() Transport {
		return NewWebSocketTransport(logger, cfg)
	}
}

// WebSocketTransport is a single use Transport backed by a gorilla websocket
// connection.
type WebSocketTransport struct {
	cfg    WebSocketConfig
	logger *zap.Logger
	dialer *websocket.Dialer

	mu             sync.Mutex
	conn           *websocket.Conn
	events         Events
	cancel         context.CancelFunc
	closeRequested bool
	closeCode      int
	closeReason    string

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func NewWebSocketTransport(logger *zap.Logger, cfg WebSocketConfig) *WebSocketTransport {
	return &WebSocketTransport{
		cfg:    cfg,
		logger: logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		done: make(chan struct{}),
	}
}

func (t *WebSocketTransport) Open(ctx context.Context, endpoint string, events Events) {
	dialCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.events = events
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(dialCtx, endpoint)
}

func (t *WebSocketTransport) Send(payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		return err
	}

	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Close writes a close frame and lets the read loop observe the peer's
// answer. The connection is dropped if no answer arrives within
// CloseTimeout. A close requested while dialing aborts the dial.
func (t *WebSocketTransport) Close(code int, reason string) error {
	t.mu.Lock()

	if t.closeRequested {
		t.mu.Unlock()

		return nil
	}

	t.closeRequested = true
	t.closeCode = code
	t.closeReason = reason
	conn, cancel := t.conn, t.cancel

	t.mu.Unlock()

	if conn == nil {
		if cancel != nil {
			cancel()
		}

		return nil
	}

	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(t.cfg.WriteTimeout),
	)

	time.AfterFunc(t.cfg.CloseTimeout, func() {
		conn.Close()
	})

	return err
}

func (t *WebSocketTransport) run(ctx context.Context, endpoint string) {
	t.mu.Lock()
	aborted := t.closeRequested
	t.mu.Unlock()

	if aborted {
		t.finish(CloseAbnormalClosure, "closed before dial")

		return
	}

	conn, resp, err := t.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if !t.isCloseRequested() {
			t.events.OnError(err)
		}
		t.finish(CloseAbnormalClosure, err.Error())

		return
	}

	t.mu.Lock()
	if t.closeRequested {
		code, reason := t.closeCode, t.closeReason
		t.mu.Unlock()

		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(t.cfg.WriteTimeout),
		)
		conn.Close()
		t.finish(code, reason)

		return
	}
	t.conn = conn
	t.mu.Unlock()

	if t.cfg.ReadLimit > 0 {
		conn.SetReadLimit(t.cfg.ReadLimit)
	}

	if t.cfg.PingInterval > 0 {
		t.extendReadDeadline(conn)
		conn.SetPongHandler(func(string) error {
			t.extendReadDeadline(conn)

			return nil
		})

		go t.pingLoop(conn)
	}

	t.logger.Debug("websocket connected", zap.String("endpoint", endpoint))
	t.events.OnOpen()

	t.readLoop(conn)
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code, reason := closeStatus(err)

			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) && !t.isCloseRequested() {
				t.events.OnError(err)
			}

			t.finish(code, reason)

			return
		}

		if t.cfg.PingInterval > 0 {
			t.extendReadDeadline(conn)
		}

		t.events.OnMessage(data)
	}
}

func (t *WebSocketTransport) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.cfg.WriteTimeout))
			if err != nil {
				t.logger.Debug("failed to write ping", zap.Error(err))

				return
			}
		}
	}
}

func (t *WebSocketTransport) extendReadDeadline(conn *websocket.Conn) {
	if err := conn.SetReadDeadline(time.Now().Add(2 * t.cfg.PingInterval)); err != nil {
		t.logger.Debug("failed to set read deadline", zap.Error(err))
	}
}

func (t *WebSocketTransport) isCloseRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closeRequested
}

// finish releases the connection and reports the close exactly once. A
// connection dropped after a requested close reports the requested code.
func (t *WebSocketTransport) finish(code int, reason string) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		if t.closeRequested && code == CloseAbnormalClosure {
			code, reason = t.closeCode, t.closeReason
		}
		conn, cancel := t.conn, t.cancel
		t.conn = nil
		t.mu.Unlock()

		close(t.done)

		if cancel != nil {
			cancel()
		}

		if conn != nil {
			conn.Close()
		}

		t.events.OnClose(code, reason)
	})
}

func closeStatus(err error) (int, string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Text
	}

	return CloseAbnormalClosure, err.Error()
}
