package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/goevery/realtimesync/internal/broadcaster"
	"github.com/goevery/realtimesync/internal/handler"
	"github.com/goevery/realtimesync/internal/ierr"
	"github.com/goevery/realtimesync/internal/metrics"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxCloseReasonLength = 123

type WebSocketConfig struct {
	AuthRequired   bool
	AuthTimeout    time.Duration
	SendBufferSize int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
}

func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		AuthRequired:   true,
		AuthTimeout:    10 * time.Second,
		SendBufferSize: 64,
		WriteTimeout:   5 * time.Second,
		PingInterval:   30 * time.Second,
	}
}

type WebSocketServer struct {
	logger   *zap.Logger
	upgrader *websocket.Upgrader
	registry broadcaster.Registry
	config   WebSocketConfig

	topicValidator   *handler.TopicValidator
	authHandler      handler.AuthHandlerInterface
	subscribeHandler handler.SubscribeHandlerInterface
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	registry broadcaster.Registry,
	config WebSocketConfig,
	topicValidator *handler.TopicValidator,
	authHandler handler.AuthHandlerInterface,
	subscribeHandler handler.SubscribeHandlerInterface,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		registry,
		config,
		topicValidator,
		authHandler,
		subscribeHandler,
	}
}

func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc("/{resourceType}/updates", s.handleUpdates).Methods("GET")
	router.HandleFunc("/{resourceType}/{subjectId}/updates", s.handleUpdates).Methods("GET")
}

func (s *WebSocketServer) handleUpdates(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	resourceType, subjectId := vars["resourceType"], vars["subjectId"]

	topic, err := s.topicValidator.Validate(resourceType, subjectId)
	if err != nil {
		writeError(s.logger, w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(4096)

	connection := broadcaster.NewConnection(topic, s.config.SendBufferSize)
	logger := s.logger.With(
		zap.String("connectionId", connection.Id),
		zap.String("topic", topic),
	)
	ctx := broadcaster.WithConnection(r.Context(), connection)

	if s.config.AuthRequired {
		if err := s.authenticate(ctx, conn); err != nil {
			s.reject(logger, conn, err)
			return
		}
	}

	_, err = s.subscribeHandler.Handle(ctx, handler.SubscribeRequest{
		ResourceType: resourceType,
		SubjectId:    subjectId,
	})
	if err != nil {
		s.reject(logger, conn, err)
		return
	}

	logger.Info("websocket connection subscribed",
		zap.String("userId", connection.GetUserId()))

	readerDone := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		s.writePump(logger, conn, connection, readerDone)
	}()

	s.readPump(logger, conn)
	close(readerDone)

	s.registry.Disconnect(connection.Id)
	<-writerDone

	logger.Info("websocket connection closed")
}

// authenticate waits for the auth frame. Any failure, including a timeout,
// is reported as Unauthenticated unless the handler denied permission.
func (s *WebSocketServer) authenticate(ctx context.Context, conn *websocket.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(s.config.AuthTimeout)); err != nil {
		return err
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("no auth frame received"))
	}

	var req handler.AuthRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("malformed auth frame"))
	}

	if _, err := s.authHandler.Handle(ctx, req); err != nil {
		if ierr.HasCode(err, ierr.ErrorCodePermissionDenied) {
			return err
		}

		return ierr.New(ierr.ErrorCodeUnauthenticated, err)
	}

	return conn.SetReadDeadline(time.Time{})
}

func (s *WebSocketServer) reject(logger *zap.Logger, conn *websocket.Conn, err error) {
	mapped := mapError(logger, err)

	metrics.RelayAuthFailures.WithLabelValues(string(mapped.Code)).Inc()
	logger.Warn("websocket connection rejected",
		zap.String("code", string(mapped.Code)),
		zap.Error(err))

	reason := mapped.Message
	if len(reason) > maxCloseReasonLength {
		reason = reason[:maxCloseReasonLength]
	}

	err = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(closeCode(mapped.Code), reason),
		time.Now().Add(s.config.WriteTimeout),
	)
	if err != nil {
		logger.Debug("failed to write close frame", zap.Error(err))
	}
}

// readPump drains client frames until the connection fails or closes. Clients
// only ever send the auth frame, which is ignored past the handshake.
func (s *WebSocketServer) readPump(logger *zap.Logger, conn *websocket.Conn) {
	s.extendReadDeadline(conn)
	conn.SetPongHandler(func(string) error {
		s.extendReadDeadline(conn)

		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read failed", zap.Error(err))
			}

			return
		}

		s.extendReadDeadline(conn)
		logger.Debug("ignoring client frame", zap.Int("size", len(data)))
	}
}

func (s *WebSocketServer) writePump(
	logger *zap.Logger,
	conn *websocket.Conn,
	connection *broadcaster.Connection,
	readerDone <-chan struct{},
) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-connection.Send:
			if !ok {
				select {
				case <-readerDone:
				default:
					// dropped by the registry for being too slow
					_ = conn.WriteControl(
						websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "send buffer full"),
						time.Now().Add(s.config.WriteTimeout),
					)
					conn.Close()
				}

				return
			}

			if err := conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
				conn.Close()
				return
			}

			if err := conn.WriteJSON(message); err != nil {
				logger.Debug("failed to write message", zap.Error(err))
				conn.Close()
				return
			}
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout))
			if err != nil {
				logger.Debug("failed to write ping", zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}

func (s *WebSocketServer) extendReadDeadline(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(2 * s.config.PingInterval))
}
