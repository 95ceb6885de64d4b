package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/goevery/realtimesync/internal/auth"
	"github.com/goevery/realtimesync/internal/broadcaster"
	"github.com/goevery/realtimesync/internal/handler"
	"github.com/goevery/realtimesync/internal/logging"
	"github.com/goevery/realtimesync/internal/persistence"
	"github.com/goevery/realtimesync/internal/persistence/mongodb"
	"github.com/goevery/realtimesync/internal/server"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

type App struct {
	logger          *zap.Logger
	settings        Settings
	engine          persistence.Engine
	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
}

func NewApp(logger *zap.Logger, settings Settings, engine persistence.Engine) *App {
	originChecker := server.NewOriginChecker(settings.AllowedOriginList())
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker.Check,
		EnableCompression: true,
	}

	authenticator := auth.NewAuthenticator(settings.JWTSecret, settings.APIKeyList())

	topicValidator := handler.NewTopicValidator()
	registry := broadcaster.NewInMemoryRegistry(logger)

	authHandler := handler.NewAuthHandler(authenticator)
	subscribeHandler := handler.NewSubscribeHandler(topicValidator, registry, settings.AuthRequired)
	publishHandler := handler.NewPublishHandler(topicValidator, engine, registry)
	listEventsHandler := handler.NewListEventsHandler(topicValidator, engine)

	websocketConfig := server.DefaultWebSocketConfig()
	websocketConfig.AuthRequired = settings.AuthRequired
	websocketConfig.AuthTimeout = settings.AuthTimeout()
	websocketConfig.SendBufferSize = settings.SendBufferSize

	websocketServer := server.NewWebSocketServer(
		logger,
		websocketUpgrader,
		registry,
		websocketConfig,
		topicValidator,
		authHandler,
		subscribeHandler,
	)
	restServer := server.NewRESTServer(
		logger,
		publishHandler,
		listEventsHandler,
		authenticator,
	)

	return &App{
		logger,
		settings,
		engine,
		websocketServer,
		restServer,
	}
}

func (a *App) setup(ctx context.Context) error {
	setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := a.engine.Setup(setupCtx)
	if err != nil {
		return fmt.Errorf("persistence setup: %w", err)
	}

	a.startHttpServer(ctx)

	return nil
}

func (a *App) startHttpServer(ctx context.Context) {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	address := fmt.Sprintf("0.0.0.0:%d", a.settings.Port)

	root := mux.NewRouter()
	root.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router := root.
		PathPrefix(a.settings.BasePath).
		Subrouter()

	a.websocketServer.Register(router)
	a.restServer.Register(router)

	httpServer := &http.Server{
		Addr:    address,
		Handler: root,
	}

	a.logger.Info("starting http server",
		zap.String("address", address),
		zap.String("basePath", a.settings.BasePath),
		zap.Bool("authRequired", a.settings.AuthRequired))

	go func() {
		err := httpServer.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("failed to start http server",
				zap.Error(err))
		}
	}()

	<-notifyCtx.Done()

	a.logger.Info("stopping http server")

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCtxCancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Fatal("http server shutdown failed",
			zap.Error(err))
	}

	a.logger.Info("http server stopped")
}

// newPersistenceEngine returns a MongoDB engine when a URI is configured and
// an in-memory ring otherwise. The returned func releases the engine.
func newPersistenceEngine(logger *zap.Logger, settings Settings) (persistence.Engine, func(), error) {
	if settings.MongoDBURI == "" {
		logger.Info("using in-memory event store",
			zap.Int("capacity", settings.EventBufferSize))

		return persistence.NewMemoryEngine(settings.EventBufferSize), func() {}, nil
	}

	client, err := mongo.Connect(options.Client().ApplyURI(settings.MongoDBURI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongodb connect: %w", err)
	}

	logger.Info("using mongodb event store",
		zap.String("database", settings.MongoDBDatabase))

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Disconnect(ctx); err != nil {
			logger.Warn("mongodb disconnect failed", zap.Error(err))
		}
	}

	return mongodb.NewPersistenceEngine(client, settings.MongoDBDatabase), release, nil
}

func main() {
	ctx := context.Background()

	settings, err := LoadSettings()
	if err != nil {
		log.Fatalf("failed to parse settings from environment: %v", err)
	}

	logger, err := logging.New(settings.LogEncoding, settings.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	engine, release, err := newPersistenceEngine(logger, settings)
	if err != nil {
		logger.Fatal("failed to create persistence engine", zap.Error(err))
	}
	defer release()

	app := NewApp(logger, settings, engine)

	err = app.setup(ctx)
	if err != nil {
		logger.Fatal("failed to setup", zap.Error(err))
	}
}
