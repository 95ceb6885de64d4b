package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/goevery/realtimesync/internal/auth"
	"github.com/goevery/realtimesync/internal/handler"
	"github.com/goevery/realtimesync/internal/ierr"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type RESTServer struct {
	logger *zap.Logger

	publishHandler    handler.PublishHandlerInterface
	listEventsHandler handler.ListEventsHandlerInterface
	authenticator     *auth.Authenticator
}

func NewRESTServer(
	logger *zap.Logger,
	publishHandler handler.PublishHandlerInterface,
	listEventsHandler handler.ListEventsHandlerInterface,
	authenticator *auth.Authenticator,
) *RESTServer {
	return &RESTServer{
		logger,
		publishHandler,
		listEventsHandler,
		authenticator,
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	router.HandleFunc("/publish", s.withAuthentication(s.handlePublish)).Methods("POST", "OPTIONS")
	router.HandleFunc("/events", s.withAuthentication(s.handleListEvents)).Methods("GET", "OPTIONS")
}

// withAuthentication accepts an API key or a JWT as bearer token and stores
// the result in the request context.
func (s *RESTServer) withAuthentication(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(s.logger, w, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("bearer token required")))
			return
		}

		authentication, err := s.authenticator.AuthenticateAPIKey(token)
		if err != nil {
			authentication, err = s.authenticator.AuthenticateJWT(token)
		}
		if err != nil {
			writeError(s.logger, w, ierr.New(ierr.ErrorCodeUnauthenticated, err))
			return
		}

		next(w, r.WithContext(auth.WithAuthentication(r.Context(), authentication)))
	}
}

func (s *RESTServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	var publishRequest handler.PublishRequest
	err := json.NewDecoder(r.Body).Decode(&publishRequest)
	if err != nil {
		writeError(s.logger, w, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid request body")))
		return
	}

	message, err := s.publishHandler.Handle(r.Context(), publishRequest)
	if err != nil {
		s.logger.Warn("failed to handle publish request", zap.Error(err))
		writeError(s.logger, w, err)
		return
	}

	s.writeJSON(w, message)
}

func (s *RESTServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	listRequest := handler.ListEventsRequest{
		ResourceType: query.Get("resourceType"),
		SubjectId:    query.Get("subjectId"),
	}

	if after := query.Get("after"); after != "" {
		t, err := time.Parse(time.RFC3339Nano, after)
		if err != nil {
			writeError(s.logger, w, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("after must be an RFC 3339 timestamp")))
			return
		}
		listRequest.After = t
	}

	if limit := query.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			writeError(s.logger, w, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("limit must be an integer")))
			return
		}
		listRequest.Limit = n
	}

	response, err := s.listEventsHandler.Handle(r.Context(), listRequest)
	if err != nil {
		writeError(s.logger, w, err)
		return
	}

	s.writeJSON(w, response)
}

func (s *RESTServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}
