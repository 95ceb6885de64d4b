package server

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/goevery/realtimesync/internal/ierr"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Application close codes sent when the websocket handshake is rejected.
const (
	CloseUnauthenticated  = 4401
	ClosePermissionDenied = 4403
	CloseInvalidTopic     = 4400
)

func mapError(logger *zap.Logger, err error) ierr.Error {
	var handlerErr ierr.Error
	if errors.As(err, &handlerErr) {
		return handlerErr
	}

	logger.Error("error in handler", zap.Error(err))

	return ierr.New(ierr.ErrorCodeInternal, errors.New("internal error"))
}

func httpStatus(code ierr.ErrorCode) int {
	switch code {
	case ierr.ErrorCodeInvalidArgument:
		return http.StatusBadRequest
	case ierr.ErrorCodeNotFound:
		return http.StatusNotFound
	case ierr.ErrorCodeAlreadyExists:
		return http.StatusConflict
	case ierr.ErrorCodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case ierr.ErrorCodePermissionDenied:
		return http.StatusForbidden
	case ierr.ErrorCodeUnauthenticated:
		return http.StatusUnauthorized
	case ierr.ErrorCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func closeCode(code ierr.ErrorCode) int {
	switch code {
	case ierr.ErrorCodeUnauthenticated:
		return CloseUnauthenticated
	case ierr.ErrorCodePermissionDenied:
		return ClosePermissionDenied
	case ierr.ErrorCodeInvalidArgument:
		return CloseInvalidTopic
	default:
		return websocket.CloseInternalServerErr
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, err error) {
	mapped := mapError(logger, err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(mapped.Code))

	if err := json.NewEncoder(w).Encode(mapped); err != nil {
		logger.Error("failed to encode error response", zap.Error(err))
	}
}
