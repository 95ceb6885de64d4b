package handler

import (
	"context"
	"errors"

	"github.com/goevery/realtimesync/internal/auth"
	"github.com/goevery/realtimesync/internal/broadcaster"
	"github.com/goevery/realtimesync/internal/ierr"
)

// AuthRequest is the first frame a client sends on an authenticated relay:
// {"type":"auth","token":"..."}.
type AuthRequest struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type AuthResponse struct {
	Subject string `json:"subject"`
}

type AuthHandlerInterface interface {
	Handle(ctx context.Context, req AuthRequest) (AuthResponse, error)
}

type AuthHandler struct {
	authenticator *auth.Authenticator
}

func NewAuthHandler(authenticator *auth.Authenticator) *AuthHandler {
	return &AuthHandler{
		authenticator,
	}
}

func (h *AuthHandler) Handle(ctx context.Context, req AuthRequest) (AuthResponse, error) {
	if req.Type != "auth" {
		return AuthResponse{}, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("expected an auth frame"))
	}

	if req.Token == "" {
		return AuthResponse{}, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("token is required"))
	}

	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return AuthResponse{}, errors.New("connection not found in context")
	}

	if connection.GetUserId() != "" {
		return AuthResponse{}, ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("connection is already authenticated"))
	}

	authentication, err := h.authenticator.AuthenticateJWT(req.Token)
	if err != nil {
		return AuthResponse{}, err
	}

	connection.SetAuthentication(authentication)

	return AuthResponse{
		Subject: authentication.Subject,
	}, nil
}
