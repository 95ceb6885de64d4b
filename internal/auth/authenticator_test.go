package auth

import (
	"testing"
	"time"

	"github.com/goevery/realtimesync/internal/ierr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func signClaims(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	assert.NoError(t, err)

	return tokenString
}

func TestAuthenticator_AuthenticateJWT(t *testing.T) {
	authenticator := NewAuthenticator("test-secret", []string{"test-api-key"})

	t.Run("valid jwt", func(t *testing.T) {
		tokenString := signClaims(t, jwt.MapClaims{
			"sub":       "test-user",
			"exp":       time.Now().Add(time.Hour).Unix(),
			"iat":       time.Now().Unix(),
			"aud":       "realtime",
			"resources": []string{"customers:CUST-1"},
			"scope":     []string{"subscribe"},
		}, "test-secret")

		auth, err := authenticator.AuthenticateJWT(tokenString)

		assert.NoError(t, err)
		assert.NotNil(t, auth)
		assert.Equal(t, "test-user", auth.Subject)
		assert.Equal(t, []string{"customers:CUST-1"}, auth.Resources)
		assert.Equal(t, []string{"subscribe"}, auth.Scope)
		assert.True(t, auth.IsSubscriber())
		assert.False(t, auth.IsAdmin)
	})

	t.Run("invalid jwt signature", func(t *testing.T) {
		tokenString := signClaims(t, jwt.MapClaims{
			"sub":       "test-user",
			"exp":       time.Now().Add(time.Hour).Unix(),
			"iat":       time.Now().Unix(),
			"aud":       "realtime",
			"resources": []string{"customers"},
		}, "invalid-secret")

		auth, err := authenticator.AuthenticateJWT(tokenString)

		assert.Error(t, err)
		assert.Nil(t, auth)
		assert.IsType(t, ierr.Error{}, err)
		assert.Equal(t, ierr.ErrorCodeUnauthenticated, err.(ierr.Error).Code)
	})

	t.Run("expired jwt", func(t *testing.T) {
		tokenString := signClaims(t, jwt.MapClaims{
			"sub":       "test-user",
			"exp":       time.Now().Add(-time.Hour).Unix(),
			"iat":       time.Now().Add(-2 * time.Hour).Unix(),
			"aud":       "realtime",
			"resources": []string{"customers"},
		}, "test-secret")

		auth, err := authenticator.AuthenticateJWT(tokenString)

		assert.Error(t, err)
		assert.Nil(t, auth)
		assert.Equal(t, ierr.ErrorCodeUnauthenticated, ierr.CodeOf(err))
	})

	t.Run("wrong audience", func(t *testing.T) {
		tokenString := signClaims(t, jwt.MapClaims{
			"sub":       "test-user",
			"exp":       time.Now().Add(time.Hour).Unix(),
			"iat":       time.Now().Unix(),
			"aud":       "broadcaster",
			"resources": []string{"customers"},
		}, "test-secret")

		_, err := authenticator.AuthenticateJWT(tokenString)

		assert.Equal(t, ierr.ErrorCodeUnauthenticated, ierr.CodeOf(err))
	})

	t.Run("missing subject", func(t *testing.T) {
		tokenString := signClaims(t, jwt.MapClaims{
			"exp":       time.Now().Add(time.Hour).Unix(),
			"iat":       time.Now().Unix(),
			"aud":       "realtime",
			"resources": []string{"customers"},
		}, "test-secret")

		auth, err := authenticator.AuthenticateJWT(tokenString)

		assert.Error(t, err)
		assert.Nil(t, auth)
		assert.IsType(t, ierr.Error{}, err)
		assert.Equal(t, ierr.ErrorCodeInvalidArgument, err.(ierr.Error).Code)
		assert.EqualError(t, err, "InvalidArgument: token has no subject")
	})

	t.Run("missing resources", func(t *testing.T) {
		tokenString := signClaims(t, jwt.MapClaims{
			"sub": "test-user",
			"exp": time.Now().Add(time.Hour).Unix(),
			"iat": time.Now().Unix(),
			"aud": "realtime",
		}, "test-secret")

		auth, err := authenticator.AuthenticateJWT(tokenString)

		assert.Error(t, err)
		assert.Nil(t, auth)
		assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.CodeOf(err))
		assert.EqualError(t, err, "InvalidArgument: token grants no resources")
	})

	t.Run("malformed resource grant", func(t *testing.T) {
		for _, resource := range []string{"customers:", ":CUST-1", "customers:CUST-1:extra"} {
			tokenString := signClaims(t, jwt.MapClaims{
				"sub":       "test-user",
				"exp":       time.Now().Add(time.Hour).Unix(),
				"iat":       time.Now().Unix(),
				"aud":       "realtime",
				"resources": []string{"customers", resource},
			}, "test-secret")

			auth, err := authenticator.AuthenticateJWT(tokenString)

			assert.Nil(t, auth, resource)
			assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.CodeOf(err), resource)
			assert.ErrorContains(t, err, resource)
		}
	})
}

func TestAuthenticator_AuthenticateAPIKey(t *testing.T) {
	authenticator := NewAuthenticator("test-secret", []string{"test-api-key"})

	t.Run("valid api key", func(t *testing.T) {
		auth, err := authenticator.AuthenticateAPIKey("test-api-key")

		assert.NoError(t, err)
		assert.NotNil(t, auth)
		assert.Equal(t, PublisherSubject, auth.Subject)
		assert.True(t, auth.IsPublisher())
		assert.True(t, auth.IsAdmin)
	})

	t.Run("invalid api key", func(t *testing.T) {
		auth, err := authenticator.AuthenticateAPIKey("invalid-api-key")

		assert.Error(t, err)
		assert.Nil(t, auth)
		assert.IsType(t, ierr.Error{}, err)
		assert.Equal(t, ierr.ErrorCodeUnauthenticated, err.(ierr.Error).Code)
	})
}

func TestAuthentication_IsAuthorized(t *testing.T) {
	tests := []struct {
		name  string
		auth  Authentication
		topic string
		want  bool
	}{
		{"exact subject", Authentication{Subject: "u", Resources: []string{"customers:CUST-1"}}, "customers:CUST-1", true},
		{"other subject", Authentication{Subject: "u", Resources: []string{"customers:CUST-1"}}, "customers:CUST-2", false},
		{"subject grant does not cover feed", Authentication{Subject: "u", Resources: []string{"customers:CUST-1"}}, "customers", false},
		{"resource grant covers subjects", Authentication{Subject: "u", Resources: []string{"customers"}}, "customers:CUST-2", true},
		{"resource grant covers feed", Authentication{Subject: "u", Resources: []string{"customers"}}, "customers", true},
		{"other resource", Authentication{Subject: "u", Resources: []string{"customers"}}, "invoices", false},
		{"admin", Authentication{Subject: PublisherSubject, IsAdmin: true}, "invoices:INV-1", true},
		{"anonymous", Authentication{Resources: []string{"customers"}}, "customers", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.auth.IsAuthorized(tt.topic))
		})
	}
}
