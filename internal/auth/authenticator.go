package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goevery/realtimesync/internal/ierr"
	"github.com/golang-jwt/jwt/v5"
)

// Audience is the aud claim every sync client token must carry.
const Audience = "realtime"

// PublisherSubject identifies callers that authenticated with a relay API key.
const PublisherSubject = "publisher"

const (
	ScopeSubscribe = "subscribe"
	ScopePublish   = "publish"
)

// Claims is the body of a sync client token. Resources lists the topics the
// holder may follow, either a resource type or "type:subjectId".
type Claims struct {
	jwt.RegisteredClaims
	Resources []string `json:"resources,omitempty"`
	Scope     []string `json:"scope,omitempty"`
}

// Authentication is the resolved identity of a relay caller.
type Authentication struct {
	Subject   string
	Resources []string
	Scope     []string
	IsAdmin   bool
}

func (a *Authentication) IsPublisher() bool {
	return slices.Contains(a.Scope, ScopePublish)
}

func (a *Authentication) IsSubscriber() bool {
	return slices.Contains(a.Scope, ScopeSubscribe)
}

// IsAuthorized reports whether a may follow topic. A topic is either a
// resource type ("customers") or a resource type narrowed to one subject
// ("customers:CUST-1"); a grant on the resource type covers all its subjects.
func (a *Authentication) IsAuthorized(topic string) bool {
	if a.Subject == "" {
		return false
	}

	if a.IsAdmin {
		return true
	}

	if slices.Contains(a.Resources, topic) {
		return true
	}

	resourceType, _, narrowed := strings.Cut(topic, ":")

	return narrowed && slices.Contains(a.Resources, resourceType)
}

type contextKey string

const authenticationKey contextKey = "authentication"

func WithAuthentication(ctx context.Context, auth *Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey, auth)
}

func AuthenticationFromContext(ctx context.Context) (*Authentication, bool) {
	auth, ok := ctx.Value(authenticationKey).(*Authentication)
	return auth, ok
}

type Authenticator struct {
	secret    []byte
	apiKeys   []string
	jwtParser *jwt.Parser
}

func NewAuthenticator(secret string, apiKeys []string) *Authenticator {
	jwtParser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithAudience(Audience),
	)

	return &Authenticator{
		secret:    []byte(secret),
		apiKeys:   apiKeys,
		jwtParser: jwtParser,
	}
}

func (a *Authenticator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, fmt.Errorf("token signed with %v, want HMAC", token.Header["alg"]))
	}
	return a.secret, nil
}

// AuthenticateJWT resolves a sync client token. The token must name a subject
// and grant at least one well-formed resource.
func (a *Authenticator) AuthenticateJWT(tokenString string) (*Authentication, error) {
	claims := Claims{}

	_, err := a.jwtParser.ParseWithClaims(tokenString, &claims, a.keyFunc)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("token has no subject"))
	}

	if len(claims.Resources) == 0 {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("token grants no resources"))
	}

	for _, resource := range claims.Resources {
		if !validGrant(resource) {
			return nil, ierr.New(ierr.ErrorCodeInvalidArgument, fmt.Errorf("token grants malformed resource %q", resource))
		}
	}

	return &Authentication{
		Subject:   subject,
		Resources: claims.Resources,
		Scope:     claims.Scope,
		IsAdmin:   false,
	}, nil
}

// AuthenticateAPIKey resolves a relay API key to the publisher identity.
func (a *Authenticator) AuthenticateAPIKey(apiKey string) (*Authentication, error) {
	for _, key := range a.apiKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			return &Authentication{
				Subject: PublisherSubject,
				Scope:   []string{ScopePublish},
				IsAdmin: true,
			}, nil
		}
	}

	return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("api key not recognized"))
}

// validGrant accepts "type" and "type:subjectId" with both parts non-empty.
func validGrant(resource string) bool {
	resourceType, subjectId, narrowed := strings.Cut(resource, ":")
	if resourceType == "" {
		return false
	}

	return !narrowed || (subjectId != "" && !strings.Contains(subjectId, ":"))
}
