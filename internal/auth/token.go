package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goevery/realtimesync/internal/ierr"
	"github.com/golang-jwt/jwt/v5"
	toml "github.com/pelletier/go-toml/v2"
)

// TokenSource yields the bearer token sent in the auth frame. An empty token
// with a nil error means the connection proceeds unauthenticated.
type TokenSource interface {
	Token() (string, error)
}

type StaticToken string

func (s StaticToken) Token() (string, error) {
	return string(s), nil
}

// FileTokenStore keeps the token under the auth_token key of a TOML file.
// Other keys in the file are preserved on write.
type FileTokenStore struct {
	path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{
		path,
	}
}

func DefaultTokenStorePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}

	return filepath.Join(dir, "realtimesync", "storage.toml"), nil
}

func (s *FileTokenStore) Path() string {
	return s.path
}

func (s *FileTokenStore) Token() (string, error) {
	storage, err := s.load()
	if err != nil {
		return "", err
	}

	token, _ := storage["auth_token"].(string)

	return token, nil
}

func (s *FileTokenStore) Store(token string) error {
	storage, err := s.load()
	if err != nil {
		return err
	}

	storage["auth_token"] = token

	return s.save(storage)
}

func (s *FileTokenStore) Clear() error {
	storage, err := s.load()
	if err != nil {
		return err
	}

	delete(storage, "auth_token")

	return s.save(storage)
}

func (s *FileTokenStore) load() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}

		return nil, fmt.Errorf("cannot read token store: %w", err)
	}

	storage := map[string]any{}
	if err := toml.Unmarshal(data, &storage); err != nil {
		return nil, ierr.New(ierr.ErrorCodeFailedPrecondition, fmt.Errorf("cannot parse token store: %w", err))
	}

	return storage, nil
}

func (s *FileTokenStore) save(storage map[string]any) error {
	data, err := toml.Marshal(storage)
	if err != nil {
		return fmt.Errorf("cannot marshal token store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("cannot create token store directory: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write token store: %w", err)
	}

	return nil
}

// Issuer mints tokens the Authenticator accepts. It is meant for development
// and tests; production tokens come from the identity provider.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (i *Issuer) Issue(subject string, resources []string, scope []string) (string, error) {
	if subject == "" {
		return "", ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("subject is required"))
	}

	if len(resources) == 0 {
		return "", ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("at least one resource is required"))
	}

	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Resources: resources,
		Scope:     scope,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
