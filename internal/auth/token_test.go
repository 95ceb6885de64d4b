package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goevery/realtimesync/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTokenStore(t *testing.T) {
	t.Run("missing file yields empty token", func(t *testing.T) {
		store := NewFileTokenStore(filepath.Join(t.TempDir(), "storage.toml"))

		token, err := store.Token()

		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("store and read back", func(t *testing.T) {
		store := NewFileTokenStore(filepath.Join(t.TempDir(), "nested", "storage.toml"))

		require.NoError(t, store.Store("abc.def.ghi"))

		token, err := store.Token()
		require.NoError(t, err)
		assert.Equal(t, "abc.def.ghi", token)

		require.NoError(t, store.Clear())

		token, err = store.Token()
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("preserves other keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "storage.toml")
		require.NoError(t, os.WriteFile(path, []byte("theme = \"dark\"\n"), 0o600))

		store := NewFileTokenStore(path)
		require.NoError(t, store.Store("tok"))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "theme")
		assert.Contains(t, string(data), "auth_token")
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "storage.toml")
		require.NoError(t, os.WriteFile(path, []byte("auth_token = "), 0o600))

		_, err := NewFileTokenStore(path).Token()

		assert.True(t, ierr.HasCode(err, ierr.ErrorCodeFailedPrecondition))
	})
}

func TestIssuer(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	authenticator := NewAuthenticator("test-secret", nil)

	t.Run("issued token authenticates", func(t *testing.T) {
		token, err := issuer.Issue("dev-user", []string{"customers:CUST-1"}, []string{ScopeSubscribe})
		require.NoError(t, err)

		auth, err := authenticator.AuthenticateJWT(token)

		require.NoError(t, err)
		assert.Equal(t, "dev-user", auth.Subject)
		assert.True(t, auth.IsAuthorized("customers:CUST-1"))
		assert.False(t, auth.IsAuthorized("customers:CUST-2"))
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		expired := NewIssuer("test-secret", time.Minute)
		expired.now = func() time.Time { return time.Now().Add(-time.Hour) }

		token, err := expired.Issue("dev-user", []string{"customers"}, nil)
		require.NoError(t, err)

		_, err = authenticator.AuthenticateJWT(token)

		assert.Equal(t, ierr.ErrorCodeUnauthenticated, ierr.CodeOf(err))
	})

	t.Run("requires subject and resources", func(t *testing.T) {
		_, err := issuer.Issue("", []string{"customers"}, nil)
		assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.CodeOf(err))

		_, err = issuer.Issue("dev-user", nil, nil)
		assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.CodeOf(err))
	})
}
