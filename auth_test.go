package dap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAuthenticatorNilCredsIsNilNoError(t *testing.T) {
	a, err := NewAuthenticator(nil)
	require.NoError(t, err)
	require.Nil(t, a)
}

func TestNewAuthenticatorRequiresClientIDAndTokenURL(t *testing.T) {
	_, err := NewAuthenticator(&AuthCredentials{})
	require.Error(t, err)
}

func TestNilAuthenticatorBearerTokenIsEmptyNoError(t *testing.T) {
	var a *Authenticator
	tok, err := a.BearerToken(context.Background())
	require.NoError(t, err)
	require.Empty(t, tok)
}

func TestAuthenticatorBearerTokenFetchesFromTokenURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	a, err := NewAuthenticator(&AuthCredentials{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     srv.URL,
	})
	require.NoError(t, err)
	require.NotNil(t, a)

	tok, err := a.BearerToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "test-token", tok)
}

func TestLoadAuthCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"client_id": "abc",
		"client_secret": "xyz",
		"token_url": "https://auth.example/token",
		"scopes": ["dns.resolve"]
	}`), 0o600))

	creds, err := LoadAuthCredentials(path)
	require.NoError(t, err)
	require.Equal(t, "abc", creds.ClientID)
	require.Equal(t, []string{"dns.resolve"}, creds.Scopes)
}
