package dap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2/clientcredentials"
)

// AuthCredentials is the shape of the credential_file config option: a
// JSON document naming the OAuth2 client-credentials flow parameters used
// to authenticate to the token_api endpoint (spec §4.6/§6).
type AuthCredentials struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURL     string   `json:"token_url"`
	Scopes       []string `json:"scopes"`
}

// LoadAuthCredentials reads and parses a credential_file.
func LoadAuthCredentials(path string) (*AuthCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credential file %s: %w", path, err)
	}
	var c AuthCredentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing credential file %s: %w", path, err)
	}
	return &c, nil
}

// Authenticator produces bearer tokens for upstream requests. A nil
// *Authenticator is valid and means "no auth configured": callers should
// skip setting the Authorization header entirely rather than branch on a
// boolean, mirroring the original's Option<Authenticator>.
type Authenticator struct {
	cfg *clientcredentials.Config
}

// NewAuthenticator builds an Authenticator from credentials, or returns
// (nil, nil) if creds is nil (auth not configured for this deployment).
func NewAuthenticator(creds *AuthCredentials) (*Authenticator, error) {
	if creds == nil {
		return nil, nil
	}
	if creds.ClientID == "" || creds.TokenURL == "" {
		return nil, fmt.Errorf("credential file missing client_id or token_url")
	}
	return &Authenticator{
		cfg: &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			Scopes:       creds.Scopes,
		},
	}, nil
}

// BearerToken returns a valid bearer token, fetching or refreshing one as
// needed. The token is never logged, since spec §4.6 treats it as
// sensitive material.
func (a *Authenticator) BearerToken(ctx context.Context) (string, error) {
	if a == nil {
		return "", nil
	}
	tok, err := a.cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}
	return tok.AccessToken, nil
}
