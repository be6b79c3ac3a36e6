// Package auth provides the bearer-token session abstraction consumed by
// the market-data client, plus a client for the hosted auth provider.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrNoSession is returned when no token is held and none can be obtained.
var ErrNoSession = errors.New("auth: no active session")

// Session supplies bearer tokens for authenticated backend requests.
// Token returns the current token, or ErrNoSession when none is held.
// Refresh obtains a new token from the provider, replacing the old one.
type Session interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// ---------------------------------------------------------------------------
// StaticSession
// ---------------------------------------------------------------------------

// StaticSession holds a fixed token. Refresh always fails, so a 401 against
// a static token surfaces as an authentication failure.
type StaticSession struct {
	token string
}

// NewStaticSession creates a session around a pre-issued token. An empty
// token yields a session that reports ErrNoSession.
func NewStaticSession(token string) *StaticSession {
	return &StaticSession{token: token}
}

// Token returns the fixed token.
func (s *StaticSession) Token(_ context.Context) (string, error) {
	if s.token == "" {
		return "", ErrNoSession
	}
	return s.token, nil
}

// Refresh fails: a static token cannot be renewed.
func (s *StaticSession) Refresh(_ context.Context) (string, error) {
	return "", fmt.Errorf("auth: static token cannot be refreshed")
}

// ---------------------------------------------------------------------------
// PasswordSession
// ---------------------------------------------------------------------------

// PasswordSession authenticates against a hosted auth provider using the
// password grant, and renews via the refresh-token grant. It is safe for
// concurrent use.
type PasswordSession struct {
	baseURL    string
	apiKey     string
	email      string
	password   string
	httpClient *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// NewPasswordSession creates a session client for the auth provider at
// baseURL. The provider-issued API key is sent with every request; email
// and password are used for the initial grant.
func NewPasswordSession(baseURL, apiKey, email, password string) *PasswordSession {
	return &PasswordSession{
		baseURL:    baseURL,
		apiKey:     apiKey,
		email:      email,
		password:   password,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Token returns the current access token, performing the initial password
// grant on first use.
func (s *PasswordSession) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	tok := s.accessToken
	s.mu.Unlock()
	if tok != "" {
		return tok, nil
	}
	return s.signIn(ctx)
}

// Refresh exchanges the held refresh token for a new access token. Without
// a refresh token it falls back to a fresh password grant.
func (s *PasswordSession) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	refresh := s.refreshToken
	s.mu.Unlock()

	if refresh == "" {
		return s.signIn(ctx)
	}

	body := map[string]string{"refresh_token": refresh}
	tr, err := s.grant(ctx, "refresh_token", body)
	if err != nil {
		return "", err
	}
	return tr.AccessToken, nil
}

func (s *PasswordSession) signIn(ctx context.Context) (string, error) {
	if s.email == "" || s.password == "" {
		return "", ErrNoSession
	}
	body := map[string]string{"email": s.email, "password": s.password}
	tr, err := s.grant(ctx, "password", body)
	if err != nil {
		return "", err
	}
	return tr.AccessToken, nil
}

// grant performs one token request against the provider and stores the
// returned tokens.
func (s *PasswordSession) grant(ctx context.Context, grantType string, body map[string]string) (*tokenResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s grant: %w", grantType, err)
	}

	u := s.baseURL + "/auth/v1/token?grant_type=" + grantType
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building %s grant request: %w", grantType, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s grant: %w", grantType, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s grant: provider returned status %d", grantType, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decoding %s grant response: %w", grantType, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%s grant: provider returned no access token", grantType)
	}

	s.mu.Lock()
	s.accessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		s.refreshToken = tr.RefreshToken
	}
	s.mu.Unlock()

	return &tr, nil
}
