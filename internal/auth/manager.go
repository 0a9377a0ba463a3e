// Package auth manages the bearer token used for order API fetches: loading
// the persisted record, checking validity, and refreshing it over the OAuth
// refresh-token grant. The interactive browser login that mints the first
// token lives outside this program; auth only consumes its output and will
// never start a login itself.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trappiz/tesla-order-status/internal/engine"
	"github.com/trappiz/tesla-order-status/internal/store"
)

const (
	// DefaultTokenURL is the OAuth token endpoint.
	DefaultTokenURL = "https://auth.tesla.com/oauth2/v3/token"

	// ClientID is the public owner-API OAuth client.
	ClientID = "ownerapi"

	// expirySkew refreshes a token slightly before its expiry so a fetch
	// never starts with a token that dies mid-request.
	expirySkew = 30 * time.Second
)

// TokenStore persists the installation's single token record.
type TokenStore interface {
	LoadToken(ctx context.Context) (store.TokenRecord, error)
	SaveToken(ctx context.Context, rec store.TokenRecord) error
}

// Manager owns token lifecycle for one installation.
type Manager struct {
	store    TokenStore
	client   *http.Client
	tokenURL string
	clock    engine.Clock
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client used for refresh calls.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithTokenURL overrides the OAuth token endpoint.
func WithTokenURL(u string) Option {
	return func(m *Manager) { m.tokenURL = u }
}

// WithClock overrides the wall clock used for validity checks.
func WithClock(c engine.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// New creates a Manager over the given token store.
func New(st TokenStore, opts ...Option) *Manager {
	m := &Manager{
		store:    st,
		client:   &http.Client{Timeout: 30 * time.Second},
		tokenURL: DefaultTokenURL,
		clock:    engine.SystemClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load returns the stored token record. An absent token store is a
// MISSING_CREDENTIALS error; the caller must fall back to interactive login
// outside this program.
func (m *Manager) Load(ctx context.Context) (store.TokenRecord, error) {
	rec, err := m.store.LoadToken(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoToken) {
			return store.TokenRecord{}, engine.NewMissingCredentials()
		}
		return store.TokenRecord{}, fmt.Errorf("load token: %w", err)
	}
	return rec, nil
}

// EnsureValid returns a valid token record, transparently refreshing one
// that is at or near expiry. Refresh failure is an AUTH_ERROR.
func (m *Manager) EnsureValid(ctx context.Context, rec store.TokenRecord) (store.TokenRecord, error) {
	if m.valid(rec) {
		return rec, nil
	}
	if rec.RefreshToken == "" {
		return store.TokenRecord{}, engine.NewAuthError("token expired and no refresh token stored", nil)
	}

	slog.Info("access token expired, refreshing")
	refreshed, err := m.refresh(ctx, rec.RefreshToken)
	if err != nil {
		return store.TokenRecord{}, engine.NewAuthError("token refresh failed", err)
	}
	if err := m.store.SaveToken(ctx, refreshed); err != nil {
		return store.TokenRecord{}, fmt.Errorf("persist refreshed token: %w", err)
	}
	return refreshed, nil
}

// valid reports whether the access token is still usable, with a skew
// window so it cannot expire mid-request.
func (m *Manager) valid(rec store.TokenRecord) bool {
	if rec.AccessToken == "" {
		return false
	}
	expiry := rec.ExpiresAt
	if expiry.IsZero() {
		// Older stores carried no expiry column; fall back to the exp claim
		// embedded in the JWT itself.
		claim, err := jwtExpiry(rec.AccessToken)
		if err != nil {
			return false
		}
		expiry = claim
	}
	return m.clock.Now().Add(expirySkew).Before(expiry)
}

// tokenResponse is the OAuth token endpoint's reply.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// refresh exchanges the refresh token for a new access token.
func (m *Manager) refresh(ctx context.Context, refreshToken string) (store.TokenRecord, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {ClientID},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return store.TokenRecord{}, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return store.TokenRecord{}, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return store.TokenRecord{}, fmt.Errorf("refresh rejected: status %d", resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return store.TokenRecord{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if body.AccessToken == "" {
		return store.TokenRecord{}, fmt.Errorf("refresh response missing access token")
	}

	rec := store.TokenRecord{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    m.clock.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}
	if rec.RefreshToken == "" {
		// Some grants return only a new access token; keep the old refresh
		// token so the next cycle can still refresh.
		rec.RefreshToken = refreshToken
	}
	return rec, nil
}

// jwtExpiry extracts the exp claim from an unverified JWT access token.
// The token is only introspected for its expiry; the API itself verifies it.
func jwtExpiry(token string) (time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("not a JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("decode JWT payload: %w", err)
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse JWT claims: %w", err)
	}
	if claims.Exp == 0 {
		return time.Time{}, fmt.Errorf("JWT has no exp claim")
	}
	return time.Unix(claims.Exp, 0), nil
}
