package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultTokenURL is the ADP OAuth2 token endpoint.
const DefaultTokenURL = "https://accounts.adp.com/auth/oauth/v2/token"

// RefreshBuffer is the safety margin before expiry during which a token
// is treated as stale and proactively refreshed.
const RefreshBuffer = 5 * time.Minute

// defaultExpiresIn is assumed when the token response omits expires_in.
const defaultExpiresIn = 3600 * time.Second

// Authentication errors. These surface immediately and are never retried
// by the token layer; retry, if any, is the caller's responsibility.
var (
	// ErrNoAccessToken is returned when the token response lacks an
	// access_token field.
	ErrNoAccessToken = errors.New("no access token in response")

	// ErrTokenRequest is returned when the token endpoint cannot be
	// reached or answers with a non-2xx status.
	ErrTokenRequest = errors.New("token request failed")
)

// token is the cached bearer token. Owned exclusively by the TokenManager
// and never handed out; callers only ever see the opaque value string.
type token struct {
	value     string
	issuedAt  time.Time
	expiresAt time.Time
}

// TokenManager acquires and refreshes the OAuth2 bearer token using the
// client-credentials grant over mTLS. Safe for concurrent use: the cached
// token sits behind a mutex and refreshes are collapsed through
// singleflight, so concurrent callers inside the refresh window share a
// single network round trip.
type TokenManager struct {
	httpClient *http.Client
	creds      Credentials
	tokenURL   string
	buffer     time.Duration
	now        func() time.Time
	logger     zerolog.Logger

	mu      sync.Mutex
	current token
	group   singleflight.Group
}

// NewTokenManager creates a token manager. The HTTP client must carry the
// client certificate (see NewTLSClient); it is shared with the request
// executor for connection pooling.
func NewTokenManager(httpClient *http.Client, creds Credentials) *TokenManager {
	return &TokenManager{
		httpClient: httpClient,
		creds:      creds,
		tokenURL:   DefaultTokenURL,
		buffer:     RefreshBuffer,
		now:        time.Now,
		logger:     log.With().Str("component", "token-manager").Logger(),
	}
}

// SetTokenURL overrides the token endpoint (for testing).
func (m *TokenManager) SetTokenURL(u string) {
	m.tokenURL = u
}

// SetClock overrides the time source (for testing).
func (m *TokenManager) SetClock(now func() time.Time) {
	m.now = now
}

// EnsureValid returns a usable bearer token, performing a synchronous
// acquisition call iff no token is held or the current one is within
// RefreshBuffer of expiry. Otherwise the cached token is returned with no
// network call.
func (m *TokenManager) EnsureValid(ctx context.Context) (string, error) {
	if value, ok := m.cached(); ok {
		return value, nil
	}

	v, err, _ := m.group.Do("refresh", func() (any, error) {
		// Re-check under the flight: a caller that queued behind the
		// winning refresh must not trigger a second round trip.
		if value, ok := m.cached(); ok {
			return value, nil
		}

		tok, err := m.requestToken(ctx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.current = tok
		m.mu.Unlock()

		return tok.value, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// AuthHeader returns the Authorization header value for the current token,
// refreshing it first if necessary.
func (m *TokenManager) AuthHeader(ctx context.Context) (string, error) {
	value, err := m.EnsureValid(ctx)
	if err != nil {
		return "", err
	}
	return "Bearer " + value, nil
}

// Invalidate drops the cached token. The next EnsureValid call acquires a
// fresh one. This never revokes the token server-side.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.current = token{}
	m.mu.Unlock()
}

// cached returns the current token value if it is still usable, i.e.
// now < expiresAt - buffer.
func (m *TokenManager) cached() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.value == "" {
		return "", false
	}
	if !m.now().Before(m.current.expiresAt.Add(-m.buffer)) {
		return "", false
	}
	return m.current.value, true
}

// tokenResponse is the token endpoint's JSON body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// requestToken performs the client-credentials grant.
func (m *TokenManager) requestToken(ctx context.Context) (token, error) {
	m.logger.Debug().Str("token_url", m.tokenURL).Msg("Requesting token")

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", m.creds.ClientID)
	form.Set("client_secret", m.creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return token{}, fmt.Errorf("%w: %v", ErrTokenRequest, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Error().Err(err).Msg("Token request failed")
		return token{}, fmt.Errorf("%w: %v", ErrTokenRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return token{}, fmt.Errorf("%w: read response: %v", ErrTokenRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		m.logger.Error().Int("status", resp.StatusCode).Msg("Token endpoint returned error status")
		return token{}, fmt.Errorf("%w: status %d", ErrTokenRequest, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return token{}, fmt.Errorf("%w: decode response: %v", ErrTokenRequest, err)
	}
	if tr.AccessToken == "" {
		return token{}, ErrNoAccessToken
	}

	expiresIn := defaultExpiresIn
	if tr.ExpiresIn > 0 {
		expiresIn = time.Duration(tr.ExpiresIn) * time.Second
	}

	issued := m.now()
	m.logger.Info().Dur("expires_in", expiresIn).Msg("Token acquired")

	return token{
		value:     tr.AccessToken,
		issuedAt:  issued,
		expiresAt: issued.Add(expiresIn),
	}, nil
}
