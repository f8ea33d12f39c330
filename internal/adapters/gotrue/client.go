// Package gotrue implements ports.AuthBackend against a GoTrue (Supabase Auth)
// REST API.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alungalsinan/groot-scribe-studio/internal/adapters/authstate"
	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
)

var _ ports.AuthBackend = (*Client)(nil)

const (
	defaultTimeout       = 10 * time.Second
	defaultRefreshMargin = 60 * time.Second
	defaultRetryDelay    = 5 * time.Second
	maxResponseBytes     = 1 << 20
)

// Config configures the GoTrue client.
type Config struct {
	// URL is the auth API root, e.g. https://xyz.supabase.co/auth/v1.
	URL string
	// AnonKey is the project's public API key sent as the apikey header.
	AnonKey string
	// JWTSecret enables HS256 verification of access tokens when set.
	JWTSecret string
	// RefreshMargin is how long before expiry the session is refreshed.
	RefreshMargin time.Duration
	// DisableAutoRefresh turns off the background refresh timer.
	DisableAutoRefresh bool
	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// Store persists the session under SessionKey; nil keeps it in memory.
	Store      ports.SessionStore
	SessionKey string

	HTTPClient *http.Client
	Logger     *slog.Logger
	// Now overrides the clock for tests.
	Now func() time.Time
}

// Client talks to GoTrue and emits auth events for the session it holds.
type Client struct {
	baseURL       string
	anonKey       string
	jwtSecret     []byte
	refreshMargin time.Duration
	autoRefresh   bool
	retryDelay    time.Duration
	leeway        time.Duration
	timeout       time.Duration
	http          *http.Client
	hub           *authstate.Hub
	logger        *slog.Logger
	now           func() time.Time

	// refreshMu serializes token refreshes.
	refreshMu sync.Mutex

	timerMu  sync.Mutex
	timer    *time.Timer
	timerGen uint64
	closed   bool
}

// New constructs a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("gotrue: URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("gotrue: invalid URL: %w", err)
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("gotrue: anon key is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gotrue")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	margin := cfg.RefreshMargin
	if margin <= 0 {
		margin = defaultRefreshMargin
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		anonKey:       cfg.AnonKey,
		jwtSecret:     []byte(cfg.JWTSecret),
		refreshMargin: margin,
		autoRefresh:   !cfg.DisableAutoRefresh,
		retryDelay:    defaultRetryDelay,
		leeway:        30 * time.Second,
		timeout:       timeout,
		http:          httpClient,
		hub:           authstate.NewHub(authstate.Options{Store: cfg.Store, Key: cfg.SessionKey, Logger: logger}),
		logger:        logger,
		now:           now,
	}, nil
}

// tokenResponse is the session payload returned by /token and /signup.
type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`
}

type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u userResponse) identity() domainauth.Identity {
	return domainauth.Identity{ID: u.ID, Email: u.Email, Metadata: u.UserMetadata}
}

// signUpResponse is either a session (auto-confirm) or the bare user.
type signUpResponse struct {
	tokenResponse
	ID    string `json:"id"`
	Email string `json:"email"`
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshGrant struct {
	RefreshToken string `json:"refresh_token"`
}

type signUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

// do performs one API call. Non-2xx responses become *AuthError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, bearer string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := apperrors.FromContext(ctx.Err()); ctxErr != nil {
			return ctxErr
		}
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "Unable to reach the authentication service")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return parseAuthError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// sessionFrom builds a domain session from a token response, cross-checking
// the user against the access-token claims.
func (c *Client) sessionFrom(tr tokenResponse) (*domainauth.Session, error) {
	if tr.AccessToken == "" {
		return nil, errors.New("token response without access token")
	}
	claims, err := c.parseClaims(tr.AccessToken)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "Invalid access token")
	}

	var identity domainauth.Identity
	if tr.User != nil && tr.User.ID != "" {
		identity = tr.User.identity()
		if claims.Subject != "" && claims.Subject != identity.ID {
			return nil, apperrors.Unauthorized("Access token does not belong to the signed-in user")
		}
	} else {
		identity = domainauth.Identity{ID: claims.Subject, Email: claims.Email, Metadata: claims.UserMetadata}
	}
	if identity.ID == "" {
		return nil, apperrors.Unauthorized("Access token has no subject")
	}

	var expiresAt time.Time
	switch {
	case tr.ExpiresAt > 0:
		expiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		expiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	case claims.ExpiresAt != nil:
		expiresAt = claims.ExpiresAt.Time
	}

	tokenType := tr.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return &domainauth.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tokenType,
		ExpiresAt:    expiresAt.UTC(),
		Identity:     identity,
	}, nil
}

// Close stops the refresh timer. Listeners are left registered.
func (c *Client) Close() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	c.closed = true
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
