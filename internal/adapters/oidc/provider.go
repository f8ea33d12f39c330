package oidc

// Package oidc provides an AuthBackend that signs users in against an OpenID
// Connect provider using the resource owner password grant.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/alungalsinan/groot-scribe-studio/internal/adapters/authstate"
	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
)

var _ ports.AuthBackend = (*Provider)(nil)

// Provider implements ports.AuthBackend using OIDC/OAuth2.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	hub        *authstate.Hub
	logger     *slog.Logger
	now        func() time.Time

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Scope        string
	DiscoveryURL string
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout

	Store      ports.SessionStore
	SessionKey string
	Logger     *slog.Logger
	Now        func() time.Time
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// NewProvider creates a new OIDC provider. It fetches the discovery document once.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "oidc")

	p := &Provider{
		httpClient: httpClient,
		logger:     logger,
		now:        now,
		hub: authstate.NewHub(authstate.Options{
			Store:  config.Store,
			Key:    config.SessionKey,
			Logger: logger,
		}),
	}

	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	// The remote key set keeps this context for later JWKS fetches.
	op, err := gooidc.NewProvider(p.clientContext(context.WithoutCancel(ctx)), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	p.oidcProvider = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: config.ClientID, Now: now})

	scope := config.Scope
	if strings.TrimSpace(scope) == "" {
		scope = "openid profile email offline_access"
	}
	p.config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       strings.Fields(scope),
		Endpoint:     op.Endpoint(),
	}

	return p, nil
}

// clientContext carries the configured HTTP client into oauth2 and go-oidc calls.
func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// GetCurrentSession restores the persisted session and refreshes it when the
// access token has expired. A rejected refresh yields no session.
func (p *Provider) GetCurrentSession(ctx context.Context) (*domainauth.Session, error) {
	sess, err := p.hub.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if sess == nil || !sess.Expired(p.now()) {
		return sess, nil
	}
	if err := p.Refresh(ctx); err != nil {
		if apperrors.IsUnauthorized(err) {
			return nil, nil
		}
		return nil, err
	}
	return p.hub.Current(), nil
}

// OnAuthStateChange registers listener for auth events.
func (p *Provider) OnAuthStateChange(listener ports.AuthListener) ports.Subscription {
	return p.hub.Subscribe(listener)
}

// SignInWithPassword exchanges the credentials for tokens and emits SIGNED_IN.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) error {
	tok, err := p.config.PasswordCredentialsToken(p.clientContext(ctx), email, password)
	if err != nil {
		return tokenError(err, "Invalid login credentials")
	}

	fields, err := p.extractFromIDToken(ctx, tok)
	if err != nil {
		return fmt.Errorf("extract id_token: %w", err)
	}
	if fields.email == "" || fields.userID == "" {
		if fillErr := p.fillFromUserInfo(ctx, tok, &fields); fillErr != nil {
			return fmt.Errorf("get user info: %w", fillErr)
		}
	}
	if fields.userID == "" {
		return apperrors.Internal("identity provider returned no subject")
	}

	sess := p.sessionFrom(tok, fields.identity())
	p.logger.InfoContext(ctx, "signed in", "user_id", sess.Identity.ID)
	p.hub.Publish(ctx, domainauth.EventSignedIn, sess)
	return nil
}

// SignUp is not offered by OIDC providers through this flow.
func (p *Provider) SignUp(context.Context, string, string, ports.SignUpOptions) error {
	return ports.ErrSignUpUnsupported
}

// SignOut clears the local session and emits SIGNED_OUT.
func (p *Provider) SignOut(ctx context.Context) error {
	p.hub.Publish(ctx, domainauth.EventSignedOut, nil)
	return nil
}

// Refresh exchanges the refresh token and emits TOKEN_REFRESHED. When the
// provider rejects the refresh token the session is signed out.
func (p *Provider) Refresh(ctx context.Context) error {
	cur := p.hub.Current()
	if cur == nil {
		return apperrors.Unauthorized("Not signed in")
	}
	if cur.RefreshToken == "" {
		p.hub.Publish(ctx, domainauth.EventSignedOut, nil)
		return apperrors.Unauthorized("Session expired")
	}

	ts := p.config.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: cur.RefreshToken})
	tok, err := ts.Token()
	if err != nil {
		mapped := tokenError(err, "Session expired")
		if apperrors.IsUnauthorized(mapped) {
			p.hub.Publish(ctx, domainauth.EventSignedOut, nil)
		}
		return fmt.Errorf("refresh session: %w", mapped)
	}

	identity := cur.Identity
	if _, hasID := tok.Extra("id_token").(string); hasID {
		fields, idErr := p.extractFromIDToken(ctx, tok)
		if idErr != nil {
			return fmt.Errorf("extract id_token: %w", idErr)
		}
		if fields.userID != "" {
			identity = fields.identity()
		}
	}

	sess := p.sessionFrom(tok, identity)
	if sess.RefreshToken == "" {
		sess.RefreshToken = cur.RefreshToken
	}
	p.hub.Publish(ctx, domainauth.EventTokenRefreshed, sess)
	return nil
}

func (p *Provider) sessionFrom(tok *oauth2.Token, identity domainauth.Identity) *domainauth.Session {
	expiresAt := p.now().Add(time.Hour)
	if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry
	}
	return &domainauth.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    strings.ToLower(firstNonEmpty(tok.TokenType, "bearer")),
		ExpiresAt:    expiresAt.UTC(),
		Identity:     identity,
	}
}

// tokenError maps token endpoint failures. Client errors become Unauthorized
// with the provider's description.
func tokenError(err error, fallback string) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil &&
		re.Response.StatusCode >= http.StatusBadRequest && re.Response.StatusCode < http.StatusInternalServerError {
		return apperrors.Unauthorized(firstNonEmpty(re.ErrorDescription, fallback))
	}
	if ctxErr := apperrors.FromContext(err); ctxErr != nil {
		return ctxErr
	}
	return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "identity provider unavailable")
}

// UserInfo represents the user information from the OIDC userinfo endpoint.
type UserInfo struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Picture           string `json:"picture"`
}

func (p *Provider) getUserInfo(ctx context.Context, tok *oauth2.Token) (*UserInfo, error) {
	ui, err := p.oidcProvider.UserInfo(p.clientContext(ctx), oauth2.StaticTokenSource(tok))
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	var userInfo UserInfo
	if claimsErr := ui.Claims(&userInfo); claimsErr != nil {
		return nil, fmt.Errorf("decode user info: %w", claimsErr)
	}
	return &userInfo, nil
}

type idFields struct {
	userID string
	email  string
	name   string
	avatar string
}

func (f idFields) identity() domainauth.Identity {
	id := domainauth.Identity{ID: f.userID, Email: f.email}
	meta := map[string]any{}
	if f.name != "" {
		meta["name"] = f.name
	}
	if f.avatar != "" {
		meta["avatar_url"] = f.avatar
	}
	if len(meta) > 0 {
		id.Metadata = meta
	}
	return id
}

func (p *Provider) extractFromIDToken(ctx context.Context, tok *oauth2.Token) (idFields, error) {
	var f idFields
	if !p.hasOpenIDScope() {
		return f, nil
	}
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return f, err
	}
	idTok, err := p.verifier.Verify(p.clientContext(ctx), rawID)
	if err != nil {
		return f, fmt.Errorf("verify id_token: %w", err)
	}
	var claims idTokenClaims
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return f, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	return mapIDTokenClaims(claims), nil
}

func (p *Provider) fillFromUserInfo(ctx context.Context, tok *oauth2.Token, f *idFields) error {
	ui, err := p.getUserInfo(ctx, tok)
	if err != nil {
		return err
	}
	fillFromUserInfoClaims(f, *ui)
	return nil
}

// idTokenClaims holds the standard OIDC profile claims.
type idTokenClaims struct {
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Picture           string `json:"picture"`
}

func fullName(name, given, family, username string) string {
	joined := strings.TrimSpace(given + " " + family)
	return firstNonEmpty(strings.TrimSpace(name), joined, username)
}

// mapIDTokenClaims maps raw id token claims into idFields using precedence rules.
func mapIDTokenClaims(c idTokenClaims) idFields {
	return idFields{
		userID: c.Sub,
		email:  c.Email,
		name:   fullName(c.Name, c.GivenName, c.FamilyName, c.PreferredUsername),
		avatar: c.Picture,
	}
}

// fillFromUserInfoClaims fills missing fields from a UserInfo payload.
func fillFromUserInfoClaims(f *idFields, ui UserInfo) {
	if f.userID == "" {
		f.userID = ui.Subject
	}
	if f.email == "" {
		f.email = ui.Email
	}
	if f.name == "" {
		f.name = fullName(ui.Name, ui.GivenName, ui.FamilyName, ui.PreferredUsername)
	}
	if f.avatar == "" {
		f.avatar = ui.Picture
	}
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// hasOpenIDScope reports whether the configured scopes include "openid".
func (p *Provider) hasOpenIDScope() bool {
	for _, sc := range p.config.Scopes {
		if sc == "openid" {
			return true
		}
	}
	return false
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
