package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/alungalsinan/groot-scribe-studio/internal/adapters/memstore"
	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
)

const (
	testClientID = "test-client"
	testKeyID    = "test-key"
)

// fakeIssuer is a minimal OIDC provider: discovery, JWKS, token and userinfo.
type fakeIssuer struct {
	t      *testing.T
	srv    *httptest.Server
	key    *rsa.PrivateKey
	omitID atomic.Bool
	// tokenStatus forces every token request to fail with this status.
	tokenStatus atomic.Int32
	refreshes   atomic.Int32
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	f := &fakeIssuer{t: t, key: key}
	f.srv = httptest.NewServer(f)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIssuer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/.well-known/openid-configuration":
		_ = json.NewEncoder(w).Encode(DiscoveryDocument{
			Issuer:                f.srv.URL,
			AuthorizationEndpoint: f.srv.URL + "/authorize",
			TokenEndpoint:         f.srv.URL + "/token",
			UserinfoEndpoint:      f.srv.URL + "/userinfo",
			JwksURI:               f.srv.URL + "/jwks",
		})
	case "/jwks":
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": testKeyID,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(f.key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(f.key.E)).Bytes()),
		}}})
	case "/token":
		f.token(w, r)
	case "/userinfo":
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"sub":         "user-42",
			"email":       "ann@magazine.example",
			"given_name":  "Ann",
			"family_name": "Editor",
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if status := f.tokenStatus.Load(); status != 0 {
		w.WriteHeader(int(status))
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "temporarily_unavailable"})
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "password":
		if r.PostForm.Get("username") != "ann@magazine.example" || r.PostForm.Get("password") != "pw" {
			invalidGrant(w, "Invalid user credentials")
			return
		}
		body := map[string]any{
			"access_token":  "access-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "refresh-1",
		}
		if !f.omitID.Load() {
			body["id_token"] = f.idToken(jwt.MapClaims{"email": "ann@magazine.example", "name": "Ann Editor"})
		}
		_ = json.NewEncoder(w).Encode(body)
	case "refresh_token":
		if r.PostForm.Get("refresh_token") != "refresh-1" {
			invalidGrant(w, "Token is not active")
			return
		}
		f.refreshes.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-2",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	default:
		invalidGrant(w, "unsupported grant")
	}
}

func invalidGrant(w http.ResponseWriter, desc string) {
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant", "error_description": desc})
}

func (f *fakeIssuer) idToken(extra jwt.MapClaims) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": f.srv.URL,
		"aud": testClientID,
		"sub": "user-42",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKeyID
	signed, err := tok.SignedString(f.key)
	if err != nil {
		f.t.Errorf("sign id token: %v", err)
	}
	return signed
}

func newTestProvider(t *testing.T, f *fakeIssuer, mutate ...func(*ProviderConfig)) *Provider {
	t.Helper()
	cfg := ProviderConfig{
		ClientID:     testClientID,
		ClientSecret: "test-secret",
		DiscoveryURL: f.srv.URL + "/.well-known/openid-configuration",
		Store:        memstore.NewSessionStore(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	return p
}

type eventLog struct {
	mu     sync.Mutex
	kinds  []domainauth.EventKind
	latest *domainauth.Session
}

func (l *eventLog) listen(kind domainauth.EventKind, sess *domainauth.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kinds = append(l.kinds, kind)
	l.latest = sess
}

func (l *eventLog) snapshot() ([]domainauth.EventKind, *domainauth.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domainauth.EventKind(nil), l.kinds...), l.latest
}

func TestNewProvider_Success(t *testing.T) {
	f := newFakeIssuer(t)
	provider := newTestProvider(t, f)

	assert.Equal(t, f.srv.URL+"/token", provider.config.Endpoint.TokenURL)
	assert.Equal(t, []string{"openid", "profile", "email", "offline_access"}, provider.config.Scopes)
}

func TestNewProvider_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config ProviderConfig
		errMsg string
	}{
		{
			name:   "missing client ID",
			config: ProviderConfig{DiscoveryURL: "http://example.com"},
			errMsg: "client ID is required",
		},
		{
			name:   "missing discovery URL",
			config: ProviderConfig{ClientID: "client"},
			errMsg: "discovery URL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewProvider_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewProvider(context.Background(), ProviderConfig{ClientID: "c", DiscoveryURL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oidc new provider")
}

func TestProvider_SignInWithPassword(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f)
	log := &eventLog{}
	p.OnAuthStateChange(log.listen)

	require.NoError(t, p.SignInWithPassword(context.Background(), "ann@magazine.example", "pw"))

	kinds, sess := log.snapshot()
	assert.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn}, kinds)
	require.NotNil(t, sess)
	assert.Equal(t, "user-42", sess.Identity.ID)
	assert.Equal(t, "ann@magazine.example", sess.Identity.Email)
	assert.Equal(t, "Ann Editor", sess.Identity.DisplayName())
	assert.Equal(t, "access-1", sess.AccessToken)
	assert.Equal(t, "refresh-1", sess.RefreshToken)
	assert.Equal(t, "bearer", sess.TokenType)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, time.Minute)
}

func TestProvider_SignInWithPassword_UserInfoFallback(t *testing.T) {
	f := newFakeIssuer(t)
	f.omitID.Store(true)
	p := newTestProvider(t, f, func(c *ProviderConfig) { c.Scope = "profile email" })
	log := &eventLog{}
	p.OnAuthStateChange(log.listen)

	require.NoError(t, p.SignInWithPassword(context.Background(), "ann@magazine.example", "pw"))

	_, sess := log.snapshot()
	require.NotNil(t, sess)
	assert.Equal(t, "user-42", sess.Identity.ID)
	assert.Equal(t, "Ann Editor", sess.Identity.DisplayName())
}

func TestProvider_SignInWithPassword_MissingIDToken(t *testing.T) {
	f := newFakeIssuer(t)
	f.omitID.Store(true)
	p := newTestProvider(t, f)

	err := p.SignInWithPassword(context.Background(), "ann@magazine.example", "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id_token")
}

func TestProvider_SignInWithPassword_InvalidCredentials(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f)
	log := &eventLog{}
	p.OnAuthStateChange(log.listen)

	err := p.SignInWithPassword(context.Background(), "ann@magazine.example", "nope")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.Equal(t, "Invalid user credentials", apperrors.UserMessage(err))

	kinds, _ := log.snapshot()
	assert.Empty(t, kinds)
}

func TestProvider_SignInWithPassword_ProviderDown(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f)
	f.tokenStatus.Store(http.StatusServiceUnavailable)

	err := p.SignInWithPassword(context.Background(), "ann@magazine.example", "pw")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestProvider_SignUpUnsupported(t *testing.T) {
	p := newTestProvider(t, newFakeIssuer(t))
	err := p.SignUp(context.Background(), "a@example.com", "pw", ports.SignUpOptions{})
	assert.ErrorIs(t, err, ports.ErrSignUpUnsupported)
}

func TestProvider_RefreshKeepsIdentity(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f)
	log := &eventLog{}
	p.OnAuthStateChange(log.listen)
	ctx := context.Background()

	require.NoError(t, p.SignInWithPassword(ctx, "ann@magazine.example", "pw"))
	require.NoError(t, p.Refresh(ctx))

	kinds, sess := log.snapshot()
	assert.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn, domainauth.EventTokenRefreshed}, kinds)
	assert.Equal(t, "access-2", sess.AccessToken)
	assert.Equal(t, "refresh-1", sess.RefreshToken, "refresh token is kept when not rotated")
	assert.Equal(t, "user-42", sess.Identity.ID)
	assert.Equal(t, int32(1), f.refreshes.Load())
}

func TestProvider_RefreshRejectedSignsOut(t *testing.T) {
	f := newFakeIssuer(t)
	store := memstore.NewSessionStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "scribe.auth.session", domainauth.Session{
		AccessToken:  "old",
		RefreshToken: "revoked",
		ExpiresAt:    time.Now().Add(-time.Minute),
		Identity:     domainauth.Identity{ID: "user-42"},
	}))

	p := newTestProvider(t, f, func(c *ProviderConfig) { c.Store = store })
	sess, err := p.GetCurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	_, err = store.Get(ctx, "scribe.auth.session")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestProvider_GetCurrentSession_RefreshesExpired(t *testing.T) {
	f := newFakeIssuer(t)
	store := memstore.NewSessionStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "scribe.auth.session", domainauth.Session{
		AccessToken:  "old",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
		Identity:     domainauth.Identity{ID: "user-42", Email: "ann@magazine.example"},
	}))

	p := newTestProvider(t, f, func(c *ProviderConfig) { c.Store = store })
	sess, err := p.GetCurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "access-2", sess.AccessToken)
	assert.Equal(t, "ann@magazine.example", sess.Identity.Email)
}

func TestProvider_RefreshTransientFailureKeepsSession(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f)
	log := &eventLog{}
	p.OnAuthStateChange(log.listen)
	ctx := context.Background()

	require.NoError(t, p.SignInWithPassword(ctx, "ann@magazine.example", "pw"))
	f.tokenStatus.Store(http.StatusBadGateway)

	err := p.Refresh(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))

	kinds, _ := log.snapshot()
	assert.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn}, kinds)
}

func TestProvider_SignOut(t *testing.T) {
	f := newFakeIssuer(t)
	p := newTestProvider(t, f)
	log := &eventLog{}
	p.OnAuthStateChange(log.listen)
	ctx := context.Background()

	require.NoError(t, p.SignInWithPassword(ctx, "ann@magazine.example", "pw"))
	require.NoError(t, p.SignOut(ctx))

	kinds, sess := log.snapshot()
	assert.Equal(t, domainauth.EventSignedOut, kinds[len(kinds)-1])
	assert.Nil(t, sess)
	assert.True(t, apperrors.IsUnauthorized(p.Refresh(ctx)))
}

func TestGetIDTokenFromToken_Success(t *testing.T) {
	tok := (&oauth2.Token{}).WithExtra(map[string]any{"id_token": "abc.def.ghi"})
	idTok, err := getIDTokenFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", idTok)
}

func TestGetIDTokenFromToken_Missing(t *testing.T) {
	tok := (&oauth2.Token{}).WithExtra(map[string]any{"not_id": "x"})
	_, err := getIDTokenFromToken(tok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id_token")
}

func TestGetIDTokenFromToken_Nil(t *testing.T) {
	_, err := getIDTokenFromToken(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil token")
}

func Test_mapIDTokenClaims(t *testing.T) {
	f := mapIDTokenClaims(idTokenClaims{
		Sub:        "sub-123",
		Email:      "mail@example.com",
		GivenName:  "First",
		FamilyName: "Last",
		Picture:    "https://cdn.example.com/a.png",
	})
	assert.Equal(t, "sub-123", f.userID)
	assert.Equal(t, "mail@example.com", f.email)
	assert.Equal(t, "First Last", f.name)

	id := f.identity()
	assert.Equal(t, "First Last", id.DisplayName())
	assert.Equal(t, "https://cdn.example.com/a.png", id.Metadata["avatar_url"])

	assert.Equal(t, "sammy", mapIDTokenClaims(idTokenClaims{Sub: "s", PreferredUsername: "sammy"}).name)
	assert.Nil(t, mapIDTokenClaims(idTokenClaims{Sub: "s"}).identity().Metadata)
}

func Test_fillFromUserInfoClaims(t *testing.T) {
	ui := UserInfo{Subject: "sub-abc", Email: "mail@example.com", Name: "Full Name", Picture: "p.png"}
	var f idFields
	fillFromUserInfoClaims(&f, ui)
	assert.Equal(t, "sub-abc", f.userID)
	assert.Equal(t, "mail@example.com", f.email)
	assert.Equal(t, "Full Name", f.name)
	assert.Equal(t, "p.png", f.avatar)

	// Existing fields are not overwritten.
	f2 := idFields{userID: "keep", email: "keep@example.com", name: "Keep", avatar: "keep.png"}
	fillFromUserInfoClaims(&f2, ui)
	assert.Equal(t, idFields{userID: "keep", email: "keep@example.com", name: "Keep", avatar: "keep.png"}, f2)
}
