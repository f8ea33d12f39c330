package gotrue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alungalsinan/groot-scribe-studio/internal/adapters/memstore"
	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAnonKey = "anon-key"
	testSecret  = "super-secret-jwt-token-with-at-least-32-characters"
)

type fakeUser struct {
	id       string
	email    string
	password string
	meta     map[string]any
}

// fakeGoTrue serves the subset of the GoTrue API used by Client.
type fakeGoTrue struct {
	t      *testing.T
	secret []byte

	mu            sync.Mutex
	users         map[string]*fakeUser
	refreshTokens map[string]string
	autoConfirm   bool
	expiresIn     int64
	logoutStatus  int
	refreshStatus int
	requests      []*http.Request
	signUpQuery   url.Values
	signUpBody    signUpRequest
	refreshCalls  int
}

func newFakeGoTrue(t *testing.T) (*fakeGoTrue, *httptest.Server) {
	t.Helper()
	f := &fakeGoTrue{
		t:             t,
		secret:        []byte(testSecret),
		users:         make(map[string]*fakeUser),
		refreshTokens: make(map[string]string),
		expiresIn:     3600,
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGoTrue) addUser(email, password string, meta map[string]any) *fakeUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &fakeUser{id: uuid.NewString(), email: email, password: password, meta: meta}
	f.users[email] = u
	return u
}

func (f *fakeGoTrue) userByID(id string) *fakeUser {
	for _, u := range f.users {
		if u.id == id {
			return u
		}
	}
	return nil
}

func (f *fakeGoTrue) mint(u *fakeUser, secret []byte) string {
	claims := accessClaims{
		Email:        u.email,
		Role:         "authenticated",
		UserMetadata: u.meta,
		SessionID:    uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.id,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(f.expiresIn) * time.Second)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		f.t.Errorf("sign token: %v", err)
	}
	return tok
}

// sessionFor issues a token response for u; the caller holds f.mu.
func (f *fakeGoTrue) sessionFor(u *fakeUser) map[string]any {
	refresh := uuid.NewString()
	f.refreshTokens[refresh] = u.id
	return map[string]any{
		"access_token":  f.mint(u, f.secret),
		"token_type":    "bearer",
		"expires_in":    f.expiresIn,
		"refresh_token": refresh,
		"user":          map[string]any{"id": u.id, "email": u.email, "user_metadata": u.meta},
	}
}

func (f *fakeGoTrue) bearerUser(r *http.Request) *fakeUser {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) { return f.secret, nil })
	if err != nil {
		return nil
	}
	return f.userByID(claims.Subject)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeGoTrue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Clone(context.Background()))

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/token" && r.URL.Query().Get("grant_type") == "password":
		var body passwordGrant
		_ = json.NewDecoder(r.Body).Decode(&body)
		u, ok := f.users[body.Email]
		if !ok || u.password != body.Password {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":             "invalid_grant",
				"error_description": "Invalid login credentials",
			})
			return
		}
		writeJSON(w, http.StatusOK, f.sessionFor(u))

	case r.Method == http.MethodPost && r.URL.Path == "/token" && r.URL.Query().Get("grant_type") == "refresh_token":
		f.refreshCalls++
		if f.refreshStatus != 0 {
			writeJSON(w, f.refreshStatus, map[string]any{"msg": "Service unavailable"})
			return
		}
		var body refreshGrant
		_ = json.NewDecoder(r.Body).Decode(&body)
		id, ok := f.refreshTokens[body.RefreshToken]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"code":       400,
				"error_code": "refresh_token_not_found",
				"msg":        "Invalid Refresh Token: Refresh Token Not Found",
			})
			return
		}
		delete(f.refreshTokens, body.RefreshToken)
		writeJSON(w, http.StatusOK, f.sessionFor(f.userByID(id)))

	case r.Method == http.MethodPost && r.URL.Path == "/signup":
		var body signUpRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.signUpQuery = r.URL.Query()
		f.signUpBody = body
		if _, exists := f.users[body.Email]; exists {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"code":       422,
				"error_code": "user_already_exists",
				"msg":        "User already registered",
			})
			return
		}
		u := &fakeUser{id: uuid.NewString(), email: body.Email, password: body.Password, meta: body.Data}
		f.users[body.Email] = u
		if f.autoConfirm {
			writeJSON(w, http.StatusOK, f.sessionFor(u))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": u.id, "email": u.email, "user_metadata": u.meta})

	case r.Method == http.MethodPost && r.URL.Path == "/logout":
		if f.logoutStatus != 0 {
			writeJSON(w, f.logoutStatus, map[string]any{"msg": http.StatusText(f.logoutStatus)})
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodGet && r.URL.Path == "/user":
		u := f.bearerUser(r)
		if u == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "invalid JWT"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": u.id, "email": u.email, "user_metadata": u.meta})

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGoTrue) setMeta(email string, meta map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email].meta = meta
}

func (f *fakeGoTrue) lastRequest() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeGoTrue) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

// eventLog records events delivered to a listener.
type eventLog struct {
	mu     sync.Mutex
	events []domainauth.Event
}

func (l *eventLog) listen(kind domainauth.EventKind, sess *domainauth.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, domainauth.Event{Kind: kind, Session: sess})
}

func (l *eventLog) kinds() []domainauth.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domainauth.EventKind, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Kind)
	}
	return out
}

func (l *eventLog) last() domainauth.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func newTestClient(t *testing.T, srvURL string, mutate ...func(*Config)) (*Client, *memstore.SessionStore) {
	t.Helper()
	store := memstore.NewSessionStore()
	cfg := Config{
		URL:                srvURL,
		AnonKey:            testAnonKey,
		JWTSecret:          testSecret,
		DisableAutoRefresh: true,
		Store:              store,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, store
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{AnonKey: testAnonKey})
	require.EqualError(t, err, "gotrue: URL is required")

	_, err = New(Config{URL: "not a url", AnonKey: testAnonKey})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid URL")

	_, err = New(Config{URL: "http://localhost:9999/auth/v1"})
	require.EqualError(t, err, "gotrue: anon key is required")
}

func TestSignInWithPassword_EmitsSignedIn(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	ann := f.addUser("ann@magazine.example", "secret123", map[string]any{"name": "Ann Editor"})
	c, store := newTestClient(t, srv.URL)

	var log eventLog
	sub := c.OnAuthStateChange(log.listen)
	defer sub.Unsubscribe()

	require.NoError(t, c.SignInWithPassword(context.Background(), "ann@magazine.example", "secret123"))

	require.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn}, log.kinds())
	ev := log.last()
	require.NotNil(t, ev.Session)
	assert.Equal(t, ann.id, ev.Session.Identity.ID)
	assert.Equal(t, "Ann Editor", ev.Session.Identity.DisplayName())
	assert.NotEmpty(t, ev.Session.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), ev.Session.ExpiresAt, 5*time.Second)

	req := f.lastRequest()
	assert.Equal(t, testAnonKey, req.Header.Get("apikey"))
	assert.Equal(t, "Bearer "+testAnonKey, req.Header.Get("Authorization"))

	stored, err := store.Get(context.Background(), "scribe.auth.session")
	require.NoError(t, err)
	assert.Equal(t, ev.Session.AccessToken, stored.AccessToken)
}

func TestSignInWithPassword_InvalidCredentials(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.addUser("ann@magazine.example", "secret123", nil)
	c, _ := newTestClient(t, srv.URL)

	var log eventLog
	c.OnAuthStateChange(log.listen)

	err := c.SignInWithPassword(context.Background(), "ann@magazine.example", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid login credentials", err.Error())
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.Empty(t, log.kinds())
}

func TestSignInWithPassword_RejectsForeignSignature(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.addUser("ann@magazine.example", "secret123", nil)
	c, _ := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.JWTSecret = "a-different-secret-of-sufficient-length-000"
	})

	err := c.SignInWithPassword(context.Background(), "ann@magazine.example", "secret123")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.Equal(t, "Invalid access token", apperrors.UserMessage(err))
	assert.Nil(t, c.hub.Current())
}

func TestSignInWithPassword_UnverifiedWithoutSecret(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	ann := f.addUser("ann@magazine.example", "secret123", nil)
	c, _ := newTestClient(t, srv.URL, func(cfg *Config) { cfg.JWTSecret = "" })

	require.NoError(t, c.SignInWithPassword(context.Background(), "ann@magazine.example", "secret123"))
	cur := c.hub.Current()
	require.NotNil(t, cur)
	assert.Equal(t, ann.id, cur.Identity.ID)
}

func TestSignUp_PendingConfirmation(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	c, _ := newTestClient(t, srv.URL)

	var log eventLog
	c.OnAuthStateChange(log.listen)

	err := c.SignUp(context.Background(), "new@magazine.example", "secret123", ports.SignUpOptions{
		RedirectTo: "https://magazine.example/",
		Metadata:   map[string]any{"name": "New Writer"},
	})
	require.NoError(t, err)

	assert.Empty(t, log.kinds(), "no session until the email is confirmed")
	assert.Nil(t, c.hub.Current())

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "https://magazine.example/", f.signUpQuery.Get("redirect_to"))
	assert.Equal(t, "New Writer", f.signUpBody.Data["name"])
}

func TestSignUp_AutoConfirmSignsIn(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.autoConfirm = true
	c, _ := newTestClient(t, srv.URL)

	var log eventLog
	c.OnAuthStateChange(log.listen)

	require.NoError(t, c.SignUp(context.Background(), "new@magazine.example", "secret123", ports.SignUpOptions{}))
	require.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn}, log.kinds())
	assert.Equal(t, "new@magazine.example", log.last().Session.Identity.Email)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Empty(t, f.signUpQuery.Get("redirect_to"))
}

func TestSignUp_DuplicateIsConflict(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.addUser("ann@magazine.example", "secret123", nil)
	c, _ := newTestClient(t, srv.URL)

	err := c.SignUp(context.Background(), "ann@magazine.example", "secret123", ports.SignUpOptions{})
	require.Error(t, err)
	assert.Equal(t, "User already registered", err.Error())
	assert.True(t, apperrors.IsConflict(err))
}

func TestSignOut(t *testing.T) {
	tests := []struct {
		name         string
		logoutStatus int
		wantErr      bool
		wantEvent    bool
	}{
		{name: "revokes and emits", wantEvent: true},
		{name: "already revoked session", logoutStatus: http.StatusUnauthorized, wantEvent: true},
		{name: "server unavailable keeps session", logoutStatus: http.StatusServiceUnavailable, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, srv := newFakeGoTrue(t)
			f.addUser("ann@magazine.example", "secret123", nil)
			c, store := newTestClient(t, srv.URL)
			ctx := context.Background()
			require.NoError(t, c.SignInWithPassword(ctx, "ann@magazine.example", "secret123"))
			token := c.hub.Current().AccessToken

			var log eventLog
			c.OnAuthStateChange(log.listen)
			f.mu.Lock()
			f.logoutStatus = tt.logoutStatus
			f.mu.Unlock()

			err := c.SignOut(ctx)
			assert.Equal(t, "Bearer "+token, f.lastRequest().Header.Get("Authorization"))

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsUnavailable(err))
				assert.NotNil(t, c.hub.Current())
				return
			}
			require.NoError(t, err)
			assert.Nil(t, c.hub.Current())
			_, err = store.Get(ctx, "scribe.auth.session")
			assert.True(t, apperrors.IsNotFound(err))

			kinds := log.kinds()
			require.NotEmpty(t, kinds)
			assert.Equal(t, domainauth.EventSignedOut, kinds[len(kinds)-1])
			assert.Nil(t, log.last().Session)
		})
	}
}

func TestSignOut_WithoutSessionStillEmits(t *testing.T) {
	_, srv := newFakeGoTrue(t)
	c, _ := newTestClient(t, srv.URL)

	var log eventLog
	c.OnAuthStateChange(log.listen)

	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, []domainauth.EventKind{domainauth.EventSignedOut}, log.kinds())
}

// storeSession signs ann in against a throwaway client so a session minted by
// f sits in store under the default key.
func storeSession(t *testing.T, srvURL string, store *memstore.SessionStore, email, password string) domainauth.Session {
	t.Helper()
	seed, err := New(Config{URL: srvURL, AnonKey: testAnonKey, JWTSecret: testSecret, DisableAutoRefresh: true, Store: store})
	require.NoError(t, err)
	defer seed.Close()
	require.NoError(t, seed.SignInWithPassword(context.Background(), email, password))
	sess, err := store.Get(context.Background(), "scribe.auth.session")
	require.NoError(t, err)
	return sess
}

func TestGetCurrentSession_RestoresFromStore(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	ann := f.addUser("ann@magazine.example", "secret123", nil)
	store := memstore.NewSessionStore()
	seeded := storeSession(t, srv.URL, store, "ann@magazine.example", "secret123")

	c, _ := newTestClient(t, srv.URL, func(cfg *Config) { cfg.Store = store })
	sess, err := c.GetCurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, ann.id, sess.Identity.ID)
	assert.Equal(t, seeded.AccessToken, sess.AccessToken)
	assert.Zero(t, f.refreshCount())

	var log eventLog
	c.OnAuthStateChange(log.listen)
	assert.Equal(t, []domainauth.EventKind{domainauth.EventInitialSession}, log.kinds())
}

func TestGetCurrentSession_NoStoredSession(t *testing.T) {
	_, srv := newFakeGoTrue(t)
	c, _ := newTestClient(t, srv.URL)

	sess, err := c.GetCurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestGetCurrentSession_RefreshesNearExpiry(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.addUser("ann@magazine.example", "secret123", nil)
	store := memstore.NewSessionStore()
	seeded := storeSession(t, srv.URL, store, "ann@magazine.example", "secret123")

	// Thirty seconds before expiry the stored token is inside the refresh margin.
	later := func() time.Time { return time.Now().Add(time.Hour - 30*time.Second) }
	c, _ := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.Store = store
		cfg.Now = later
	})

	var log eventLog
	c.OnAuthStateChange(log.listen)

	sess, err := c.GetCurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.NotEqual(t, seeded.AccessToken, sess.AccessToken)
	assert.NotEqual(t, seeded.RefreshToken, sess.RefreshToken)
	assert.Equal(t, seeded.Identity.ID, sess.Identity.ID)
	assert.Equal(t, 1, f.refreshCount())
	assert.Equal(t, []domainauth.EventKind{domainauth.EventTokenRefreshed}, log.kinds())

	stored, err := store.Get(context.Background(), "scribe.auth.session")
	require.NoError(t, err)
	assert.Equal(t, sess.AccessToken, stored.AccessToken)
}

func TestGetCurrentSession_RejectedRefreshSignsOut(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.addUser("ann@magazine.example", "secret123", nil)
	store := memstore.NewSessionStore()
	storeSession(t, srv.URL, store, "ann@magazine.example", "secret123")

	f.mu.Lock()
	f.refreshTokens = map[string]string{}
	f.mu.Unlock()

	c, _ := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.Store = store
		cfg.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	})
	var log eventLog
	c.OnAuthStateChange(log.listen)

	sess, err := c.GetCurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Equal(t, []domainauth.EventKind{domainauth.EventSignedOut}, log.kinds())

	_, err = store.Get(context.Background(), "scribe.auth.session")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetCurrentSession_TransientRefreshFailure(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.addUser("ann@magazine.example", "secret123", nil)
	store := memstore.NewSessionStore()
	storeSession(t, srv.URL, store, "ann@magazine.example", "secret123")

	f.mu.Lock()
	f.refreshStatus = http.StatusServiceUnavailable
	f.mu.Unlock()

	c, _ := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.Store = store
		cfg.Now = func() time.Time { return time.Now().Add(time.Hour) }
	})
	var log eventLog
	c.OnAuthStateChange(log.listen)

	sess, err := c.GetCurrentSession(context.Background())
	require.Error(t, err)
	assert.Nil(t, sess)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.Equal(t, "Service unavailable", apperrors.UserMessage(err))
	assert.Empty(t, log.kinds(), "a transient failure does not sign the user out")

	_, err = store.Get(context.Background(), "scribe.auth.session")
	assert.NoError(t, err)
}

func TestRefresh_WithoutRefreshTokenSignsOut(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.addUser("ann@magazine.example", "secret123", nil)
	c, _ := newTestClient(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, c.SignInWithPassword(ctx, "ann@magazine.example", "secret123"))

	sess := c.hub.Current()
	sess.RefreshToken = ""
	c.hub.Publish(ctx, domainauth.EventTokenRefreshed, sess)

	var log eventLog
	c.OnAuthStateChange(log.listen)

	err := c.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, "Session expired", err.Error())
	assert.Contains(t, log.kinds(), domainauth.EventSignedOut)
	assert.Nil(t, c.hub.Current())
}

func TestRefresh_NotSignedIn(t *testing.T) {
	_, srv := newFakeGoTrue(t)
	c, _ := newTestClient(t, srv.URL)

	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestAutoRefreshTimer(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.addUser("ann@magazine.example", "secret123", nil)
	c, _ := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.DisableAutoRefresh = false
		// Tokens live an hour, so this schedules the refresh right away.
		cfg.RefreshMargin = time.Hour - 100*time.Millisecond
	})

	var log eventLog
	c.OnAuthStateChange(log.listen)
	require.NoError(t, c.SignInWithPassword(context.Background(), "ann@magazine.example", "secret123"))

	require.Eventually(t, func() bool {
		return f.refreshCount() >= 1
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		return log.last().Kind == domainauth.EventTokenRefreshed
	}, 5*time.Second, 20*time.Millisecond)

	c.Close()
	time.Sleep(200 * time.Millisecond)
	settled := f.refreshCount()
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, settled, f.refreshCount(), "Close stops the refresh timer")
}

func TestReloadUser_EmitsUserUpdated(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.addUser("ann@magazine.example", "secret123", map[string]any{"name": "Ann"})
	c, _ := newTestClient(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, c.SignInWithPassword(ctx, "ann@magazine.example", "secret123"))

	f.setMeta("ann@magazine.example", map[string]any{"name": "Ann Editor"})

	var log eventLog
	c.OnAuthStateChange(log.listen)
	require.NoError(t, c.ReloadUser(ctx))

	ev := log.last()
	assert.Equal(t, domainauth.EventUserUpdated, ev.Kind)
	assert.Equal(t, "Ann Editor", ev.Session.Identity.DisplayName())
}

func TestGetUser_NotSignedIn(t *testing.T) {
	_, srv := newFakeGoTrue(t)
	c, _ := newTestClient(t, srv.URL)

	_, err := c.GetUser(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, _ := newTestClient(t, addr)
	err := c.SignInWithPassword(context.Background(), "ann@magazine.example", "secret123")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.Equal(t, "Unable to reach the authentication service", apperrors.UserMessage(err))
}

func TestParseAuthError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		wantCode string
		check    func(error) bool
	}{
		{
			name:     "oauth style",
			status:   http.StatusBadRequest,
			body:     `{"error":"invalid_grant","error_description":"Invalid login credentials"}`,
			wantMsg:  "Invalid login credentials",
			wantCode: "invalid_grant",
			check:    apperrors.IsUnauthorized,
		},
		{
			name:     "error_code style",
			status:   http.StatusBadRequest,
			body:     `{"code":400,"error_code":"email_not_confirmed","msg":"Email not confirmed"}`,
			wantMsg:  "Email not confirmed",
			wantCode: "email_not_confirmed",
			check:    apperrors.IsUnauthorized,
		},
		{
			name:     "existing user",
			status:   http.StatusUnprocessableEntity,
			body:     `{"code":422,"error_code":"user_already_exists","msg":"User already registered"}`,
			wantMsg:  "User already registered",
			wantCode: "user_already_exists",
			check:    apperrors.IsConflict,
		},
		{
			name:    "weak password",
			status:  http.StatusUnprocessableEntity,
			body:    `{"code":422,"msg":"Password should be at least 6 characters"}`,
			wantMsg: "Password should be at least 6 characters",
			check:   apperrors.IsValidation,
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"message":"Too many requests"}`,
			wantMsg: "Too many requests",
			check:   apperrors.IsUnavailable,
		},
		{
			name:    "html gateway error",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			wantMsg: "Bad Gateway",
			check:   apperrors.IsUnavailable,
		},
		{
			name:    "plain text",
			status:  http.StatusNotFound,
			body:    "no route",
			wantMsg: "no route",
			check:   apperrors.IsNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseAuthError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, tt.wantCode, err.Code)
			assert.True(t, tt.check(err))
			assert.Equal(t, tt.wantMsg, apperrors.UserMessage(err))
		})
	}
}

func TestDefinitive(t *testing.T) {
	assert.True(t, definitive(&AuthError{Status: http.StatusBadRequest}))
	assert.True(t, definitive(&AuthError{Status: http.StatusUnauthorized}))
	assert.False(t, definitive(&AuthError{Status: http.StatusTooManyRequests}))
	assert.False(t, definitive(&AuthError{Status: http.StatusServiceUnavailable}))
	assert.False(t, definitive(apperrors.Unauthorized("nope")))
}
