package devauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alungalsinan/groot-scribe-studio/internal/adapters/memstore"
	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
)

type recorded struct {
	kind domainauth.EventKind
	sess *domainauth.Session
}

type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) listen(kind domainauth.EventKind, sess *domainauth.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{kind: kind, sess: sess})
}

func (r *recorder) kinds() []domainauth.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domainauth.EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.kind)
	}
	return out
}

func (r *recorder) last() recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func newProvider(t *testing.T, mutate ...func(*Config)) *Provider {
	t.Helper()
	cfg := Config{
		Accounts: []Account{{ID: "dev-user", Email: "Dev@Example.com", Password: "secret-pw", Name: "Dev Editor"}},
		HashCost: bcrypt.MinCost,
		Store:    memstore.NewSessionStore(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	p, err := NewProvider(cfg)
	require.NoError(t, err)
	return p
}

func TestNewProvider_RejectsIncompleteAccounts(t *testing.T) {
	_, err := NewProvider(Config{Accounts: []Account{{Password: "x"}}, HashCost: bcrypt.MinCost})
	assert.Error(t, err)

	_, err = NewProvider(Config{Accounts: []Account{{Email: "a@example.com"}}, HashCost: bcrypt.MinCost})
	assert.Error(t, err)

	_, err = NewProvider(Config{HashCost: bcrypt.MinCost, Accounts: []Account{
		{Email: "a@example.com", Password: "one"},
		{Email: "A@example.com", Password: "two"},
	}})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestProvider_SignInWithPassword(t *testing.T) {
	p := newProvider(t)
	rec := &recorder{}
	sub := p.OnAuthStateChange(rec.listen)
	defer sub.Unsubscribe()

	require.NoError(t, p.SignInWithPassword(context.Background(), "dev@example.com", "secret-pw"))

	require.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn}, rec.kinds())
	sess := rec.last().sess
	require.NotNil(t, sess)
	assert.Equal(t, "dev-user", sess.Identity.ID)
	assert.Equal(t, "Dev Editor", sess.Identity.DisplayName())
	assert.Len(t, sess.AccessToken, 32)
	assert.NotEqual(t, sess.AccessToken, sess.RefreshToken)
}

func TestProvider_SignInWithPassword_Invalid(t *testing.T) {
	p := newProvider(t)
	rec := &recorder{}
	p.OnAuthStateChange(rec.listen)

	err := p.SignInWithPassword(context.Background(), "dev@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.Equal(t, "Invalid login credentials", apperrors.UserMessage(err))

	err = p.SignInWithPassword(context.Background(), "nobody@example.com", "secret-pw")
	assert.Equal(t, "Invalid login credentials", apperrors.UserMessage(err))
	assert.Empty(t, rec.kinds())
}

func TestProvider_SignUp_AutoConfirm(t *testing.T) {
	p := newProvider(t)
	rec := &recorder{}
	p.OnAuthStateChange(rec.listen)

	err := p.SignUp(context.Background(), "new@example.com", "hunter22", ports.SignUpOptions{
		Metadata: map[string]any{"name": "New Writer"},
	})
	require.NoError(t, err)
	require.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn}, rec.kinds())
	assert.Equal(t, "New Writer", rec.last().sess.Identity.DisplayName())
	assert.NotEmpty(t, rec.last().sess.Identity.ID)

	err = p.SignUp(context.Background(), "NEW@example.com", "hunter22", ports.SignUpOptions{})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, "User already registered", apperrors.UserMessage(err))
}

func TestProvider_SignUp_RequiresConfirmation(t *testing.T) {
	p := newProvider(t, func(c *Config) { c.RequireConfirmation = true })
	rec := &recorder{}
	p.OnAuthStateChange(rec.listen)
	ctx := context.Background()

	require.NoError(t, p.SignUp(ctx, "pending@example.com", "hunter22", ports.SignUpOptions{RedirectTo: "http://localhost:5173/"}))
	assert.Empty(t, rec.kinds())

	err := p.SignInWithPassword(ctx, "pending@example.com", "hunter22")
	require.Error(t, err)
	assert.Equal(t, "Email not confirmed", apperrors.UserMessage(err))

	require.NoError(t, p.ConfirmEmail("pending@example.com"))
	require.NoError(t, p.SignInWithPassword(ctx, "pending@example.com", "hunter22"))
	assert.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn}, rec.kinds())

	assert.True(t, apperrors.IsNotFound(p.ConfirmEmail("ghost@example.com")))
}

func TestProvider_SignUp_Validation(t *testing.T) {
	p := newProvider(t)

	err := p.SignUp(context.Background(), " ", "hunter22", ports.SignUpOptions{})
	assert.Equal(t, "email", apperrors.GetField(err))

	err = p.SignUp(context.Background(), "short@example.com", "abc", ports.SignUpOptions{})
	assert.Equal(t, "password", apperrors.GetField(err))
}

func TestProvider_RefreshAndSignOut(t *testing.T) {
	p := newProvider(t)
	rec := &recorder{}
	p.OnAuthStateChange(rec.listen)
	ctx := context.Background()

	assert.True(t, apperrors.IsUnauthorized(p.Refresh(ctx)))

	require.NoError(t, p.SignInWithPassword(ctx, "dev@example.com", "secret-pw"))
	first := rec.last().sess

	require.NoError(t, p.Refresh(ctx))
	refreshed := rec.last()
	assert.Equal(t, domainauth.EventTokenRefreshed, refreshed.kind)
	assert.Equal(t, first.Identity.ID, refreshed.sess.Identity.ID)
	assert.NotEqual(t, first.AccessToken, refreshed.sess.AccessToken)

	require.NoError(t, p.SignOut(ctx))
	assert.Equal(t, domainauth.EventSignedOut, rec.last().kind)
	assert.Nil(t, rec.last().sess)

	sess, err := p.GetCurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestProvider_UpdateMetadata(t *testing.T) {
	p := newProvider(t)
	rec := &recorder{}
	p.OnAuthStateChange(rec.listen)
	ctx := context.Background()

	assert.True(t, apperrors.IsUnauthorized(p.UpdateMetadata(ctx, map[string]any{"name": "x"})))

	require.NoError(t, p.SignInWithPassword(ctx, "dev@example.com", "secret-pw"))
	require.NoError(t, p.UpdateMetadata(ctx, map[string]any{"name": "Renamed"}))

	got := rec.last()
	assert.Equal(t, domainauth.EventUserUpdated, got.kind)
	assert.Equal(t, "Renamed", got.sess.Identity.DisplayName())
}

func TestProvider_GetCurrentSession_RestoresAcrossInstances(t *testing.T) {
	store := memstore.NewSessionStore()
	ctx := context.Background()

	first := newProvider(t, func(c *Config) { c.Store = store })
	require.NoError(t, first.SignInWithPassword(ctx, "dev@example.com", "secret-pw"))

	second := newProvider(t, func(c *Config) { c.Store = store })
	sess, err := second.GetCurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "dev-user", sess.Identity.ID)

	rec := &recorder{}
	second.OnAuthStateChange(rec.listen)
	assert.Equal(t, []domainauth.EventKind{domainauth.EventInitialSession}, rec.kinds())
}

func TestProvider_GetCurrentSession_RefreshesExpired(t *testing.T) {
	store := memstore.NewSessionStore()
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	first := newProvider(t, func(c *Config) { c.Store = store; c.Now = now; c.SessionDuration = time.Hour })
	require.NoError(t, first.SignInWithPassword(ctx, "dev@example.com", "secret-pw"))

	clock = clock.Add(2 * time.Hour)
	second := newProvider(t, func(c *Config) { c.Store = store; c.Now = now; c.SessionDuration = time.Hour })
	sess, err := second.GetCurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, sess.ExpiresAt.After(clock))
}

func TestProvider_GetCurrentSession_UnknownAccountSignsOut(t *testing.T) {
	store := memstore.NewSessionStore()
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	require.NoError(t, store.Save(ctx, "scribe.auth.session", domainauth.Session{
		AccessToken:  "stale",
		RefreshToken: "stale-refresh",
		ExpiresAt:    clock.Add(-time.Minute),
		Identity:     domainauth.Identity{ID: "deleted-user"},
	}))

	p := newProvider(t, func(c *Config) { c.Store = store; c.Now = now })
	sess, err := p.GetCurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	_, err = store.Get(ctx, "scribe.auth.session")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRandomString(t *testing.T) {
	s, err := randomString(43)
	require.NoError(t, err)
	assert.Len(t, s, 43)

	empty, err := randomString(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
