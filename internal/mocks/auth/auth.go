package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
)

// Ensure compile-time conformance to ports.
var _ ports.AuthBackend = (*FakeBackend)(nil)

// SignUpCall records one SignUp invocation.
type SignUpCall struct {
	Email    string
	Password string
	Options  ports.SignUpOptions
}

type account struct {
	password string
	identity domainauth.Identity
}

// FakeBackend simulates a hosted auth service. Sign-in emits SIGNED_IN and
// sign-out emits SIGNED_OUT to listeners before returning, like the real SDKs.
// The *Func fields override the default behavior when set.
type FakeBackend struct {
	GetSessionFunc func(ctx context.Context) (*domainauth.Session, error)
	SignInFunc     func(ctx context.Context, email, password string) error
	SignUpFunc     func(ctx context.Context, email, password string, opts ports.SignUpOptions) error
	SignOutFunc    func(ctx context.Context) error

	// TokenTTL controls the expiry of issued sessions (default one hour).
	TokenTTL time.Duration

	mu        sync.Mutex
	accounts  map[string]account
	current   *domainauth.Session
	listeners map[int]ports.AuthListener
	nextID    int
	issued    int
	signUps   []SignUpCall

	// emitMu keeps listener invocations serial.
	emitMu sync.Mutex
}

// NewFakeBackend creates an empty FakeBackend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		accounts:  make(map[string]account),
		listeners: make(map[int]ports.AuthListener),
	}
}

// AddAccount registers a confirmed account.
func (f *FakeBackend) AddAccount(id, email, password string, metadata map[string]any) domainauth.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity := domainauth.Identity{ID: id, Email: email, Metadata: metadata}
	f.accounts[email] = account{password: password, identity: identity}
	return identity
}

// SessionFor builds a session for identity without touching backend state.
func (f *FakeBackend) SessionFor(identity domainauth.Identity) *domainauth.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newSessionLocked(identity)
}

// SetSession sets the persisted session returned by GetCurrentSession.
func (f *FakeBackend) SetSession(sess *domainauth.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = sess
}

// Emit sets the current session and delivers kind to every listener.
func (f *FakeBackend) Emit(kind domainauth.EventKind, sess *domainauth.Session) {
	f.mu.Lock()
	f.current = sess
	ids := make([]int, 0, len(f.listeners))
	for id := range f.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]ports.AuthListener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, f.listeners[id])
	}
	f.mu.Unlock()

	f.emitMu.Lock()
	defer f.emitMu.Unlock()
	for _, l := range listeners {
		var cp *domainauth.Session
		if sess != nil {
			s := sess.Clone()
			cp = &s
		}
		l(kind, cp)
	}
}

// ListenerCount returns the number of active listeners.
func (f *FakeBackend) ListenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// SignUps returns the recorded SignUp calls.
func (f *FakeBackend) SignUps() []SignUpCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SignUpCall(nil), f.signUps...)
}

func (f *FakeBackend) GetCurrentSession(ctx context.Context) (*domainauth.Session, error) {
	if f.GetSessionFunc != nil {
		return f.GetSessionFunc(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil, nil
	}
	s := f.current.Clone()
	return &s, nil
}

func (f *FakeBackend) OnAuthStateChange(listener ports.AuthListener) ports.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = listener
	return ports.SubscriptionFunc(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	})
}

func (f *FakeBackend) SignInWithPassword(ctx context.Context, email, password string) error {
	if f.SignInFunc != nil {
		return f.SignInFunc(ctx, email, password)
	}
	f.mu.Lock()
	acct, ok := f.accounts[email]
	if !ok || acct.password != password {
		f.mu.Unlock()
		return apperrors.Unauthorized("Invalid login credentials")
	}
	sess := f.newSessionLocked(acct.identity)
	f.mu.Unlock()

	f.Emit(domainauth.EventSignedIn, sess)
	return nil
}

func (f *FakeBackend) SignUp(ctx context.Context, email, password string, opts ports.SignUpOptions) error {
	f.mu.Lock()
	f.signUps = append(f.signUps, SignUpCall{Email: email, Password: password, Options: opts})
	f.mu.Unlock()

	if f.SignUpFunc != nil {
		return f.SignUpFunc(ctx, email, password, opts)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.accounts[email]; exists {
		return apperrors.Conflict("User already registered")
	}
	f.accounts[email] = account{
		password: password,
		identity: domainauth.Identity{ID: fmt.Sprintf("user-%d", len(f.accounts)+1), Email: email, Metadata: opts.Metadata},
	}
	return nil
}

func (f *FakeBackend) SignOut(ctx context.Context) error {
	if f.SignOutFunc != nil {
		return f.SignOutFunc(ctx)
	}
	f.Emit(domainauth.EventSignedOut, nil)
	return nil
}

func (f *FakeBackend) newSessionLocked(identity domainauth.Identity) *domainauth.Session {
	f.issued++
	ttl := f.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &domainauth.Session{
		AccessToken:  fmt.Sprintf("access-%d", f.issued),
		RefreshToken: fmt.Sprintf("refresh-%d", f.issued),
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(ttl),
		Identity:     identity,
	}
}
