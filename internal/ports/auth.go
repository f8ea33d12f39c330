package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"

	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
)

// AuthListener receives auth state changes in the order the backend emits them.
type AuthListener func(event domainauth.EventKind, session *domainauth.Session)

// Subscription is the handle returned by OnAuthStateChange.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to the Subscription interface.
type SubscriptionFunc func()

// Unsubscribe implements Subscription.
func (f SubscriptionFunc) Unsubscribe() {
	if f != nil {
		f()
	}
}

// ErrSignUpUnsupported is returned by backends that cannot register accounts.
var ErrSignUpUnsupported = errors.New("sign-up is not available for this sign-in provider")

// SignUpOptions carries the optional sign-up parameters.
type SignUpOptions struct {
	// RedirectTo is where the verification email should send the user.
	RedirectTo string
	// Metadata is stored as identity metadata (e.g. {"name": "Ann"}).
	Metadata map[string]any
}

// AuthBackend issues sessions and emits auth events.
type AuthBackend interface {
	// GetCurrentSession returns the restored session, or nil when none is active.
	GetCurrentSession(ctx context.Context) (*domainauth.Session, error)

	// OnAuthStateChange registers a listener. Listeners are invoked serially.
	OnAuthStateChange(listener AuthListener) Subscription

	SignInWithPassword(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string, opts SignUpOptions) error
	SignOut(ctx context.Context) error
}

// SessionStore persists the backend session between process runs.
type SessionStore interface {
	Save(ctx context.Context, key string, sess domainauth.Session) error
	Get(ctx context.Context, key string) (domainauth.Session, error)
	Delete(ctx context.Context, key string) error
}
