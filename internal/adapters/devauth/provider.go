package devauth

// Package devauth provides a simple, config-driven AuthBackend for local development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/alungalsinan/groot-scribe-studio/internal/adapters/authstate"
	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
)

var _ ports.AuthBackend = (*Provider)(nil)

// Account seeds a dev user. Password is hashed at construction.
type Account struct {
	ID       string
	Email    string
	Password string
	Name     string
}

// Config controls the dev auth provider behavior.
type Config struct {
	Accounts []Account
	// RequireConfirmation keeps signed-up accounts unusable until ConfirmEmail.
	RequireConfirmation bool
	SessionDuration     time.Duration // default 8h when zero
	// HashCost is the bcrypt cost; zero uses bcrypt.DefaultCost.
	HashCost int

	Store      ports.SessionStore
	SessionKey string
	Logger     *slog.Logger
	Now        func() time.Time
}

type account struct {
	id        string
	email     string
	hash      []byte
	metadata  map[string]any
	confirmed bool
}

// Provider implements ports.AuthBackend against an in-memory account table.
// Sessions carry random opaque tokens.
type Provider struct {
	hub                 *authstate.Hub
	logger              *slog.Logger
	now                 func() time.Time
	sessionDuration     time.Duration
	cost                int
	requireConfirmation bool

	mu       sync.Mutex
	accounts map[string]*account
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = 8 * time.Hour
	}
	cost := cfg.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "devauth")

	p := &Provider{
		hub:                 authstate.NewHub(authstate.Options{Store: cfg.Store, Key: cfg.SessionKey, Logger: logger}),
		logger:              logger,
		now:                 now,
		sessionDuration:     dur,
		cost:                cost,
		requireConfirmation: cfg.RequireConfirmation,
		accounts:            make(map[string]*account),
	}
	for _, a := range cfg.Accounts {
		if a.Email == "" {
			return nil, errors.New("dev auth: account email is required")
		}
		if a.Password == "" {
			return nil, fmt.Errorf("dev auth: password for %s is required", a.Email)
		}
		var meta map[string]any
		if a.Name != "" {
			meta = map[string]any{"name": a.Name}
		}
		if _, err := p.addAccount(a.ID, a.Email, a.Password, meta, true); err != nil {
			return nil, fmt.Errorf("dev auth: %w", err)
		}
	}
	return p, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *Provider) addAccount(id, email, password string, meta map[string]any, confirmed bool) (*account, error) {
	key := normalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.accounts[key]; exists {
		return nil, apperrors.Conflict("User already registered")
	}
	a := &account{id: id, email: key, hash: hash, metadata: meta, confirmed: confirmed}
	p.accounts[key] = a
	return a, nil
}

func (a *account) identity() domainauth.Identity {
	id := domainauth.Identity{ID: a.id, Email: a.email}
	if len(a.metadata) > 0 {
		id.Metadata = make(map[string]any, len(a.metadata))
		for k, v := range a.metadata {
			id.Metadata[k] = v
		}
	}
	return id
}

// GetCurrentSession restores the persisted session. An expired session is
// renewed with its refresh token when the account still exists.
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

// SignInWithPassword checks the credentials and emits SIGNED_IN.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) error {
	p.mu.Lock()
	a, ok := p.accounts[normalizeEmail(email)]
	p.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(a.hash, []byte(password)) != nil {
		return apperrors.Unauthorized("Invalid login credentials")
	}
	if !a.confirmed {
		return apperrors.Unauthorized("Email not confirmed")
	}

	sess, err := p.mint(a)
	if err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "signed in", "user_id", a.id)
	p.hub.Publish(ctx, domainauth.EventSignedIn, sess)
	return nil
}

// SignUp registers an account. Without RequireConfirmation the account is
// signed in immediately.
func (p *Provider) SignUp(ctx context.Context, email, password string, opts ports.SignUpOptions) error {
	if normalizeEmail(email) == "" {
		return apperrors.ValidationField("email", "email is required")
	}
	if len(password) < 6 {
		return apperrors.ValidationField("password", "Password should be at least 6 characters")
	}
	a, err := p.addAccount("", email, password, opts.Metadata, !p.requireConfirmation)
	if err != nil {
		return err
	}
	if !a.confirmed {
		p.logger.InfoContext(ctx, "confirmation pending", "user_id", a.id, "redirect_to", opts.RedirectTo)
		return nil
	}
	sess, err := p.mint(a)
	if err != nil {
		return err
	}
	p.hub.Publish(ctx, domainauth.EventSignedIn, sess)
	return nil
}

// ConfirmEmail marks a signed-up account as confirmed.
func (p *Provider) ConfirmEmail(email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[normalizeEmail(email)]
	if !ok {
		return apperrors.NotFound("User not found")
	}
	a.confirmed = true
	return nil
}

// SignOut emits SIGNED_OUT.
func (p *Provider) SignOut(ctx context.Context) error {
	p.hub.Publish(ctx, domainauth.EventSignedOut, nil)
	return nil
}

// Refresh reissues the current session's tokens and emits TOKEN_REFRESHED.
// A session whose account disappeared is signed out.
func (p *Provider) Refresh(ctx context.Context) error {
	cur := p.hub.Current()
	if cur == nil {
		return apperrors.Unauthorized("Not signed in")
	}
	a, ok := p.accountByID(cur.Identity.ID)
	if !ok || cur.RefreshToken == "" {
		p.hub.Publish(ctx, domainauth.EventSignedOut, nil)
		return apperrors.Unauthorized("Session expired")
	}
	sess, err := p.mint(a)
	if err != nil {
		return err
	}
	p.hub.Publish(ctx, domainauth.EventTokenRefreshed, sess)
	return nil
}

// UpdateMetadata replaces the current user's metadata and emits USER_UPDATED.
func (p *Provider) UpdateMetadata(ctx context.Context, meta map[string]any) error {
	cur := p.hub.Current()
	if cur == nil {
		return apperrors.Unauthorized("Not signed in")
	}
	p.mu.Lock()
	a, ok := p.findByIDLocked(cur.Identity.ID)
	if ok {
		a.metadata = make(map[string]any, len(meta))
		for k, v := range meta {
			a.metadata[k] = v
		}
	}
	p.mu.Unlock()
	if !ok {
		return apperrors.NotFound("User not found")
	}
	cur.Identity = a.identity()
	p.hub.Publish(ctx, domainauth.EventUserUpdated, cur)
	return nil
}

func (p *Provider) accountByID(id string) (*account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.findByIDLocked(id)
}

func (p *Provider) findByIDLocked(id string) (*account, bool) {
	for _, a := range p.accounts {
		if a.id == id {
			return a, true
		}
	}
	return nil, false
}

func (p *Provider) mint(a *account) (*domainauth.Session, error) {
	access, err := randomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := randomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	return &domainauth.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    p.now().Add(p.sessionDuration).UTC(),
		Identity:     a.identity(),
	}, nil
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, (n*3+3)/4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
