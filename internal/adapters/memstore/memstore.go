package memstore

// Package memstore provides in-memory implementations of the profile, role and
// session ports. They back the mock auth mode and unit tests.

import (
	"context"
	"sync"
	"time"

	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
)

var (
	_ ports.ProfileStore = (*ProfileStore)(nil)
	_ ports.RoleStore    = (*RoleStore)(nil)
	_ ports.SessionStore = (*SessionStore)(nil)
)

// ProfileStore keeps profiles in a map keyed by identity id.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]domainauth.Profile
}

// NewProfileStore returns an empty store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]domainauth.Profile)}
}

func (s *ProfileStore) GetProfile(ctx context.Context, id string) (domainauth.Profile, error) {
	if err := ctx.Err(); err != nil {
		return domainauth.Profile{}, apperrors.MapDBError(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return domainauth.Profile{}, apperrors.NotFoundf("profile %s not found", id)
	}
	return copyProfile(p), nil
}

func (s *ProfileStore) CreateProfile(ctx context.Context, p domainauth.Profile) (domainauth.Profile, error) {
	if err := ctx.Err(); err != nil {
		return domainauth.Profile{}, apperrors.MapDBError(err)
	}
	if p.ID == "" {
		return domainauth.Profile{}, apperrors.ValidationField("id", "profile id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[p.ID]; ok {
		return copyProfile(existing), nil
	}
	p.Provisional = false
	s.profiles[p.ID] = copyProfile(p)
	return copyProfile(p), nil
}

func (s *ProfileStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return apperrors.MapDBError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return apperrors.NotFoundf("profile %s not found", id)
	}
	t := at.UTC()
	p.LastLogin = &t
	s.profiles[id] = p
	return nil
}

// Put stores p unconditionally. Intended for seeding.
func (s *ProfileStore) Put(p domainauth.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = copyProfile(p)
}

// Len returns the number of stored profiles.
func (s *ProfileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

func copyProfile(p domainauth.Profile) domainauth.Profile {
	if p.LastLogin != nil {
		t := *p.LastLogin
		p.LastLogin = &t
	}
	return p
}

// RoleStore keeps role assignments keyed by user id.
type RoleStore struct {
	mu    sync.RWMutex
	roles map[string]domainauth.Role
}

// NewRoleStore returns an empty store.
func NewRoleStore() *RoleStore {
	return &RoleStore{roles: make(map[string]domainauth.Role)}
}

func (s *RoleStore) GetRole(ctx context.Context, userID string) (domainauth.RoleAssignment, error) {
	if err := ctx.Err(); err != nil {
		return domainauth.RoleAssignment{}, apperrors.MapDBError(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[userID]
	if !ok {
		return domainauth.RoleAssignment{}, apperrors.NotFoundf("role for %s not found", userID)
	}
	return domainauth.RoleAssignment{UserID: userID, Role: r}, nil
}

func (s *RoleStore) CreateRole(ctx context.Context, ra domainauth.RoleAssignment) (domainauth.RoleAssignment, error) {
	if err := ctx.Err(); err != nil {
		return domainauth.RoleAssignment{}, apperrors.MapDBError(err)
	}
	if !ra.Role.Valid() {
		return domainauth.RoleAssignment{}, apperrors.ValidationField("role", "role must be author or super_admin")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.roles[ra.UserID]; ok {
		return domainauth.RoleAssignment{UserID: ra.UserID, Role: existing}, nil
	}
	s.roles[ra.UserID] = ra.Role
	return ra, nil
}

// SetRole overwrites the role for userID, as an administrator would.
func (s *RoleStore) SetRole(userID string, role domainauth.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = role
}

// SessionStore keeps sessions keyed by storage key.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]domainauth.Session)}
}

// ErrSessionNotFound is returned by SessionStore.Get for unknown keys.
var ErrSessionNotFound = apperrors.NotFound("session not found")

func (s *SessionStore) Save(_ context.Context, key string, sess domainauth.Session) error {
	if key == "" {
		return apperrors.ValidationField("key", "session key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = sess.Clone()
	return nil
}

func (s *SessionStore) Get(_ context.Context, key string) (domainauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return domainauth.Session{}, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *SessionStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}
