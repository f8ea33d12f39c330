package auth

// Package auth contains domain-level types for authentication, profiles and roles.
// It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence in the user_roles table.
type Role string

const (
	RoleAuthor     Role = "author"
	RoleSuperAdmin Role = "super_admin"
)

// DefaultRole is the least-privileged role assigned when nothing better is known.
const DefaultRole = RoleAuthor

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAuthor || r == RoleSuperAdmin
}

// ParseRole maps a stored role value to a Role, falling back to DefaultRole.
func ParseRole(v string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(v)))
	if r.Valid() {
		return r
	}
	return DefaultRole
}

// Identity represents the authenticated principal issued by the auth backend.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// DisplayName derives a human name: metadata name, then email local part, then "User".
func (i Identity) DisplayName() string {
	if name, ok := i.Metadata["name"].(string); ok && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	if local, _, ok := strings.Cut(i.Email, "@"); ok && local != "" {
		return local
	}
	if i.Email != "" && !strings.Contains(i.Email, "@") {
		return i.Email
	}
	return "User"
}

// Session is the credential bundle issued by the auth backend for an identity.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Identity     Identity  `json:"user"`
}

// Expired reports whether the session is past its expiry at now.
// A zero ExpiresAt never expires.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Profile is the mutable record keyed by identity id.
type Profile struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Avatar    string     `json:"avatar,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`

	// Provisional marks a profile derived locally because the stored one could not be loaded.
	Provisional bool `json:"-"`
}

// NewProfile builds the default profile for a freshly authenticated identity.
func NewProfile(id Identity, now time.Time) Profile {
	return Profile{
		ID:        id.ID,
		Email:     id.Email,
		Name:      id.DisplayName(),
		IsActive:  true,
		CreatedAt: now.UTC(),
	}
}

// RoleAssignment links an identity to its role.
type RoleAssignment struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}
