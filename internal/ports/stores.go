package ports

import (
	"context"
	"time"

	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
)

// ProfileStore reads and provisions profiles keyed by identity id.
// Get returns an error satisfying errors.IsNotFound when no row exists.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (domainauth.Profile, error)

	// CreateProfile inserts p unless a profile with the same id exists and
	// returns the stored row either way. Concurrent calls must not duplicate.
	CreateProfile(ctx context.Context, p domainauth.Profile) (domainauth.Profile, error)

	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// RoleStore reads and provisions role assignments keyed by identity id.
type RoleStore interface {
	GetRole(ctx context.Context, userID string) (domainauth.RoleAssignment, error)

	// CreateRole is create-if-absent with the same semantics as CreateProfile.
	CreateRole(ctx context.Context, ra domainauth.RoleAssignment) (domainauth.RoleAssignment, error)
}
