package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/observability/metrics"
	"github.com/alungalsinan/groot-scribe-studio/internal/observability/notify"
	"golang.org/x/sync/errgroup"
)

// ResolveProfileAndRole fetches or provisions the profile and role for
// identityID and applies them when identityID is still the current identity
// and no newer resolution has started. It returns the profile error, if any.
func (c *Coordinator) ResolveProfileAndRole(ctx context.Context, identityID string) error {
	var (
		id  *auth.Identity
		gen uint64
	)
	if !c.update(func() bool {
		if c.state.Identity == nil || c.state.Identity.ID != identityID {
			return false
		}
		c.generation++
		gen = c.generation
		c.setResolvingLocked(true)
		cp := *c.state.Identity
		id = &cp
		return true
	}) {
		return ErrClosed
	}
	if id == nil {
		c.logger.DebugContext(ctx, "skipping resolution for inactive identity", "user_id", identityID)
		return nil
	}
	return c.resolve(ctx, gen, *id, false)
}

// resolve runs the profile and role lookups concurrently and applies the
// outcome if gen is still current. Role failures never surface; profile
// failures set the snapshot error and leave a provisional profile in place.
func (c *Coordinator) resolve(ctx context.Context, gen uint64, id auth.Identity, touchLogin bool) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		profile    auth.Profile
		profileErr error
		role       auth.Role
		g          errgroup.Group
	)
	g.Go(func() error {
		profile, profileErr = c.resolveProfile(ctx, id, touchLogin)
		return profileErr
	})
	g.Go(func() error {
		role = c.resolveRole(ctx, id.ID)
		return nil
	})
	_ = g.Wait()

	stale := false
	var msg string
	if profileErr != nil {
		msg = apperrors.UserMessage(profileErr)
	}
	applied := c.update(func() bool {
		if c.generation != gen {
			stale = true
			return false
		}
		c.setResolvingLocked(false)
		if profileErr != nil {
			c.state.Error = msg
			if c.state.Profile == nil || c.state.Profile.ID != id.ID {
				p := auth.NewProfile(id, c.now())
				p.Provisional = true
				c.state.Profile = &p
			}
		} else {
			p := profile
			c.state.Profile = &p
		}
		r := role
		c.state.Role = &r
		c.markInitializedLocked()
		return true
	})

	switch {
	case !applied:
		c.logger.DebugContext(ctx, "dropping resolution after close", "user_id", id.ID)
		return ErrClosed
	case stale:
		c.logger.DebugContext(ctx, "dropping stale resolution", "user_id", id.ID, "generation", gen)
		metrics.EmitResolution(c.metrics, metrics.ResolutionMetric{Record: "session", Result: metrics.ResultStale})
		return nil
	}

	if profileErr != nil {
		c.notify(ctx, notify.Notification{
			Title:       "Profile Error",
			Description: msg,
			Variant:     notify.VariantDefault,
			UserID:      id.ID,
		})
		return profileErr
	}
	c.logger.InfoContext(ctx, "resolved profile and role", "user_id", id.ID, "role", string(role))
	return nil
}

func (c *Coordinator) resolveProfile(ctx context.Context, id auth.Identity, touchLogin bool) (auth.Profile, error) {
	start := c.now()
	rec, err := c.profiles.GetProfile(ctx, id.ID)
	lookup := lookupOf(rec, err)

	var (
		profile auth.Profile
		result  string
	)
	switch lookup.Status {
	case auth.LookupFound:
		profile = lookup.Record
		result = metrics.ResultSuccess
	case auth.LookupNotFound:
		created, err := c.profiles.CreateProfile(ctx, auth.NewProfile(id, c.now()))
		if err != nil {
			err = fmt.Errorf("create profile: %w", err)
			c.logger.ErrorContext(ctx, "failed to create profile", "user_id", id.ID, "error", err)
			c.emitResolution("profile", metrics.ResultError, start, err)
			return auth.Profile{}, err
		}
		c.logger.InfoContext(ctx, "provisioned profile", "user_id", id.ID)
		profile = created
		result = metrics.ResultProvisioned
	default:
		err := fmt.Errorf("fetch profile: %w", lookup.Err)
		c.logger.ErrorContext(ctx, "failed to fetch profile", "user_id", id.ID, "error", err)
		c.emitResolution("profile", metrics.ResultError, start, err)
		return auth.Profile{}, err
	}

	if touchLogin {
		at := c.now().UTC()
		if err := c.profiles.TouchLastLogin(ctx, id.ID, at); err != nil {
			c.logger.WarnContext(ctx, "failed to record last login", "user_id", id.ID, "error", err)
		} else {
			profile.LastLogin = &at
		}
	}

	c.emitResolution("profile", result, start, nil)
	return profile, nil
}

// resolveRole never fails: lookup or provisioning errors degrade to the
// default role.
func (c *Coordinator) resolveRole(ctx context.Context, userID string) auth.Role {
	start := c.now()
	rec, err := c.roles.GetRole(ctx, userID)
	lookup := lookupOf(rec, err)

	switch lookup.Status {
	case auth.LookupFound:
		c.emitResolution("role", metrics.ResultSuccess, start, nil)
		return auth.ParseRole(string(lookup.Record.Role))
	case auth.LookupNotFound:
		created, err := c.roles.CreateRole(ctx, auth.RoleAssignment{UserID: userID, Role: auth.DefaultRole})
		if err != nil {
			c.logger.WarnContext(ctx, "failed to create role, using default", "user_id", userID, "error", err)
			c.emitResolution("role", metrics.ResultDefaulted, start, err)
			return auth.DefaultRole
		}
		c.emitResolution("role", metrics.ResultProvisioned, start, nil)
		return auth.ParseRole(string(created.Role))
	default:
		c.logger.WarnContext(ctx, "failed to fetch role, using default", "user_id", userID, "error", lookup.Err)
		c.emitResolution("role", metrics.ResultDefaulted, start, lookup.Err)
		return auth.DefaultRole
	}
}

func (c *Coordinator) emitResolution(record, result string, start time.Time, err error) {
	metrics.EmitResolution(c.metrics, metrics.ResolutionMetric{
		Record:   record,
		Result:   result,
		Duration: c.now().Sub(start),
		Err:      err,
	})
}

// lookupOf classifies a store result into found, not found or failed.
func lookupOf[T any](rec T, err error) auth.Lookup[T] {
	switch {
	case err == nil:
		return auth.Found(rec)
	case apperrors.IsNotFound(err):
		return auth.NotFound[T]()
	default:
		return auth.Failed[T](err)
	}
}
