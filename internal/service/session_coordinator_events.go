package service

import (
	"context"
	"fmt"

	"github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/observability/metrics"
	"github.com/alungalsinan/groot-scribe-studio/internal/observability/notify"
)

// Initialize subscribes to backend auth events and restores the persisted
// session. When a session exists, profile and role are resolved before
// Initialize returns. Backend failures are recorded in the snapshot error
// rather than returned; the returned error covers lifecycle misuse only.
func (c *Coordinator) Initialize(ctx context.Context) error {
	var gen uint64
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.initStarted:
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.initStarted = true
	c.checking = true
	// Events delivered from here on are newer than the restore below.
	gen = c.generation
	c.version++
	c.mu.Unlock()
	c.publish()

	sub := c.auth.OnAuthStateChange(c.HandleAuthEvent)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		return ErrClosed
	}
	c.sub = sub
	c.mu.Unlock()

	sess, err := c.auth.GetCurrentSession(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to restore session", "error", err)
		msg := apperrors.UserMessage(err)
		c.update(func() bool {
			c.state.Error = msg
			return true
		})
		c.notify(ctx, notify.Notification{
			Title:       "Session Error",
			Description: msg,
			Variant:     notify.VariantDefault,
		})
	}

	var resolveFor *auth.Identity
	if err == nil && hasIdentity(sess) {
		c.update(func() bool {
			if c.generation != gen {
				return false
			}
			c.generation++
			gen = c.generation
			c.setSessionLocked(sess)
			c.setResolvingLocked(true)
			id := sess.Identity
			resolveFor = &id
			return true
		})
	}
	if resolveFor != nil {
		c.logger.InfoContext(ctx, "restored session", "user_id", resolveFor.ID)
		_ = c.resolve(ctx, gen, *resolveFor, false)
	}
	// An event delivered during the restore, such as a refresh of a nearly
	// expired session, may have taken over the resolution.
	c.waitResolved(ctx)

	if !c.update(func() bool {
		c.checking = false
		c.markInitializedLocked()
		return true
	}) {
		return ErrClosed
	}
	return nil
}

// HandleAuthEvent applies a backend auth event. It is registered with the
// backend by Initialize and may be called directly by backends that deliver
// events out of band. Profile and role resolution runs in the background.
func (c *Coordinator) HandleAuthEvent(kind auth.EventKind, sess *auth.Session) {
	var (
		resolveFor *auth.Identity
		gen        uint64
	)
	ok := c.update(func() bool {
		c.state.Error = ""

		if !hasIdentity(sess) {
			c.generation++
			c.state.Identity = nil
			c.state.Session = nil
			c.state.Profile = nil
			c.state.Role = nil
			c.setResolvingLocked(false)
			c.markInitializedLocked()
			return true
		}

		sameIdentity := c.state.UserID() == sess.Identity.ID
		settled := c.state.Profile != nil && !c.state.Profile.Provisional
		if kind == auth.EventTokenRefreshed && sameIdentity && (settled || c.resolving) {
			c.setSessionLocked(sess)
			return true
		}

		if !sameIdentity {
			c.state.Profile = nil
			c.state.Role = nil
		}
		c.setSessionLocked(sess)
		c.generation++
		gen = c.generation
		c.setResolvingLocked(true)
		id := sess.Identity
		resolveFor = &id

		touch := kind == auth.EventSignedIn
		ctx := c.baseCtx
		c.spawnLocked(func() {
			_ = c.resolve(ctx, gen, id, touch)
		})
		return true
	})
	if !ok {
		c.logger.Debug("ignoring auth event after close", "event", string(kind))
		return
	}

	attrs := []any{"event", string(kind)}
	if resolveFor != nil {
		attrs = append(attrs, "user_id", resolveFor.ID, "generation", gen)
	}
	c.logger.Info("auth state changed", attrs...)
	metrics.EmitAuth(c.metrics, metrics.AuthMetric{Name: string(kind), Result: metrics.ResultSuccess})
}

// RefreshUserData re-resolves profile and role for the current identity. It is
// a no-op without an identity. Profile failures are returned as well as
// recorded in the snapshot.
func (c *Coordinator) RefreshUserData(ctx context.Context) error {
	var (
		id  *auth.Identity
		gen uint64
	)
	if !c.update(func() bool {
		if c.state.Identity == nil {
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
		return nil
	}
	if err := c.resolve(ctx, gen, *id, false); err != nil {
		return fmt.Errorf("refresh user data: %w", err)
	}
	return nil
}

// setSessionLocked replaces identity and session from sess.
func (c *Coordinator) setSessionLocked(sess *auth.Session) {
	s := sess.Clone()
	id := s.Identity
	c.state.Session = &s
	c.state.Identity = &id
}

func hasIdentity(sess *auth.Session) bool {
	return sess != nil && sess.Identity.ID != ""
}
