package gotrue

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
)

// GetCurrentSession restores the persisted session. A session close to expiry
// is refreshed first; one the server no longer accepts is dropped and
// SIGNED_OUT is emitted.
func (c *Client) GetCurrentSession(ctx context.Context) (*domainauth.Session, error) {
	sess, err := c.hub.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}
	if !c.needsRefresh(sess) {
		c.scheduleRefresh(sess)
		return sess, nil
	}

	refreshed, err := c.refresh(ctx, sess)
	switch {
	case err == nil:
		return refreshed, nil
	case definitive(err):
		return nil, nil
	default:
		return nil, err
	}
}

// OnAuthStateChange registers listener for auth events.
func (c *Client) OnAuthStateChange(listener ports.AuthListener) ports.Subscription {
	return c.hub.Subscribe(listener)
}

// SignInWithPassword exchanges credentials for a session and emits SIGNED_IN.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) error {
	var tr tokenResponse
	q := url.Values{"grant_type": {"password"}}
	if err := c.do(ctx, http.MethodPost, "/token", q, "", passwordGrant{Email: email, Password: password}, &tr); err != nil {
		return err
	}
	sess, err := c.sessionFrom(tr)
	if err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "signed in", "user_id", sess.Identity.ID)
	c.publish(ctx, domainauth.EventSignedIn, sess)
	return nil
}

// SignUp registers an account. When the project auto-confirms users the
// returned session is adopted and SIGNED_IN emitted.
func (c *Client) SignUp(ctx context.Context, email, password string, opts ports.SignUpOptions) error {
	var q url.Values
	if opts.RedirectTo != "" {
		q = url.Values{"redirect_to": {opts.RedirectTo}}
	}
	var resp signUpResponse
	req := signUpRequest{Email: email, Password: password, Data: opts.Metadata}
	if err := c.do(ctx, http.MethodPost, "/signup", q, "", req, &resp); err != nil {
		return err
	}
	if resp.AccessToken == "" {
		c.logger.InfoContext(ctx, "sign-up pending confirmation", "user_id", resp.ID)
		return nil
	}
	sess, err := c.sessionFrom(resp.tokenResponse)
	if err != nil {
		return err
	}
	c.publish(ctx, domainauth.EventSignedIn, sess)
	return nil
}

// SignOut revokes the session server-side and emits SIGNED_OUT. A session the
// server has already forgotten counts as signed out.
func (c *Client) SignOut(ctx context.Context) error {
	sess := c.hub.Current()
	if sess != nil {
		err := c.do(ctx, http.MethodPost, "/logout", nil, sess.AccessToken, nil, nil)
		if err != nil && !definitive(err) {
			return err
		}
		if err != nil {
			c.logger.InfoContext(ctx, "session already revoked", "error", err)
		}
	}
	c.publish(ctx, domainauth.EventSignedOut, nil)
	return nil
}

// GetUser fetches the current user from the server.
func (c *Client) GetUser(ctx context.Context) (domainauth.Identity, error) {
	sess := c.hub.Current()
	if sess == nil {
		return domainauth.Identity{}, apperrors.Unauthorized("Not signed in")
	}
	var u userResponse
	if err := c.do(ctx, http.MethodGet, "/user", nil, sess.AccessToken, nil, &u); err != nil {
		return domainauth.Identity{}, err
	}
	return u.identity(), nil
}

// ReloadUser refetches the user and emits USER_UPDATED with the refreshed
// identity when it changed.
func (c *Client) ReloadUser(ctx context.Context) error {
	identity, err := c.GetUser(ctx)
	if err != nil {
		return err
	}
	sess := c.hub.Current()
	if sess == nil || sess.Identity.ID != identity.ID {
		return nil
	}
	sess.Identity = identity
	c.hub.Publish(ctx, domainauth.EventUserUpdated, sess)
	return nil
}

// Refresh forces a token refresh of the current session.
func (c *Client) Refresh(ctx context.Context) error {
	sess := c.hub.Current()
	if sess == nil {
		return apperrors.Unauthorized("Not signed in")
	}
	_, err := c.refresh(ctx, sess)
	return err
}

// refresh exchanges the refresh token for a new session and emits
// TOKEN_REFRESHED. When the server rejects the token SIGNED_OUT is emitted.
func (c *Client) refresh(ctx context.Context, sess *domainauth.Session) (*domainauth.Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if cur := c.hub.Current(); cur != nil && cur.AccessToken != sess.AccessToken && !c.needsRefresh(cur) {
		return cur, nil
	}
	if sess.RefreshToken == "" {
		c.logger.InfoContext(ctx, "session expired without refresh token", "user_id", sess.Identity.ID)
		c.publish(ctx, domainauth.EventSignedOut, nil)
		return nil, &AuthError{Status: http.StatusUnauthorized, Code: "session_expired", Message: "Session expired"}
	}

	var tr tokenResponse
	q := url.Values{"grant_type": {"refresh_token"}}
	if err := c.do(ctx, http.MethodPost, "/token", q, "", refreshGrant{RefreshToken: sess.RefreshToken}, &tr); err != nil {
		if definitive(err) {
			c.logger.WarnContext(ctx, "refresh token rejected, signing out", "user_id", sess.Identity.ID, "error", err)
			c.publish(ctx, domainauth.EventSignedOut, nil)
		}
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if tr.User == nil {
		u := userResponse{ID: sess.Identity.ID, Email: sess.Identity.Email, UserMetadata: sess.Identity.Metadata}
		tr.User = &u
	}
	next, err := c.sessionFrom(tr)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	c.logger.DebugContext(ctx, "session refreshed", "user_id", next.Identity.ID, "expires_at", next.ExpiresAt)
	c.publish(ctx, domainauth.EventTokenRefreshed, next)
	return next, nil
}

func (c *Client) needsRefresh(sess *domainauth.Session) bool {
	if sess.ExpiresAt.IsZero() {
		return false
	}
	return !c.now().Before(sess.ExpiresAt.Add(-c.refreshMargin))
}

// publish emits the event and reschedules the refresh timer.
func (c *Client) publish(ctx context.Context, kind domainauth.EventKind, sess *domainauth.Session) {
	c.hub.Publish(ctx, kind, sess)
	if sess == nil {
		c.stopTimer()
		return
	}
	c.scheduleRefresh(sess)
}

func (c *Client) scheduleRefresh(sess *domainauth.Session) {
	if !c.autoRefresh || sess.ExpiresAt.IsZero() {
		return
	}
	delay := sess.ExpiresAt.Add(-c.refreshMargin).Sub(c.now())
	c.armTimer(max(delay, 0))
}

func (c *Client) armTimer(delay time.Duration) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.closed {
		return
	}
	c.timerGen++
	gen := c.timerGen
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(delay, func() { c.onTimer(gen) })
}

func (c *Client) stopTimer() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) onTimer(gen uint64) {
	c.timerMu.Lock()
	current := gen == c.timerGen && !c.closed
	c.timerMu.Unlock()
	if !current {
		return
	}

	sess := c.hub.Current()
	if sess == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	_, err := c.refresh(ctx, sess)
	if err == nil || definitive(err) {
		return
	}
	if c.now().After(sess.ExpiresAt) {
		c.logger.WarnContext(ctx, "session expired while refresh kept failing", "user_id", sess.Identity.ID, "error", err)
		c.publish(ctx, domainauth.EventSignedOut, nil)
		return
	}
	c.logger.WarnContext(ctx, "session refresh failed, retrying", "user_id", sess.Identity.ID, "error", err)
	c.armTimer(c.retryDelay)
}
