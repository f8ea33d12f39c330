package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	"github.com/alungalsinan/groot-scribe-studio/internal/observability/notify"
	"github.com/alungalsinan/groot-scribe-studio/internal/observability/statsd"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
	"github.com/go-playground/validator/v10"
)

// Notifier delivers user-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}

// CoordinatorOptions groups dependencies for Coordinator.
type CoordinatorOptions struct {
	Auth     ports.AuthBackend
	Profiles ports.ProfileStore
	Roles    ports.RoleStore

	// Optional collaborators.
	Notifier Notifier
	Metrics  statsd.Sink
	Logger   *slog.Logger

	// RedirectURL is passed to the backend on sign-up for the verification link.
	RedirectURL string
	// ResolveTimeout bounds a single profile/role resolution; zero means no bound.
	ResolveTimeout time.Duration
	// Now overrides the clock for tests.
	Now func() time.Time
}

var (
	// ErrClosed is returned by operations invoked after Close.
	ErrClosed = errors.New("session coordinator closed")
	// ErrAlreadyInitialized is returned when Initialize is called twice.
	ErrAlreadyInitialized = errors.New("session coordinator already initialized")
)

// Coordinator owns the authentication state of one application context: who is
// signed in, with which profile and role. It bootstraps from the backend's persisted
// session, follows backend auth events, and exposes immutable snapshots.
//
// All state changes happen under mu and replace the snapshot fields in one step.
// Background resolutions carry the generation current when they started and are
// discarded when a later event or refresh has moved the generation on.
type Coordinator struct {
	auth        ports.AuthBackend
	profiles    ports.ProfileStore
	roles       ports.RoleStore
	notifier    Notifier
	metrics     statsd.Sink
	logger      *slog.Logger
	redirectURL string
	timeout     time.Duration
	now         func() time.Time
	validate    *validator.Validate

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu          sync.Mutex
	state       auth.Snapshot
	generation  uint64
	checking    bool
	resolving   bool
	// settled is closed when resolving drops back to false.
	settled     chan struct{}
	actions     int
	initStarted bool
	closed      bool
	sub         ports.Subscription
	version     uint64
	listeners   map[uint64]func(auth.Snapshot)
	nextID      uint64

	// deliverMu serializes listener delivery so snapshots arrive in version order.
	deliverMu sync.Mutex
	delivered uint64
}

// NewCoordinator constructs a Coordinator. Call Initialize once to start it and
// Close to tear it down.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	switch {
	case opts.Auth == nil:
		return nil, errors.New("AuthBackend is required")
	case opts.Profiles == nil:
		return nil, errors.New("ProfileStore is required")
	case opts.Roles == nil:
		return nil, errors.New("RoleStore is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		auth:        opts.Auth,
		profiles:    opts.Profiles,
		roles:       opts.Roles,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "session_coordinator"),
		redirectURL: opts.RedirectURL,
		timeout:     opts.ResolveTimeout,
		now:         now,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		baseCtx:     ctx,
		cancel:      cancel,
		listeners:   make(map[uint64]func(auth.Snapshot)),
	}, nil
}

// MustNewCoordinator is like NewCoordinator but panics on error.
func MustNewCoordinator(opts CoordinatorOptions) *Coordinator {
	c, err := NewCoordinator(opts)
	if err != nil {
		panic(err)
	}
	return c
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() auth.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked().Clone()
}

// Subscribe registers fn to receive a snapshot after every state change.
// Deliveries are serialized and never go backwards; intermediate states may be
// coalesced. fn must not call mutating Coordinator methods synchronously.
func (c *Coordinator) Subscribe(fn func(auth.Snapshot)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// ClearError resets the error field.
func (c *Coordinator) ClearError() {
	c.update(func() bool {
		if c.state.Error == "" {
			return false
		}
		c.state.Error = ""
		return true
	})
}

// Close tears the coordinator down: it stops listening to the backend, cancels
// in-flight work and waits for background goroutines. Later events and late
// continuations are ignored. Close is idempotent.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	c.cancel()
	c.wg.Wait()
	c.logger.Debug("session coordinator closed")
}

func (c *Coordinator) snapshotLocked() auth.Snapshot {
	s := c.state
	s.Loading = c.checking || c.resolving || c.actions > 0
	return s
}

// update applies fn under the lock unless the coordinator is closed. fn reports
// whether it changed anything; changes are published to listeners. update
// returns false when the coordinator is closed.
func (c *Coordinator) update(fn func() bool) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	changed := fn()
	if changed {
		c.version++
	}
	c.mu.Unlock()

	if changed {
		c.publish()
	}
	return true
}

func (c *Coordinator) publish() {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	if c.version == c.delivered || len(c.listeners) == 0 {
		c.delivered = c.version
		c.mu.Unlock()
		return
	}
	c.delivered = c.version
	snap := c.snapshotLocked()
	listeners := make([]func(auth.Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap.Clone())
	}
}

// spawnLocked starts fn on a tracked goroutine. Callers hold mu and have
// checked that the coordinator is open, so Close cannot race the Add.
func (c *Coordinator) spawnLocked(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// setResolvingLocked flips resolving and wakes waitResolved callers when no
// resolution is outstanding any more.
func (c *Coordinator) setResolvingLocked(v bool) {
	switch {
	case v && !c.resolving:
		c.settled = make(chan struct{})
	case !v && c.resolving:
		close(c.settled)
	}
	c.resolving = v
}

// waitResolved blocks until no profile/role resolution is outstanding, ctx is
// done or the coordinator is closed.
func (c *Coordinator) waitResolved(ctx context.Context) {
	for {
		c.mu.Lock()
		if !c.resolving || c.closed {
			c.mu.Unlock()
			return
		}
		ch := c.settled
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return
		case <-c.baseCtx.Done():
			return
		}
	}
}

func (c *Coordinator) markInitializedLocked() {
	c.state.Initialized = true
}

func (c *Coordinator) notify(ctx context.Context, n notify.Notification) {
	if c.notifier == nil {
		return
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = c.now()
	}
	sendCtx := context.WithoutCancel(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if n.UserID == "" {
		n.UserID = c.state.UserID()
	}
	c.spawnLocked(func() {
		ctx, cancel := context.WithTimeout(sendCtx, 10*time.Second)
		defer cancel()
		c.notifier.Notify(ctx, n)
	})
}
