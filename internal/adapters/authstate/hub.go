package authstate

// Package authstate holds the session and listener bookkeeping shared by the
// auth backend adapters.

import (
	"context"
	"log/slog"
	"sync"

	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
)

// DefaultKey is the session storage key used when none is configured.
const DefaultKey = "scribe.auth.session"

// Options configures a Hub.
type Options struct {
	// Store persists the current session; nil keeps it in memory only.
	Store ports.SessionStore
	// Key names the stored session.
	Key    string
	Logger *slog.Logger
}

// Hub tracks the current session of one backend, persists it and delivers
// auth events to listeners serially in emission order.
type Hub struct {
	store  ports.SessionStore
	key    string
	logger *slog.Logger

	mu        sync.Mutex
	current   *domainauth.Session
	restored  bool
	listeners map[uint64]ports.AuthListener
	order     []uint64
	nextID    uint64

	// publishMu orders whole publishes: state change, persistence and delivery.
	publishMu sync.Mutex
}

// NewHub constructs a Hub.
func NewHub(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "auth_state")
	}
	key := opts.Key
	if key == "" {
		key = DefaultKey
	}
	return &Hub{
		store:     opts.Store,
		key:       key,
		logger:    logger,
		listeners: make(map[uint64]ports.AuthListener),
	}
}

// Restore returns the current session, loading it from the store on first use.
// A missing stored session is not an error.
func (h *Hub) Restore(ctx context.Context) (*domainauth.Session, error) {
	h.mu.Lock()
	if h.restored || h.store == nil {
		h.restored = true
		cur := cloneSession(h.current)
		h.mu.Unlock()
		return cur, nil
	}
	h.mu.Unlock()

	sess, err := h.store.Get(ctx, h.key)
	switch {
	case apperrors.IsNotFound(err):
		h.mu.Lock()
		h.restored = true
		h.mu.Unlock()
		return nil, nil
	case err != nil:
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.restored {
		h.current = &sess
		h.restored = true
	}
	return cloneSession(h.current), nil
}

// Current returns the in-memory session without touching the store.
func (h *Hub) Current() *domainauth.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return cloneSession(h.current)
}

// Subscribe registers listener. When a session is already known the listener
// immediately receives INITIAL_SESSION with it. Must not be called from a listener.
func (h *Hub) Subscribe(listener ports.AuthListener) ports.Subscription {
	if listener == nil {
		return ports.SubscriptionFunc(nil)
	}
	h.publishMu.Lock()
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = listener
	h.order = append(h.order, id)
	initial := cloneSession(h.current)
	h.mu.Unlock()

	if initial != nil {
		listener(domainauth.EventInitialSession, initial)
	}
	h.publishMu.Unlock()

	var once sync.Once
	return ports.SubscriptionFunc(func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners, id)
			for i, v := range h.order {
				if v == id {
					h.order = append(h.order[:i], h.order[i+1:]...)
					break
				}
			}
		})
	})
}

// ListenerCount returns the number of active listeners.
func (h *Hub) ListenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Publish replaces the current session, persists the change and notifies
// listeners. A nil sess clears the session. Persistence failures are logged
// and do not stop delivery. Concurrent publishes run one at a time, so the
// stored session and the listeners always end on the last event.
func (h *Hub) Publish(ctx context.Context, kind domainauth.EventKind, sess *domainauth.Session) {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	h.mu.Lock()
	h.current = cloneSession(sess)
	h.restored = true
	listeners := make([]ports.AuthListener, 0, len(h.order))
	for _, id := range h.order {
		listeners = append(listeners, h.listeners[id])
	}
	h.mu.Unlock()

	h.persist(ctx, sess)

	for _, l := range listeners {
		l(kind, cloneSession(sess))
	}
	h.logger.DebugContext(ctx, "auth event emitted", "event", string(kind), "listeners", len(listeners))
}

func (h *Hub) persist(ctx context.Context, sess *domainauth.Session) {
	if h.store == nil {
		return
	}
	var err error
	if sess == nil {
		err = h.store.Delete(ctx, h.key)
	} else {
		err = h.store.Save(ctx, h.key, *sess)
	}
	if err != nil {
		h.logger.WarnContext(ctx, "failed to persist session", "key", h.key, "error", err)
	}
}

func cloneSession(s *domainauth.Session) *domainauth.Session {
	if s == nil {
		return nil
	}
	cp := s.Clone()
	return &cp
}
