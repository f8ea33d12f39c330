package redis

// Package redis provides Redis-based adapters for persisting auth sessions.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alungalsinan/groot-scribe-studio/internal/cryptoutil"
	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
)

var _ ports.SessionStore = (*SessionStore)(nil)

const (
	// DefaultPrefix namespaces session keys.
	DefaultPrefix = "scribe:session:"
	// DefaultRetention is how long a refreshable session is kept.
	DefaultRetention = 30 * 24 * time.Hour
)

// ErrNotFound is returned when no session is stored under a key.
var ErrNotFound = apperrors.NotFound("session not found")

// SessionStoreOptions configures a SessionStore.
type SessionStoreOptions struct {
	Client redis.UniversalClient
	Prefix string
	// Retention bounds how long a session with a refresh token is kept.
	// Sessions without one expire with their access token.
	Retention time.Duration
	// Encryptor seals payloads at rest. Nil stores plain JSON.
	Encryptor cryptoutil.Encryptor
	Now       func() time.Time
}

// SessionStore is a Redis-backed ports.SessionStore. TTLs follow the session:
// refreshable sessions are retained, others expire with their access token.
type SessionStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	enc       cryptoutil.Encryptor
	now       func() time.Time
}

// NewSessionStore creates a Redis session store with the default prefix.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return NewSessionStoreWithOptions(SessionStoreOptions{Client: client})
}

// NewSessionStoreWithPrefix creates a Redis session store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return NewSessionStoreWithOptions(SessionStoreOptions{Client: client, Prefix: prefix})
}

// NewSessionStoreWithOptions creates a Redis session store from opts.
func NewSessionStoreWithOptions(opts SessionStoreOptions) *SessionStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &SessionStore{
		client:    opts.Client,
		prefix:    prefix,
		retention: retention,
		enc:       opts.Encryptor,
		now:       now,
	}
}

func (s *SessionStore) ttl(sess domainauth.Session) (time.Duration, error) {
	if sess.RefreshToken != "" || sess.ExpiresAt.IsZero() {
		return s.retention, nil
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return 0, apperrors.Validation("session is expired")
	}
	return ttl, nil
}

func (s *SessionStore) Save(ctx context.Context, key string, sess domainauth.Session) error {
	if key == "" {
		return apperrors.ValidationField("key", "session key is required")
	}
	ttl, err := s.ttl(sess)
	if err != nil {
		return err
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	payload := string(data)
	if s.enc != nil {
		if payload, err = s.enc.Seal(data, []byte(key)); err != nil {
			return fmt.Errorf("seal session: %w", err)
		}
	}
	if err := s.client.Set(ctx, s.prefix+key, payload, ttl).Err(); err != nil {
		return unavailable("redis set", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, key string) (domainauth.Session, error) {
	if key == "" {
		return domainauth.Session{}, ErrNotFound
	}

	payload, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ErrNotFound
		}
		return domainauth.Session{}, unavailable("redis get", err)
	}
	data, err := s.open(key, payload)
	if err != nil {
		return domainauth.Session{}, err
	}

	var sess domainauth.Session
	if unmarshalErr := json.Unmarshal(data, &sess); unmarshalErr != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", unmarshalErr)
	}

	// A session that cannot be refreshed is useless once expired.
	if sess.RefreshToken == "" && sess.Expired(s.now()) {
		if deleteErr := s.Delete(ctx, key); deleteErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup expired session: %w", deleteErr)
		}
		return domainauth.Session{}, ErrNotFound
	}

	return sess, nil
}

// open returns the JSON for payload. Plain payloads written before an
// encryption key was configured are still accepted.
func (s *SessionStore) open(key, payload string) ([]byte, error) {
	if !cryptoutil.IsSealed(payload) {
		return []byte(payload), nil
	}
	if s.enc == nil {
		return nil, apperrors.Internal("session is sealed but no encryption key is configured")
	}
	data, err := s.enc.Open(payload, []byte(key))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "session could not be decrypted")
	}
	return data, nil
}

func (s *SessionStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return unavailable("redis del", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	if ctxErr := apperrors.FromContext(err); ctxErr != nil {
		return ctxErr
	}
	return apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "%s failed", op)
}
