package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/alungalsinan/groot-scribe-studio/config"
	"github.com/alungalsinan/groot-scribe-studio/internal/adapters/memstore"
	redisadapter "github.com/alungalsinan/groot-scribe-studio/internal/adapters/redis"
	"github.com/alungalsinan/groot-scribe-studio/internal/cryptoutil"
	"github.com/alungalsinan/groot-scribe-studio/internal/data"
	domainauth "github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
)

// Stores bundles the profile and role stores backing the coordinator.
type Stores struct {
	Profiles ports.ProfileStore
	Roles    ports.RoleStore
	// seedRole assigns a role directly, bypassing create-if-absent.
	seedRole func(ctx context.Context, userID string, role domainauth.Role) error
}

// BuildStores returns Postgres-backed stores when db is set and the backend
// is postgres, in-memory stores otherwise.
func BuildStores(cfg config.StoreConfig, db *sql.DB) (Stores, error) {
	switch cfg.Backend {
	case config.StoreBackendPostgres, "":
		if db == nil {
			return Stores{}, errors.New("postgres store backend requires a database connection")
		}
		roles := data.NewRoleRepo(db)
		return Stores{
			Profiles: data.NewProfileRepo(db),
			Roles:    roles,
			seedRole: roles.SetRole,
		}, nil
	case config.StoreBackendMemory:
		roles := memstore.NewRoleStore()
		return Stores{
			Profiles: memstore.NewProfileStore(),
			Roles:    roles,
			seedRole: func(_ context.Context, userID string, role domainauth.Role) error {
				roles.SetRole(userID, role)
				return nil
			},
		}, nil
	default:
		return Stores{}, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

// SeedDevRole assigns the configured role to the dev account.
func (s Stores) SeedDevRole(ctx context.Context, dev config.DevAuthConfig, logger *slog.Logger) error {
	if s.seedRole == nil || dev.UserID == "" || dev.Role == "" {
		return nil
	}
	role := domainauth.Role(dev.Role)
	if !role.Valid() {
		return fmt.Errorf("invalid dev auth role %q", dev.Role)
	}
	if err := s.seedRole(ctx, dev.UserID, role); err != nil {
		return fmt.Errorf("seed dev role: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "dev role seeded", "user_id", dev.UserID, "role", string(role))
	}
	return nil
}

// BuildSessionStore returns the session persistence selected by cfg. A Redis
// store requires client.
//
//nolint:ireturn // the store is selected at runtime.
func BuildSessionStore(cfg config.SessionConfig, client redis.UniversalClient, logger *slog.Logger) (ports.SessionStore, error) {
	switch cfg.Store {
	case config.SessionStoreRedis:
		if client == nil {
			return nil, errors.New("redis session store requires a redis client")
		}
		opts := redisadapter.SessionStoreOptions{
			Client:    client,
			Prefix:    cfg.Prefix,
			Retention: cfg.Retention,
		}
		if cfg.EncryptionKey != "" {
			enc, err := cryptoutil.NewFromPassphrase(cfg.EncryptionKey)
			if err != nil {
				return nil, fmt.Errorf("session encryption: %w", err)
			}
			opts.Encryptor = enc
		} else if logger != nil {
			logger.Warn("session encryption key is empty, storing sessions unencrypted")
		}
		return redisadapter.NewSessionStoreWithOptions(opts), nil
	case config.SessionStoreMemory, "":
		return memstore.NewSessionStore(), nil
	default:
		return nil, fmt.Errorf("unsupported session store %q", cfg.Store)
	}
}
