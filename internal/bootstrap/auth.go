package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alungalsinan/groot-scribe-studio/config"
	"github.com/alungalsinan/groot-scribe-studio/internal/adapters/devauth"
	"github.com/alungalsinan/groot-scribe-studio/internal/adapters/gotrue"
	"github.com/alungalsinan/groot-scribe-studio/internal/adapters/oidc"
	"github.com/alungalsinan/groot-scribe-studio/internal/ports"
)

// Refresher is implemented by backends that can renew the current session on demand.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// AuthBackendConfig contains configuration for building the auth backend.
type AuthBackendConfig struct {
	Auth     config.AuthConfig
	Sessions ports.SessionStore
	// HTTPClient overrides the client used by the gotrue and oidc backends.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// BuildAuthBackend creates the auth backend for the configured mode.
//
//nolint:ireturn // the backend is selected at runtime.
func BuildAuthBackend(ctx context.Context, cfg AuthBackendConfig) (ports.AuthBackend, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Auth.Mode {
	case config.AuthModeGoTrue, "":
		return buildGoTrue(cfg, logger)
	case config.AuthModeOIDC:
		return buildOIDC(ctx, cfg, logger)
	case config.AuthModeMock:
		return buildDevAuth(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

//nolint:ireturn // keeps nil backends untyped.
func buildGoTrue(cfg AuthBackendConfig, logger *slog.Logger) (ports.AuthBackend, error) {
	gt := cfg.Auth.GoTrue
	if gt.URL == "" || gt.AnonKey == "" {
		logger.Warn("AuthModeGoTrue selected but required config missing",
			"url_empty", gt.URL == "",
			"anon_key_empty", gt.AnonKey == "",
		)
		return nil, errors.New("gotrue auth requires GOTRUE_URL and GOTRUE_ANON_KEY")
	}

	client, err := gotrue.New(gotrue.Config{
		URL:                gt.URL,
		AnonKey:            gt.AnonKey,
		JWTSecret:          gt.JWTSecret,
		RefreshMargin:      gt.RefreshMargin,
		DisableAutoRefresh: !gt.AutoRefresh,
		Timeout:            gt.Timeout,
		Store:              cfg.Sessions,
		SessionKey:         cfg.Auth.Session.Key,
		HTTPClient:         cfg.HTTPClient,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create gotrue client: %w", err)
	}
	return client, nil
}

//nolint:ireturn // keeps nil backends untyped.
func buildOIDC(ctx context.Context, cfg AuthBackendConfig, logger *slog.Logger) (ports.AuthBackend, error) {
	oc := cfg.Auth.OIDC
	if oc.DiscoveryURL == "" || oc.ClientID == "" {
		logger.Warn("AuthModeOIDC selected but required config missing",
			"discovery_url_empty", oc.DiscoveryURL == "",
			"client_id_empty", oc.ClientID == "",
		)
		return nil, errors.New("oidc auth requires OIDC_DISCOVERY_URL and OIDC_CLIENT_ID")
	}

	prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
		ClientID:     oc.ClientID,
		ClientSecret: oc.ClientSecret,
		Scope:        oc.Scope,
		DiscoveryURL: oc.DiscoveryURL,
		HTTPClient:   cfg.HTTPClient,
		Store:        cfg.Sessions,
		SessionKey:   cfg.Auth.Session.Key,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create oidc provider: %w", err)
	}
	return prov, nil
}

//nolint:ireturn // keeps nil backends untyped.
func buildDevAuth(cfg AuthBackendConfig, logger *slog.Logger) (ports.AuthBackend, error) {
	dev := cfg.Auth.DevAuth
	logger.Warn("dev auth enabled; do not use in production", "email", dev.Email)

	prov, err := devauth.NewProvider(devauth.Config{
		Accounts: []devauth.Account{{
			ID:       dev.UserID,
			Email:    dev.Email,
			Password: dev.Password,
			Name:     dev.Name,
		}},
		RequireConfirmation: dev.RequireConfirmation,
		Store:               cfg.Sessions,
		SessionKey:          cfg.Auth.Session.Key,
		Logger:              logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create dev auth provider: %w", err)
	}
	return prov, nil
}
