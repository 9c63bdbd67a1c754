package cli

import (
	"context"
	"log"

	"tasksync/internal/backend/googletasks"
	"tasksync/internal/backend/httpapi"
	"tasksync/internal/config"
	"tasksync/internal/service"
	"tasksync/internal/session"
)

// ServiceFactory creates the remote store for the configured backend.
// Used to inject the backend during dispatch.
type ServiceFactory func(ctx context.Context, cfg *config.Config, sess session.Session, logger *log.Logger) (service.Service, error)

// SessionLoader returns where the current session is stored.
type SessionLoader func(cfg *config.Config) session.Provider

// DefaultServiceFactory builds an httpapi or googletasks client from cfg.
func DefaultServiceFactory(ctx context.Context, cfg *config.Config, sess session.Session, logger *log.Logger) (service.Service, error) {
	if cfg.Backend == config.BackendGoogleTasks {
		return googletasks.New(ctx, cfg, logger)
	}
	return httpapi.New(cfg.BaseURL, sess,
		httpapi.WithTimeout(cfg.Timeout),
		httpapi.WithLogger(logger),
	)
}

// DefaultSessionLoader reads session.json, or token.json for googletasks.
func DefaultSessionLoader(cfg *config.Config) session.Provider {
	if cfg.Backend == config.BackendGoogleTasks {
		return googletasks.SessionProvider(cfg)
	}
	return session.FileProvider{Path: cfg.SessionPath()}
}
