package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/jhughescu/dev-cms/internal/api"
	"github.com/jhughescu/dev-cms/internal/broadcast"
	"github.com/jhughescu/dev-cms/internal/config"
	"github.com/jhughescu/dev-cms/internal/presence"
	"github.com/jhughescu/dev-cms/internal/registry"
	"github.com/jhughescu/dev-cms/internal/slides"
	"github.com/jhughescu/dev-cms/internal/socket"
	"github.com/jhughescu/dev-cms/internal/store"
)

// Application wires the components together in dependency order and owns
// their lifecycle.
type Application struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  *store.Manager
	server *http.Server
}

// New builds the application: store, registry, domain components, socket
// handler, HTTP server.
func New(cfg *config.Config, log zerolog.Logger) (*Application, error) {
	storeCfg := &store.Config{
		Path:            cfg.Database.Path,
		MaxConnections:  cfg.Database.MaxConnections,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		WriteTimeout:    cfg.Database.WriteTimeout,
	}

	manager, err := store.NewManager(storeCfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	sessions := store.NewSessionStore(manager)
	files := store.NewFileStore(manager)

	reg := registry.New(log)
	tracker := presence.NewTracker(sessions, files, reg, log)
	broadcaster := broadcast.NewBroadcaster(sessions, files, reg, log)
	editor := slides.NewEditor(sessions, reg, log)

	wsHandler := socket.NewHandler(tracker, broadcaster, editor, sessions, reg, cfg.Socket.RateLimit, log)
	httpServer := api.NewServer(sessions, reg, wsHandler, log)

	return &Application{
		cfg:   cfg,
		log:   log.With().Str("component", "app").Logger(),
		store: manager,
		server: &http.Server{
			Addr:         cfg.Address(),
			Handler:      httpServer.Routes(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}, nil
}

// Start runs the HTTP server until it is shut down. It blocks.
func (a *Application) Start() error {
	a.log.Info().Str("addr", a.server.Addr).Msg("server starting")
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop shuts down in reverse dependency order: drain HTTP (which severs
// websockets), then flush and close the store.
func (a *Application) Stop() error {
	a.log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Warn().Err(err).Msg("http shutdown did not complete cleanly")
	}

	if err := a.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	a.log.Info().Msg("shutdown complete")
	return nil
}
