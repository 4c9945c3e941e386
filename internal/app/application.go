// Package app wires the components together and owns the HTTP server
// lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"boardsync/internal/api"
	"boardsync/internal/config"
	"boardsync/internal/guard"
	"boardsync/internal/logging"
	"boardsync/internal/room"
	"boardsync/internal/store"
	"boardsync/internal/ws"
	"boardsync/pkg/database"
)

// Application holds every long-lived component. Initialization order is
// store, guard, registry, handlers, HTTP server; shutdown runs in
// reverse.
type Application struct {
	config     *config.Config
	store      *store.Manager
	rooms      *room.Registry
	httpServer *http.Server
	logger     *logrus.Entry
}

func NewApplication(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.Component("app")

	boardStore, err := store.NewManager(database.DefaultConfig(cfg.Database.Path))
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}

	accessGuard := guard.NewAccessGuard(boardStore, cfg.Auth.JWTSecret)
	rooms := room.NewRegistry()

	apiServer := api.NewServer(boardStore, rooms)
	wsHandler := ws.NewHandler(accessGuard, rooms, boardStore, ws.HandlerConfig{
		SendBuffer:        cfg.WebSocket.SendBuffer,
		WriteTimeout:      cfg.WebSocket.WriteTimeout,
		HandshakeTimeout:  cfg.WebSocket.HandshakeTimeout,
		DebounceDelay:     cfg.Board.DebounceDelay,
		HeartbeatInterval: cfg.Board.HeartbeatInterval,
		IdleCheckInterval: cfg.Board.IdleCheckInterval,
		IdleTimeout:       cfg.Board.IdleTimeout,
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.Handle("/ws/classrooms/", wsHandler)

	httpServer := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     mux,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WebSocket connections outlive any sane write deadline; the
		// per-frame deadline lives in the connection writer instead.
	}

	return &Application{
		config:     cfg,
		store:      boardStore,
		rooms:      rooms,
		httpServer: httpServer,
		logger:     logger,
	}, nil
}

// Start brings the HTTP server up and returns once it is accepting
// connections or has failed to bind.
func (app *Application) Start(ctx context.Context) error {
	app.logger.WithField("addr", app.httpServer.Addr).Info("starting boardsync")

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		app.logger.Info("boardsync started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the server down: stop accepting connections, then close
// the store. Open sessions tear themselves down when their transports
// drop.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down boardsync")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.WithError(err).Warn("http server shutdown")
	}

	if err := app.store.Close(); err != nil {
		app.logger.WithError(err).Warn("store shutdown")
	}

	app.logger.Info("shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
