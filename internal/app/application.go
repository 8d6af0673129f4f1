package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"peerlink/internal/api"
	"peerlink/internal/config"
	"peerlink/internal/hub"
	"peerlink/internal/relay"
	"peerlink/internal/session"
	"peerlink/internal/store"
	"peerlink/internal/websocket"
)

// Application wires the system together: store, session manager, relay,
// push hub, API server and the HTTP listener.
type Application struct {
	config     *config.Config
	store      *store.Store
	sessions   *session.Manager
	relay      *relay.Relay
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication initializes all components in dependency order:
// Store → Session → Relay → Hub → API → WebSocket → HTTP.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Durable store (foundation layer).
	st, err := store.Open(cfg.Store.Path, cfg.Store.MaxConnections)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	// STEP 2: Session lifecycle on top of the store.
	sessions := session.NewManager(st, cfg.Session.TTL)

	// STEP 3: Pull relay (store-and-poll signal transport).
	signalRelay := relay.NewRelay(sessions, st)

	// STEP 4: Push hub (live websocket signal transport).
	signalHub := hub.NewHub(sessions, st, cfg.Session.BufferTTL)

	// STEP 5: REST surface.
	apiServer := api.NewServer(sessions, signalRelay, st, signalHub)

	// STEP 6: WebSocket endpoint feeding the hub.
	wsHandler := websocket.NewHandler(signalHub, cfg.WebSocket.ReadTimeout, cfg.WebSocket.PingInterval)

	// STEP 7: HTTP server exposing both transports.
	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      st,
		sessions:   sessions,
		relay:      signalRelay,
		hub:        signalHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start brings the HTTP server up and verifies it did not fail
// immediately before returning.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("starting peerlink: addr=%s store=%s", app.httpServer.Addr, app.config.Store.Path)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("peerlink started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP first so no new
// requests arrive, then the store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("shutting down peerlink")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := app.store.Close(); err != nil {
		log.Printf("store shutdown error: %v", err)
	}

	log.Printf("peerlink shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
