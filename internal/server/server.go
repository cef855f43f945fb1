// Package server implements the inspector: an HTTP server over one mounted
// document that serves the live markup, accepts clicks, exposes the caches
// and streams every lifecycle event to websocket clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/payload/internal/config"
	"github.com/conneroisu/payload/internal/dom"
	"github.com/conneroisu/payload/internal/driver"
	"github.com/conneroisu/payload/internal/logging"
	"github.com/conneroisu/payload/internal/registry"
	"github.com/conneroisu/payload/internal/server/middleware"
)

const (
	shutdownTimeout = 5 * time.Second
	sweepInterval   = 5 * time.Minute
)

// InspectorServer serves one driver and its document.
type InspectorServer struct {
	config  *config.Config
	driver  *driver.Driver
	doc     *dom.Document
	logger  logging.Logger
	hub     *Hub
	limiter *middleware.RateLimiter

	httpServer   *http.Server
	serverMutex  sync.RWMutex
	shutdownOnce sync.Once
}

// New creates the server and registers its lifecycle observer on drv.
func New(ctx context.Context, cfg *config.Config, drv *driver.Driver, doc *dom.Document, logger logging.Logger) (*InspectorServer, error) {
	if cfg == nil || drv == nil || doc == nil {
		return nil, errors.New("inspector needs a config, a driver and a document")
	}
	logger = logging.OrNop(logger).WithComponent("inspector")

	s := &InspectorServer{
		config: cfg,
		driver: drv,
		doc:    doc,
		logger: logger,
		hub:    NewHub(logger),
	}
	if cfg.Server.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateLimit)
	}

	if _, err := drv.RegisterComponent(ctx, ObserverComponent, Observer(s.broadcastMessage, nil)); err != nil {
		return nil, fmt.Errorf("register observer: %w", err)
	}

	return s, nil
}

// Hub returns the websocket hub.
func (s *InspectorServer) Hub() *Hub { return s.hub }

// Handler returns the routed handler with middleware applied.
func (s *InspectorServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/click", s.handleClick)
	mux.HandleFunc("/cache", s.handleCache)
	mux.HandleFunc("/components", s.handleComponents)
	mux.HandleFunc("/health", s.handleHealth)

	return s.addMiddleware(mux)
}

// Run starts the hub and the component stream. Start calls it; tests using
// Handler call it directly.
func (s *InspectorServer) Run(ctx context.Context) {
	go s.hub.Run(ctx)
	go s.streamComponents(ctx, s.driver.Components().Watch())
	if s.limiter != nil {
		go s.limiter.Run(ctx, sweepInterval)
	}
}

// Start serves until ctx is done or the listener fails.
func (s *InspectorServer) Start(ctx context.Context) error {
	s.Run(ctx)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(shutdownCtx, err, "shutdown failed")
		}
	}()

	s.logger.Info(ctx, "inspector listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown stops the HTTP server and detaches the observer. It is safe to
// call more than once.
func (s *InspectorServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if uerr := s.driver.UnregisterComponent(ObserverComponent); uerr != nil {
			s.logger.Warn(ctx, uerr, "observer already unregistered")
		}

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()
		if server != nil {
			err = server.Shutdown(ctx)
		}
	})

	return err
}

// streamComponents broadcasts registry changes until ctx is done.
func (s *InspectorServer) streamComponents(ctx context.Context, events <-chan registry.ComponentEvent) {
	defer s.driver.Components().UnWatch(events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.broadcastMessage(componentMessage(ev))
		}
	}
}

func (s *InspectorServer) addMiddleware(handler http.Handler) http.Handler {
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "request served", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
