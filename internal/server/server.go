// Package server hosts the fable HTTP API: generation runs, narration
// runs, bundles, and preferences.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fablepress/fable/internal/api"
	"github.com/fablepress/fable/internal/audio"
	"github.com/fablepress/fable/internal/cache"
	"github.com/fablepress/fable/internal/config"
	"github.com/fablepress/fable/internal/gensvc"
	"github.com/fablepress/fable/internal/home"
	"github.com/fablepress/fable/internal/jobs"
	"github.com/fablepress/fable/internal/prefs"
	"github.com/fablepress/fable/internal/server/endpoints"
	"github.com/fablepress/fable/internal/svcctx"
)

// Server is the main fable HTTP server.
type Server struct {
	httpServer *http.Server
	jobManager *jobs.Manager
	configMgr  *config.Manager
	rdb        *redis.Client
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// ConfigManager provides configuration with hot-reload support (required)
	ConfigManager *config.Manager
	// Home is the fable home directory for bundle exports
	Home *home.Dir
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}

	appCfg := cfg.ConfigManager.Get()

	genClient := gensvc.NewClient(gensvc.Config{
		BaseURL: appCfg.Generation.BaseURL,
		APIKey:  config.ResolveEnvVars(appCfg.Generation.APIKey),
	})
	audioClient := audio.NewClient(audio.ClientConfig{
		BaseURL: appCfg.Audio.BaseURL,
		APIKey:  config.ResolveEnvVars(appCfg.Audio.APIKey),
		Timeout: appCfg.Audio.RequestTimeout,
	})

	s := &Server{
		jobManager: jobs.NewManager(cfg.Logger),
		configMgr:  cfg.ConfigManager,
		logger:     cfg.Logger,
	}

	// Preference store and result cache back onto Redis when enabled,
	// in-memory otherwise.
	var prefStore prefs.Store
	var resultCache cache.ResultCache
	if appCfg.Redis.Enabled {
		s.rdb = redis.NewClient(&redis.Options{
			Addr:     appCfg.Redis.Addr,
			Password: appCfg.Redis.Password,
			DB:       appCfg.Redis.DB,
		})
		prefStore = prefs.NewRedisStore(s.rdb)
		resultCache = cache.NewRedis(s.rdb)
		cfg.Logger.Info("using redis-backed stores", "addr", appCfg.Redis.Addr)
	} else {
		prefStore = prefs.NewMemoryStore()
		resultCache = cache.NewMemory()
	}

	s.services = &svcctx.Services{
		JobManager:    s.jobManager,
		GenService:    genClient,
		AudioService:  audioClient,
		Prefs:         prefStore,
		ResultCache:   resultCache,
		ConfigManager: cfg.ConfigManager,
		Home:          cfg.Home,
		Logger:        cfg.Logger,
	}

	cfg.ConfigManager.OnChange(func(c *config.Config) {
		// Loop tunables are read per-request from the manager; only note
		// the reload here.
		cfg.Logger.Info("configuration reloaded")
	})

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server. It blocks until the context is cancelled or
// an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			s.setNotRunning()
			return fmt.Errorf("redis ping failed: %w", err)
		}
		s.logger.Info("redis is ready")
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown. Active runs get their contexts
// cancelled through the manager so they stop at the next suspension
// point with progress preserved.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	for _, run := range s.jobManager.Runs() {
		s.jobManager.CancelRun(run.ID)
	}

	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// JobManager returns the run manager.
func (s *Server) JobManager() *jobs.Manager {
	return s.jobManager
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services == nil || s.services.GenService == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
