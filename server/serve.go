package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/san-kum/probowler/server/cache"
	"github.com/san-kum/probowler/server/config"
	"github.com/san-kum/probowler/server/handlers"
	"github.com/san-kum/probowler/server/middleware"
	"github.com/san-kum/probowler/server/pose"
	"github.com/san-kum/probowler/server/processor"
	"github.com/san-kum/probowler/server/store"
)

const shutdownTimeout = 30 * time.Second

type Server struct {
	router      *gin.Engine
	logger      *zap.Logger
	processor   *processor.TrialProcessor
	poseClient  *pose.Client
	store       *store.Store
	rateLimiter *middleware.RateLimiter
	config      *config.Config
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP and websocket API",
		Action: func(c *cli.Context) error {
			cfg := config.LoadConfig()

			logger, err := newLogger(cfg, "")
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := cfg.ValidateConfig(logger); err != nil {
				return err
			}

			return runServer(c.Context, cfg, logger)
		},
	}
}

func runServer(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := NewServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Server.Environment),
			zap.String("version", version))

		var err error
		if cfg.Security.EnableHTTPS {
			err = srv.ListenAndServeTLS(cfg.Security.CertFile, cfg.Security.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		server.Shutdown()
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	server.Shutdown()
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

// NewServer wires storage, cache, pose client, processor and routes. Background work
// stops when ctx is done.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	db, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	logger.Info("Report store opened", zap.String("path", db.Path()))

	resultCache := newCache(ctx, cfg, logger)

	poseClient := pose.NewClient(cfg.Pose, logger)
	go poseClient.StartHealthChecker(ctx)

	trialProcessor := processor.NewTrialProcessor(cfg.Processor, cfg.AnalysisOptions(), poseClient, resultCache, db.Reports(), logger)

	rateLimiter := middleware.NewRateLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst, logger)
	authMiddleware := middleware.NewAuthMiddleware(cfg.Security.JWTSecretKey, logger)

	router := handlers.NewRouter(handlers.RouterConfig{
		Analysis:    handlers.NewAnalysisHandler(trialProcessor, db.Reports(), cfg.Security.MaxRequestSize, version, logger),
		WebSocket:   handlers.NewWebSocketHandler(trialProcessor, cfg.Security.AllowedOrigins, logger),
		Auth:        authMiddleware,
		RateLimiter: rateLimiter,
		Security:    cfg.Security,
		Probes:      []middleware.Probe{{Name: "pose", Healthy: poseClient.Healthy}},
		Version:     version,
		Logger:      logger,
	})

	return &Server{
		router:      router,
		logger:      logger,
		processor:   trialProcessor,
		poseClient:  poseClient,
		store:       db,
		rateLimiter: rateLimiter,
		config:      cfg,
	}, nil
}

// newCache connects to Redis when enabled and falls back to the in-memory cache.
func newCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) cache.Cache {
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, cfg.Redis.TTL, logger)
		if err == nil {
			return rc
		}
		logger.Warn("Failed to connect to Redis, using memory cache", zap.Error(err))
	}
	return cache.NewMemoryCache(cfg.Processor.CacheEntries, cfg.Redis.TTL, logger)
}

// Shutdown stops the processor, which closes the cache, then the rate limiter and the
// store.
func (s *Server) Shutdown() {
	if err := s.processor.Shutdown(shutdownTimeout); err != nil {
		s.logger.Error("Failed to shutdown trial processor", zap.Error(err))
	}

	s.rateLimiter.Shutdown()

	if err := s.store.Close(); err != nil {
		s.logger.Error("Failed to close report store", zap.Error(err))
	}
}
