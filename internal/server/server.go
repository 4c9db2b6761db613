package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spotseeker/apiserver/config"
	"github.com/spotseeker/apiserver/internal/db"
	"github.com/spotseeker/apiserver/internal/handlers"
	"github.com/spotseeker/apiserver/internal/identity"
	"github.com/spotseeker/apiserver/internal/logging"
	"github.com/spotseeker/apiserver/internal/metrics"
	"github.com/spotseeker/apiserver/internal/mq"
	"github.com/spotseeker/apiserver/internal/notify"
	"github.com/spotseeker/apiserver/internal/resets"
	"github.com/spotseeker/apiserver/internal/services"
	"github.com/spotseeker/apiserver/internal/session"
	"github.com/spotseeker/apiserver/internal/storage"
	"github.com/spotseeker/apiserver/internal/store"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and everything it owns.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	closers    []io.Closer
	logger     *zap.Logger
}

// New wires configuration into a ready-to-start Server.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Server{db: dbConn, logger: logger}

	rdb := resets.NewRedisClient(cfg.Redis)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		s.close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	resetBroker := resets.NewBroker(rdb, cfg.PasswordReset)
	s.closers = append(s.closers, resetBroker)

	backend, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open message queue: %w", err)
	}
	s.closers = append(s.closers, backend)

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	var photos services.PhotoStore
	if objects != nil {
		photos = objects
	} else {
		logger.Info("object storage disabled; profile photo uploads unavailable")
	}

	dir := store.NewDirectory(dbConn)
	identitySvc := services.NewIdentityService(
		dir,
		newGateway(ctx, cfg.OAuth, logger),
		session.NewIssuer(cfg.JWT.Secret, cfg.JWT.TTL),
		resetBroker,
		notify.NewPublisher(backend, cfg.MQ.NotificationsChannel, cfg.PasswordReset.URL),
		logger.Named("identity"),
	)
	accountSvc := services.NewAccountService(dir, photos, logger.Named("accounts"))

	m := metrics.New()
	authHandler := handlers.NewAuthHandler(
		identitySvc,
		accountSvc,
		services.RegisterOptions{AllowClientSuppliedRole: cfg.Features.AllowRoleOnRegister},
		m,
		logger,
	)
	accountHandler := handlers.NewAccountHandler(accountSvc, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.Middleware(logger.Named("http")),
		middleware.Recoverer,
		m.Middleware,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", m.Handler())

	handlers.AuthRouter(router, authHandler)
	router.Route("/manager", func(r chi.Router) {
		handlers.ManagerRouter(r, authHandler)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, accountHandler, identitySvc)
	})
	router.Route("/admin", func(r chi.Router) {
		handlers.AdminRouter(r, accountHandler, identitySvc)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// newGateway registers every provider the configuration enables. A provider
// whose discovery fails is left out and reported as unsupported.
func newGateway(ctx context.Context, cfg config.OAuthConfig, logger *zap.Logger) *identity.Gateway {
	gw := identity.NewGateway(cfg.Timeout)

	register := func(name string, build func() (identity.Provider, error)) {
		p, err := build()
		if err != nil {
			logger.Warn("identity provider disabled", zap.String("provider", name), zap.Error(err))
			return
		}
		if err := gw.Use(name, p); err != nil {
			logger.Warn("identity provider not registered", zap.String("provider", name), zap.Error(err))
			return
		}
		logger.Info("identity provider enabled", zap.String("provider", name))
	}

	if cfg.GoogleClientID != "" {
		register("google", func() (identity.Provider, error) { return identity.NewGoogle(ctx) })
	}
	if cfg.AppleClientID != "" {
		register("apple", func() (identity.Provider, error) { return identity.NewApple(ctx, cfg.AppleClientID) })
	}
	if cfg.FacebookEnabled {
		register("facebook", func() (identity.Provider, error) { return identity.NewFacebook(cfg.FacebookGraphURL), nil })
	}
	return gw
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the database, Redis and broker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.logger.Warn("close resource", zap.Error(err))
		}
	}
	s.closers = nil
	if s.db != nil {
		_ = s.db.Close()
	}
}
