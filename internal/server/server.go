package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/wellspring/apiserver/config"
	"github.com/wellspring/apiserver/internal/auth"
	"github.com/wellspring/apiserver/internal/db"
	"github.com/wellspring/apiserver/internal/handlers"
	"github.com/wellspring/apiserver/internal/logging"
	"github.com/wellspring/apiserver/internal/mq"
	"github.com/wellspring/apiserver/internal/services"
	"github.com/wellspring/apiserver/internal/storage"
	"github.com/wellspring/apiserver/internal/store"
	"github.com/wellspring/apiserver/internal/telemetry"
	"go.uber.org/zap"
)

const requestTimeout = 60 * time.Second

// Dependencies are the collaborators the HTTP router is built from.
type Dependencies struct {
	Users    services.UserRepository
	Sessions services.SessionRepository
	Tokens   *auth.TokenService
	Media    *services.MediaService
	Events   services.EventPublisher
	Logger   *zap.Logger

	CORS        config.CORSConfig
	ServiceName string
}

// Server wraps the HTTP server, router and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *zap.Logger
	closers    []io.Closer
	shutdowns  []func(context.Context) error
}

// New opens every backend selected by cfg and constructs a Server. Resources
// opened before a failure are released before returning.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (srv *Server, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	srv = &Server{logger: logger}
	defer func() {
		if err != nil {
			_ = srv.release(context.Background())
			srv = nil
		}
	}()

	tracingShutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	srv.shutdowns = append(srv.shutdowns, tracingShutdown)

	var (
		userRepo    services.UserRepository
		sessionRepo services.SessionRepository
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := store.NewMemory()
		srv.closers = append(srv.closers, mem)
		userRepo, sessionRepo = mem.Users(), mem.Sessions()
		logger.Warn("using in-memory store; data is lost on restart")
	default:
		dbConn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		srv.closers = append(srv.closers, dbConn)
		userRepo, sessionRepo = store.NewUserRepository(dbConn), store.NewSessionRepository(dbConn)
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	if objects != nil {
		if err := objects.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket %s: %w", objects.Bucket(), err)
		}
		logger.Info("media storage enabled", zap.String("driver", cfg.Storage.Driver), zap.String("bucket", objects.Bucket()))
	}

	var events services.EventPublisher = services.NoopEventPublisher{}
	queue, err := mq.Connect(ctx, cfg.MQ)
	if err != nil {
		return nil, err
	}
	if queue != nil {
		srv.closers = append(srv.closers, queue)
		events = services.NewMQEventPublisher(queue, cfg.MQ.SessionEventChannel, logger)
		logger.Info("session events enabled", zap.String("driver", cfg.MQ.Driver), zap.String("channel", cfg.MQ.SessionEventChannel))
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	srv.router = NewRouter(Dependencies{
		Users:       userRepo,
		Sessions:    sessionRepo,
		Tokens:      tokens,
		Media:       services.NewMediaService(objects, cfg.Storage.PublicBaseURL, cfg.Storage.MaxUploadSize),
		Events:      events,
		Logger:      logger,
		CORS:        cfg.CORS,
		ServiceName: cfg.Telemetry.ServiceName,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

// NewRouter builds the HTTP API over deps.
func NewRouter(deps Dependencies) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := deps.Events
	if events == nil {
		events = services.NoopEventPublisher{}
	}
	media := deps.Media
	if media == nil {
		media = services.NewMediaService(nil, "", 0)
	}
	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "wellspring-apiserver"
	}

	userService := services.NewUserService(deps.Users)
	sessionService := services.NewSessionService(deps.Sessions,
		services.WithEventPublisher(events),
		services.WithLogger(logger),
	)
	gateway := auth.NewGateway(deps.Tokens, deps.Users)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger),
		middleware.Recoverer,
		telemetry.Middleware(serviceName),
		cors.Handler(corsOptions(deps.CORS)),
		middleware.Timeout(requestTimeout),
	)

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.Health)
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, handlers.NewAuthHandler(userService, deps.Tokens, gateway, logger))
		})
		r.Route("/sessions", func(r chi.Router) {
			handlers.SessionRouter(r, handlers.NewSessionHandler(sessionService, gateway, logger))
		})
		r.Route("/media", func(r chi.Router) {
			handlers.MediaRouter(r, handlers.NewMediaHandler(media, gateway, logger))
		})
	})
	return router
}

func corsOptions(cfg config.CORSConfig) cors.Options {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done, then closes the store and broker connections.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http: %w", err))
		}
	}
	if err := s.release(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) release(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	for _, shutdown := range s.shutdowns {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.shutdowns = nil
	return errors.Join(errs...)
}
