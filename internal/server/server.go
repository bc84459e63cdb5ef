package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/memoist-io/idserver/config"
	"github.com/memoist-io/idserver/internal/db"
	"github.com/memoist-io/idserver/internal/handlers"
	"github.com/memoist-io/idserver/internal/logging"
	"github.com/memoist-io/idserver/internal/mq"
	"github.com/memoist-io/idserver/internal/password"
	"github.com/memoist-io/idserver/internal/services"
	"github.com/memoist-io/idserver/internal/storage"
	"github.com/memoist-io/idserver/internal/store"
	"github.com/memoist-io/idserver/internal/token"
)

// Server wraps the HTTP server and its long-lived resources.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	events     *mq.Publisher
	logger     *slog.Logger
}

// New constructs a Server from validated configuration, wiring the
// account store, hasher, token codec and optional broker/storage
// backends.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger := logging.New(cfg.Log)

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	codec, err := token.NewCodec(cfg.Auth.SecretKey, cfg.Auth.Algorithm, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init token codec: %w", err)
	}

	events, err := newEventPublisher(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init event publisher: %w", err)
	}

	avatars, err := newAvatarStore(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		if events != nil {
			_ = events.Close()
		}
		return nil, fmt.Errorf("init avatar storage: %w", err)
	}

	userRepo := store.NewUserRepository(dbConn)
	userService := services.NewUserService(userRepo, password.NewHasher(), codec, events, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		requestLogger(logger),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/health", handlers.Health)
	router.Route("/api/v1/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, avatars)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		events:     events,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting identity service", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown releases the server's resources.
func (s *Server) Shutdown() error {
	if s.events != nil {
		_ = s.events.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}

func newEventPublisher(ctx context.Context, cfg config.MQConfig) (*mq.Publisher, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return mq.NewPublisher(client), nil
	case "pubsub":
		client, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return mq.NewPublisher(client), nil
	default:
		return nil, fmt.Errorf("unsupported mq backend %q", cfg.Backend)
	}
}

func newAvatarStore(ctx context.Context, cfg config.StorageConfig) (*storage.AvatarStore, error) {
	var backend storage.ObjectStorage
	switch cfg.Backend {
	case "":
		return nil, nil
	case "minio":
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		backend = client
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		backend = client
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}

	avatars := storage.NewAvatarStore(backend)
	if err := avatars.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return avatars, nil
}

// requestLogger logs one line per request with method, path, status and
// duration.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
