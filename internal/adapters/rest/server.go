package rest

import (
	"cian-monitor-service/internal/core/port"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// ServerConfig - параметры HTTP-сервера
type ServerConfig struct {
	Port           string
	AdminToken     string
	AllowedOrigins []string
	// RequestTimeout должен покрывать все повторы запроса к провайдеру
	RequestTimeout time.Duration
}

type Server struct {
	httpServer *http.Server
	logger     port.LoggerPort
}

func NewServer(cfg ServerConfig, handlers *Handlers, baseLogger port.LoggerPort) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(cfg, handlers, baseLogger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: baseLogger,
	}
}

// NewRouter собирает маршруты и middleware
func NewRouter(cfg ServerConfig, handlers *Handlers, baseLogger port.LoggerPort) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP, LoggerMiddleware(baseLogger), middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Trace-ID", AdminTokenHeader},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/healthz", handlers.HandleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/fetch", handlers.HandleRunFetch)

		r.Get("/admission", handlers.HandleGlobalAdmission)
		r.Get("/admission/{userID}", handlers.HandleUserAdmission)

		r.Get("/listings", handlers.HandleListListings)
		r.Get("/listings/{id}", handlers.HandleGetListing)

		r.Get("/statistics", handlers.HandleStatistics)

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminTokenMiddleware(cfg.AdminToken))

			r.Post("/admission/{userID}/reset", handlers.HandleResetAdmission)
			r.Delete("/listings", handlers.HandleCleanupListings)
		})
	})

	return r
}

// Start блокируется до остановки сервера
func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", port.Fields{"address": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("Could not start server", err, nil)
		return fmt.Errorf("could not start server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping REST API server...", nil)
	return s.httpServer.Shutdown(ctx)
}
