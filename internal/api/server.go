package api

import (
	"context"
	"net/http"
	"time"

	"example.com/backstage/services/procurement/config"
	"example.com/backstage/services/procurement/internal/api/handlers"
	"example.com/backstage/services/procurement/internal/api/middleware"
	"example.com/backstage/services/procurement/internal/metrics"
	"example.com/backstage/services/procurement/internal/notify"
	"example.com/backstage/services/procurement/internal/services"
	"example.com/backstage/services/procurement/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Server represents the HTTP server
type Server struct {
	config     config.ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	service    *services.ProcurementService
	hub        *notify.Hub
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.ServerConfig,
	service *services.ProcurementService,
	hub *notify.Hub,
	metrics *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:  cfg,
		service: service,
		hub:     hub,
		metrics: metrics,
		tracer:  tracer,
	}

	server.router = server.setupRouter()
	server.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server
}

// Router exposes the configured engine, mainly for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging())
	if s.config.CorsEnabled {
		router.Use(middleware.CORS(s.config.CorsOrigins))
	}
	if app := s.tracer.Application(); app != nil {
		router.Use(middleware.NewRelic(app))
	}
	if s.config.Timeout > 0 {
		router.Use(requestTimeout(s.config.Timeout))
	}

	v1 := router.Group("/api/v1")
	handlers.NewRequirementsHandler(s.service, s.tracer).RegisterRoutes(v1)
	handlers.NewExpensesHandler(s.service, s.tracer).RegisterRoutes(v1)

	handlers.NewMetricsHandler(s.metrics, s.tracer).RegisterRoutes(router, s.config.MetricsEnabled)

	if s.hub != nil {
		router.GET("/ws", gin.WrapF(s.hub.HandleWebSocket))
	}

	return router
}

// requestTimeout bounds the context handed to the service. The websocket
// route is long-lived and left alone.
func requestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.FullPath() == "/ws" {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Address).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
