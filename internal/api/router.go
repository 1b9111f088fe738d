package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/certsentry/certsentry/internal/api/handlers"
	"github.com/certsentry/certsentry/internal/api/middleware"
	"github.com/certsentry/certsentry/internal/config"
)

type Server struct {
	Config  *config.Config
	Router  *gin.Engine
	handler *handlers.Handler
	logger  *zap.Logger
}

func NewServer(cfg *config.Config, handler *handlers.Handler, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	server := &Server{
		Config:  cfg,
		Router:  router,
		handler: handler,
		logger:  logger,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	h := s.handler

	// Health checks
	s.Router.GET("/health", h.Health)
	s.Router.GET("/ready", h.Ready)

	// Batch trigger, guarded by the cron secret instead of user auth so
	// scheduled callers do not need an account.
	s.Router.POST("/certcheck/run", h.TriggerBatch)
	s.Router.GET("/certcheck/runs/:id", h.GetBatchRun)

	// Auth routes
	auth := s.Router.Group("/api/v1/auth")
	{
		auth.POST("/signup", h.SignUp)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.RefreshToken)
	}

	// API routes (protected)
	api := s.Router.Group("/api/v1")
	api.Use(middleware.AuthRequired(s.Config.Server.JWTSecret))

	// Domain routes
	{
		api.GET("/domains", h.ListDomains)
		api.POST("/domains", h.CreateDomain)
		api.GET("/domains/stats", h.GetDomainStats)
		api.GET("/domains/:id", h.GetDomain)
		api.PUT("/domains/:id", h.UpdateDomain)
		api.DELETE("/domains/:id", h.DeleteDomain)
		api.POST("/domains/:id/check", h.TriggerCheck)
	}

	// Notification settings
	{
		api.GET("/notifications/settings", h.GetPreferences)
		api.PUT("/notifications/settings", h.UpdatePreferences)
	}
}
