package server

import (
	"context"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/handlers"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/metrics"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/middleware"
)

// HealthChecker reports the state of a backing service.
type HealthChecker interface {
	Health(ctx context.Context) map[string]string
}

type Server struct {
	health    HealthChecker
	handler   *handlers.Handler
	tokens    middleware.TokenParser
	uploadDir string
}

func New(health HealthChecker, handler *handlers.Handler, tokens middleware.TokenParser, uploadDir string) *Server {
	return &Server{
		health:    health,
		handler:   handler,
		tokens:    tokens,
		uploadDir: uploadDir,
	}
}

// HTTPServer wraps the router in an http.Server listening on port.
func (s *Server) HTTPServer(port string) *http.Server {
	server := &http.Server{
		Addr:         "0.0.0.0:" + port,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.WithField("port", port).Info("Server starting")
	return server
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	metrics.Register()

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = 8 << 20

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/health", func(c *gin.Context) {
		stats := s.health.Health(c.Request.Context())
		code := http.StatusOK
		if stats["status"] != "up" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, stats)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if s.uploadDir != "" {
		r.Static("/uploads", s.uploadDir)
	}

	api := r.Group("/api")
	{
		// Auth routes (public)
		api.POST("/register", s.handler.Auth.Register)
		api.POST("/login", s.handler.Auth.Login)

		// Report routes (public reads)
		api.GET("/reports", s.handler.Report.GetReports)
		api.GET("/reports/map", s.handler.Report.GetReportsMap)
		api.GET("/reports/:id", middleware.OptionalAuth(s.tokens), s.handler.Report.GetReport)

		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(s.tokens))
		{
			protected.POST("/reports", s.handler.Report.CreateReport)
			protected.PATCH("/reports/:id/status", s.handler.Report.UpdateStatus)
			protected.POST("/reports/:id/vote", s.handler.Report.VoteReport)

			// Account routes
			protected.GET("/me", s.handler.Account.GetMe)
			protected.GET("/me/reports", s.handler.Report.GetMyReports)
			protected.PUT("/me/push-token", s.handler.Account.UpdatePushToken)
			protected.DELETE("/me", s.handler.Account.DeleteAccount)
		}
	}

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request")
	}
}
