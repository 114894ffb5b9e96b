package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/handler"
)

// Server is the operational HTTP surface: health, metrics and the
// interactive scan API. It is not the chat gateway.
type Server struct {
	router *gin.Engine
	logger *zap.Logger
}

func NewServer(scanHandler handler.ScanHandler, registry *prometheus.Registry, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router: router,
		logger: logger,
	}
	s.setupRoutes(scanHandler, registry)
	return s
}

func (s *Server) setupRoutes(scanHandler handler.ScanHandler, registry *prometheus.Registry) {
	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := s.router.Group("/api")
	{
		api.POST("/submit", scanHandler.Submit)
		api.POST("/scan", scanHandler.ScanNow)
		api.POST("/control", scanHandler.Control)
		api.GET("/status", scanHandler.Status)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Run(addr string) error {
	s.logger.Info("Server starting", zap.String("addr", addr))
	return s.router.Run(addr)
}
