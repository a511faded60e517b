package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bititec-mailer/config"
	"bititec-mailer/models"
	"bititec-mailer/notification"
	"bititec-mailer/service"
)

const (
	serviceName    = "bititec-mailer"
	serviceVersion = "1.0.0"

	errInvalidJSON = "Invalid JSON payload"
)

type Server struct {
	router *gin.Engine
	config *config.Config
	logger *zap.Logger
	relay  *service.RelayService
	server *http.Server
}

func NewServer(cfg *config.Config, relay *service.RelayService, logger *zap.Logger) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(cfg))

	s := &Server{
		router: router,
		config: cfg,
		logger: logger,
		relay:  relay,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	s.router.POST("/send-email", s.sendEmail)
	s.router.POST("/send-service-call", s.sendServiceCall)
}

// corsMiddleware allows POST with a Content-Type header from the configured
// origins only.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowOrigins:  cfg.CORS.AllowedOrigins,
		AllowMethods:  cfg.CORS.AllowedMethods,
		AllowHeaders:  cfg.CORS.AllowedHeaders,
		CustomSchemas: customSchemas(cfg.CORS.AllowedOrigins),
		MaxAge:        12 * time.Hour,
	}
	return cors.New(corsConfig)
}

// customSchemas collects non-http origin schemes (Expo's exp:// for one),
// which gin-contrib/cors rejects unless declared.
func customSchemas(origins []string) []string {
	var schemas []string
	seen := map[string]bool{}
	for _, origin := range origins {
		i := strings.Index(origin, "://")
		if i < 0 {
			continue
		}
		scheme := origin[:i+3]
		if scheme == "http://" || scheme == "https://" || seen[scheme] {
			continue
		}
		seen[scheme] = true
		schemas = append(schemas, scheme)
	}
	return schemas
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"service":     serviceName,
		"version":     serviceVersion,
		"environment": s.config.App.Env,
		"provider":    s.relay.ProviderName(),
	})
}

func (s *Server) sendEmail(c *gin.Context) {
	var req models.EmailRequest
	if !s.bindJSON(c, &req) {
		return
	}

	if err := req.Validate(); err != nil {
		s.validationFailure(c, err)
		return
	}

	if err := s.relay.SendEmail(c.Request.Context(), &req, requestID(c)); err != nil {
		s.transmissionFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) sendServiceCall(c *gin.Context) {
	var req models.ServiceCallRequest
	if !s.bindJSON(c, &req) {
		return
	}

	if err := req.Validate(); err != nil {
		s.validationFailure(c, err)
		return
	}

	if err := s.relay.SendServiceCall(c.Request.Context(), &req, requestID(c)); err != nil {
		s.transmissionFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// bindJSON decodes the body into req. An empty body leaves req zeroed so the
// required-field check reports it.
func (s *Server) bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	s.logger.Debug("rejected request body",
		zap.Error(err),
		zap.String("path", c.FullPath()),
		zap.String("request_id", requestID(c)))
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   errInvalidJSON,
	})
	return false
}

func (s *Server) validationFailure(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

// transmissionFailure maps a failed send to 500. details is null unless the
// provider returned a structured error list.
func (s *Server) transmissionFailure(c *gin.Context, err error) {
	var details []notification.ProviderError
	if se, ok := notification.AsSendError(err); ok {
		details = se.Details
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   err.Error(),
		"details": details,
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background. The startup
// line is logged only once the port is held.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("Email server running at " + s.config.PublicURL())

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("server stopped unexpectedly", zap.Error(err))
		}
	}()

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
