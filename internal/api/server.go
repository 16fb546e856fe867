// Package api exposes the kiosk and admin HTTP endpoints.
package api

import (
	"context"
	"image"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/checkin"
	"faceattend/internal/enrollment"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/logger"
)

// Enroller registers identities.
type Enroller interface {
	Enroll(ctx context.Context, name string, images []image.Image) (enrollment.Result, error)
}

// Identifier runs the check-in pipeline.
type Identifier interface {
	Identify(ctx context.Context, frames []image.Image, eventType string) (checkin.Result, error)
}

// HistoryReader lists attendance events.
type HistoryReader interface {
	History(ctx context.Context) ([]attendance.Event, error)
}

// HealthCheck reports a dependency failure as an error.
type HealthCheck func(ctx context.Context) error

// Options configures optional server features.
type Options struct {
	// Issuer signs device tokens. Nil disables /v1/devices/register.
	Issuer *auth.Issuer
	// RequireDeviceAuth puts /api behind bearer device tokens.
	RequireDeviceAuth bool
	RateLimitPerMin   int
	Gatherer          prometheus.Gatherer
	Health            map[string]HealthCheck
	Logger            *zap.Logger
}

// Server holds the router and its collaborators.
type Server struct {
	enroller   Enroller
	identifier Identifier
	history    HistoryReader
	opts       Options
	log        *zap.Logger
	router     *gin.Engine
}

// New builds the router.
func New(enroller Enroller, identifier Identifier, history HistoryReader, opts Options) *Server {
	s := &Server{
		enroller:   enroller,
		identifier: identifier,
		history:    history,
		opts:       opts,
		log:        logger.OrNop(opts.Logger),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log, "/healthz", "/metrics"))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(s.opts.RateLimitPerMin, s.opts.RateLimitPerMin).GinMiddleware())

	gatherer := s.opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", s.healthz)

	if s.opts.Issuer != nil {
		r.POST("/v1/devices/register", s.registerDevice)
		r.POST("/v1/devices/refresh", s.refreshDevice)
	}

	api := r.Group("/api")
	if s.opts.RequireDeviceAuth && s.opts.Issuer != nil {
		api.Use(auth.DeviceAuth(s.opts.Issuer))
	}
	api.POST("/register", s.register)
	api.POST("/identify", s.identify)
	api.GET("/history", s.listHistory)
	return r
}

func requestLogger(log *zap.Logger, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if _, ok := skipped[c.FullPath()]; ok {
			return
		}
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()))
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
