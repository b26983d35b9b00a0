package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/syncwavelabs/syncwave/internal/api/middleware"
	"github.com/syncwavelabs/syncwave/internal/config"
	"github.com/syncwavelabs/syncwave/internal/queue"
	"github.com/syncwavelabs/syncwave/internal/version"
	"github.com/syncwavelabs/syncwave/pkg/syncclient"
	"go.uber.org/zap"
)

type Router struct {
	engine     *gin.Engine
	server     *http.Server
	cfg        *config.Config
	queueSvc   *queue.Service
	registry   *version.Registry
	notifier   *version.Notifier
	statsCache *syncclient.Cache
	logger     *zap.Logger
}

func NewRouter(
	cfg *config.Config,
	queueSvc *queue.Service,
	registry *version.Registry,
	notifier *version.Notifier,
	logger *zap.Logger,
) *Router {
	// Disable GIN default logger
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())
	r.Use(middleware.Logger(logger))

	api := &Router{
		engine:     r,
		cfg:        cfg,
		queueSvc:   queueSvc,
		registry:   registry,
		notifier:   notifier,
		statsCache: syncclient.NewCache(16, 2*time.Second),
		logger:     logger,
	}

	api.RegisterRoutes()
	return api
}

func (r *Router) RegisterRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": r.notifier.Running(),
		})
	})

	// Prometheus metrics endpoint
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Queue surface for UI collaborators.
	api := r.engine.Group("/api")
	{
		api.POST("/actions", r.EnqueueAction)
		api.GET("/actions", r.ListActions)
		api.GET("/actions/stats", r.GetStats)
		api.DELETE("/actions/:id", r.DiscardAction)
		api.POST("/actions/:id/retry", r.RetryAction)
	}

	// Admin Routes (Protected by ADMIN_API_TOKEN)
	admin := r.engine.Group("/admin")
	admin.Use(r.adminAuth())
	{
		admin.GET("/versions", r.ListVersions)
		admin.POST("/versions", r.CreateVersion)
		admin.POST("/versions/default", r.SetDefaultVersion)
		admin.POST("/update/activate", r.ActivateUpdate)
	}
}

func (r *Router) Run() error {
	r.server = &http.Server{
		Addr:         ":" + r.cfg.Port,
		Handler:      r.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return r.server.ListenAndServe()
}

func (r *Router) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(r.cfg.AdminAPIToken)
		if expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin_token_not_configured"})
			return
		}

		provided := strings.TrimSpace(c.GetHeader("X-Admin-Token"))
		if provided == "" {
			authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				provided = strings.TrimSpace(authHeader[7:])
			}
		}

		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// Shutdown gracefully shuts down the HTTP server
func (r *Router) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}
