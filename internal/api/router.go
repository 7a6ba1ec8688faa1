package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"visa-slot-backend/config"
	"visa-slot-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig, gatherer prometheus.Gatherer, log *zap.Logger) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger(log), mw.CORS())

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(ttl, 2*ttl), ttl)

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/", h.Root)
		api.GET("/visa-types", caching, h.GetVisaTypes)

		system := api.Group("/system")
		system.GET("/config", h.GetConfig)
		system.GET("/status", h.GetStatus)
		system.POST("/start", h.StartSystem)
		system.POST("/stop", h.StopSystem)
		system.POST("/pause", h.PauseSystem)

		api.POST("/test/check-once", h.CheckOnce)
		api.GET("/logs", h.GetLogs)
		api.GET("/appointments/available", h.GetAvailableSlots)
		api.POST("/ocr-match", h.OCRMatch)

		creds := api.Group("/credentials")
		creds.GET("", h.ListCredentials)
		creds.POST("", h.CreateCredential)
		creds.GET("/primary/info", h.GetPrimaryCredential)
		creds.GET("/:id", h.GetCredential)
		creds.PUT("/:id", h.UpdateCredential)
		creds.DELETE("/:id", h.DeleteCredential)
		creds.POST("/:id/set-primary", h.SetPrimaryCredential)
		creds.POST("/:id/test", h.TestCredential)

		applicants := api.Group("/applicants")
		applicants.GET("", h.ListApplicants)
		applicants.POST("", h.CreateApplicant)
		applicants.GET("/primary/info", h.GetPrimaryApplicant)
		applicants.GET("/:id", h.GetApplicant)
		applicants.PUT("/:id", h.UpdateApplicant)
		applicants.DELETE("/:id", h.DeleteApplicant)
		applicants.POST("/:id/set-primary", h.SetPrimaryApplicant)
	}

	return r
}
