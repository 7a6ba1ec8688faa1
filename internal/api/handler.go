package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"visa-slot-backend/internal/engine"
	"visa-slot-backend/internal/model"
	"visa-slot-backend/internal/scheduler"
	"visa-slot-backend/internal/store"
)

// Version is reported by the service banner.
const Version = "1.0.0"

// Controller is the lifecycle surface of the scheduler.
type Controller interface {
	Start(ctx context.Context, settings model.RunSettings) (model.SystemConfig, error)
	Stop(ctx context.Context) (model.SystemConfig, error)
	Pause(ctx context.Context) (model.SystemConfig, error)
	Status() model.SystemConfig
	RunOnce(ctx context.Context) engine.Outcome
}

// CredentialTester checks a credential against the portal.
type CredentialTester interface {
	TestCredential(ctx context.Context, id string) (engine.CredentialCheck, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store  store.Store
	ctl    Controller
	tester CredentialTester
	solver engine.CaptchaSolver
	log    *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, ctl Controller, tester CredentialTester, solver engine.CaptchaSolver, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:  s,
		ctl:    ctl,
		tester: tester,
		solver: solver,
		log:    log.With(zap.String("component", "api")),
	}
}

// Root handles GET /api/.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Visa slot automation API", "version": Version})
}

// fail maps err onto a status code and aborts the request.
func (h *Handler) fail(c *gin.Context, err error) {
	var ce *model.ConfigError
	switch {
	case errors.As(err, &ce):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ce.Error(), "field": ce.Field})
	case errors.Is(err, scheduler.ErrInvalidTransition):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// queryLimit reads ?limit=, leaving clamping to the store.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter"})
		return 0, false
	}
	return n, true
}
