package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"visa-slot-backend/internal/model"
	"visa-slot-backend/internal/store"
)

// GetLogs handles GET /api/logs?limit=&level=&step=.
func (h *Handler) GetLogs(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	f := store.LogFilter{Limit: limit, Step: c.Query("step")}
	if raw := c.Query("level"); raw != "" {
		level, err := model.ParseLogLevel(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.Level = level
	}

	logs, total, err := h.store.ListLogs(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "total_count": total})
}

// GetAvailableSlots handles GET /api/appointments/available. ?status= selects
// slots in another status.
func (h *Handler) GetAvailableSlots(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	f := store.SlotFilter{Status: model.SlotAvailable, Limit: limit}
	if raw := c.Query("status"); raw != "" {
		status, err := model.ParseSlotStatus(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.Status = status
	}

	slots, total, err := h.store.ListSlots(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots, "total_count": total})
}
