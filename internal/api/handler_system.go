package api

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"visa-slot-backend/internal/model"
)

// startRequest carries the run settings. Omitted fields keep their current value.
type startRequest struct {
	CheckIntervalMinutes *int                   `json:"check_interval_minutes"`
	VisaType             *model.VisaType        `json:"visa_type"`
	VisaSubType          *model.VisaSubType     `json:"visa_subtype"`
	AppointmentType      *model.AppointmentType `json:"appointment_type"`
	NumberOfMembers      *int                   `json:"number_of_members"`
}

// maxIntervalMinutes is the largest interval a time.Duration can hold.
const maxIntervalMinutes = math.MaxInt64 / int64(time.Minute)

func (r startRequest) settings(current model.RunSettings) (model.RunSettings, error) {
	s := current
	if r.CheckIntervalMinutes != nil {
		minutes := int64(*r.CheckIntervalMinutes)
		if minutes > maxIntervalMinutes || minutes < -maxIntervalMinutes {
			return s, &model.ConfigError{
				Field:  "check_interval_minutes",
				Reason: fmt.Sprintf("must be at most %d", maxIntervalMinutes),
			}
		}
		s.CheckInterval = time.Duration(minutes) * time.Minute
	}
	if r.VisaType != nil {
		s.VisaType = *r.VisaType
	}
	if r.VisaSubType != nil {
		s.VisaSubType = *r.VisaSubType
	}
	if r.AppointmentType != nil {
		s.AppointmentType = *r.AppointmentType
	}
	if r.NumberOfMembers != nil {
		s.NumberOfMembers = *r.NumberOfMembers
	}
	return s, nil
}

type statusResponse struct {
	Status             model.SystemStatus `json:"status"`
	LastCheck          *time.Time         `json:"last_check"`
	TotalChecks        int64              `json:"total_checks"`
	SlotsFound         int64              `json:"slots_found"`
	SuccessfulBookings int64              `json:"successful_bookings"`
	ErrorCount         int64              `json:"error_count"`
	UptimeMinutes      *int64             `json:"uptime_minutes"`
}

func newStatusResponse(cfg model.SystemConfig, now time.Time) statusResponse {
	resp := statusResponse{
		Status:             cfg.Status,
		LastCheck:          cfg.LastCheck,
		TotalChecks:        cfg.TotalChecks,
		SlotsFound:         cfg.SlotsFound,
		SuccessfulBookings: cfg.SuccessfulBookings,
		ErrorCount:         cfg.ErrorCount,
	}
	if cfg.Status == model.StatusRunning && cfg.StartedAt != nil {
		minutes := int64(cfg.Uptime(now) / time.Minute)
		resp.UptimeMinutes = &minutes
	}
	return resp
}

// StartSystem handles POST /api/system/start.
func (h *Handler) StartSystem(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	settings, err := req.settings(h.ctl.Status().Settings())
	if err != nil {
		h.fail(c, err)
		return
	}
	cfg, err := h.ctl.Start(c.Request.Context(), settings)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "System started", "status": cfg.Status, "config": cfg})
}

// StopSystem handles POST /api/system/stop.
func (h *Handler) StopSystem(c *gin.Context) {
	cfg, err := h.ctl.Stop(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "System stopped", "status": cfg.Status})
}

// PauseSystem handles POST /api/system/pause.
func (h *Handler) PauseSystem(c *gin.Context) {
	cfg, err := h.ctl.Pause(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "System paused", "status": cfg.Status})
}

// GetStatus handles GET /api/system/status.
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, newStatusResponse(h.ctl.Status(), time.Now().UTC()))
}

// GetConfig handles GET /api/system/config.
func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctl.Status())
}

// CheckOnce handles POST /api/test/check-once. It blocks until the cycle ends.
func (h *Handler) CheckOnce(c *gin.Context) {
	out := h.ctl.RunOnce(c.Request.Context())

	resp := gin.H{
		"success":           out.Err == nil,
		"outcome":           out.Label(),
		"slots_found":       len(out.Slots),
		"slots":             out.Slots,
		"captcha_solved":    out.CaptchaSolved,
		"booking_attempted": out.BookingAttempted,
		"booking_result":    out.Booking,
		"duration_ms":       out.Duration().Milliseconds(),
	}
	if out.Err != nil {
		resp["error"] = out.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
