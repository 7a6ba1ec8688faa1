package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"visa-slot-backend/internal/captcha"
	"visa-slot-backend/internal/model"
)

type ocrTile struct {
	Base64Image string `json:"base64Image"`
}

// ocrMatchRequest accepts the target as text or as an image.
type ocrMatchRequest struct {
	Target       string    `json:"target"`
	TargetImage  string    `json:"target_image"`
	Tiles        []ocrTile `json:"tiles"`
	EnhancedMode bool      `json:"enhanced_mode"`
}

// OCRMatch handles POST /api/ocr-match.
func (h *Handler) OCRMatch(c *gin.Context) {
	var req ocrMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	target := captcha.Target{Text: req.Target}
	if req.TargetImage != "" {
		raw, err := captcha.DecodeDataURL(req.TargetImage)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid target image"})
			return
		}
		target.Image = raw
	}

	// An undecodable tile stays in place as empty bytes so indices keep lining up.
	tiles := make([][]byte, len(req.Tiles))
	for i, t := range req.Tiles {
		if raw, err := captcha.DecodeDataURL(t.Base64Image); err == nil {
			tiles[i] = raw
		}
	}

	c.JSON(http.StatusOK, h.solver.Resolve(c.Request.Context(), target, tiles, req.EnhancedMode))
}

// GetVisaTypes handles GET /api/visa-types.
func (h *Handler) GetVisaTypes(c *gin.Context) {
	types := make(map[model.VisaType][]model.VisaSubType, len(model.VisaTypes))
	for _, t := range model.VisaTypes {
		types[t] = t.SubTypes()
	}
	c.JSON(http.StatusOK, gin.H{"visa_types": types, "appointment_types": model.AppointmentTypes})
}
