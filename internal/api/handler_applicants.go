package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"visa-slot-backend/internal/model"
	"visa-slot-backend/internal/store"
)

// ListApplicants handles GET /api/applicants.
func (h *Handler) ListApplicants(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	applicants, total, err := h.store.ListApplicants(c.Request.Context(), store.ListFilter{Limit: limit})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applicants": applicants, "total_count": total})
}

// CreateApplicant handles POST /api/applicants.
func (h *Handler) CreateApplicant(c *gin.Context) {
	var a model.Applicant
	if err := c.ShouldBindJSON(&a); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	a.ID = ""
	if err := a.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.CreateApplicant(c.Request.Context(), &a); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// GetApplicant handles GET /api/applicants/:id.
func (h *Handler) GetApplicant(c *gin.Context) {
	a, err := h.store.GetApplicant(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// UpdateApplicant handles PUT /api/applicants/:id.
func (h *Handler) UpdateApplicant(c *gin.Context) {
	var patch model.ApplicantPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := patch.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.store.UpdateApplicant(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// DeleteApplicant handles DELETE /api/applicants/:id.
func (h *Handler) DeleteApplicant(c *gin.Context) {
	if err := h.store.DeleteApplicant(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Applicant deleted successfully"})
}

// SetPrimaryApplicant handles POST /api/applicants/:id/set-primary.
func (h *Handler) SetPrimaryApplicant(c *gin.Context) {
	a, err := h.store.SetPrimaryApplicant(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Primary applicant set successfully", "applicant": a})
}

// GetPrimaryApplicant handles GET /api/applicants/primary/info.
func (h *Handler) GetPrimaryApplicant(c *gin.Context) {
	a, err := h.store.PrimaryApplicant(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
