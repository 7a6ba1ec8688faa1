package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"visa-slot-backend/internal/model"
	"visa-slot-backend/internal/store"
)

type createCredentialRequest struct {
	Name      string `json:"credential_name" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	IsPrimary bool   `json:"is_primary"`
	Notes     string `json:"notes"`
}

// ListCredentials handles GET /api/credentials?active=true&limit=.
func (h *Handler) ListCredentials(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	creds, total, err := h.store.ListCredentials(c.Request.Context(), store.ListFilter{
		ActiveOnly: c.Query("active") == "true",
		Limit:      limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credentials": creds, "total_count": total})
}

// CreateCredential handles POST /api/credentials.
func (h *Handler) CreateCredential(c *gin.Context) {
	var req createCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cred := model.Credential{
		Name:      req.Name,
		Email:     req.Email,
		Secret:    req.Password,
		IsActive:  true,
		IsPrimary: req.IsPrimary,
		Notes:     req.Notes,
	}
	if err := cred.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.CreateCredential(c.Request.Context(), &cred); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cred)
}

// GetCredential handles GET /api/credentials/:id.
func (h *Handler) GetCredential(c *gin.Context) {
	cred, err := h.store.GetCredential(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cred)
}

// UpdateCredential handles PUT /api/credentials/:id. Only fields present in the body change.
func (h *Handler) UpdateCredential(c *gin.Context) {
	var patch model.CredentialPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := patch.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cred, err := h.store.UpdateCredential(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cred)
}

// DeleteCredential handles DELETE /api/credentials/:id.
func (h *Handler) DeleteCredential(c *gin.Context) {
	if err := h.store.DeleteCredential(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Credential deleted successfully"})
}

// SetPrimaryCredential handles POST /api/credentials/:id/set-primary.
func (h *Handler) SetPrimaryCredential(c *gin.Context) {
	cred, err := h.store.SetPrimaryCredential(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Primary credential set successfully", "credential": cred})
}

// GetPrimaryCredential handles GET /api/credentials/primary/info.
func (h *Handler) GetPrimaryCredential(c *gin.Context) {
	cred, err := h.store.PrimaryCredential(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cred)
}

// TestCredential handles POST /api/credentials/:id/test.
func (h *Handler) TestCredential(c *gin.Context) {
	check, err := h.tester.TestCredential(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          check.Success,
		"message":          check.Message,
		"response_time_ms": check.ResponseTime.Milliseconds(),
	})
}
