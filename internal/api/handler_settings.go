package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetSettings handles GET /api/settings.
func (h *Handler) GetSettings(c *gin.Context) {
	current, err := h.settings.Get(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to read settings"})
		return
	}
	c.JSON(http.StatusOK, current)
}

type putSettingsRequest struct {
	Theme    *string `json:"theme"`
	Title    *string `json:"title"`
	Subtitle *string `json:"subtitle"`
}

// PutSettings handles PUT /api/settings; only the provided fields
// change.
func (h *Handler) PutSettings(c *gin.Context) {
	var req putSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if req.Theme != nil {
		if err := h.settings.SetTheme(ctx, *req.Theme); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Title != nil || req.Subtitle != nil {
		current, err := h.settings.Get(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		title, subtitle := current.Title, current.Subtitle
		if req.Title != nil {
			title = *req.Title
		}
		if req.Subtitle != nil {
			subtitle = *req.Subtitle
		}
		if err := h.settings.SetTitles(ctx, title, subtitle); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// ResetSettings handles POST /api/settings/reset.
func (h *Handler) ResetSettings(c *gin.Context) {
	if err := h.settings.Reset(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
