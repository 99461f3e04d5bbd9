package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pooltv-backend/internal/tables"
)

// GetTables handles GET /api/tables.
func (h *Handler) GetTables(c *gin.Context) {
	entries, err := h.registry.List(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to read table configuration"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

type tableRequest struct {
	Name string `json:"name" binding:"required"`
	Code string `json:"code" binding:"required"`
}

// AddTable handles POST /api/tables.
func (h *Handler) AddTable(c *gin.Context) {
	var req tableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := h.registry.Add(c.Request.Context(), req.Name, req.Code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// UpdateTable handles PUT /api/tables/:id. Existing matches keep the
// snapshot taken when they were created.
func (h *Handler) UpdateTable(c *gin.Context) {
	id, ok := tableID(c)
	if !ok {
		return
	}
	var req tableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.registry.Update(c.Request.Context(), id, req.Name, req.Code)
	switch {
	case errors.Is(err, tables.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "table not found"})
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.Status(http.StatusNoContent)
	}
}

// RemoveTable handles DELETE /api/tables/:id.
func (h *Handler) RemoveTable(c *gin.Context) {
	id, ok := tableID(c)
	if !ok {
		return
	}
	err := h.registry.Remove(c.Request.Context(), id)
	switch {
	case errors.Is(err, tables.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "table not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.Status(http.StatusNoContent)
	}
}

// ResetTables handles POST /api/tables/reset.
func (h *Handler) ResetTables(c *gin.Context) {
	if err := h.registry.Reset(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tables.DefaultEntries())
}

func tableID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid table id"})
		return 0, false
	}
	return id, true
}
