package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pooltv-backend/internal/match"
)

// matchResponse flattens a match record with its derived countdown so
// the display never has to re-implement the pause accounting.
type matchResponse struct {
	match.Match
	RemainingSeconds int `json:"remainingSeconds"`
}

// GetMatches handles GET /api/matches.
func (h *Handler) GetMatches(c *gin.Context) {
	matches, err := h.matches.GetAll(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to read matches"})
		return
	}

	now := h.clock.Now()
	response := make([]matchResponse, 0, len(matches))
	for _, m := range matches {
		response = append(response, matchResponse{
			Match:            m,
			RemainingSeconds: match.RemainingSeconds(m, now),
		})
	}
	c.JSON(http.StatusOK, response)
}

// GetMatch handles GET /api/matches/:id, returning one match with its
// live countdown.
func (h *Handler) GetMatch(c *gin.Context) {
	id, ok := matchID(c)
	if !ok {
		return
	}
	m, found, err := h.matches.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read matches"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}
	c.JSON(http.StatusOK, matchResponse{
		Match:            m,
		RemainingSeconds: match.RemainingSeconds(m, h.clock.Now()),
	})
}

type addMatchRequest struct {
	Player1            string `json:"player1" binding:"required"`
	Player2            string `json:"player2" binding:"required"`
	Table              string `json:"table" binding:"required"`
	MaxDurationMinutes int    `json:"maxDurationMinutes" binding:"required"`
	ScoreA             *int   `json:"scoreA"`
	ScoreB             *int   `json:"scoreB"`
}

// AddMatch handles POST /api/matches.
func (h *Handler) AddMatch(c *gin.Context) {
	var req addMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var extra *match.Extra
	if req.ScoreA != nil || req.ScoreB != nil {
		now := h.clock.Now()
		extra = &match.Extra{ScoreA: req.ScoreA, ScoreB: req.ScoreB, LastScoreUpdate: &now}
	}

	created, err := h.matches.Add(c.Request.Context(), req.Player1, req.Player2, req.Table, req.MaxDurationMinutes, extra)
	if err != nil {
		var vErr *match.ValidationError
		var oErr *match.TableOccupiedError
		switch {
		case errors.As(err, &vErr):
			c.JSON(http.StatusBadRequest, gin.H{"errors": vErr.Errors})
		case errors.As(err, &oErr):
			c.JSON(http.StatusConflict, gin.H{"error": oErr.Error(), "occupiedBy": oErr.OccupiedBy})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, created)
}

// RemoveMatch handles DELETE /api/matches/:id.
func (h *Handler) RemoveMatch(c *gin.Context) {
	id, ok := matchID(c)
	if !ok {
		return
	}
	if err := h.matches.Remove(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearMatches handles DELETE /api/matches.
func (h *Handler) ClearMatches(c *gin.Context) {
	if err := h.matches.ClearAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetMatchStatus handles POST /api/matches/:id/status. Status value
// validation happens here; the store treats unmodeled transitions as
// no-ops.
func (h *Handler) SetMatchStatus(c *gin.Context) {
	id, ok := matchID(c)
	if !ok {
		return
	}
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := match.Status(req.Status)
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + req.Status})
		return
	}
	if err := h.matches.SetStatus(c.Request.Context(), id, status); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type updateMatchRequest struct {
	Player1            *string `json:"player1"`
	Player2            *string `json:"player2"`
	ScoreA             *int    `json:"scoreA"`
	ScoreB             *int    `json:"scoreB"`
	MaxDurationMinutes *int    `json:"maxDurationMinutes"`
}

// UpdateMatch handles PATCH /api/matches/:id (manual corrections and
// score edits).
func (h *Handler) UpdateMatch(c *gin.Context) {
	id, ok := matchID(c)
	if !ok {
		return
	}
	var req updateMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fields := match.Fields{
		Player1:            req.Player1,
		Player2:            req.Player2,
		ScoreA:             req.ScoreA,
		ScoreB:             req.ScoreB,
		MaxDurationMinutes: req.MaxDurationMinutes,
	}
	if req.ScoreA != nil || req.ScoreB != nil {
		now := h.clock.Now()
		fields.LastScoreUpdate = &now
	}
	if err := h.matches.Update(c.Request.Context(), id, fields); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// StartMatch handles POST /api/matches/:id/start.
func (h *Handler) StartMatch(c *gin.Context) {
	id, ok := matchID(c)
	if !ok {
		return
	}
	if err := h.matches.Start(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// StartAllMatches handles POST /api/matches/start-all.
func (h *Handler) StartAllMatches(c *gin.Context) {
	if err := h.matches.StartAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// RefreshScores handles POST /api/refresh: one immediate
// reconciliation cycle, refused while another is in flight.
func (h *Handler) RefreshScores(c *gin.Context) {
	if !h.updater.TriggerNow() {
		c.JSON(http.StatusConflict, gin.H{"error": "a score refresh is already running"})
		return
	}
	c.Status(http.StatusAccepted)
}

func matchID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid match id"})
		return 0, false
	}
	return id, true
}
