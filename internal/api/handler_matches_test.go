package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pooltv-backend/internal/cuescore"
	"pooltv-backend/internal/match"
)

func TestAddMatchAndList(t *testing.T) {
	h := newAPIHarness(t)

	created := h.addMatch(t, "3")
	assert.Equal(t, "Jean Dupont", created.Player1)
	assert.Equal(t, int64(3), created.Table)
	assert.Equal(t, "dc64dc33", created.TableCode)
	assert.Equal(t, "Table 3", created.TableName)
	assert.Equal(t, match.StatusWaiting, created.Status)

	w := h.do(t, http.MethodGet, "/api/matches", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listed []struct {
		match.Match
		RemainingSeconds int `json:"remainingSeconds"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
	// A waiting match shows its full duration.
	assert.Equal(t, 3600, listed[0].RemainingSeconds)
}

func TestAddMatchRejectsMissingFields(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodPost, "/api/matches", gin.H{"player1": "Jean"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddMatchValidationErrors(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodPost, "/api/matches", gin.H{
		"player1":            "X",
		"player2":            "X",
		"table":              "42",
		"maxDurationMinutes": 999,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Errors)
}

func TestAddMatchOccupiedTable(t *testing.T) {
	h := newAPIHarness(t)
	first := h.addMatch(t, "3")

	w := h.do(t, http.MethodPost, "/api/matches", gin.H{
		"player1":            "Paul",
		"player2":            "Luc",
		"table":              "3",
		"maxDurationMinutes": 60,
	})
	require.Equal(t, http.StatusConflict, w.Code)

	var body struct {
		Error      string      `json:"error"`
		OccupiedBy match.Match `json:"occupiedBy"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, first.ID, body.OccupiedBy.ID)
}

func TestMatchLifecycle(t *testing.T) {
	h := newAPIHarness(t)
	created := h.addMatch(t, "3")
	base := fmt.Sprintf("/api/matches/%d", created.ID)

	w := h.do(t, http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	// The countdown runs on the injected clock.
	h.clock.Advance(time.Minute)
	w = h.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var running matchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &running))
	assert.Equal(t, 3540, running.RemainingSeconds)

	w = h.do(t, http.MethodPost, base+"/status", gin.H{"status": "paused"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var current match.Match
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &current))
	assert.Equal(t, match.StatusPaused, current.Status)
	assert.NotNil(t, current.ActualStartTime)
	assert.NotNil(t, current.PausedAt)

	w = h.do(t, http.MethodPost, base+"/status", gin.H{"status": "finished"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodGet, base, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &current))
	assert.Equal(t, match.StatusFinished, current.Status)
	assert.NotNil(t, current.FinishedAt)
}

func TestSetMatchStatusRejectsUnknownValue(t *testing.T) {
	h := newAPIHarness(t)
	created := h.addMatch(t, "3")

	w := h.do(t, http.MethodPost, fmt.Sprintf("/api/matches/%d/status", created.ID), gin.H{"status": "cancelled"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown status")
}

func TestGetMatchNotFound(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodGet, "/api/matches/12345", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodGet, "/api/matches/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartAllMatches(t *testing.T) {
	h := newAPIHarness(t)
	first := h.addMatch(t, "3")
	second := h.addMatch(t, "4")

	w := h.do(t, http.MethodPost, "/api/matches/start-all", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	for _, id := range []int64{first.ID, second.ID} {
		w = h.do(t, http.MethodGet, fmt.Sprintf("/api/matches/%d", id), nil)
		var m match.Match
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
		assert.Equal(t, match.StatusActive, m.Status)
	}
}

func TestUpdateMatch(t *testing.T) {
	h := newAPIHarness(t)
	created := h.addMatch(t, "3")
	base := fmt.Sprintf("/api/matches/%d", created.ID)

	w := h.do(t, http.MethodPatch, base, gin.H{"scoreA": 4, "scoreB": 2})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodGet, base, nil)
	var m match.Match
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, 4, m.ScoreA)
	assert.Equal(t, 2, m.ScoreB)
	assert.NotNil(t, m.LastScoreUpdate)
	assert.Equal(t, "Jean Dupont", m.Player1)
}

func TestRemoveAndClearMatches(t *testing.T) {
	h := newAPIHarness(t)
	first := h.addMatch(t, "3")
	h.addMatch(t, "4")

	w := h.do(t, http.MethodDelete, fmt.Sprintf("/api/matches/%d", first.ID), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodDelete, "/api/matches", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodGet, "/api/matches", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestRefreshScores(t *testing.T) {
	h := newAPIHarness(t)
	created := h.addMatch(t, "3")
	w := h.do(t, http.MethodPost, fmt.Sprintf("/api/matches/%d/start", created.ID), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.source.FetchFunc = func(ctx context.Context, tableCode string) (cuescore.MatchData, error) {
		// Only the first cycle blocks; later ones answer immediately.
		once.Do(func() {
			close(entered)
			<-release
		})
		return cuescore.MatchData{}, cuescore.ErrNoMatch
	}

	w = h.do(t, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	<-entered

	// The first cycle is still running.
	w = h.do(t, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	close(release)

	require.Eventually(t, func() bool {
		return h.do(t, http.MethodPost, "/api/refresh", nil).Code == http.StatusAccepted
	}, time.Second, 10*time.Millisecond)
}
