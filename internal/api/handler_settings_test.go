package api

import (
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectSettingRead(mock sqlmock.Sqlmock, key, value string) {
	rows := sqlmock.NewRows([]string{"key", "value", "updated_at"})
	if value != "" {
		rows.AddRow(key, []byte(value), time.Now())
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "kv_entries"`)).
		WithArgs(key, 1).
		WillReturnRows(rows)
}

func expectSettingWrite(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "kv_entries"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestGetSettings(t *testing.T) {
	h := newAPIHarness(t)
	expectSettingRead(h.mock, "selectedTheme", "ultimate_pool")
	expectSettingRead(h.mock, "tv_title", "")
	expectSettingRead(h.mock, "tv_subtitle", "")

	w := h.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"theme": "ultimate_pool",
		"title": "Matches en cours",
		"subtitle": "BlackBall TD n°x Gironde - 2025/2026"
	}`, w.Body.String())
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestPutSettingsTheme(t *testing.T) {
	t.Run("persists a known theme", func(t *testing.T) {
		h := newAPIHarness(t)
		expectSettingWrite(h.mock)

		w := h.do(t, http.MethodPut, "/api/settings", gin.H{"theme": "ultimate_pool"})
		assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
		assert.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("rejects an unknown theme", func(t *testing.T) {
		h := newAPIHarness(t)

		w := h.do(t, http.MethodPut, "/api/settings", gin.H{"theme": "neon"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unknown theme")
	})
}

func TestPutSettingsTitles(t *testing.T) {
	h := newAPIHarness(t)

	// A partial title update reads the current pair first, then writes
	// both keys back.
	expectSettingRead(h.mock, "selectedTheme", "")
	expectSettingRead(h.mock, "tv_title", "")
	expectSettingRead(h.mock, "tv_subtitle", "Ancien sous-titre")
	expectSettingWrite(h.mock)
	expectSettingWrite(h.mock)

	w := h.do(t, http.MethodPut, "/api/settings", gin.H{"title": "Finales du club"})
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestResetSettings(t *testing.T) {
	h := newAPIHarness(t)
	for i := 0; i < 3; i++ {
		h.mock.ExpectBegin()
		h.mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "kv_entries"`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectCommit()
	}

	w := h.do(t, http.MethodPost, "/api/settings/reset", nil)
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.NoError(t, h.mock.ExpectationsWereMet())
}
