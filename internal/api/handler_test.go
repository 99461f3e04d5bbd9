package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"pooltv-backend/config"
	"pooltv-backend/internal/broadcast"
	"pooltv-backend/internal/cuescore"
	"pooltv-backend/internal/kv"
	"pooltv-backend/internal/match"
	"pooltv-backend/internal/settings"
	"pooltv-backend/internal/tables"
	"pooltv-backend/internal/updater"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// registryLookup adapts the table registry for the match store, the
// same way the daemon wires it.
type registryLookup struct {
	registry *tables.Registry
}

func (r registryLookup) Lookup(ctx context.Context, id int64) (match.TableInfo, bool, error) {
	entry, found, err := r.registry.Lookup(ctx, id)
	if err != nil || !found {
		return match.TableInfo{}, found, err
	}
	return match.TableInfo{ID: entry.ID, Name: entry.Name, Code: entry.Code}, true, nil
}

// mockSource is a mock implementation of the updater's score source.
type mockSource struct {
	FetchFunc func(ctx context.Context, tableCode string) (cuescore.MatchData, error)
}

func (m *mockSource) FetchMatchData(ctx context.Context, tableCode string) (cuescore.MatchData, error) {
	if m.FetchFunc == nil {
		return cuescore.MatchData{}, cuescore.ErrNoMatch
	}
	return m.FetchFunc(ctx, tableCode)
}

// apiHarness assembles the full router over in-memory state. Both the
// match collection and the table registry are seeded straight into the
// persistence queue, whose hour-long debounce of fake time keeps every
// read and later write away from the mock database; only the settings
// and subscription endpoints, which write through immediately, need
// armed expectations.
type apiHarness struct {
	router *gin.Engine
	clock  *clockwork.FakeClock
	mock   sqlmock.Sqlmock
	broker *broadcast.Broker
	source *mockSource
}

func newAPIHarness(t *testing.T) *apiHarness {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)

	broker := broadcast.NewBroker()
	t.Cleanup(broker.Close)
	clock := clockwork.NewFakeClock()
	kvStore := kv.NewStore(gormDB, broker, clock, time.Hour, 1<<20)

	seed, err := json.Marshal(tables.DefaultEntries())
	require.NoError(t, err)
	require.NoError(t, kvStore.Put("clubTables", seed, broadcast.TopicTables))
	require.NoError(t, kvStore.Put("poolMatches", []byte("[]"), broadcast.TopicMatches))

	registry := tables.NewRegistry(kvStore)
	matchStore := match.NewStore(kvStore, registryLookup{registry}, broker, clock)
	settingsStore := settings.NewStore(kvStore)

	source := &mockSource{}
	scoreUpdater := updater.New(matchStore, source, clock, config.UpdaterConfig{})

	handler := NewHandler(matchStore, registry, settingsStore, scoreUpdater, broker, clock, gormDB,
		&webpush.Options{VAPIDPublicKey: "test-public-key"})
	router := NewRouter(handler, &config.ServerConfig{
		RateLimitPerSec: 10000,
		RateLimitBurst:  10000,
		CacheTTLSeconds: 1,
	})

	return &apiHarness{
		router: router,
		clock:  clock,
		mock:   mock,
		broker: broker,
		source: source,
	}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	// Tests always want the live collection, never the cached copy.
	req.Header.Set("Cache-Control", "no-cache")

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func doPlain(t *testing.T, router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func (h *apiHarness) addMatch(t *testing.T, table string) match.Match {
	t.Helper()
	w := h.do(t, http.MethodPost, "/api/matches", gin.H{
		"player1":            "Jean Dupont",
		"player2":            "Marie Martin",
		"table":              table,
		"maxDurationMinutes": 60,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created match.Match
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	return created
}
