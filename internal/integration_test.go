package internal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pooltv-backend/config"
	"pooltv-backend/internal/broadcast"
	"pooltv-backend/internal/db"
	"pooltv-backend/internal/kv"
	"pooltv-backend/internal/match"
	"pooltv-backend/internal/model"
	"pooltv-backend/internal/settings"
	"pooltv-backend/internal/tables"
)

// registryLookup adapts the table registry to the match store, as the
// daemon does.
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

// TestMatchPersistencePipeline runs the full write path against a real
// in-memory SQLite database: mutation, debounced write, change event,
// and a second store instance observing the result the way another
// process sharing the database would.
func TestMatchPersistencePipeline(t *testing.T) {
	gormDB, err := db.Init(&config.DatabaseConfig{DSN: "file:pooltv_it_matches?mode=memory&cache=shared"})
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()
	broker := broadcast.NewBroker()
	defer broker.Close()
	kvStore := kv.NewStore(gormDB, broker, clock, 20*time.Millisecond, 5_000_000)

	registry := tables.NewRegistry(kvStore)
	require.NoError(t, registry.Seed(ctx))

	matchStore := match.NewStore(kvStore, registryLookup{registry}, broker, clock)
	go matchStore.Run(ctx)

	notified := make(chan []match.Match, 16)
	matchStore.Subscribe(func(snapshot []match.Match) {
		notified <- snapshot
	})
	time.Sleep(50 * time.Millisecond)

	created, err := matchStore.Add(ctx, "Jean Dupont", "Marie Martin", "3", 60, nil)
	require.NoError(t, err)
	require.NoError(t, matchStore.Start(ctx, created.ID))

	// The debounced document reaches the database with the final state
	// of the burst.
	require.Eventually(t, func() bool {
		var entry model.KVEntry
		if gormDB.First(&entry, "key = ?", "poolMatches").Error != nil {
			return false
		}
		var persisted []match.Match
		if json.Unmarshal(entry.Value, &persisted) != nil {
			return false
		}
		return len(persisted) == 1 &&
			persisted[0].ID == created.ID &&
			persisted[0].Status == match.StatusActive
	}, 2*time.Second, 20*time.Millisecond)

	// Subscribers hear about the change.
	select {
	case snapshot := <-notified:
		require.Len(t, snapshot, 1)
		assert.Equal(t, created.ID, snapshot[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification received")
	}

	// A fresh store over the same database sees the collection, table
	// snapshot included.
	otherBroker := broadcast.NewBroker()
	defer otherBroker.Close()
	otherStore := match.NewStore(
		kv.NewStore(gormDB, otherBroker, clock, 20*time.Millisecond, 5_000_000),
		registryLookup{registry}, otherBroker, clock,
	)
	observed, err := otherStore.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, observed, 1)
	assert.Equal(t, "Jean Dupont", observed[0].Player1)
	assert.Equal(t, "dc64dc33", observed[0].TableCode)
	assert.Equal(t, match.StatusActive, observed[0].Status)
}

// TestSettingsRoundTrip exercises the write-through settings keys over
// a real database.
func TestSettingsRoundTrip(t *testing.T) {
	gormDB, err := db.Init(&config.DatabaseConfig{DSN: "file:pooltv_it_settings?mode=memory&cache=shared"})
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	ctx := context.Background()
	broker := broadcast.NewBroker()
	defer broker.Close()
	store := settings.NewStore(kv.NewStore(gormDB, broker, clockwork.NewRealClock(), 20*time.Millisecond, 5_000_000))

	require.NoError(t, store.SetTheme(ctx, "ultimate_pool"))
	require.NoError(t, store.SetTitles(ctx, "Finales du club", "Samedi soir"))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.Settings{
		Theme:    "ultimate_pool",
		Title:    "Finales du club",
		Subtitle: "Samedi soir",
	}, got)

	require.NoError(t, store.Reset(ctx))
	got, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.DefaultTheme, got.Theme)
	assert.Equal(t, settings.DefaultTitle, got.Title)
	assert.Equal(t, settings.DefaultSubtitle, got.Subtitle)
}

// TestTableRegistryPersistence seeds, edits and resets the registry
// over a real database.
func TestTableRegistryPersistence(t *testing.T) {
	gormDB, err := db.Init(&config.DatabaseConfig{DSN: "file:pooltv_it_tables?mode=memory&cache=shared"})
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	ctx := context.Background()
	broker := broadcast.NewBroker()
	defer broker.Close()
	registry := tables.NewRegistry(kv.NewStore(gormDB, broker, clockwork.NewRealClock(), 20*time.Millisecond, 5_000_000))

	require.NoError(t, registry.Seed(ctx))
	entries, err := registry.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 9)

	added, err := registry.Add(ctx, "Table 10", "ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, int64(10), added.ID)

	require.NoError(t, registry.Update(ctx, 10, "Table VIP", "ab12cd34"))
	entry, found, err := registry.Lookup(ctx, 10)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Table VIP", entry.Name)

	require.NoError(t, registry.Reset(ctx))
	entries, err = registry.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, tables.DefaultEntries(), entries)
}
