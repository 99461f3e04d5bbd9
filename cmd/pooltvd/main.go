package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/jonboulle/clockwork"

	"pooltv-backend/config"
	"pooltv-backend/internal/api"
	"pooltv-backend/internal/broadcast"
	"pooltv-backend/internal/cuescore"
	"pooltv-backend/internal/db"
	"pooltv-backend/internal/kv"
	"pooltv-backend/internal/match"
	"pooltv-backend/internal/notification"
	"pooltv-backend/internal/settings"
	"pooltv-backend/internal/tables"
	"pooltv-backend/internal/updater"
)

// registryLookup adapts the table registry to the match store's
// resolver boundary.
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

func main() {
	log.SetPrefix("pooltv ")
	log.SetFlags(log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		if os.IsNotExist(err) && os.Getenv("CONFIG_PATH") == "" {
			log.Printf("no config file at %s, using defaults", configPath)
			cfg = config.Default()
		} else {
			log.Fatalf("failed to load configuration from %s: %v", configPath, err)
		}
	} else {
		log.Printf("configuration loaded from %s", configPath)
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()
	broker := broadcast.NewBroker()
	kvStore := kv.NewStore(gormDB, broker, clock, cfg.Storage.Debounce, cfg.Storage.MaxValueBytes)

	registry := tables.NewRegistry(kvStore)
	if err := registry.Seed(ctx); err != nil {
		log.Fatalf("failed to seed table registry: %v", err)
	}

	matchStore := match.NewStore(kvStore, registryLookup{registry}, broker, clock)
	go matchStore.Run(ctx)

	watcher := match.NewExpiryWatcher(matchStore, clock)
	go watcher.Run(ctx)

	scoreClient := cuescore.NewClient(cfg.CueScore)
	scoreUpdater := updater.New(matchStore, scoreClient, clock, cfg.Updater)
	go scoreUpdater.Run(ctx)

	settingsStore := settings.NewStore(kvStore)

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions)
		workerPool.Start(ctx)
		matchStore.OnFinish(workerPool.Dispatch)
		log.Println("finish notifications enabled")
	} else {
		log.Println("VAPID keys not configured, finish notifications disabled")
	}

	handler := api.NewHandler(matchStore, registry, settingsStore, scoreUpdater, broker, clock, gormDB, &webpushOptions)
	router := api.NewRouter(handler, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutdown signal received, stopping services...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}

	// Land whatever is still sitting in the debounce window before the
	// process exits.
	kvStore.Flush()
	broker.Close()

	log.Println("server gracefully stopped")
}
