package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"pooltv-backend/internal/broadcast"
	"pooltv-backend/internal/match"
	"pooltv-backend/internal/settings"
	"pooltv-backend/internal/tables"
	"pooltv-backend/internal/updater"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	matches  *match.Store
	registry *tables.Registry
	settings *settings.Store
	updater  *updater.Service
	broker   *broadcast.Broker
	clock    clockwork.Clock
	db       *gorm.DB
	webpush  *webpush.Options
}

// NewHandler creates a new API handler. The clock is the same one the
// match store runs on, so derived countdowns agree with it.
func NewHandler(matches *match.Store, registry *tables.Registry, st *settings.Store,
	upd *updater.Service, broker *broadcast.Broker, clock clockwork.Clock,
	db *gorm.DB, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		matches:  matches,
		registry: registry,
		settings: st,
		updater:  upd,
		broker:   broker,
		clock:    clock,
		db:       db,
		webpush:  webpushOptions,
	}
}
