package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"pooltv-backend/config"
	"pooltv-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 10*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/matches", caching, handler.GetMatches)
		api.POST("/matches", handler.AddMatch)
		api.DELETE("/matches", handler.ClearMatches)
		api.POST("/matches/start-all", handler.StartAllMatches)
		api.GET("/matches/:id", handler.GetMatch)
		api.DELETE("/matches/:id", handler.RemoveMatch)
		api.PATCH("/matches/:id", handler.UpdateMatch)
		api.POST("/matches/:id/status", handler.SetMatchStatus)
		api.POST("/matches/:id/start", handler.StartMatch)

		api.POST("/refresh", handler.RefreshScores)

		api.GET("/tables", caching, handler.GetTables)
		api.POST("/tables", handler.AddTable)
		api.POST("/tables/reset", handler.ResetTables)
		api.PUT("/tables/:id", handler.UpdateTable)
		api.DELETE("/tables/:id", handler.RemoveTable)

		api.GET("/settings", handler.GetSettings)
		api.PUT("/settings", handler.PutSettings)
		api.POST("/settings/reset", handler.ResetSettings)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	// The SSE stream sits outside the rate limiter: it is one
	// long-lived request per display, not a polling source.
	r.GET("/api/events", handler.StreamEvents)

	return r
}
