package api

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"pooltv-backend/internal/broadcast"
)

type changeEvent struct {
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamEvents handles GET /api/events: a server-sent-event stream of
// change notifications. A display holds this open and re-fetches the
// collection named by each event, the same contract browser tabs had
// with storage events.
func (h *Handler) StreamEvents(c *gin.Context) {
	matches, cancelMatches := h.broker.Subscribe(broadcast.TopicMatches)
	defer cancelMatches()
	tablesCh, cancelTables := h.broker.Subscribe(broadcast.TopicTables)
	defer cancelTables()
	settingsCh, cancelSettings := h.broker.Subscribe(broadcast.TopicSettings)
	defer cancelSettings()

	c.Stream(func(w io.Writer) bool {
		var ev broadcast.Event
		var ok bool
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok = <-matches:
		case ev, ok = <-tablesCh:
		case ev, ok = <-settingsCh:
		}
		if !ok {
			return false
		}
		c.SSEvent("change", changeEvent{Topic: ev.Topic, Timestamp: ev.Timestamp})
		return true
	})
}
