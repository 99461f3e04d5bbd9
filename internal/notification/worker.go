package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"pooltv-backend/internal/match"
	"pooltv-backend/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender backed by the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool delivers "match finished" pushes to the subscriptions
// watching the match's table.
type WorkerPool struct {
	size    int
	jobs    chan match.Match
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan match.Match, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("notification worker %d started", id)
	for {
		select {
		case m := <-wp.jobs:
			wp.notifyFinished(ctx, m)
		case <-ctx.Done():
			log.Printf("notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a finished match for notification. Drops the job
// when the queue is full rather than blocking the store's mutation
// path.
func (wp *WorkerPool) Dispatch(m match.Match) {
	select {
	case wp.jobs <- m:
	default:
		log.Printf("notification queue full, dropping push for match %d", m.ID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan match.Match {
	return wp.jobs
}

// notifyFinished fetches the table's subscriptions and pushes the
// final score to each.
func (wp *WorkerPool) notifyFinished(ctx context.Context, m match.Match) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_tables st ON st.endpoint = push_subscriptions.endpoint").
		Where("st.table_id = ?", m.Table).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("error fetching subscriptions for table %d: %v", m.Table, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	label := m.TableName
	if label == "" {
		label = fmt.Sprintf("Table %d", m.Table)
	}
	message := fmt.Sprintf("Match terminé sur %s : %s %d - %d %s",
		label, m.Player1, m.ScoreA, m.ScoreB, m.Player2)

	log.Printf("sending %d notifications for table %d", len(subscriptions), m.Table)
	for _, sub := range subscriptions {
		wp.send(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("subscription %s is expired, deleting", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
