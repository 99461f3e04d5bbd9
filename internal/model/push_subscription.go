package model

import "time"

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// SubscriptionTable maps a push subscription to a table registry id.
// The table registry itself lives in the key-value store, so this is a
// plain mapping row rather than a foreign-keyed association.
type SubscriptionTable struct {
	Endpoint string `gorm:"primaryKey"`
	TableID  int64  `gorm:"primaryKey"`
}
