package model

import "time"

// KVEntry is one persisted application state blob. Each logical
// collection (matches, tables, settings values) lives under its own key
// as a single JSON document.
type KVEntry struct {
	Key       string    `gorm:"primaryKey;size:64"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
