// Package kv persists application state as one JSON document per key,
// behind a write-coalescing queue: rapid successive writes to the same
// key collapse into a single database write after a short debounce
// window. Readers always see the newest value, flushed or not.
package kv

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pooltv-backend/internal/broadcast"
	"pooltv-backend/internal/model"
)

// ErrValueTooLarge is returned when a serialized value exceeds the
// configured ceiling. The write is dropped; in-memory state for that
// operation is not durable.
var ErrValueTooLarge = errors.New("kv: value exceeds size ceiling, write dropped")

type pendingWrite struct {
	value []byte
	topic string
	timer clockwork.Timer
	gen   uint64
}

// Store is a GORM-backed key-value store with debounced writes.
type Store struct {
	db       *gorm.DB
	broker   *broadcast.Broker
	clock    clockwork.Clock
	debounce time.Duration
	maxBytes int

	mu      sync.Mutex
	pending map[string]*pendingWrite
}

// NewStore creates a key-value store. The broker receives one event per
// flushed write, on the topic given to Put.
func NewStore(db *gorm.DB, broker *broadcast.Broker, clock clockwork.Clock, debounce time.Duration, maxBytes int) *Store {
	return &Store{
		db:       db,
		broker:   broker,
		clock:    clock,
		debounce: debounce,
		maxBytes: maxBytes,
		pending:  make(map[string]*pendingWrite),
	}
}

// Get returns the current value for key. A value still sitting in the
// debounce queue is returned in preference to the persisted one.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	if pw, ok := s.pending[key]; ok {
		v := pw.value
		s.mu.Unlock()
		return v, true, nil
	}
	s.mu.Unlock()

	var entry model.KVEntry
	err := s.db.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv: read %q: %w", key, err)
	}
	return entry.Value, true, nil
}

// Put schedules a debounced write of value under key. A write already
// queued for the same key is replaced and its timer restarted, so only
// the last value within the window reaches the database. The topic is
// published once the write lands.
func (s *Store) Put(key string, value []byte, topic string) error {
	if len(value) > s.maxBytes {
		log.Printf("kv: value for %q is %d bytes, over the %d byte ceiling; write dropped", key, len(value), s.maxBytes)
		return ErrValueTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if pw, ok := s.pending[key]; ok {
		pw.value = value
		pw.topic = topic
		pw.gen++
		pw.timer.Reset(s.debounce)
		return nil
	}

	pw := &pendingWrite{value: value, topic: topic}
	pw.timer = s.clock.AfterFunc(s.debounce, func() { s.flushKey(key) })
	s.pending[key] = pw
	return nil
}

// PutNow writes value under key immediately, bypassing the queue.
// Used for small, infrequent writes (table registry, display settings).
func (s *Store) PutNow(ctx context.Context, key string, value []byte, topic string) error {
	if len(value) > s.maxBytes {
		log.Printf("kv: value for %q is %d bytes, over the %d byte ceiling; write dropped", key, len(value), s.maxBytes)
		return ErrValueTooLarge
	}
	if err := s.write(ctx, key, value); err != nil {
		return err
	}
	s.broker.Publish(topic, s.clock.Now())
	return nil
}

// Delete removes key and its queued write, if any.
func (s *Store) Delete(ctx context.Context, key string, topic string) error {
	s.mu.Lock()
	if pw, ok := s.pending[key]; ok {
		pw.timer.Stop()
		delete(s.pending, key)
	}
	s.mu.Unlock()

	if err := s.db.WithContext(ctx).Delete(&model.KVEntry{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("kv: delete %q: %w", key, err)
	}
	s.broker.Publish(topic, s.clock.Now())
	return nil
}

// Flush synchronously writes every queued value. Called on teardown so
// shutdown never loses the tail of the debounce window, and by tests
// that need deterministic persistence.
func (s *Store) Flush() {
	s.mu.Lock()
	keys := make([]string, 0, len(s.pending))
	for key, pw := range s.pending {
		pw.timer.Stop()
		keys = append(keys, key)
	}
	s.mu.Unlock()

	for _, key := range keys {
		s.flushKey(key)
	}
}

func (s *Store) flushKey(key string) {
	s.mu.Lock()
	pw, ok := s.pending[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	value, topic, gen := pw.value, pw.topic, pw.gen
	s.mu.Unlock()

	err := s.write(context.Background(), key, value)

	s.mu.Lock()
	// A Put that raced the flush re-armed the timer and will flush
	// again; only clear the entry if the flushed value is still current.
	if cur, exists := s.pending[key]; exists && cur.gen == gen {
		delete(s.pending, key)
	}
	s.mu.Unlock()

	if err != nil {
		log.Printf("kv: flush of %q failed: %v", key, err)
		return
	}
	s.broker.Publish(topic, s.clock.Now())
}

func (s *Store) write(ctx context.Context, key string, value []byte) error {
	entry := model.KVEntry{Key: key, Value: value, UpdatedAt: s.clock.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("kv: write %q: %w", key, err)
	}
	return nil
}
