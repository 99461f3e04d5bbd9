package match

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"pooltv-backend/internal/broadcast"
	"pooltv-backend/internal/kv"
)

const storageKey = "poolMatches"

// TableRegistry resolves a table id to its current configuration. The
// store snapshots name and code into each match at creation.
type TableRegistry interface {
	Lookup(ctx context.Context, id int64) (TableInfo, bool, error)
}

// TableInfo is the subset of a registry entry the store needs.
type TableInfo struct {
	ID   int64
	Name string
	Code string
}

// Extra carries optional initial values merged into a new match, such
// as scores already read from the external scoreboard.
type Extra struct {
	ScoreA          *int
	ScoreB          *int
	LastScoreUpdate *time.Time
}

// Fields is a partial update applied by Update. Nil fields are left
// untouched. Business invariants are not re-validated here; callers
// own that responsibility.
type Fields struct {
	Player1            *string
	Player2            *string
	ScoreA             *int
	ScoreB             *int
	LastScoreUpdate    *time.Time
	MaxDurationMinutes *int
}

// Store is the single authoritative owner of the persisted match
// collection. Every mutation is a serialized read-modify-write over
// the full collection followed by a debounced persistence write; the
// change notification then fans out through the broker, so listeners
// (this process or another one sharing the database) re-read.
type Store struct {
	kv       *kv.Store
	registry TableRegistry
	broker   *broadcast.Broker
	clock    clockwork.Clock

	mu     sync.Mutex // serializes read-modify-write cycles
	lastID int64

	listenMu   sync.Mutex
	listeners  map[int]func([]Match)
	nextListen int

	finishMu sync.Mutex
	onFinish func(Match)
}

// NewStore creates a match store.
func NewStore(store *kv.Store, registry TableRegistry, broker *broadcast.Broker, clock clockwork.Clock) *Store {
	return &Store{
		kv:        store,
		registry:  registry,
		broker:    broker,
		clock:     clock,
		listeners: make(map[int]func([]Match)),
	}
}

// Run dispatches change notifications to subscribers until the context
// is cancelled. Without it the store still works; subscribers just
// never hear about changes.
func (s *Store) Run(ctx context.Context) {
	events, cancel := s.broker.Subscribe(broadcast.TopicMatches)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			snapshot, err := s.GetAll(ctx)
			if err != nil {
				log.Printf("match store: re-read after change failed: %v", err)
				continue
			}
			s.notify(snapshot)
		}
	}
}

// Subscribe registers a listener called with the full current snapshot
// whenever the persisted collection changes, including changes made by
// another process sharing the database. Rapid mutations may coalesce
// into a single notification. The returned function unsubscribes.
func (s *Store) Subscribe(listener func([]Match)) func() {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	id := s.nextListen
	s.nextListen++
	s.listeners[id] = listener
	return func() {
		s.listenMu.Lock()
		defer s.listenMu.Unlock()
		delete(s.listeners, id)
	}
}

// OnFinish registers a hook invoked once for every match that enters
// the finished state, whether manually or by expiry.
func (s *Store) OnFinish(hook func(Match)) {
	s.finishMu.Lock()
	defer s.finishMu.Unlock()
	s.onFinish = hook
}

// GetAll returns the current collection in insertion order, newest
// last.
func (s *Store) GetAll(ctx context.Context) ([]Match, error) {
	raw, found, err := s.kv.Get(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return []Match{}, nil
	}
	var matches []Match
	if err := json.Unmarshal(raw, &matches); err != nil {
		return nil, fmt.Errorf("match store: corrupt collection document: %w", err)
	}
	return matches, nil
}

// Get returns the match with the given id, if present.
func (s *Store) Get(ctx context.Context, id int64) (Match, bool, error) {
	matches, err := s.GetAll(ctx)
	if err != nil {
		return Match{}, false, err
	}
	for _, m := range matches {
		if m.ID == id {
			return m, true, nil
		}
	}
	return Match{}, false, nil
}

// Add validates, resolves the table against the live registry and
// appends a new waiting match. It fails with *ValidationError or
// *TableOccupiedError.
func (s *Store) Add(ctx context.Context, player1, player2, table string, maxDurationMinutes int, extra *Extra) (Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := s.GetAll(ctx)
	if err != nil {
		return Match{}, err
	}

	player1 = SanitizeName(player1)
	player2 = SanitizeName(player2)
	table = SanitizeName(table)

	known := func(id int64) bool {
		_, found, lookupErr := s.registry.Lookup(ctx, id)
		if lookupErr != nil {
			log.Printf("match store: table lookup failed: %v", lookupErr)
			return false
		}
		return found
	}
	if result := ValidateNewMatch(player1, player2, table, maxDurationMinutes, known); !result.IsValid {
		return Match{}, &ValidationError{Errors: result.Errors}
	}

	tableID, _ := strconv.ParseInt(table, 10, 64)
	if avail := CheckTableAvailability(tableID, matches, 0); !avail.IsAvailable {
		return Match{}, &TableOccupiedError{Table: tableID, OccupiedBy: *avail.OccupiedBy}
	}

	info, found, err := s.registry.Lookup(ctx, tableID)
	if err != nil {
		return Match{}, err
	}
	if !found {
		return Match{}, &ValidationError{Errors: []string{"table is not in the table configuration"}}
	}

	now := s.clock.Now()
	m := Match{
		ID:                 s.nextID(now),
		Player1:            player1,
		Player2:            player2,
		Table:              tableID,
		TableCode:          info.Code,
		TableName:          info.Name,
		Status:             StatusWaiting,
		StartTime:          now,
		MaxDurationMinutes: maxDurationMinutes,
	}
	if extra != nil {
		if extra.ScoreA != nil {
			m.ScoreA = *extra.ScoreA
		}
		if extra.ScoreB != nil {
			m.ScoreB = *extra.ScoreB
		}
		if extra.LastScoreUpdate != nil {
			t := *extra.LastScoreUpdate
			m.LastScoreUpdate = &t
		}
	}

	s.save(append(matches, m))
	return m, nil
}

// Remove deletes the match with the given id; absent ids are a no-op.
func (s *Store) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	kept := matches[:0]
	for _, m := range matches {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(matches) {
		return nil
	}
	s.save(kept)
	return nil
}

// SetStatus applies the state machine to one match. Unknown ids and
// unmodeled transitions are no-ops.
func (s *Store) SetStatus(ctx context.Context, id int64, status Status) error {
	return s.mutate(ctx, id, func(m *Match) bool {
		return m.transition(status, s.clock.Now())
	})
}

// Start transitions a waiting match to active, stamping its actual
// start time.
func (s *Store) Start(ctx context.Context, id int64) error {
	return s.SetStatus(ctx, id, StatusActive)
}

// StartAll activates every waiting match with a single shared start
// timestamp.
func (s *Store) StartAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	changed := false
	for i := range matches {
		if matches[i].Status == StatusWaiting {
			matches[i].transition(StatusActive, now)
			changed = true
		}
	}
	if changed {
		s.save(matches)
	}
	return nil
}

// AutoFinish finishes a match on expiry. Already-finished matches are
// untouched, so a doubled expiry signal is harmless.
func (s *Store) AutoFinish(ctx context.Context, id int64) error {
	return s.mutate(ctx, id, func(m *Match) bool {
		if m.Status == StatusFinished {
			return false
		}
		if !m.transition(StatusFinished, s.clock.Now()) {
			return false
		}
		m.AutoFinished = true
		return true
	})
}

// Update shallow-merges the given fields into the match.
func (s *Store) Update(ctx context.Context, id int64, fields Fields) error {
	return s.mutate(ctx, id, func(m *Match) bool {
		if fields.Player1 != nil {
			m.Player1 = *fields.Player1
		}
		if fields.Player2 != nil {
			m.Player2 = *fields.Player2
		}
		if fields.ScoreA != nil {
			m.ScoreA = *fields.ScoreA
		}
		if fields.ScoreB != nil {
			m.ScoreB = *fields.ScoreB
		}
		if fields.LastScoreUpdate != nil {
			t := *fields.LastScoreUpdate
			m.LastScoreUpdate = &t
		}
		if fields.MaxDurationMinutes != nil {
			m.MaxDurationMinutes = *fields.MaxDurationMinutes
		}
		return true
	})
}

// ClearAll empties the collection.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save([]Match{})
	return nil
}

// mutate runs a read-modify-write cycle over one match. The apply
// function reports whether anything changed; unknown ids are no-ops.
func (s *Store) mutate(ctx context.Context, id int64, apply func(*Match) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	for i := range matches {
		if matches[i].ID != id {
			continue
		}
		wasFinished := matches[i].Status == StatusFinished
		if !apply(&matches[i]) {
			return nil
		}
		s.save(matches)
		if !wasFinished && matches[i].Status == StatusFinished {
			s.fireFinish(matches[i])
		}
		return nil
	}
	return nil
}

// save schedules the debounced persistence write. An oversized
// collection is dropped with a log line; the operation's result stays
// in memory only, an accepted gap at this scale.
func (s *Store) save(matches []Match) {
	raw, err := json.Marshal(matches)
	if err != nil {
		log.Printf("match store: marshal collection: %v", err)
		return
	}
	if err := s.kv.Put(storageKey, raw, broadcast.TopicMatches); err != nil {
		log.Printf("match store: persistence write not scheduled: %v", err)
	}
}

// nextID derives a creation-time id, bumped when two creations land on
// the same millisecond so ids stay strictly monotonic.
func (s *Store) nextID(now time.Time) int64 {
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

func (s *Store) notify(snapshot []Match) {
	s.listenMu.Lock()
	listeners := make([]func([]Match), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenMu.Unlock()
	for _, l := range listeners {
		l(snapshot)
	}
}

func (s *Store) fireFinish(m Match) {
	s.finishMu.Lock()
	hook := s.onFinish
	s.finishMu.Unlock()
	if hook != nil {
		hook(m)
	}
}
