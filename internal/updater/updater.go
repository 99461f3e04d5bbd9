// Package updater reconciles stored match scores against the external
// scoreboard on a fixed cadence while any match is active.
package updater

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"pooltv-backend/config"
	"pooltv-backend/internal/cuescore"
	"pooltv-backend/internal/match"
)

// ScoreSource is the external scoreboard client boundary.
type ScoreSource interface {
	FetchMatchData(ctx context.Context, tableCode string) (cuescore.MatchData, error)
}

// Service polls the score source for every active, table-coded match.
// The polling loop exists only while the active set is non-empty; at
// most one cycle is in flight at a time, and excess cycle requests
// (manual or scheduled) are dropped rather than queued.
type Service struct {
	store  *match.Store
	source ScoreSource
	clock  clockwork.Clock
	cfg    config.UpdaterConfig

	busy atomic.Bool

	mu         sync.Mutex
	runCtx     context.Context
	loopCancel context.CancelFunc
}

// New creates a reconciliation service.
func New(store *match.Store, source ScoreSource, clock clockwork.Clock, cfg config.UpdaterConfig) *Service {
	return &Service{store: store, source: source, clock: clock, cfg: cfg}
}

// Run watches the store and starts or stops the polling loop as the
// set of active matches becomes non-empty or empty. Blocks until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	unsubscribe := s.store.Subscribe(func(snapshot []match.Match) {
		s.evaluate(ctx, snapshot)
	})
	defer unsubscribe()

	if snapshot, err := s.store.GetAll(ctx); err != nil {
		log.Printf("updater: initial read failed: %v", err)
	} else {
		s.evaluate(ctx, snapshot)
	}

	<-ctx.Done()
	s.stopLoop()
}

// TriggerNow starts one reconciliation cycle immediately, bypassing
// the cadence, and returns without waiting for it. If a cycle is
// already in flight the request is dropped and false is returned.
func (s *Service) TriggerNow() bool {
	if !s.busy.CompareAndSwap(false, true) {
		log.Println("updater: cycle already in flight, manual trigger dropped")
		return false
	}

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		defer s.busy.Store(false)
		s.cycle(ctx)
	}()
	return true
}

func (s *Service) evaluate(ctx context.Context, snapshot []match.Match) {
	pollable := 0
	for _, m := range snapshot {
		if m.Status == match.StatusActive && m.TableCode != "" {
			pollable++
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case pollable > 0 && s.loopCancel == nil:
		loopCtx, cancel := context.WithCancel(ctx)
		s.loopCancel = cancel
		go s.loop(loopCtx)
		log.Printf("updater: started, polling every %s", s.cfg.Interval)
	case pollable == 0 && s.loopCancel != nil:
		s.loopCancel()
		s.loopCancel = nil
		log.Println("updater: stopped, no active matches")
	}
}

func (s *Service) stopLoop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loopCancel != nil {
		s.loopCancel()
		s.loopCancel = nil
	}
}

// loop fires the first cycle after the initial delay, then on the
// fixed interval.
func (s *Service) loop(ctx context.Context) {
	timer := s.clock.NewTimer(s.cfg.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
			s.runCycle(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// runCycle is the scheduled entry point: it takes the in-flight guard
// and runs one cycle, or skips when a manual trigger holds the guard.
func (s *Service) runCycle(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		log.Println("updater: cycle already in flight, scheduled cycle dropped")
		return
	}
	defer s.busy.Store(false)
	s.cycle(ctx)
}

// cycle serially visits every active coded match. Per-match failures
// are logged and isolated; a NOMATCH answer is neither.
func (s *Service) cycle(ctx context.Context) {
	snapshot, err := s.store.GetAll(ctx)
	if err != nil {
		log.Printf("updater: read matches: %v", err)
		return
	}

	var targets []match.Match
	for _, m := range snapshot {
		if m.Status == match.StatusActive && m.TableCode != "" {
			targets = append(targets, m)
		}
	}

	for i, m := range targets {
		if i > 0 {
			// Fixed pause between calls so the relay is never burst.
			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(s.cfg.CallGap):
			}
		}
		s.reconcileOne(ctx, m)
	}
}

func (s *Service) reconcileOne(ctx context.Context, m match.Match) {
	data, err := s.source.FetchMatchData(ctx, m.TableCode)
	if errors.Is(err, cuescore.ErrNoMatch) {
		return
	}
	if err != nil {
		log.Printf("updater: score fetch for %s (table %d): %v", m.TableName, m.Table, err)
		return
	}

	if data.ScoreA == m.ScoreA && data.ScoreB == m.ScoreB {
		return
	}

	now := s.clock.Now()
	fields := match.Fields{
		ScoreA:          &data.ScoreA,
		ScoreB:          &data.ScoreB,
		LastScoreUpdate: &now,
	}
	if err := s.store.Update(ctx, m.ID, fields); err != nil {
		log.Printf("updater: score write for match %d failed: %v", m.ID, err)
		return
	}
	log.Printf("updater: match %d scores now %d-%d", m.ID, data.ScoreA, data.ScoreB)
}
