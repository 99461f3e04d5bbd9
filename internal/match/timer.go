package match

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// RemainingSeconds derives the countdown for a match at the given
// instant without mutating it. A waiting match shows its full
// duration; a finished match is pinned to its finish time; a paused
// match excludes the in-progress pause. Elapsed time is computed in
// milliseconds and floored to whole seconds.
func RemainingSeconds(m Match, now time.Time) int {
	total := m.MaxDurationMinutes * 60
	if m.Status == StatusWaiting {
		return total
	}

	anchor := m.StartTime
	if m.ActualStartTime != nil {
		anchor = *m.ActualStartTime
	}

	end := now
	if m.Status == StatusFinished && m.FinishedAt != nil {
		end = *m.FinishedAt
	}

	elapsedMS := end.Sub(anchor).Milliseconds() - m.TotalPausedTime
	if m.Status == StatusPaused && m.PausedAt != nil {
		elapsedMS -= now.Sub(*m.PausedAt).Milliseconds()
	}
	if elapsedMS < 0 {
		elapsedMS = 0
	}

	remaining := total - int(elapsedMS/1000)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ExpiryWatcher keeps a one-second countdown ticker per active match
// and auto-finishes a match the first time its remaining time hits
// zero. No ticker runs for waiting, paused or finished matches.
type ExpiryWatcher struct {
	store *Store
	clock clockwork.Clock

	mu      sync.Mutex
	tickers map[int64]context.CancelFunc
}

// NewExpiryWatcher creates a watcher over the given store.
func NewExpiryWatcher(store *Store, clock clockwork.Clock) *ExpiryWatcher {
	return &ExpiryWatcher{
		store:   store,
		clock:   clock,
		tickers: make(map[int64]context.CancelFunc),
	}
}

// Run reconciles tickers with the active set until the context is
// cancelled.
func (w *ExpiryWatcher) Run(ctx context.Context) {
	unsubscribe := w.store.Subscribe(func(snapshot []Match) {
		w.reconcile(ctx, snapshot)
	})
	defer unsubscribe()

	if snapshot, err := w.store.GetAll(ctx); err != nil {
		log.Printf("expiry watcher: initial read failed: %v", err)
	} else {
		w.reconcile(ctx, snapshot)
	}

	<-ctx.Done()
	w.stopAll()
}

// reconcile cancels tickers for matches that left the active state and
// starts one for each newly active match.
func (w *ExpiryWatcher) reconcile(ctx context.Context, snapshot []Match) {
	active := make(map[int64]struct{})
	for _, m := range snapshot {
		if m.Status == StatusActive {
			active[m.ID] = struct{}{}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for id, cancel := range w.tickers {
		if _, still := active[id]; !still {
			cancel()
			delete(w.tickers, id)
		}
	}
	for id := range active {
		if _, running := w.tickers[id]; running {
			continue
		}
		tickCtx, cancel := context.WithCancel(ctx)
		w.tickers[id] = cancel
		go w.watch(tickCtx, id)
	}
}

// watch ticks once per second while the match stays active. The expiry
// signal is edge-triggered: it fires once, then the ticker stops; the
// resulting finished-status change notification tears the entry down.
func (w *ExpiryWatcher) watch(ctx context.Context, id int64) {
	if w.expired(ctx, id) {
		return
	}

	ticker := w.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if w.expired(ctx, id) {
				return
			}
		}
	}
}

// expired re-reads the match on every check so that edits made while
// the ticker runs, a longer duration in particular, count against the
// current record rather than the snapshot the ticker started from.
func (w *ExpiryWatcher) expired(ctx context.Context, id int64) bool {
	m, found, err := w.store.Get(ctx, id)
	if err != nil {
		log.Printf("expiry watcher: read of match %d failed: %v", id, err)
		return false
	}
	if !found || m.Status != StatusActive {
		w.forget(id)
		return true
	}
	if RemainingSeconds(m, w.clock.Now()) > 0 {
		return false
	}
	w.forget(id)
	if err := w.store.AutoFinish(ctx, id); err != nil {
		log.Printf("expiry watcher: auto-finish of match %d failed: %v", id, err)
	}
	return true
}

func (w *ExpiryWatcher) forget(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cancel, ok := w.tickers[id]; ok {
		delete(w.tickers, id)
		defer cancel()
	}
}

func (w *ExpiryWatcher) stopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, cancel := range w.tickers {
		cancel()
		delete(w.tickers, id)
	}
}
