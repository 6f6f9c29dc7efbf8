package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drshumard/bookingflow/models"
	"github.com/drshumard/bookingflow/utils"
)

// Fetcher is the slice of the portal client the store needs.
type Fetcher interface {
	FetchAvailability(ctx context.Context, startDate string, days int) (*models.AvailabilityResponse, error)
	FetchDayAvailability(ctx context.Context, date string) (*models.AvailabilityResponse, error)
}

// Snapshot is one immutable availability state. The window survives a failed
// refresh: callers keep rendering the last good data next to the error.
type Snapshot struct {
	Window    *models.AvailabilityWindow
	FetchedAt time.Time
	Err       error
}

// StoreConfig carries the window size and refresh cadence.
type StoreConfig struct {
	Days       int           // window span requested from the portal
	Interval   time.Duration // polling cadence while a picker step is active
	StaleAfter time.Duration // snapshot age that forces a refetch on resume
}

// Store keeps the availability window warm. One background loop polls the
// portal; a single wizard at a time gates it, pausing while the patient types
// and releasing any pause it still holds when it closes. Reads always return
// immediately from the snapshot (stale-while-revalidate), and a fetch
// dispatched before an invalidation can never overwrite the data that
// replaced it.
type Store struct {
	fetcher    Fetcher
	logger     *zap.Logger
	days       int
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time

	mu        sync.Mutex
	snap      Snapshot
	epoch     uint64
	inflight  bool
	pausedFlg bool
	observers []func(Snapshot)

	refreshCh chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewStore builds a store around a portal fetcher. Start must be called
// before the snapshot begins to fill.
func NewStore(fetcher Fetcher, cfg StoreConfig, logger *zap.Logger) *Store {
	days := cfg.Days
	if days <= 0 {
		days = 14
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 30 * time.Second
	}
	return &Store{
		fetcher:    fetcher,
		logger:     logger,
		days:       days,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
		refreshCh:  make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the background refresh loop.
func (s *Store) Start(ctx context.Context) {
	s.logger.Info("starting availability refresher",
		zap.Int("days", s.days),
		zap.Duration("interval", s.interval))
	go s.run(ctx)
}

// Stop halts the background loop. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Store) run(ctx context.Context) {
	// Prime immediately so the first picker render has data.
	s.refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.refreshCh:
			s.refresh(ctx)
		case <-ticker.C:
			if s.Paused() {
				continue
			}
			s.refresh(ctx)
		}
	}
}

// Snapshot returns the current availability state without blocking.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Stale reports whether the snapshot is older than the staleness threshold.
// A store that has never fetched is stale.
func (s *Store) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staleLocked()
}

func (s *Store) staleLocked() bool {
	if s.snap.FetchedAt.IsZero() {
		return true
	}
	return s.now().Sub(s.snap.FetchedAt) > s.staleAfter
}

// Pause gates the periodic poll. Explicit Refresh and Invalidate still run:
// a booking made while paused must still drop the taken slot.
func (s *Store) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pausedFlg = true
}

// Resume reopens the periodic poll and refetches right away when the
// snapshot has gone stale while paused.
func (s *Store) Resume() {
	s.mu.Lock()
	stale := s.staleLocked()
	s.pausedFlg = false
	s.mu.Unlock()

	if stale {
		s.Refresh()
	}
}

// Paused reports whether periodic polling is gated.
func (s *Store) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pausedFlg
}

// Refresh asks the loop for an immediate fetch. Non-blocking; pokes coalesce.
func (s *Store) Refresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// Invalidate marks every in-flight and cached read superseded and schedules
// a refetch. The old window keeps serving until the new one lands.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()
	s.Refresh()
}

// Subscribe registers a callback invoked after every applied snapshot.
// Callbacks run outside the store lock.
func (s *Store) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// refresh performs one guarded fetch-and-apply cycle.
func (s *Store) refresh(ctx context.Context) {
	s.mu.Lock()
	if s.inflight {
		s.mu.Unlock()
		return
	}
	s.inflight = true
	epoch := s.epoch
	startDate := utils.DateKeyUTC(s.now())
	s.mu.Unlock()

	resp, err := s.fetcher.FetchAvailability(ctx, startDate, s.days)

	s.mu.Lock()
	s.inflight = false
	if epoch != s.epoch {
		s.mu.Unlock()
		s.logger.Debug("discarding superseded availability fetch",
			zap.String("start_date", startDate))
		// Something invalidated the window mid-flight; fetch again.
		s.Refresh()
		return
	}
	if err != nil {
		s.snap.Err = err
		s.logger.Warn("availability refresh failed", zap.Error(err))
	} else {
		s.snap = Snapshot{
			Window:    GroupSlotsByDate(resp.Slots, startDate, s.days),
			FetchedAt: s.now(),
		}
	}
	snap := s.snap
	observers := append([]func(Snapshot){}, s.observers...)
	s.mu.Unlock()

	s.notify(observers, snap)
}

// RefreshDay refetches a single date and splices its bucket into the window.
// Used when the patient lands back on the time picker after an expiry and
// only that day needs to be current.
func (s *Store) RefreshDay(ctx context.Context, date string) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	resp, err := s.fetcher.FetchDayAvailability(ctx, date)
	if err != nil {
		return err
	}
	fresh := GroupSlotsByDate(resp.Slots, date, 1)

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.Refresh()
		return nil
	}

	merged := make(map[string][]models.Slot)
	if s.snap.Window != nil {
		for key, bucket := range s.snap.Window.Days {
			if key != date {
				merged[key] = bucket
			}
		}
	}
	if bucket := fresh.Days[date]; len(bucket) > 0 {
		merged[date] = bucket
	}
	dates := make([]string, 0, len(merged))
	for key := range merged {
		dates = append(dates, key)
	}
	sort.Strings(dates)

	s.snap = Snapshot{
		Window:    &models.AvailabilityWindow{Days: merged, Dates: dates},
		FetchedAt: s.now(),
	}
	snap := s.snap
	observers := append([]func(Snapshot){}, s.observers...)
	s.mu.Unlock()

	s.notify(observers, snap)
	return nil
}

func (s *Store) notify(observers []func(Snapshot), snap Snapshot) {
	for _, fn := range observers {
		fn(snap)
	}
}
