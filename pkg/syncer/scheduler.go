package syncer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/w4lkr/shopsync/pkg/storage"
)

// Config controls the scheduler behaviour.
type Config struct {
	// At is the local wall-clock time a daily run becomes due, in "15:04"
	// format.
	At string
	// PollInterval is how often the due condition is checked. Polling
	// instead of sleeping until the exact instant means a missed wake-up,
	// like a process restart at 03:05, still triggers within one interval.
	PollInterval time.Duration
}

func (c *Config) defaults() {
	if c.At == "" {
		c.At = "03:00"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Minute
	}
}

// Scheduler triggers one catalog sync per day at a configured wall-clock
// time. At most one sync is in flight at any moment.
type Scheduler struct {
	syncer *Syncer
	config Config
	log    Logger

	hour   int
	minute int

	running atomic.Bool

	// now is replaced in tests.
	now func() time.Time
}

func NewScheduler(s *Syncer, cfg Config, log Logger) (*Scheduler, error) {
	cfg.defaults()
	if log == nil {
		log = nopLogger{}
	}
	at, err := time.Parse("15:04", cfg.At)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule time %q: %w", cfg.At, err)
	}
	return &Scheduler{
		syncer: s,
		config: cfg,
		log:    log,
		hour:   at.Hour(),
		minute: at.Minute(),
		now:    time.Now,
	}, nil
}

// Run blocks until ctx is cancelled. The due condition is checked once at
// startup and then on every tick, so a daemon started on a machine that
// slept through its schedule catches up right away.
func (sc *Scheduler) Run(ctx context.Context) {
	sc.log.Infof("scheduler started: daily at %s, checking every %s", sc.config.At, sc.config.PollInterval)

	sc.tick(ctx)

	ticker := time.NewTicker(sc.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sc.log.Infof("scheduler stopped")
			return
		case <-ticker.C:
			sc.tick(ctx)
		}
	}
}

// tick runs one due check and, when due, one sync.
func (sc *Scheduler) tick(ctx context.Context) {
	if !sc.running.CompareAndSwap(false, true) {
		return
	}
	defer sc.running.Store(false)

	st, err := sc.syncer.Store.LoadSchedule()
	if err != nil {
		sc.log.Warnf("could not read schedule state: %v", err)
		return
	}
	if !sc.due(st.LastRun, sc.now()) {
		return
	}

	run, err := sc.syncer.Run(ctx)
	if err != nil {
		sc.log.Errorf("scheduled sync failed: %v", err)
		return
	}

	// A run that obtained no fresh data does not advance the schedule, so
	// the next tick retries instead of waiting a whole day on a fluke.
	if run.UsedCachedData || (run.ItemCount == 0 && run.CategoryCount == 0) {
		sc.log.Warnf("sync %s obtained no fresh data, retrying on the next tick", run.ID)
		return
	}

	if err := sc.syncer.Store.SaveSchedule(storage.ScheduleState{LastRun: run.EndedAt}); err != nil {
		sc.log.Warnf("could not persist schedule state: %v", err)
	}
}

// due reports whether a run should start: either none ever succeeded, or
// the calendar date advanced past the last run's date and the wall clock
// reached the configured time of day.
func (sc *Scheduler) due(lastRun, now time.Time) bool {
	if lastRun.IsZero() {
		return true
	}
	now = now.Local()
	last := lastRun.Local()

	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	lastDay := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.Local)
	if !nowDay.After(lastDay) {
		return false
	}

	return now.Hour()*60+now.Minute() >= sc.hour*60+sc.minute
}
