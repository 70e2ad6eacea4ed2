package scheduler

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/bher20/tariffd/internal/metrics"
	"github.com/bher20/tariffd/internal/pipeline"
	"github.com/bher20/tariffd/internal/storage"
	"github.com/bher20/tariffd/internal/tariff"
	"github.com/bher20/tariffd/pkg/providers"
	"github.com/robfig/cron/v3"
)

// refreshIntervalSetting is the storage settings key that overrides the
// configured acquisition interval at runtime.
const refreshIntervalSetting = "refresh_interval"

// Scheduler runs the two cadences for one subscription: a slow loop
// that re-acquires the tariff from its source, and a fast loop that
// re-resolves the current rate from the held snapshot roughly once a
// minute. Reads are safe from any goroutine.
type Scheduler struct {
	name     string
	key      tariff.AcquisitionKey
	opts     tariff.Options
	pipe     *pipeline.Pipeline
	store    storage.Store
	interval string // seconds or a cron expression

	// Loop cadences, overridable in tests.
	controlTick time.Duration
	resolveTick time.Duration

	mu          sync.RWMutex
	snap        *tariff.Snapshot
	current     tariff.ResolvedRate
	lastLive    time.Time
	subscribers []chan tariff.ResolvedRate
}

// New validates the subscription against the provider catalog and
// builds its scheduler. A catalog mismatch is a configuration error
// and aborts creation.
func New(name string, key tariff.AcquisitionKey, opts tariff.Options, registry *providers.Registry, pipe *pipeline.Pipeline, store storage.Store, interval string) (*Scheduler, error) {
	if err := registry.Validate(key); err != nil {
		return nil, fmt.Errorf("subscription %q: %w", name, err)
	}
	if name == "" {
		name = key.CacheKey()
	}
	return &Scheduler{
		name:        name,
		key:         key,
		opts:        opts,
		pipe:        pipe,
		store:       store,
		interval:    interval,
		controlTick: 10 * time.Second,
		resolveTick: time.Minute,
	}, nil
}

// Start seeds the snapshot without a live fetch so consumers see data
// immediately, then launches both loops. It returns after seeding; the
// loops stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	seed := s.pipe.Seed(ctx, s.key)
	s.setSnapshot(seed)
	s.resolveNow(time.Now())
	log.Printf("scheduler: %s: seeded from %s tier", s.name, seed.Provenance.SourceKind)

	go s.acquisitionLoop(ctx)
	go s.resolutionLoop(ctx)
}

// ForceRefresh drops the cached snapshot and runs an acquisition cycle
// out of schedule. The held snapshot and current rate update before it
// returns.
func (s *Scheduler) ForceRefresh(ctx context.Context) *tariff.Snapshot {
	if err := s.pipe.ClearCache(ctx, s.key); err != nil {
		log.Printf("scheduler: %s: clear cache: %v", s.name, err)
	}
	snap := s.runCycle(ctx)
	s.resolveNow(time.Now())
	return snap
}

// acquisitionLoop is the slow cadence: a control ticker checks the
// interval setting and due time, and runs a cycle under an advisory
// lock when one is due.
func (s *Scheduler) acquisitionLoop(ctx context.Context) {
	setting := s.interval
	if val, err := s.store.GetSetting(ctx, refreshIntervalSetting); err == nil && val != "" {
		setting = val
	}

	ticker := time.NewTicker(s.controlTick)
	defer ticker.Stop()

	// Run the first live cycle immediately; seeding never fetched.
	nextRun := time.Now()
	log.Printf("scheduler: %s: acquisition loop starting, interval=%q", s.name, setting)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if val, err := s.store.GetSetting(ctx, refreshIntervalSetting); err == nil && val != "" && val != setting {
				log.Printf("scheduler: %s: interval updated from %q to %q", s.name, setting, val)
				setting = val
				nextRun = nextRunTime(setting, time.Now())
			}
			if time.Now().Before(nextRun) {
				continue
			}
			if s.skipAlreadyFetchedToday(setting) {
				nextRun = nextRunTime(setting, time.Now())
				continue
			}

			snap := s.runCycle(ctx)
			nextRun = nextRunAfter(snap, setting, time.Now())
		}
	}
}

// runCycle executes one acquisition under the advisory lock (when the
// store supports one) and records job bookkeeping.
func (s *Scheduler) runCycle(ctx context.Context) *tariff.Snapshot {
	started := time.Now()
	jobName := "acquire_" + s.key.CacheKey()

	if locker, ok := s.store.(storage.Locker); ok {
		lockKey := storage.LockKey(s.key.CacheKey())
		held, err := locker.AcquireAdvisoryLock(ctx, lockKey)
		if err != nil {
			log.Printf("scheduler: %s: acquire advisory lock failed: %v", s.name, err)
			metrics.UpdateJobMetrics(jobName, started, err)
			return s.Snapshot()
		}
		if !held {
			log.Printf("scheduler: %s: advisory lock held by another instance, skipping run", s.name)
			return s.Snapshot()
		}
		defer func() {
			if _, err := locker.ReleaseAdvisoryLock(ctx, lockKey); err != nil {
				log.Printf("scheduler: %s: release advisory lock failed: %v", s.name, err)
			}
		}()
	}

	snap := s.pipe.Acquire(ctx, s.key)
	s.setSnapshot(snap)

	degraded := snap.Provenance.UsingCache || snap.Provenance.UsingStaticFallback || !snap.HasRates()
	var runErr error
	if degraded {
		runErr = fmt.Errorf("serving %s data: %s", snap.Provenance.SourceKind, snap.Provenance.LastError)
	}
	metrics.UpdateJobMetrics(jobName, started, runErr)
	dur := time.Since(started)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := s.store.UpdateScheduledJob(ctx, jobName, started, dur, !degraded, errMsg); err != nil {
		log.Printf("scheduler: %s: update scheduled_jobs failed: %v", s.name, err)
	}

	if degraded {
		log.Printf("scheduler: %s: cycle degraded to %s tier (duration=%s)", s.name, snap.Provenance.SourceKind, dur)
	} else {
		log.Printf("scheduler: %s: cycle completed from %s source (duration=%s)", s.name, snap.Provenance.SourceKind, dur)
	}
	return snap
}

// skipAlreadyFetchedToday dedupes restarts on daily-or-slower cadences:
// if a live fetch already succeeded this calendar day, the next one can
// wait for tomorrow.
func (s *Scheduler) skipAlreadyFetchedToday(setting string) bool {
	if settingPeriod(setting) < 24*time.Hour {
		return false
	}
	s.mu.RLock()
	last := s.lastLive
	s.mu.RUnlock()
	if last.IsZero() {
		return false
	}
	now := time.Now()
	y1, m1, d1 := last.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// resolutionLoop is the fast cadence: re-resolve from the held snapshot
// and publish, so TOU period flips surface within a minute.
func (s *Scheduler) resolutionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.resolveTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.resolveNow(now)
		}
	}
}

func (s *Scheduler) resolveNow(now time.Time) {
	s.mu.Lock()
	resolved := tariff.Resolve(now, s.snap, s.opts)
	s.current = resolved
	subs := append([]chan tariff.ResolvedRate(nil), s.subscribers...)
	s.mu.Unlock()

	rate, _ := resolved.Rate.Float64()
	metrics.PublishRate(s.name, rate, resolved.Available)
	for _, ch := range subs {
		select {
		case ch <- resolved:
		default: // slow consumer, drop rather than stall the loop
		}
	}
}

func (s *Scheduler) setSnapshot(snap *tariff.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	if snap != nil && !snap.Provenance.UsingCache && !snap.Provenance.UsingStaticFallback && snap.HasRates() {
		s.lastLive = snap.Provenance.FetchedAt
	}
	s.mu.Unlock()
}

// Name returns the subscription name.
func (s *Scheduler) Name() string { return s.name }

// Key returns the tariff this scheduler tracks.
func (s *Scheduler) Key() tariff.AcquisitionKey { return s.key }

// CurrentRate returns the last published resolution.
func (s *Scheduler) CurrentRate() tariff.ResolvedRate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Snapshot returns a copy of the held snapshot.
func (s *Scheduler) Snapshot() *tariff.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Provenance reports how the held snapshot was obtained.
func (s *Scheduler) Provenance() tariff.Provenance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return tariff.Provenance{SourceKind: tariff.SourceNone}
	}
	return s.snap.Provenance
}

// CurrentPeriod resolves the TOU period at t against the held snapshot.
func (s *Scheduler) CurrentPeriod(t time.Time) tariff.Period {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tariff.CurrentPeriod(t, s.snap, s.opts)
}

// CurrentSeason resolves the season at t against the held snapshot.
func (s *Scheduler) CurrentSeason(t time.Time) tariff.Season {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tariff.CurrentSeason(t, s.snap, s.opts)
}

// IsHoliday reports whether t is an observed holiday for this
// subscription's calendar.
func (s *Scheduler) IsHoliday(t time.Time) bool {
	return tariff.IsHoliday(t, s.opts)
}

// AllCurrentRates itemizes every charge applying at t.
func (s *Scheduler) AllCurrentRates(t time.Time) tariff.Breakdown {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tariff.AllRates(t, s.snap, s.opts)
}

// Subscribe returns a channel receiving each published resolution.
// Slow receivers miss ticks instead of blocking the loop.
func (s *Scheduler) Subscribe() <-chan tariff.ResolvedRate {
	ch := make(chan tariff.ResolvedRate, 1)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

// nextRunTime computes the next due time from an interval setting that
// is either integer seconds or a cron expression.
func nextRunTime(setting string, from time.Time) time.Time {
	if v, err := strconv.Atoi(setting); err == nil && v > 0 {
		return from.Add(time.Duration(v) * time.Second)
	}
	if sched, err := cron.ParseStandard(setting); err == nil {
		return sched.Next(from)
	}
	return from.Add(24 * time.Hour)
}

// nextRunAfter schedules the follow-up to a completed cycle. Cache and
// static tiers still count as successful for cadence purposes; only a
// cycle that produced no rates at all retries early.
func nextRunAfter(snap *tariff.Snapshot, setting string, now time.Time) time.Time {
	if snap == nil || !snap.HasRates() {
		return now.Add(shortenedInterval(setting))
	}
	return nextRunTime(setting, now)
}

// settingPeriod reports the cadence an interval setting encodes:
// integer seconds directly, cron expressions by the gap between two
// consecutive firings, anything unparseable as daily.
func settingPeriod(setting string) time.Duration {
	if v, err := strconv.Atoi(setting); err == nil && v > 0 {
		return time.Duration(v) * time.Second
	}
	if sched, err := cron.ParseStandard(setting); err == nil {
		now := time.Now()
		first := sched.Next(now)
		return sched.Next(first).Sub(first)
	}
	return 24 * time.Hour
}

// shortenedInterval is the retry cadence after a cycle with no rates:
// a quarter of the regular interval, at least a minute.
func shortenedInterval(setting string) time.Duration {
	short := settingPeriod(setting) / 4
	if short < time.Minute {
		short = time.Minute
	}
	return short
}
