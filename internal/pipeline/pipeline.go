package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/bher20/tariffd/internal/alerting"
	"github.com/bher20/tariffd/internal/metrics"
	"github.com/bher20/tariffd/internal/storage"
	"github.com/bher20/tariffd/internal/tariff"
	"github.com/bher20/tariffd/pkg/providers"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
)

// Config tunes the acquisition pipeline.
type Config struct {
	// MaxAttempts bounds the live fetch attempts per cycle (default 3).
	MaxAttempts int
	// BackoffBase is the first retry delay; it doubles per attempt
	// (default 5s).
	BackoffBase time.Duration
	// HTTPTimeout bounds each source request (default 30s).
	HTTPTimeout time.Duration
	// CacheDir, when set, is offered to extractors as a place to keep
	// local copies of downloaded source material.
	CacheDir string
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 5 * time.Second
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
}

// Pipeline runs acquisition cycles: fetch with retry, validate, cache,
// and on failure walk the fallback chain live -> cache -> static ->
// empty. Acquire never returns an error or nil; degraded results are
// flagged in provenance instead.
type Pipeline struct {
	registry *providers.Registry
	store    storage.Store
	alerter  *alerting.Alerter
	cfg      Config
	client   *http.Client
	group    singleflight.Group

	mu       sync.Mutex
	failures map[string]int
}

// New wires a pipeline. The alerter may be nil.
func New(registry *providers.Registry, store storage.Store, alerter *alerting.Alerter, cfg Config) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		registry: registry,
		store:    store,
		alerter:  alerter,
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.HTTPTimeout},
		failures: make(map[string]int),
	}
}

// Acquire runs one acquisition cycle for the key. Concurrent calls for
// the same key coalesce into a single cycle and share its result.
func (p *Pipeline) Acquire(ctx context.Context, key tariff.AcquisitionKey) *tariff.Snapshot {
	v, _, _ := p.group.Do(key.CacheKey(), func() (interface{}, error) {
		return p.acquire(ctx, key), nil
	})
	return v.(*tariff.Snapshot)
}

// ClearCache drops the cached snapshot for a key. Forced refreshes
// call this first so a stale snapshot cannot satisfy the cache tier.
func (p *Pipeline) ClearCache(ctx context.Context, key tariff.AcquisitionKey) error {
	return p.store.ClearSnapshot(ctx, key.CacheKey())
}

// Seed builds a starting snapshot without touching the live source:
// cache if present, else the provider's static table, else empty.
// Schedulers use it so consumers see data before the first cycle.
func (p *Pipeline) Seed(ctx context.Context, key tariff.AcquisitionKey) *tariff.Snapshot {
	cycleID := uuid.New().String()
	if snap := p.fromCache(ctx, key, cycleID, 0, "startup"); snap != nil {
		return snap
	}
	if prov, ok := p.registry.Get(key.Provider); ok {
		if snap := p.fromStatic(key, prov, cycleID, 0, "startup"); snap != nil {
			return snap
		}
	}
	return p.empty(key, cycleID, 0, "startup: no cached or static data")
}

func (p *Pipeline) acquire(ctx context.Context, key tariff.AcquisitionKey) *tariff.Snapshot {
	started := time.Now()
	defer func() {
		metrics.AcquisitionDurationSeconds.WithLabelValues(key.Provider).
			Observe(time.Since(started).Seconds())
	}()

	cycleID := uuid.New().String()
	prov, ok := p.registry.Get(key.Provider)
	if !ok {
		// Wiring validates subscriptions, so this is a catalog change
		// at runtime; degrade rather than crash the cycle.
		log.Printf("pipeline: %s: provider missing from catalog", key)
		return p.fallback(ctx, key, nil, cycleID, 0, fmt.Errorf("provider %q not in catalog", key.Provider))
	}

	extractor := prov.Extractor()
	params := providers.FetchParams{
		Region:      key.Region,
		ServiceType: key.ServiceType,
		Schedule:    key.Schedule,
		Source:      prov.SourceConfig(key.Region, key.ServiceType, key.Schedule),
		HTTPClient:  p.client,
		CacheDir:    p.cfg.CacheDir,
	}

	var snap *tariff.Snapshot
	attempts := 0
	backoff := retry.WithMaxRetries(uint64(p.cfg.MaxAttempts-1), retry.NewExponential(p.cfg.BackoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		metrics.AcquisitionAttemptsTotal.WithLabelValues(key.Provider, extractor.SourceKind()).Inc()
		fetched, ferr := extractor.FetchTariffData(ctx, params)
		if ferr != nil {
			kind := KindTransport
			if errors.Is(ferr, providers.ErrNoData) {
				kind = KindNoData
			}
			return retry.RetryableError(&AcquisitionError{Kind: kind, Err: ferr})
		}
		if valid, reason := extractor.Validate(fetched); !valid {
			return retry.RetryableError(&AcquisitionError{Kind: KindValidation, Err: errors.New(reason)})
		}
		fetched.Key = key
		if verr := tariff.ValidateSnapshot(fetched); verr != nil {
			return retry.RetryableError(&AcquisitionError{Kind: KindValidation, Err: verr})
		}
		snap = fetched
		return nil
	})

	if err == nil {
		snap.Provenance = tariff.Provenance{
			CycleID:    cycleID,
			SourceKind: extractor.SourceKind(),
			FetchedAt:  time.Now().UTC(),
			Attempts:   attempts,
		}
		p.persist(ctx, key, snap)
		p.markSuccess(ctx, key)
		return snap
	}

	var aerr *AcquisitionError
	if !errors.As(err, &aerr) {
		aerr = &AcquisitionError{Kind: KindTransport, Err: err}
	}
	aerr.Attempts = attempts
	metrics.AcquisitionFailuresTotal.WithLabelValues(key.Provider, string(aerr.Kind)).Inc()
	log.Printf("pipeline: %s: live fetch failed: %v", key, aerr)
	return p.fallback(ctx, key, prov, cycleID, attempts, aerr)
}

// fallback walks the degraded tiers in order and reports the landing
// tier through metrics, alerting and provenance.
func (p *Pipeline) fallback(ctx context.Context, key tariff.AcquisitionKey, prov providers.Provider, cycleID string, attempts int, cause error) *tariff.Snapshot {
	lastErr := cause.Error()

	if snap := p.fromCache(ctx, key, cycleID, attempts, lastErr); snap != nil {
		metrics.AcquisitionFallbackTotal.WithLabelValues(key.Provider, "cache").Inc()
		p.markFailure(ctx, key, "cache", attempts, lastErr)
		return snap
	}
	if prov != nil {
		if snap := p.fromStatic(key, prov, cycleID, attempts, lastErr); snap != nil {
			metrics.AcquisitionFallbackTotal.WithLabelValues(key.Provider, "static").Inc()
			p.markFailure(ctx, key, "static", attempts, lastErr)
			return snap
		}
	}
	metrics.AcquisitionFallbackTotal.WithLabelValues(key.Provider, "empty").Inc()
	p.markFailure(ctx, key, "empty", attempts, lastErr)
	return p.empty(key, cycleID, attempts, lastErr)
}

func (p *Pipeline) fromCache(ctx context.Context, key tariff.AcquisitionKey, cycleID string, attempts int, lastErr string) *tariff.Snapshot {
	cached, err := p.store.GetSnapshot(ctx, key.CacheKey())
	if err != nil {
		log.Printf("pipeline: %s: cache read failed: %v", key, err)
		return nil
	}
	if cached == nil {
		return nil
	}
	var snap tariff.Snapshot
	if err := json.Unmarshal(cached.Payload, &snap); err != nil {
		log.Printf("pipeline: %s: cached payload corrupt, skipping cache tier: %v", key, err)
		return nil
	}
	snap.Key = key
	snap.Provenance = tariff.Provenance{
		CycleID:    cycleID,
		SourceKind: tariff.SourceCache,
		FetchedAt:  cached.FetchedAt,
		Attempts:   attempts,
		UsingCache: true,
		LastError:  lastErr,
	}
	return &snap
}

func (p *Pipeline) fromStatic(key tariff.AcquisitionKey, prov providers.Provider, cycleID string, attempts int, lastErr string) *tariff.Snapshot {
	snap := prov.Fallback(key.Region, key.ServiceType)
	if snap == nil {
		return nil
	}
	snap.Key = key
	snap.Provenance = tariff.Provenance{
		CycleID:             cycleID,
		SourceKind:          tariff.SourceStatic,
		FetchedAt:           time.Now().UTC(),
		Attempts:            attempts,
		UsingStaticFallback: true,
		LastError:           lastErr,
	}
	return snap
}

func (p *Pipeline) empty(key tariff.AcquisitionKey, cycleID string, attempts int, lastErr string) *tariff.Snapshot {
	return &tariff.Snapshot{
		Key: key,
		Provenance: tariff.Provenance{
			CycleID:    cycleID,
			SourceKind: tariff.SourceNone,
			FetchedAt:  time.Now().UTC(),
			Attempts:   attempts,
			LastError:  lastErr,
		},
	}
}

// persist is best effort: a broken cache store degrades future
// fallbacks but must not fail a successful cycle.
func (p *Pipeline) persist(ctx context.Context, key tariff.AcquisitionKey, snap *tariff.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("pipeline: %s: marshal snapshot: %v", key, err)
		return
	}
	err = p.store.PutSnapshot(ctx, storage.CachedSnapshot{
		Key:       key.CacheKey(),
		Payload:   payload,
		FetchedAt: snap.Provenance.FetchedAt,
	})
	if err != nil {
		log.Printf("pipeline: %s: cache write failed: %v", key, err)
	}
}

func (p *Pipeline) markSuccess(ctx context.Context, key tariff.AcquisitionKey) {
	p.mu.Lock()
	recovered := p.failures[key.CacheKey()] > 0
	delete(p.failures, key.CacheKey())
	p.mu.Unlock()
	if recovered && p.alerter != nil {
		if err := p.alerter.SendRecovery(ctx, key.CacheKey(), key.Provider); err != nil {
			log.Printf("pipeline: %s: recovery notice failed: %v", key, err)
		}
	}
}

func (p *Pipeline) markFailure(ctx context.Context, key tariff.AcquisitionKey, tier string, attempts int, lastErr string) {
	p.mu.Lock()
	p.failures[key.CacheKey()]++
	count := p.failures[key.CacheKey()]
	p.mu.Unlock()
	if p.alerter == nil {
		return
	}
	alert := alerting.AcquisitionAlert{
		Subscription:        key.CacheKey(),
		Provider:            key.Provider,
		Tier:                tier,
		Error:               lastErr,
		Attempts:            attempts,
		ConsecutiveFailures: count,
		Timestamp:           time.Now(),
	}
	if err := p.alerter.SendAcquisitionAlert(ctx, alert); err != nil {
		log.Printf("pipeline: %s: alert failed: %v", key, err)
	}
}

// ConsecutiveFailures reports how many cycles in a row have landed on
// a fallback tier for the key.
func (p *Pipeline) ConsecutiveFailures(key tariff.AcquisitionKey) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures[key.CacheKey()]
}
