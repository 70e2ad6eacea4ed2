package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bher20/tariffd/internal/storage"
	"github.com/bher20/tariffd/internal/tariff"
	"github.com/bher20/tariffd/pkg/providers"
	"github.com/shopspring/decimal"
)

func goodSnapshot() *tariff.Snapshot {
	return &tariff.Snapshot{
		FlatRates:    map[string]decimal.Decimal{tariff.RateStandard: decimal.RequireFromString("0.1101")},
		FixedCharges: map[string]decimal.Decimal{"monthly_service": decimal.RequireFromString("10")},
	}
}

type fakeExtractor struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	// fetch is invoked with the 1-based call number.
	fetch    func(call int) (*tariff.Snapshot, error)
	validate func(snap *tariff.Snapshot) (bool, string)
}

func (f *fakeExtractor) FetchTariffData(ctx context.Context, params providers.FetchParams) (*tariff.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.fetch(call)
}

func (f *fakeExtractor) Validate(snap *tariff.Snapshot) (bool, string) {
	if f.validate != nil {
		return f.validate(snap)
	}
	if !snap.HasRates() {
		return false, "no rates"
	}
	return true, ""
}

func (f *fakeExtractor) SourceKind() string { return tariff.SourceAPI }

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeProvider struct {
	extractor *fakeExtractor
	fallback  *tariff.Snapshot
}

func (p *fakeProvider) ID() string        { return "fake" }
func (p *fakeProvider) Name() string      { return "Fake Utility" }
func (p *fakeProvider) ShortName() string { return "FAKE" }
func (p *fakeProvider) Regions() map[tariff.ServiceType][]string {
	return map[tariff.ServiceType][]string{tariff.ServiceElectric: {"CO"}}
}
func (p *fakeProvider) Schedules() map[tariff.ServiceType][]string {
	return map[tariff.ServiceType][]string{tariff.ServiceElectric: {"residential"}}
}
func (p *fakeProvider) Capabilities() []providers.Capability { return nil }
func (p *fakeProvider) Extractor() providers.SourceExtractor { return p.extractor }
func (p *fakeProvider) SourceConfig(region string, st tariff.ServiceType, schedule string) map[string]string {
	return map[string]string{"url": "https://example.com", "type": "api"}
}
func (p *fakeProvider) Fallback(region string, st tariff.ServiceType) *tariff.Snapshot {
	if p.fallback == nil {
		return nil
	}
	return p.fallback.Clone()
}
func (p *fakeProvider) UpdateInterval() time.Duration { return time.Hour }

var testKey = tariff.AcquisitionKey{
	Provider:    "fake",
	Region:      "CO",
	ServiceType: tariff.ServiceElectric,
	Schedule:    "residential",
}

func newTestPipeline(p providers.Provider, store storage.Store) *Pipeline {
	reg := providers.NewRegistry(p)
	return New(reg, store, nil, Config{BackoffBase: time.Millisecond})
}

func TestAcquire_LiveSuccess(t *testing.T) {
	ext := &fakeExtractor{fetch: func(int) (*tariff.Snapshot, error) { return goodSnapshot(), nil }}
	store := storage.NewMemory()
	p := newTestPipeline(&fakeProvider{extractor: ext}, store)

	snap := p.Acquire(context.Background(), testKey)
	if snap == nil {
		t.Fatalf("expected snapshot")
	}
	if !snap.HasRates() {
		t.Fatalf("expected live rates")
	}
	pr := snap.Provenance
	if pr.SourceKind != tariff.SourceAPI || pr.UsingCache || pr.UsingStaticFallback {
		t.Errorf("unexpected provenance: %+v", pr)
	}
	if pr.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", pr.Attempts)
	}
	if pr.CycleID == "" {
		t.Errorf("expected a cycle id")
	}

	cached, err := store.GetSnapshot(context.Background(), testKey.CacheKey())
	if err != nil || cached == nil {
		t.Fatalf("expected cache write, got %v, %v", cached, err)
	}
}

func TestAcquire_RetryBudgetIsThree(t *testing.T) {
	ext := &fakeExtractor{fetch: func(int) (*tariff.Snapshot, error) { return nil, errors.New("connection refused") }}
	p := newTestPipeline(&fakeProvider{extractor: ext}, storage.NewMemory())

	snap := p.Acquire(context.Background(), testKey)
	if got := ext.callCount(); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
	if snap.Provenance.Attempts != 3 {
		t.Errorf("expected 3 attempts in provenance, got %d", snap.Provenance.Attempts)
	}
}

func TestAcquire_BackoffIncreases(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	ext := &fakeExtractor{fetch: func(int) (*tariff.Snapshot, error) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		return nil, errors.New("down")
	}}
	reg := providers.NewRegistry(&fakeProvider{extractor: ext})
	p := New(reg, storage.NewMemory(), nil, Config{BackoffBase: 20 * time.Millisecond})

	p.Acquire(context.Background(), testKey)
	if len(stamps) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(stamps))
	}
	gap1 := stamps[1].Sub(stamps[0])
	gap2 := stamps[2].Sub(stamps[1])
	if gap1 < 20*time.Millisecond {
		t.Errorf("first backoff too short: %v", gap1)
	}
	if gap2 < 40*time.Millisecond {
		t.Errorf("second backoff did not double: %v (first %v)", gap2, gap1)
	}
}

func TestAcquire_FallsBackToCache(t *testing.T) {
	store := storage.NewMemory()
	okExt := &fakeExtractor{fetch: func(int) (*tariff.Snapshot, error) { return goodSnapshot(), nil }}
	p := newTestPipeline(&fakeProvider{extractor: okExt}, store)
	p.Acquire(context.Background(), testKey) // populate cache

	badExt := &fakeExtractor{fetch: func(int) (*tariff.Snapshot, error) { return nil, errors.New("HTTP 503") }}
	p = newTestPipeline(&fakeProvider{extractor: badExt, fallback: goodSnapshot()}, store)
	snap := p.Acquire(context.Background(), testKey)

	if !snap.Provenance.UsingCache {
		t.Fatalf("expected cache tier, got %+v", snap.Provenance)
	}
	if snap.Provenance.UsingStaticFallback {
		t.Errorf("cache tier must win over static")
	}
	if !snap.HasRates() {
		t.Errorf("cached rates lost")
	}
	if !strings.Contains(snap.Provenance.LastError, "HTTP 503") {
		t.Errorf("expected terminal error in provenance, got %q", snap.Provenance.LastError)
	}
}

func TestAcquire_FallsBackToStatic(t *testing.T) {
	badExt := &fakeExtractor{fetch: func(int) (*tariff.Snapshot, error) { return nil, errors.New("down") }}
	p := newTestPipeline(&fakeProvider{extractor: badExt, fallback: goodSnapshot()}, storage.NewMemory())

	snap := p.Acquire(context.Background(), testKey)
	if !snap.Provenance.UsingStaticFallback {
		t.Fatalf("expected static tier, got %+v", snap.Provenance)
	}
	if snap.Provenance.SourceKind != tariff.SourceStatic {
		t.Errorf("unexpected source kind: %s", snap.Provenance.SourceKind)
	}
	if !snap.HasRates() {
		t.Errorf("expected static rates")
	}
}

func TestAcquire_EmptyTierNeverNil(t *testing.T) {
	badExt := &fakeExtractor{fetch: func(int) (*tariff.Snapshot, error) { return nil, errors.New("down") }}
	p := newTestPipeline(&fakeProvider{extractor: badExt}, storage.NewMemory())

	snap := p.Acquire(context.Background(), testKey)
	if snap == nil {
		t.Fatalf("Acquire must never return nil")
	}
	if snap.HasRates() {
		t.Errorf("empty tier should carry no rates")
	}
	if snap.Provenance.SourceKind != tariff.SourceNone {
		t.Errorf("unexpected source kind: %s", snap.Provenance.SourceKind)
	}
	if snap.Provenance.LastError == "" {
		t.Errorf("expected terminal error in provenance")
	}
}

func TestAcquire_ValidationFailureIsRetriedThenDegrades(t *testing.T) {
	ext := &fakeExtractor{
		fetch:    func(int) (*tariff.Snapshot, error) { return goodSnapshot(), nil },
		validate: func(*tariff.Snapshot) (bool, string) { return false, "missing fixed charges" },
	}
	p := newTestPipeline(&fakeProvider{extractor: ext}, storage.NewMemory())

	snap := p.Acquire(context.Background(), testKey)
	if got := ext.callCount(); got != 3 {
		t.Errorf("validation failures should consume the retry budget, got %d attempts", got)
	}
	if !strings.Contains(snap.Provenance.LastError, "missing fixed charges") {
		t.Errorf("expected validation reason in provenance, got %q", snap.Provenance.LastError)
	}
}

func TestAcquire_NegativeRateRejected(t *testing.T) {
	ext := &fakeExtractor{fetch: func(int) (*tariff.Snapshot, error) {
		snap := goodSnapshot()
		snap.FlatRates[tariff.RateStandard] = decimal.RequireFromString("-1")
		return snap, nil
	}}
	p := newTestPipeline(&fakeProvider{extractor: ext}, storage.NewMemory())

	snap := p.Acquire(context.Background(), testKey)
	if snap.HasRates() {
		t.Fatalf("invalid snapshot must not be served")
	}
	if !strings.Contains(snap.Provenance.LastError, "negative") {
		t.Errorf("expected negative-rate rejection, got %q", snap.Provenance.LastError)
	}
}

func TestAcquire_SingleFlight(t *testing.T) {
	ext := &fakeExtractor{
		delay: 50 * time.Millisecond,
		fetch: func(int) (*tariff.Snapshot, error) { return goodSnapshot(), nil },
	}
	p := newTestPipeline(&fakeProvider{extractor: ext}, storage.NewMemory())

	var wg sync.WaitGroup
	results := make([]*tariff.Snapshot, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Acquire(context.Background(), testKey)
		}(i)
	}
	wg.Wait()

	if got := ext.callCount(); got != 1 {
		t.Errorf("expected concurrent acquires to coalesce into 1 fetch, got %d", got)
	}
	for i := 1; i < 4; i++ {
		if results[i].Provenance.CycleID != results[0].Provenance.CycleID {
			t.Errorf("expected all callers to share one cycle")
		}
	}
}

func TestSeed(t *testing.T) {
	// No cache, no static: empty.
	badProv := &fakeProvider{extractor: &fakeExtractor{fetch: func(int) (*tariff.Snapshot, error) { return nil, errors.New("x") }}}
	p := newTestPipeline(badProv, storage.NewMemory())
	snap := p.Seed(context.Background(), testKey)
	if snap.HasRates() {
		t.Errorf("expected empty seed")
	}

	// Static only.
	p = newTestPipeline(&fakeProvider{extractor: badProv.extractor, fallback: goodSnapshot()}, storage.NewMemory())
	snap = p.Seed(context.Background(), testKey)
	if !snap.Provenance.UsingStaticFallback || !snap.HasRates() {
		t.Errorf("expected static seed, got %+v", snap.Provenance)
	}

	// Cache wins over static.
	store := storage.NewMemory()
	okExt := &fakeExtractor{fetch: func(int) (*tariff.Snapshot, error) { return goodSnapshot(), nil }}
	warm := newTestPipeline(&fakeProvider{extractor: okExt}, store)
	warm.Acquire(context.Background(), testKey)
	p = newTestPipeline(&fakeProvider{extractor: badProv.extractor, fallback: goodSnapshot()}, store)
	snap = p.Seed(context.Background(), testKey)
	if !snap.Provenance.UsingCache {
		t.Errorf("expected cached seed, got %+v", snap.Provenance)
	}
}

func TestClearCacheForcesPastCacheTier(t *testing.T) {
	store := storage.NewMemory()
	okExt := &fakeExtractor{fetch: func(int) (*tariff.Snapshot, error) { return goodSnapshot(), nil }}
	warm := newTestPipeline(&fakeProvider{extractor: okExt}, store)
	warm.Acquire(context.Background(), testKey)

	badExt := &fakeExtractor{fetch: func(int) (*tariff.Snapshot, error) { return nil, errors.New("down") }}
	p := newTestPipeline(&fakeProvider{extractor: badExt, fallback: goodSnapshot()}, store)
	if err := p.ClearCache(context.Background(), testKey); err != nil {
		t.Fatalf("clear: %v", err)
	}
	snap := p.Acquire(context.Background(), testKey)
	if snap.Provenance.UsingCache {
		t.Errorf("cache tier should be empty after clear")
	}
	if !snap.Provenance.UsingStaticFallback {
		t.Errorf("expected static tier after clear, got %+v", snap.Provenance)
	}
}

func TestConsecutiveFailuresTracking(t *testing.T) {
	calls := 0
	ext := &fakeExtractor{fetch: func(int) (*tariff.Snapshot, error) {
		calls++
		if calls > 6 { // two full failed cycles of 3 attempts
			return goodSnapshot(), nil
		}
		return nil, errors.New("down")
	}}
	p := newTestPipeline(&fakeProvider{extractor: ext, fallback: goodSnapshot()}, storage.NewMemory())

	p.Acquire(context.Background(), testKey)
	p.Acquire(context.Background(), testKey)
	if got := p.ConsecutiveFailures(testKey); got != 2 {
		t.Errorf("expected 2 consecutive failures, got %d", got)
	}
	p.Acquire(context.Background(), testKey)
	if got := p.ConsecutiveFailures(testKey); got != 0 {
		t.Errorf("expected reset after live success, got %d", got)
	}
}
