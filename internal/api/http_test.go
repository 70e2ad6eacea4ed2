package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bher20/tariffd/internal/pipeline"
	"github.com/bher20/tariffd/internal/scheduler"
	"github.com/bher20/tariffd/internal/storage"
	"github.com/bher20/tariffd/internal/tariff"
	"github.com/bher20/tariffd/pkg/providers"
	"github.com/shopspring/decimal"
)

type apiExtractor struct {
	fetch func() (*tariff.Snapshot, error)
}

func (e *apiExtractor) FetchTariffData(ctx context.Context, params providers.FetchParams) (*tariff.Snapshot, error) {
	return e.fetch()
}

func (e *apiExtractor) Validate(snap *tariff.Snapshot) (bool, string) {
	if !snap.HasRates() {
		return false, "no rates"
	}
	return true, ""
}

func (e *apiExtractor) SourceKind() string { return tariff.SourceAPI }

type apiProvider struct {
	extractor *apiExtractor
}

func (p *apiProvider) ID() string        { return "acme" }
func (p *apiProvider) Name() string      { return "Acme Power" }
func (p *apiProvider) ShortName() string { return "ACME" }
func (p *apiProvider) Regions() map[tariff.ServiceType][]string {
	return map[tariff.ServiceType][]string{tariff.ServiceElectric: {"CO"}}
}
func (p *apiProvider) Schedules() map[tariff.ServiceType][]string {
	return map[tariff.ServiceType][]string{tariff.ServiceElectric: {"residential"}}
}
func (p *apiProvider) Capabilities() []providers.Capability {
	return []providers.Capability{providers.CapAPIAccess}
}
func (p *apiProvider) Extractor() providers.SourceExtractor { return p.extractor }
func (p *apiProvider) SourceConfig(region string, st tariff.ServiceType, schedule string) map[string]string {
	return map[string]string{"type": "api"}
}
func (p *apiProvider) Fallback(region string, st tariff.ServiceType) *tariff.Snapshot { return nil }
func (p *apiProvider) UpdateInterval() time.Duration                                  { return time.Hour }

func newTestServer(t *testing.T, token string) (*Server, *httptest.Server) {
	t.Helper()
	ext := &apiExtractor{fetch: func() (*tariff.Snapshot, error) {
		return &tariff.Snapshot{
			FlatRates:    map[string]decimal.Decimal{tariff.RateStandard: decimal.RequireFromString("0.1234")},
			FixedCharges: map[string]decimal.Decimal{"monthly_service": decimal.RequireFromString("10")},
		}, nil
	}}
	reg := providers.NewRegistry(&apiProvider{extractor: ext})
	store := storage.NewMemory()
	pipe := pipeline.New(reg, store, nil, pipeline.Config{BackoffBase: time.Millisecond})
	key := tariff.AcquisitionKey{
		Provider:    "acme",
		Region:      "CO",
		ServiceType: tariff.ServiceElectric,
		Schedule:    "residential",
	}
	sched, err := scheduler.New("home", key, tariff.Options{}, reg, pipe, store, "86400")
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	sched.ForceRefresh(context.Background())

	s := NewServer([]*scheduler.Scheduler{sched}, reg, store, token)
	srv := httptest.NewServer(s.NewMux())
	t.Cleanup(srv.Close)
	return s, srv
}

func TestCurrentRateEndpoint(t *testing.T) {
	_, srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/rates/home/current")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var rate tariff.ResolvedRate
	if err := json.NewDecoder(resp.Body).Decode(&rate); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rate.Available {
		t.Errorf("expected an available rate")
	}
	if rate.Rate.String() != "0.1234" {
		t.Errorf("unexpected rate: %s", rate.Rate)
	}
}

func TestCurrentRateEndpointTrailingSlash(t *testing.T) {
	_, srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/rates/home/current/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var rate tariff.ResolvedRate
	if err := json.NewDecoder(resp.Body).Decode(&rate); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rate.Available {
		t.Errorf("expected an available rate")
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	_, srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/rates/home/snapshot")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var snap tariff.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !snap.HasRates() {
		t.Errorf("expected rates in snapshot")
	}
	if snap.Provenance.SourceKind != tariff.SourceAPI {
		t.Errorf("unexpected provenance: %+v", snap.Provenance)
	}
}

func TestUnknownSubscriptionIs404(t *testing.T) {
	_, srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/rates/nope/current")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestProvidersEndpoint(t *testing.T) {
	_, srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/providers")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Providers []ProviderDTO `json:"providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Providers) != 1 || body.Providers[0].ID != "acme" {
		t.Errorf("unexpected catalog: %+v", body.Providers)
	}
}

func TestRefreshRequiresToken(t *testing.T) {
	_, srv := newTestServer(t, "sekret")

	// No token.
	resp, err := http.Post(srv.URL+"/refresh/home", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	// Correct token.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/refresh/home", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}

	var rr RefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.Status != "ok" {
		t.Errorf("unexpected refresh status: %+v", rr)
	}
}

func TestRefreshDisabledWithoutConfiguredToken(t *testing.T) {
	_, srv := newTestServer(t, "")

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/refresh/home", nil)
	req.Header.Set("Authorization", "Bearer anything")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 when disabled, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	_, srv := newTestServer(t, "")

	for _, path := range []string{"/healthz", "/livez", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestListSubscriptions(t *testing.T) {
	_, srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/rates")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Subscriptions []struct {
			Name     string `json:"name"`
			Provider string `json:"provider"`
		} `json:"subscriptions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Subscriptions) != 1 || body.Subscriptions[0].Name != "home" {
		t.Errorf("unexpected subscriptions: %+v", body.Subscriptions)
	}
}
