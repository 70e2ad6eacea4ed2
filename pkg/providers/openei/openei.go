// Package openei implements a provider backed by the OpenEI utility
// rate database API. It is the JSON counterpart of the PDF providers:
// the endpoint returns structured rate tables, so extraction is a
// decode rather than a parse.
package openei

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bher20/tariffd/internal/tariff"
	"github.com/bher20/tariffd/pkg/providers"
	"github.com/shopspring/decimal"
)

// ID is the catalog identifier for OpenEI.
const ID = "openei"

const defaultEndpoint = "https://api.openei.org/utility_rates"

type Provider struct {
	extractor *APIExtractor
}

// New returns the OpenEI provider. The API key is passed through
// source config so the extractor stays stateless.
func New(apiKey string) *Provider {
	return &Provider{extractor: &APIExtractor{apiKey: apiKey}}
}

func (p *Provider) ID() string        { return ID }
func (p *Provider) Name() string      { return "OpenEI Utility Rate Database" }
func (p *Provider) ShortName() string { return "OpenEI" }

func (p *Provider) Regions() map[tariff.ServiceType][]string {
	return map[tariff.ServiceType][]string{
		tariff.ServiceElectric: {"CA", "CO", "MN", "NY", "TX", "WA"},
	}
}

func (p *Provider) Schedules() map[tariff.ServiceType][]string {
	return map[tariff.ServiceType][]string{
		tariff.ServiceElectric: {"residential", "residential_tou", "commercial"},
	}
}

func (p *Provider) Capabilities() []providers.Capability {
	return []providers.Capability{
		providers.CapAPIAccess,
		providers.CapTOURates,
		providers.CapSeasonalRates,
	}
}

func (p *Provider) Extractor() providers.SourceExtractor { return p.extractor }

func (p *Provider) SourceConfig(region string, st tariff.ServiceType, schedule string) map[string]string {
	q := url.Values{}
	q.Set("version", "latest")
	q.Set("format", "json")
	q.Set("sector", "Residential")
	q.Set("address", region)
	q.Set("schedule", schedule)
	return map[string]string{
		"url":  defaultEndpoint + "?" + q.Encode(),
		"type": "api",
	}
}

func (p *Provider) Fallback(region string, st tariff.ServiceType) *tariff.Snapshot {
	if st != tariff.ServiceElectric {
		return nil
	}
	// National average placeholder; OpenEI has no per-state filing to
	// mirror, so the fallback is deliberately coarse.
	return &tariff.Snapshot{
		FlatRates:    map[string]decimal.Decimal{tariff.RateStandard: decimal.RequireFromString("0.12")},
		FixedCharges: map[string]decimal.Decimal{"monthly_service": decimal.RequireFromString("10.00")},
	}
}

// The API serves updated filings hourly at best.
func (p *Provider) UpdateInterval() time.Duration { return time.Hour }

// APIExtractor decodes rate tables from the OpenEI JSON API.
type APIExtractor struct {
	apiKey string
}

func (e *APIExtractor) SourceKind() string { return tariff.SourceAPI }

// apiResponse mirrors the subset of the rate payload this engine
// consumes. decimal accepts JSON numbers and strings alike.
type apiResponse struct {
	Rates             map[string]decimal.Decimal            `json:"rates"`
	TOURates          map[string]map[string]decimal.Decimal `json:"tou_rates"`
	FixedCharges      map[string]decimal.Decimal            `json:"fixed_charges"`
	AdditionalCharges map[string]decimal.Decimal            `json:"additional_charges"`
	TOUSchedule       *tariff.TOUSchedule                   `json:"tou_schedule"`
	SeasonMonths      map[string][]int                      `json:"season_months"`
	EffectiveDate     string                                `json:"effective_date"`
}

func (e *APIExtractor) FetchTariffData(ctx context.Context, params providers.FetchParams) (*tariff.Snapshot, error) {
	endpoint := params.Source["url"]
	if endpoint == "" {
		return nil, fmt.Errorf("openei: no endpoint for %s %s", params.Region, params.ServiceType)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("openei: build request: %w", err)
	}
	if e.apiKey != "" {
		req.Header.Set("X-Api-Key", e.apiKey)
	}
	client := params.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openei: fetch rates: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openei: fetch rates: HTTP %d", resp.StatusCode)
	}
	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("openei: decode rates: %w", err)
	}
	snap := payload.toSnapshot()
	if !snap.HasRates() {
		return nil, fmt.Errorf("openei: schedule %s: %w", params.Schedule, providers.ErrNoData)
	}
	return snap, nil
}

func (r *apiResponse) toSnapshot() *tariff.Snapshot {
	snap := &tariff.Snapshot{
		FlatRates:         r.Rates,
		FixedCharges:      r.FixedCharges,
		AdditionalCharges: r.AdditionalCharges,
		TOUSchedule:       r.TOUSchedule,
		EffectiveDate:     r.EffectiveDate,
	}
	if len(r.TOURates) > 0 {
		snap.TOURates = make(map[tariff.Season]map[tariff.Period]decimal.Decimal, len(r.TOURates))
		for season, table := range r.TOURates {
			t := make(map[tariff.Period]decimal.Decimal, len(table))
			for period, rate := range table {
				t[tariff.Period(period)] = rate
			}
			snap.TOURates[tariff.Season(season)] = t
		}
	}
	if len(r.SeasonMonths) > 0 {
		snap.SeasonMonths = make(map[tariff.Season][]int, len(r.SeasonMonths))
		for season, months := range r.SeasonMonths {
			snap.SeasonMonths[tariff.Season(season)] = months
		}
	}
	return snap
}

func (e *APIExtractor) Validate(snap *tariff.Snapshot) (bool, string) {
	if !snap.HasRates() {
		return false, "no rates in API response"
	}
	return true, ""
}
