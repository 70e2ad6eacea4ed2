package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bher20/tariffd/internal/tariff"
)

// Capability is an advertised provider feature.
type Capability string

const (
	CapPDFParsing    Capability = "pdf_parsing"
	CapAPIAccess     Capability = "api_access"
	CapRealTimeRates Capability = "real_time_rates"
	CapTOURates      Capability = "tou_rates"
	CapTieredRates   Capability = "tiered_rates"
	CapSeasonalRates Capability = "seasonal_rates"
	CapNetMetering   Capability = "net_metering"
	CapDemandCharges Capability = "demand_charges"
)

// FetchParams carries everything an extractor needs for one fetch.
type FetchParams struct {
	Region      string
	ServiceType tariff.ServiceType
	Schedule    string
	// Source holds provider-specific source configuration (URLs,
	// endpoints, API keys) selected for the region/service pair.
	Source map[string]string
	// HTTPClient is the shared client; extractors must not build their
	// own so timeouts and TLS settings stay centrally configured.
	HTTPClient *http.Client
	// CacheDir, when non-empty, offers a directory for extractors that
	// want to keep a local copy of downloaded source material. Each
	// extractor decides whether the hint applies to its source kind.
	CacheDir string
}

// SourceExtractor fetches raw tariff data from one kind of source and
// turns it into a snapshot. Implementations must be safe for
// concurrent use.
type SourceExtractor interface {
	// FetchTariffData retrieves and parses the source. The returned
	// snapshot carries rates only; the pipeline stamps provenance.
	FetchTariffData(ctx context.Context, params FetchParams) (*tariff.Snapshot, error)
	// Validate checks extractor-specific expectations on a fetched
	// snapshot and returns a human-readable reason when it fails.
	Validate(snap *tariff.Snapshot) (bool, string)
	// SourceKind names the source class ("pdf", "api", ...).
	SourceKind() string
}

// Provider describes one utility and supplies its extractor and
// static fallback data.
type Provider interface {
	// ID returns the unique identifier (e.g. "xcel_energy").
	ID() string
	// Name returns the human-readable utility name.
	Name() string
	// ShortName returns the abbreviated display name.
	ShortName() string
	// Regions maps each supported service type to its region codes.
	Regions() map[tariff.ServiceType][]string
	// Schedules maps each supported service type to its rate schedule
	// names.
	Schedules() map[tariff.ServiceType][]string
	// Capabilities advertises supported features.
	Capabilities() []Capability
	// Extractor returns the source extractor for this provider.
	Extractor() SourceExtractor
	// SourceConfig returns the source configuration for a
	// region/service/schedule triple (e.g. the tariff book URL).
	SourceConfig(region string, st tariff.ServiceType, schedule string) map[string]string
	// Fallback returns a static snapshot for the region/service pair,
	// or nil when the provider has none. Callers receive a copy they
	// own.
	Fallback(region string, st tariff.ServiceType) *tariff.Snapshot
	// UpdateInterval returns the provider's recommended refresh
	// interval.
	UpdateInterval() time.Duration
}

// Common errors shared across providers.
var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrParseFailed      = errors.New("failed to parse tariff data")
	ErrNoData           = errors.New("source returned no tariff data")
)
