// Package xcelenergy implements the Xcel Energy provider. Rates come
// from the public per-state tariff book PDFs; a static table keyed by
// state backs the acquisition fallback chain.
package xcelenergy

import (
	"strings"
	"time"

	"github.com/bher20/tariffd/internal/tariff"
	"github.com/bher20/tariffd/pkg/providers"
)

// ID is the catalog identifier for Xcel Energy.
const ID = "xcel_energy"

const baseURL = "https://www.xcelenergy.com/staticfiles/xe-responsive/Company/Rates%20&%20Regulations/"

// Per-state electric tariff books. Gas books use the same naming with
// the commodity swapped.
var stateURLs = map[string]string{
	"CO": baseURL + "PSCo_Electric_Entire_Tariff.pdf",
	"MI": baseURL + "MPCO_Electric_Entire_Tariff.pdf",
	"MN": baseURL + "NSP_MN_Electric_Entire_Tariff.pdf",
	"NM": baseURL + "SPS_NM_Electric_Entire_Tariff.pdf",
	"ND": baseURL + "NSP_ND_Electric_Entire_Tariff.pdf",
	"SD": baseURL + "NSP_SD_Electric_Entire_Tariff.pdf",
	"TX": baseURL + "SPS_TX_Electric_Entire_Tariff.pdf",
	"WI": baseURL + "NSP_WI_Electric_Entire_Tariff.pdf",
}

type Provider struct {
	extractor *PDFExtractor
}

// New returns the Xcel Energy provider.
func New() *Provider {
	return &Provider{extractor: &PDFExtractor{}}
}

func (p *Provider) ID() string        { return ID }
func (p *Provider) Name() string      { return "Xcel Energy" }
func (p *Provider) ShortName() string { return "Xcel" }

func (p *Provider) Regions() map[tariff.ServiceType][]string {
	return map[tariff.ServiceType][]string{
		tariff.ServiceElectric: {"CO", "MI", "MN", "NM", "ND", "SD", "TX", "WI"},
		tariff.ServiceGas:      {"CO", "MN", "WI", "MI"},
	}
}

func (p *Provider) Schedules() map[tariff.ServiceType][]string {
	return map[tariff.ServiceType][]string{
		tariff.ServiceElectric: {"residential", "residential_tou", "residential_ev", "commercial", "commercial_tou"},
		tariff.ServiceGas:      {"residential_gas", "commercial_gas"},
	}
}

func (p *Provider) Capabilities() []providers.Capability {
	return []providers.Capability{
		providers.CapPDFParsing,
		providers.CapTOURates,
		providers.CapSeasonalRates,
		providers.CapTieredRates,
		providers.CapNetMetering,
	}
}

func (p *Provider) Extractor() providers.SourceExtractor { return p.extractor }

func (p *Provider) SourceConfig(region string, st tariff.ServiceType, schedule string) map[string]string {
	url := stateURLs[strings.ToUpper(region)]
	if st == tariff.ServiceGas && url != "" {
		url = strings.Replace(url, "_Electric_", "_Gas_", 1)
	}
	return map[string]string{"url": url, "type": "pdf"}
}

func (p *Provider) Fallback(region string, st tariff.ServiceType) *tariff.Snapshot {
	states, ok := fallbackTables[strings.ToUpper(region)]
	if !ok {
		return nil
	}
	snap, ok := states[st]
	if !ok {
		return nil
	}
	return snap.Clone()
}

// The tariff books are republished at most daily.
func (p *Provider) UpdateInterval() time.Duration { return 24 * time.Hour }
