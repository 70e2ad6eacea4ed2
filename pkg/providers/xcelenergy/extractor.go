package xcelenergy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bher20/tariffd/internal/tariff"
	"github.com/bher20/tariffd/pkg/providers"
	"github.com/bher20/tariffd/pkg/providers/shared"
	"github.com/ledongthuc/pdf"
	"github.com/shopspring/decimal"
)

// PDFExtractor pulls rates out of an Xcel Energy tariff book PDF.
type PDFExtractor struct{}

func (e *PDFExtractor) SourceKind() string { return tariff.SourcePDF }

func (e *PDFExtractor) FetchTariffData(ctx context.Context, params providers.FetchParams) (*tariff.Snapshot, error) {
	url := params.Source["url"]
	if url == "" {
		return nil, fmt.Errorf("xcelenergy: no tariff book url for %s %s", params.Region, params.ServiceType)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("xcelenergy: build request: %w", err)
	}
	client := params.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("xcelenergy: download tariff book: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("xcelenergy: download %s: HTTP %d", url, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("xcelenergy: read tariff book: %w", err)
	}
	if params.CacheDir != "" {
		// Best effort; a failed local copy must not fail the fetch.
		path := filepath.Join(params.CacheDir, bookFileName(params))
		if err := shared.WriteFileAtomically(path, bytes.NewReader(raw)); err != nil {
			log.Printf("xcelenergy: cache tariff book to %s: %v", path, err)
		}
	}
	text, err := extractText(raw)
	if err != nil {
		return nil, err
	}
	return ParseText(text, params.Schedule)
}

// bookFileName names the local copy of a downloaded tariff book.
func bookFileName(params providers.FetchParams) string {
	return fmt.Sprintf("%s_%s_%s_%s.pdf",
		ID, strings.ToUpper(params.Region), params.ServiceType, params.Schedule)
}

func extractText(raw []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("xcelenergy: open pdf: %w", err)
	}
	rc, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("xcelenergy: extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return "", fmt.Errorf("xcelenergy: read pdf text: %w", err)
	}
	return buf.String(), nil
}

var (
	tier1Re    = regexp.MustCompile(`(?is)First\s+\d+\s+(?:Kilowatt-Hours|kWh).{0,120}?per\s+kWh[\s.]*\$?([\d.,]+)`)
	tier2Re    = regexp.MustCompile(`(?is)All additional.{0,120}?(?:Kilowatt-Hours|kWh).{0,120}?per\s+kWh[\s.]*\$?([\d.,]+)`)
	standardRe = regexp.MustCompile(`(?is)(?:Energy Charge|Standard).{0,120}?per\s+(?:kWh|Kilowatt.hour)[\s.]*\$?([\d.,]+)`)

	summerSectionRe = regexp.MustCompile(`(?is)Summer.*?(?:Winter|$)`)
	winterSectionRe = regexp.MustCompile(`(?is)Winter.*?(?:Summer|$)`)

	peakRe     = regexp.MustCompile(`(?is)On-?\s?Peak.{0,80}?\$([\d.]+)`)
	shoulderRe = regexp.MustCompile(`(?is)(?:Shoulder|Mid-?\s?Peak).{0,80}?\$([\d.]+)`)
	offPeakRe  = regexp.MustCompile(`(?is)Off-?\s?Peak.{0,80}?\$([\d.]+)`)

	serviceChargeRe = regexp.MustCompile(`(?is)(?:Service and Facility|Basic Service|Customer) Charge[^$]{0,80}\$([\d.,]+)`)
	demandChargeRe  = regexp.MustCompile(`(?is)Demand Charge[^$]{0,80}\$([\d.,]+)`)

	peakHoursRe     = regexp.MustCompile(`(?i)On-?\s?Peak\D{0,40}?(\d{1,2}):\d{2}\s*(A\.?M\.?|P\.?M\.?)\D{0,20}?(\d{1,2}):\d{2}\s*(A\.?M\.?|P\.?M\.?)`)
	shoulderHoursRe = regexp.MustCompile(`(?i)Shoulder\D{0,40}?(\d{1,2}):\d{2}\s*(A\.?M\.?|P\.?M\.?)`)

	summerSeasonRe  = regexp.MustCompile(`(?i)Summer.{0,60}?(?:June|May).{0,60}?(?:September|October)`)
	effectiveDateRe = regexp.MustCompile(`(?i)Effective(?:\s+Date:?)?\s+(\w+\s+\d{1,2},\s+\d{4})`)
)

// ParseText builds a snapshot from extracted tariff book text. Rates
// the text does not yield are simply absent; the validator decides
// whether what remains is usable.
func ParseText(text, schedule string) (*tariff.Snapshot, error) {
	snap := &tariff.Snapshot{}

	flat := map[string]decimal.Decimal{}
	if v, ok := shared.FindDecimal(tier1Re, text); ok {
		flat["summer"] = v
		flat["winter"] = v
		flat[tariff.RateTier1] = v
	}
	if v, ok := shared.FindDecimal(tier2Re, text); ok {
		flat[tariff.RateTier2] = v
	}
	if len(flat) == 0 {
		if v, ok := shared.FindDecimal(standardRe, text); ok {
			flat[tariff.RateStandard] = v
			flat["summer"] = v
			flat["winter"] = v
		}
	}
	if len(flat) > 0 {
		snap.FlatRates = flat
	}

	tou := map[tariff.Season]map[tariff.Period]decimal.Decimal{}
	for season, sectionRe := range map[tariff.Season]*regexp.Regexp{
		tariff.SeasonSummer: summerSectionRe,
		tariff.SeasonWinter: winterSectionRe,
	} {
		section := sectionRe.FindString(text)
		if section == "" {
			continue
		}
		table := map[tariff.Period]decimal.Decimal{}
		for period, re := range map[tariff.Period]*regexp.Regexp{
			tariff.PeriodPeak:     peakRe,
			tariff.PeriodShoulder: shoulderRe,
			tariff.PeriodOffPeak:  offPeakRe,
		} {
			if v, ok := shared.FindDecimal(re, section); ok {
				table[period] = v
			}
		}
		if len(table) > 0 {
			tou[season] = table
		}
	}
	if len(tou) > 0 {
		snap.TOURates = tou
	}

	charges := map[string]decimal.Decimal{}
	if v, ok := shared.FindDecimal(serviceChargeRe, text); ok {
		charges["monthly_service"] = v
	}
	if v, ok := shared.FindDecimal(demandChargeRe, text); ok {
		charges["demand_charge"] = v
	}
	if len(charges) > 0 {
		snap.FixedCharges = charges
	}

	if sched := parseTOUSchedule(text); sched != nil {
		snap.TOUSchedule = sched
	}
	if summerSeasonRe.MatchString(text) {
		snap.SeasonMonths = map[tariff.Season][]int{
			tariff.SeasonSummer: {6, 7, 8, 9},
			tariff.SeasonWinter: {1, 2, 3, 4, 5, 10, 11, 12},
		}
	}
	if m := effectiveDateRe.FindStringSubmatch(text); len(m) == 2 {
		snap.EffectiveDate = shared.NormalizeSpace(m[1])
	}

	if !snap.HasRates() {
		return nil, fmt.Errorf("xcelenergy: schedule %s: %w", schedule, providers.ErrNoData)
	}
	return snap, nil
}

func parseTOUSchedule(text string) *tariff.TOUSchedule {
	m := peakHoursRe.FindStringSubmatch(text)
	if len(m) != 5 {
		return nil
	}
	start, ok1 := shared.ParseHour(m[1], m[2])
	end, ok2 := shared.ParseHour(m[3], m[4])
	if !ok1 || !ok2 || start >= end {
		return nil
	}
	sched := &tariff.TOUSchedule{PeakStart: start, PeakEnd: end}
	if sm := shoulderHoursRe.FindStringSubmatch(text); len(sm) == 3 {
		if sh, ok := shared.ParseHour(sm[1], sm[2]); ok && sh <= start {
			sched.ShoulderStart = &sh
		}
	}
	return sched
}

// Validate mirrors what a usable Xcel tariff book must contain: at
// least one rate table and the fixed service charge.
func (e *PDFExtractor) Validate(snap *tariff.Snapshot) (bool, string) {
	if !snap.HasRates() {
		return false, "no rates found in tariff book"
	}
	if len(snap.FixedCharges) == 0 {
		return false, "no fixed charges found in tariff book"
	}
	return true, ""
}
