package tariff

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ServiceType identifies the metered commodity a tariff prices.
type ServiceType string

const (
	ServiceElectric ServiceType = "electric"
	ServiceGas      ServiceType = "gas"
	ServiceWater    ServiceType = "water"
)

// Season buckets used by seasonal rate tables.
type Season string

const (
	SeasonSummer Season = "summer"
	SeasonWinter Season = "winter"
)

// Period is a time-of-use pricing period.
type Period string

const (
	PeriodPeak     Period = "peak"
	PeriodShoulder Period = "shoulder"
	PeriodOffPeak  Period = "off_peak"
)

// Well-known flat-rate keys. Seasonal flat rates use the Season values
// ("summer", "winter") as keys in the same map.
const (
	RateStandard = "standard"
	RateTier1    = "tier_1"
	RateTier2    = "tier_2"
)

// Source kinds reported in snapshot provenance.
const (
	SourcePDF    = "pdf"
	SourceAPI    = "api"
	SourceCache  = "cache"
	SourceStatic = "static"
	SourceNone   = "none"
)

// AcquisitionKey identifies one tariff to acquire, cache and resolve.
type AcquisitionKey struct {
	Provider    string      `json:"provider"`
	Region      string      `json:"region"`
	ServiceType ServiceType `json:"service_type"`
	Schedule    string      `json:"schedule"`
}

// CacheKey returns the stable storage key for this tariff.
func (k AcquisitionKey) CacheKey() string {
	return fmt.Sprintf("%s_%s_%s_%s", k.Provider, k.Region, k.ServiceType, k.Schedule)
}

func (k AcquisitionKey) String() string { return k.CacheKey() }

// TOUSchedule holds the hour-of-day boundaries of a time-of-use day.
// The shoulder window is [ShoulderStart, PeakStart) and the peak window
// is [PeakStart, PeakEnd); every other hour is off-peak. ShoulderStart
// is nil for two-tier (peak/off-peak) schedules.
type TOUSchedule struct {
	ShoulderStart *int `json:"shoulder_start,omitempty"`
	PeakStart     int  `json:"peak_start"`
	PeakEnd       int  `json:"peak_end"`
}

// Provenance records how the currently held snapshot was obtained.
type Provenance struct {
	CycleID             string    `json:"cycle_id"`
	SourceKind          string    `json:"source_kind"`
	FetchedAt           time.Time `json:"fetched_at"`
	Attempts            int       `json:"attempts"`
	UsingCache          bool      `json:"using_cache"`
	UsingStaticFallback bool      `json:"using_static_fallback"`
	LastError           string    `json:"last_error,omitempty"`
}

// Snapshot bundles everything extracted from one tariff source. Rates
// are $/kWh for electric and $/therm for gas; fixed charges are
// $/month. Snapshots are treated as immutable once built: resolution
// never writes to them, and replacement is wholesale.
type Snapshot struct {
	Key               AcquisitionKey                         `json:"key"`
	FlatRates         map[string]decimal.Decimal             `json:"flat_rates,omitempty"`
	TOURates          map[Season]map[Period]decimal.Decimal  `json:"tou_rates,omitempty"`
	FixedCharges      map[string]decimal.Decimal             `json:"fixed_charges,omitempty"`
	AdditionalCharges map[string]decimal.Decimal             `json:"additional_charges,omitempty"`
	TOUSchedule       *TOUSchedule                           `json:"tou_schedule,omitempty"`
	SeasonMonths      map[Season][]int                       `json:"season_months,omitempty"`
	EffectiveDate     string                                 `json:"effective_date,omitempty"`
	Provenance        Provenance                             `json:"provenance"`
}

// HasRates reports whether the snapshot carries at least one usable
// energy rate. A snapshot with only fixed charges is not usable.
func (s *Snapshot) HasRates() bool {
	if s == nil {
		return false
	}
	if len(s.FlatRates) > 0 {
		return true
	}
	for _, table := range s.TOURates {
		if len(table) > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Static fallback tables hand out clones so
// a shared table is never aliased by live state.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.FlatRates = copyDecimalMap(s.FlatRates)
	out.FixedCharges = copyDecimalMap(s.FixedCharges)
	out.AdditionalCharges = copyDecimalMap(s.AdditionalCharges)
	if s.TOURates != nil {
		out.TOURates = make(map[Season]map[Period]decimal.Decimal, len(s.TOURates))
		for season, table := range s.TOURates {
			t := make(map[Period]decimal.Decimal, len(table))
			for p, r := range table {
				t[p] = r
			}
			out.TOURates[season] = t
		}
	}
	if s.TOUSchedule != nil {
		sched := *s.TOUSchedule
		if s.TOUSchedule.ShoulderStart != nil {
			v := *s.TOUSchedule.ShoulderStart
			sched.ShoulderStart = &v
		}
		out.TOUSchedule = &sched
	}
	if s.SeasonMonths != nil {
		out.SeasonMonths = make(map[Season][]int, len(s.SeasonMonths))
		for season, months := range s.SeasonMonths {
			out.SeasonMonths[season] = append([]int(nil), months...)
		}
	}
	return &out
}

func copyDecimalMap(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	if in == nil {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// TOUOverride replaces every boundary of the time-of-use day at once.
// Unlike the snapshot schedule, the shoulder and peak windows may be
// disjoint; hours outside both are off-peak.
type TOUOverride struct {
	ShoulderStart int `json:"shoulder_start"`
	ShoulderEnd   int `json:"shoulder_end"`
	PeakStart     int `json:"peak_start"`
	PeakEnd       int `json:"peak_end"`
}

// Options tunes resolution for one subscription without touching the
// snapshot itself.
type Options struct {
	// TOU overrides the snapshot's schedule boundaries entirely.
	TOU *TOUOverride `json:"tou,omitempty"`
	// Holidays, when non-empty, replaces the built-in calendar with a
	// list of ISO dates (2006-01-02).
	Holidays []string `json:"holidays,omitempty"`
	// SummerMonths overrides the snapshot's season mapping.
	SummerMonths []int `json:"summer_months,omitempty"`
	// IncludeAdditionalCharges folds per-unit riders into the resolved
	// rate. On by default in subscription config.
	IncludeAdditionalCharges bool `json:"include_additional_charges"`
}

// Breakdown itemizes every charge that applies at the resolved instant.
type Breakdown struct {
	FlatRates         map[string]decimal.Decimal `json:"flat_rates,omitempty"`
	TOURates          map[Period]decimal.Decimal `json:"tou_rates,omitempty"`
	FixedCharges      map[string]decimal.Decimal `json:"fixed_charges,omitempty"`
	AdditionalCharges map[string]decimal.Decimal `json:"additional_charges,omitempty"`
	AdditionalTotal   decimal.Decimal            `json:"additional_total"`
}

// PeriodChange names the next instant the time-of-use period flips.
type PeriodChange struct {
	At     time.Time `json:"at"`
	Period Period    `json:"period"`
}

// ResolvedRate is the value published to consumers on every fast tick.
// Available distinguishes "no usable rate" from a legitimate zero rate.
type ResolvedRate struct {
	Timestamp        time.Time       `json:"timestamp"`
	Available        bool            `json:"available"`
	Rate             decimal.Decimal `json:"rate"`
	Period           Period          `json:"period,omitempty"`
	Season           Season          `json:"season"`
	IsHoliday        bool            `json:"is_holiday"`
	IsWeekend        bool            `json:"is_weekend"`
	NextPeriodChange *PeriodChange   `json:"next_period_change,omitempty"`
	Breakdown        Breakdown       `json:"breakdown"`
	Provenance       Provenance      `json:"provenance"`
}
