package tariff

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Resolution is pure: every function here takes the clock instant and
// the snapshot as arguments, performs no I/O and touches no shared
// state, so two calls with equal inputs always produce equal outputs.

// ErrUnavailable means the snapshot holds no usable rate for the
// requested instant. Callers must treat it as distinct from a zero
// rate, which is a legitimate price.
var ErrUnavailable = errors.New("tariff: rate unavailable")

var defaultSummerMonths = []int{6, 7, 8, 9}

func defaultTOUSchedule() TOUSchedule {
	shoulder := 13
	return TOUSchedule{ShoulderStart: &shoulder, PeakStart: 15, PeakEnd: 19}
}

// CurrentSeason maps t's month to a season. Override order: options,
// then the snapshot's extracted season months, then the default
// June-September summer.
func CurrentSeason(t time.Time, snap *Snapshot, opts Options) Season {
	months := opts.SummerMonths
	if len(months) == 0 && snap != nil {
		months = snap.SeasonMonths[SeasonSummer]
	}
	if len(months) == 0 {
		months = defaultSummerMonths
	}
	m := int(t.Month())
	for _, sm := range months {
		if m == sm {
			return SeasonSummer
		}
	}
	return SeasonWinter
}

// IsTOUSchedule reports whether a schedule name denotes time-of-use
// pricing.
func IsTOUSchedule(schedule string) bool {
	return strings.Contains(strings.ToLower(schedule), "tou")
}

// CurrentPeriod returns the time-of-use period in effect at t.
// Weekends and holidays are always off-peak, regardless of hour.
func CurrentPeriod(t time.Time, snap *Snapshot, opts Options) Period {
	if isWeekend(t) || IsHoliday(t, opts) {
		return PeriodOffPeak
	}
	hour := t.Hour()
	if o := opts.TOU; o != nil {
		switch {
		case hour >= o.PeakStart && hour < o.PeakEnd:
			return PeriodPeak
		case hour >= o.ShoulderStart && hour < o.ShoulderEnd:
			return PeriodShoulder
		}
		return PeriodOffPeak
	}
	sched := defaultTOUSchedule()
	if snap != nil && snap.TOUSchedule != nil {
		sched = *snap.TOUSchedule
	}
	switch {
	case hour >= sched.PeakStart && hour < sched.PeakEnd:
		return PeriodPeak
	case sched.ShoulderStart != nil && hour >= *sched.ShoulderStart && hour < sched.PeakStart:
		return PeriodShoulder
	}
	return PeriodOffPeak
}

// Rate resolves the per-unit price in effect at t, folding in enabled
// additional charges. TOU schedules resolve season then period; flat
// schedules (and TOU snapshots missing a seasonal table) resolve
// season rate, then standard, then the lowest defined tier.
func Rate(t time.Time, snap *Snapshot, opts Options) (decimal.Decimal, error) {
	if !snap.HasRates() {
		return decimal.Decimal{}, ErrUnavailable
	}
	season := CurrentSeason(t, snap, opts)
	rate, ok := touRate(t, snap, opts, season)
	if !ok {
		rate, ok = flatRate(snap, season)
	}
	if !ok {
		return decimal.Decimal{}, ErrUnavailable
	}
	if opts.IncludeAdditionalCharges {
		rate = rate.Add(additionalTotal(snap))
	}
	return rate, nil
}

func touRate(t time.Time, snap *Snapshot, opts Options, season Season) (decimal.Decimal, bool) {
	if !IsTOUSchedule(snap.Key.Schedule) {
		return decimal.Decimal{}, false
	}
	table := snap.TOURates[season]
	if len(table) == 0 {
		return decimal.Decimal{}, false
	}
	r, ok := table[CurrentPeriod(t, snap, opts)]
	return r, ok
}

func flatRate(snap *Snapshot, season Season) (decimal.Decimal, bool) {
	for _, key := range []string{string(season), RateStandard, RateTier1, RateTier2} {
		if r, ok := snap.FlatRates[key]; ok {
			return r, true
		}
	}
	return decimal.Decimal{}, false
}

func additionalTotal(snap *Snapshot) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range snap.AdditionalCharges {
		sum = sum.Add(v)
	}
	return sum
}

// AllRates itemizes the charges in effect at t. The returned maps are
// copies; mutating them never touches the snapshot.
func AllRates(t time.Time, snap *Snapshot, opts Options) Breakdown {
	b := Breakdown{AdditionalTotal: decimal.Zero}
	if snap == nil {
		return b
	}
	b.FlatRates = copyDecimalMap(snap.FlatRates)
	b.FixedCharges = copyDecimalMap(snap.FixedCharges)
	b.AdditionalCharges = copyDecimalMap(snap.AdditionalCharges)
	b.AdditionalTotal = additionalTotal(snap)
	if IsTOUSchedule(snap.Key.Schedule) {
		season := CurrentSeason(t, snap, opts)
		if table := snap.TOURates[season]; len(table) > 0 {
			b.TOURates = make(map[Period]decimal.Decimal, len(table))
			for p, r := range table {
				b.TOURates[p] = r
			}
		}
	}
	return b
}

// NextPeriodChange returns the next instant the time-of-use period
// flips, or nil for non-TOU schedules. From a weekend or holiday the
// next change is the following business day at midnight; after the
// last boundary of a business day it is the next day at midnight.
func NextPeriodChange(t time.Time, snap *Snapshot, opts Options) *PeriodChange {
	if snap == nil || !IsTOUSchedule(snap.Key.Schedule) {
		return nil
	}
	if isWeekend(t) || IsHoliday(t, opts) {
		return &PeriodChange{At: nextBusinessMidnight(t, opts), Period: PeriodOffPeak}
	}
	type boundary struct {
		hour   int
		period Period
	}
	var bounds []boundary
	if o := opts.TOU; o != nil {
		bounds = []boundary{
			{o.ShoulderStart, PeriodShoulder},
			{o.ShoulderEnd, PeriodOffPeak},
			{o.PeakStart, PeriodPeak},
			{o.PeakEnd, PeriodOffPeak},
		}
	} else {
		sched := defaultTOUSchedule()
		if snap.TOUSchedule != nil {
			sched = *snap.TOUSchedule
		}
		if sched.ShoulderStart != nil {
			bounds = append(bounds, boundary{*sched.ShoulderStart, PeriodShoulder})
		}
		bounds = append(bounds,
			boundary{sched.PeakStart, PeriodPeak},
			boundary{sched.PeakEnd, PeriodOffPeak},
		)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].hour < bounds[j].hour })
	for _, b := range bounds {
		at := time.Date(t.Year(), t.Month(), t.Day(), b.hour, 0, 0, 0, t.Location())
		if at.After(t) {
			return &PeriodChange{At: at, Period: b.period}
		}
	}
	return &PeriodChange{At: midnightAfter(t), Period: PeriodOffPeak}
}

func midnightAfter(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}

func nextBusinessMidnight(t time.Time, opts Options) time.Time {
	d := midnightAfter(t)
	for isWeekend(d) || IsHoliday(d, opts) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// Resolve evaluates the full consumer view at t. It never returns an
// error: an unusable snapshot yields Available=false with a zero rate
// that consumers must not read as a price.
func Resolve(t time.Time, snap *Snapshot, opts Options) ResolvedRate {
	rr := ResolvedRate{
		Timestamp: t,
		Season:    CurrentSeason(t, snap, opts),
		IsHoliday: IsHoliday(t, opts),
		IsWeekend: isWeekend(t),
		Breakdown: AllRates(t, snap, opts),
	}
	if snap != nil {
		rr.Provenance = snap.Provenance
		if IsTOUSchedule(snap.Key.Schedule) {
			rr.Period = CurrentPeriod(t, snap, opts)
			rr.NextPeriodChange = NextPeriodChange(t, snap, opts)
		}
	}
	if rate, err := Rate(t, snap, opts); err == nil {
		rr.Rate = rate
		rr.Available = true
	}
	return rr
}
