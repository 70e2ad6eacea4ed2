package xcelenergy

import (
	"github.com/bher20/tariffd/internal/tariff"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intp(v int) *int { return &v }

// Static fallback tables by state and service. Values track the filed
// tariffs (CO electric per the 2023 Electric Rate Review Phase II,
// effective 2024-05-01) and are only served when both the live source
// and the cache fail.
var fallbackTables = map[string]map[tariff.ServiceType]*tariff.Snapshot{
	"CO": {
		tariff.ServiceElectric: {
			FlatRates: map[string]decimal.Decimal{
				"summer": d("0.07425"),
				"winter": d("0.05565"),
			},
			TOURates: map[tariff.Season]map[tariff.Period]decimal.Decimal{
				tariff.SeasonSummer: {
					tariff.PeriodPeak:     d("0.14124"),
					tariff.PeriodShoulder: d("0.09677"),
					tariff.PeriodOffPeak:  d("0.05231"),
				},
				tariff.SeasonWinter: {
					tariff.PeriodPeak:     d("0.08893"),
					tariff.PeriodShoulder: d("0.07062"),
					tariff.PeriodOffPeak:  d("0.05231"),
				},
			},
			FixedCharges: map[string]decimal.Decimal{"monthly_service": d("13.13")},
			TOUSchedule:  &tariff.TOUSchedule{ShoulderStart: intp(13), PeakStart: 15, PeakEnd: 19},
			SeasonMonths: map[tariff.Season][]int{
				tariff.SeasonSummer: {6, 7, 8, 9},
				tariff.SeasonWinter: {1, 2, 3, 4, 5, 10, 11, 12},
			},
			EffectiveDate: "2024-05-01",
		},
		tariff.ServiceGas: {
			FlatRates:     map[string]decimal.Decimal{tariff.RateStandard: d("0.4523")},
			FixedCharges:  map[string]decimal.Decimal{"monthly_service": d("8.85")},
			EffectiveDate: "2024-01-01",
		},
	},
	"MN": {
		tariff.ServiceElectric: {
			FlatRates: map[string]decimal.Decimal{
				"summer": d("0.08142"),
				"winter": d("0.06234"),
			},
			FixedCharges:  map[string]decimal.Decimal{"monthly_service": d("7.25")},
			EffectiveDate: "2024-01-01",
		},
	},
}
