package tariff

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateSnapshot_Valid(t *testing.T) {
	if err := ValidateSnapshot(touSnapshot()); err != nil {
		t.Fatalf("expected valid snapshot, got %v", err)
	}
	if err := ValidateSnapshot(flatSnapshot()); err != nil {
		t.Fatalf("expected valid snapshot, got %v", err)
	}
}

func TestValidateSnapshot_NilAndEmpty(t *testing.T) {
	if err := ValidateSnapshot(nil); err == nil {
		t.Fatalf("expected error for nil snapshot")
	}
	empty := &Snapshot{
		Key:          AcquisitionKey{Provider: "xcel", Region: "CO", ServiceType: ServiceElectric, Schedule: "residential"},
		FixedCharges: map[string]decimal.Decimal{"monthly_service": dec("13.13")},
	}
	if err := ValidateSnapshot(empty); err == nil {
		t.Fatalf("expected error for snapshot with only fixed charges")
	}
}

func TestValidateSnapshot_NegativeValues(t *testing.T) {
	snap := flatSnapshot()
	snap.FlatRates["winter"] = dec("-0.01")
	if err := ValidateSnapshot(snap); err == nil {
		t.Errorf("expected error for negative flat rate")
	}

	snap = touSnapshot()
	snap.TOURates[SeasonSummer][PeriodPeak] = dec("-1")
	if err := ValidateSnapshot(snap); err == nil {
		t.Errorf("expected error for negative tou rate")
	}

	snap = flatSnapshot()
	snap.FixedCharges = map[string]decimal.Decimal{"monthly_service": dec("-13")}
	if err := ValidateSnapshot(snap); err == nil {
		t.Errorf("expected error for negative fixed charge")
	}

	// Riders can be credits.
	snap = flatSnapshot()
	snap.AdditionalCharges = map[string]decimal.Decimal{"fuel_true_up": dec("-0.002")}
	if err := ValidateSnapshot(snap); err != nil {
		t.Errorf("negative additional charge should be allowed, got %v", err)
	}
}

func TestValidateSnapshot_ScheduleBounds(t *testing.T) {
	shoulder := 16
	snap := touSnapshot()
	snap.TOUSchedule = &TOUSchedule{ShoulderStart: &shoulder, PeakStart: 15, PeakEnd: 19}
	if err := ValidateSnapshot(snap); err == nil {
		t.Errorf("expected error when shoulder starts after peak")
	}

	snap = touSnapshot()
	snap.TOUSchedule = &TOUSchedule{PeakStart: 19, PeakEnd: 15}
	if err := ValidateSnapshot(snap); err == nil {
		t.Errorf("expected error for empty peak window")
	}

	snap = touSnapshot()
	snap.TOUSchedule = &TOUSchedule{PeakStart: 15, PeakEnd: 25}
	if err := ValidateSnapshot(snap); err == nil {
		t.Errorf("expected error for out-of-range peak end")
	}

	snap = touSnapshot()
	snap.SeasonMonths = map[Season][]int{SeasonSummer: {6, 13}}
	if err := ValidateSnapshot(snap); err == nil {
		t.Errorf("expected error for out-of-range month")
	}
}
