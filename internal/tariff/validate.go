package tariff

import (
	"errors"
	"fmt"
)

// ValidateSnapshot enforces the invariants a snapshot must satisfy
// before it may replace cached data: at least one usable rate, no
// negative rates or fixed charges, and sane schedule boundaries.
// Additional charges may be negative (riders can be credits).
func ValidateSnapshot(s *Snapshot) error {
	if s == nil {
		return errors.New("tariff: nil snapshot")
	}
	if !s.HasRates() {
		return errors.New("tariff: snapshot has no usable rates")
	}
	for name, r := range s.FlatRates {
		if r.IsNegative() {
			return fmt.Errorf("tariff: negative flat rate %q: %s", name, r)
		}
	}
	for season, table := range s.TOURates {
		for period, r := range table {
			if r.IsNegative() {
				return fmt.Errorf("tariff: negative %s %s rate: %s", season, period, r)
			}
		}
	}
	for name, c := range s.FixedCharges {
		if c.IsNegative() {
			return fmt.Errorf("tariff: negative fixed charge %q: %s", name, c)
		}
	}
	if s.TOUSchedule != nil {
		if err := validateTOUSchedule(s.TOUSchedule); err != nil {
			return err
		}
	}
	for season, months := range s.SeasonMonths {
		for _, m := range months {
			if m < 1 || m > 12 {
				return fmt.Errorf("tariff: %s month %d out of range", season, m)
			}
		}
	}
	return nil
}

func validateTOUSchedule(sc *TOUSchedule) error {
	if sc.PeakStart < 0 || sc.PeakStart > 23 || sc.PeakEnd < 1 || sc.PeakEnd > 24 {
		return fmt.Errorf("tariff: peak hours %d-%d out of range", sc.PeakStart, sc.PeakEnd)
	}
	if sc.PeakStart >= sc.PeakEnd {
		return fmt.Errorf("tariff: peak window %d-%d is empty", sc.PeakStart, sc.PeakEnd)
	}
	if sc.ShoulderStart != nil {
		if *sc.ShoulderStart < 0 || *sc.ShoulderStart > 23 {
			return fmt.Errorf("tariff: shoulder hour %d out of range", *sc.ShoulderStart)
		}
		if *sc.ShoulderStart > sc.PeakStart {
			return fmt.Errorf("tariff: shoulder start %d after peak start %d", *sc.ShoulderStart, sc.PeakStart)
		}
	}
	return nil
}
