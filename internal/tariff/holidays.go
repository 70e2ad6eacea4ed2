package tariff

import "time"

// Time-of-use schedules treat six observed US holidays as off-peak:
// New Year's Day, Memorial Day, Independence Day, Labor Day,
// Thanksgiving and Christmas. Fixed-date holidays falling on a Saturday
// are observed the Friday before, on a Sunday the Monday after.

func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+(n-1)*7)
}

func lastWeekday(year int, month time.Month, wd time.Weekday, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 1, 0, 0, 0, 0, loc).AddDate(0, 0, -1)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// observedHolidays returns the observed dates relevant to the given
// year. Next year's New Year's Day is included because its observance
// can land on December 31.
func observedHolidays(year int, loc *time.Location) []time.Time {
	return []time.Time{
		observed(time.Date(year, time.January, 1, 0, 0, 0, 0, loc)),
		lastWeekday(year, time.May, time.Monday, loc),
		observed(time.Date(year, time.July, 4, 0, 0, 0, 0, loc)),
		nthWeekday(year, time.September, time.Monday, 1, loc),
		nthWeekday(year, time.November, time.Thursday, 4, loc),
		observed(time.Date(year, time.December, 25, 0, 0, 0, 0, loc)),
		observed(time.Date(year+1, time.January, 1, 0, 0, 0, 0, loc)),
	}
}

// IsHoliday reports whether t falls on an observed holiday. A non-empty
// custom list in opts replaces the built-in calendar; entries are ISO
// dates and malformed entries are skipped.
func IsHoliday(t time.Time, opts Options) bool {
	if len(opts.Holidays) > 0 {
		for _, s := range opts.Holidays {
			d, err := time.ParseInLocation("2006-01-02", s, t.Location())
			if err != nil {
				continue
			}
			if sameDay(t, d) {
				return true
			}
		}
		return false
	}
	for _, h := range observedHolidays(t.Year(), t.Location()) {
		if sameDay(t, h) {
			return true
		}
	}
	return false
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
