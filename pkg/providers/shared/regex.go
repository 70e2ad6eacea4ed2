package shared

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeSpace collapses runs of whitespace into single spaces.
// Extracted PDF text is full of layout artifacts; normalizing first
// keeps the rate patterns simple.
func NormalizeSpace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// FindDecimal returns the first capture group of re in s parsed as a
// decimal. The regex must have at least one capture group.
func FindDecimal(re *regexp.Regexp, s string) (decimal.Decimal, bool) {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// FindInt returns the first capture group of re in s parsed as an int.
func FindInt(re *regexp.Regexp, s string) (int, bool) {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseHour parses an "8:00 p.m." style clock string into a 24-hour
// hour-of-day.
func ParseHour(hour string, meridiem string) (int, bool) {
	h, err := strconv.Atoi(hour)
	if err != nil || h < 1 || h > 12 {
		return 0, false
	}
	switch strings.ToLower(strings.Trim(meridiem, ". ")) {
	case "am", "a.m", "a":
		if h == 12 {
			h = 0
		}
	case "pm", "p.m", "p":
		if h != 12 {
			h += 12
		}
	default:
		return 0, false
	}
	return h, true
}
