package shared

import (
	"regexp"
	"testing"
)

func TestFindDecimal(t *testing.T) {
	re := regexp.MustCompile(`Energy Charge[^\d]*([\d.,]+)`)
	d, ok := FindDecimal(re, "Energy Charge per kWh $0.14124 summer")
	if !ok {
		t.Fatalf("expected a match")
	}
	if d.String() != "0.14124" {
		t.Errorf("unexpected value: %s", d)
	}
	if _, ok := FindDecimal(re, "no charges here"); ok {
		t.Errorf("expected no match")
	}
}

func TestNormalizeSpace(t *testing.T) {
	got := NormalizeSpace("  Energy \n Charge\t per   kWh ")
	if got != "Energy Charge per kWh" {
		t.Errorf("unexpected normalization: %q", got)
	}
}

func TestParseHour(t *testing.T) {
	cases := []struct {
		hour, mer string
		want      int
		ok        bool
	}{
		{"8", "a.m.", 8, true},
		{"12", "a.m.", 0, true},
		{"12", "p.m.", 12, true},
		{"7", "p.m.", 19, true},
		{"13", "p.m.", 0, false},
		{"7", "xm", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseHour(c.hour, c.mer)
		if ok != c.ok || got != c.want {
			t.Errorf("ParseHour(%q, %q) = %d,%v; want %d,%v", c.hour, c.mer, got, ok, c.want, c.ok)
		}
	}
}
