package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeDateOnly(t *testing.T) {
	got, ok := ParseTime("2024-03-01")
	if !ok {
		t.Fatalf("expected ok")
	}
	if !got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestTruncatePeriod(t *testing.T) {
	// 2024-10-10 is a Thursday.
	in := time.Date(2024, 10, 10, 15, 4, 5, 0, time.UTC)
	cases := map[string]time.Time{
		"daily":   time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC),
		"weekly":  time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC),
		"monthly": time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
	}
	for unit, want := range cases {
		if got := TruncatePeriod(in, unit); !got.Equal(want) {
			t.Fatalf("%s: got %v want %v", unit, got, want)
		}
	}
}

func TestAddPeriodsAndBetween(t *testing.T) {
	start := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)
	for _, unit := range []string{"daily", "weekly", "monthly"} {
		end := AddPeriods(start, unit, 5)
		if n := PeriodsBetween(start, end, unit); n != 5 {
			t.Fatalf("%s: expected 5 periods, got %d", unit, n)
		}
	}
	if got := AddPeriods(start, "monthly", 3); got.Month() != time.February || got.Year() != 2024 {
		t.Fatalf("unexpected month step %v", got)
	}
}

func TestIntOr(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 8080},
		{"9090", 9090},
		{" 6380\n", 6380},
		{"80a", 8080},
		{"-1", -1},
	}
	for _, tc := range cases {
		if got := IntOr(tc.in, 8080); got != tc.want {
			t.Errorf("IntOr(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
