package scheduler

import (
	"testing"
	"time"
)

func TestParseCronValid(t *testing.T) {
	tests := []struct {
		expr string
	}{
		{"* * * * *"},
		{"*/5 * * * *"},
		{"0 0 * * *"},
		{"30 4 1,15 * *"},
		{"0 0 1 1 0"},
		{"0-30/5 9-17 * * 1-5"},
		{"0 18 * * 0"},
	}
	for _, tc := range tests {
		if _, err := ParseCron(tc.expr); err != nil {
			t.Errorf("ParseCron(%q) returned error: %v", tc.expr, err)
		}
	}
}

func TestParseCronInvalid(t *testing.T) {
	tests := []struct {
		expr string
	}{
		{""},
		{"* * *"},
		{"60 * * * *"},
		{"* 25 * * *"},
		{"* * 32 * *"},
		{"* * * 13 *"},
		{"* * * * 8"},
		{"*/0 * * * *"},
		{"abc * * * *"},
	}
	for _, tc := range tests {
		if _, err := ParseCron(tc.expr); err == nil {
			t.Errorf("ParseCron(%q) should have returned error", tc.expr)
		}
	}
}

func TestMatchesEveryMinute(t *testing.T) {
	c, _ := ParseCron("* * * * *")
	now := time.Date(2026, 2, 15, 10, 30, 0, 0, time.UTC)
	if !c.Matches(now) {
		t.Error("* * * * * should match any time")
	}
}

func TestMatchesEvery5Minutes(t *testing.T) {
	c, _ := ParseCron("*/5 * * * *")

	match := time.Date(2026, 2, 15, 10, 15, 0, 0, time.UTC)
	if !c.Matches(match) {
		t.Error("*/5 should match minute 15")
	}

	noMatch := time.Date(2026, 2, 15, 10, 13, 0, 0, time.UTC)
	if c.Matches(noMatch) {
		t.Error("*/5 should not match minute 13")
	}
}

func TestMatchesRange(t *testing.T) {
	c, _ := ParseCron("0-30/5 9-17 * * 1-5")

	match := time.Date(2026, 2, 16, 10, 15, 0, 0, time.UTC) // Monday
	if !c.Matches(match) {
		t.Errorf("should match Monday 10:15, weekday=%d", match.Weekday())
	}

	noMatch := time.Date(2026, 2, 14, 10, 15, 0, 0, time.UTC) // Saturday
	if c.Matches(noMatch) {
		t.Errorf("should not match Saturday, weekday=%d", noMatch.Weekday())
	}
}

func TestMatchesSundayEvening(t *testing.T) {
	c, _ := ParseCron("0 18 * * 0")

	match := time.Date(2026, 3, 8, 18, 0, 0, 0, time.UTC) // Sunday
	if !c.Matches(match) {
		t.Error("should match Sunday 18:00")
	}
	noMatch := time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC) // Monday
	if c.Matches(noMatch) {
		t.Error("should not match Monday 18:00")
	}
}

func TestDayOfWeekSevenIsSunday(t *testing.T) {
	c, err := ParseCron("0 18 * * 7")
	if err != nil {
		t.Fatalf("ParseCron rejected 7: %v", err)
	}

	sunday := time.Date(2026, 3, 8, 18, 0, 0, 0, time.UTC)
	if !c.Matches(sunday) {
		t.Error("day-of-week 7 should match Sunday 18:00")
	}
	monday := time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC)
	if c.Matches(monday) {
		t.Error("day-of-week 7 should not match Monday")
	}
}
