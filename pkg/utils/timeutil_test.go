package utils

import (
	"testing"
	"time"
)

func TestNowET(t *testing.T) {
	now := NowET()
	if loc := now.Location().String(); loc != "America/New_York" && loc != "EST" {
		t.Errorf("NowET() location = %s, want America/New_York or EST", loc)
	}
}

func TestParseTreasuryDate(t *testing.T) {
	want := time.Date(2025, 3, 14, 0, 0, 0, 0, ET)
	inputs := []string{"03/14/2025", "2025-03-14", "03/14/25", "2025-03-14T00:00:00", "3/14/2025", " 03/14/2025 "}
	for _, in := range inputs {
		got, err := ParseTreasuryDate(in)
		if err != nil {
			t.Errorf("ParseTreasuryDate(%q) error: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTreasuryDate(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseTreasuryDate("March 14"); err == nil {
		t.Error("expected error for unrecognized layout")
	}
}

func TestIsBusinessDay(t *testing.T) {
	// Wednesday, business day
	if !IsBusinessDay(time.Date(2026, 2, 18, 0, 0, 0, 0, ET)) {
		t.Error("Expected Wednesday to be a business day")
	}

	// Saturday, not a business day
	if IsBusinessDay(time.Date(2026, 2, 21, 0, 0, 0, 0, ET)) {
		t.Error("Expected Saturday to not be a business day")
	}

	// Good Friday, bond market closed
	if IsBusinessDay(time.Date(2026, 4, 3, 0, 0, 0, 0, ET)) {
		t.Error("Expected Good Friday to not be a business day")
	}
}

func TestBusinessDaysBetween(t *testing.T) {
	// Mon 2026-02-16 is Presidents Day; Tue..Fri are business days.
	start := time.Date(2026, 2, 16, 0, 0, 0, 0, ET)
	end := time.Date(2026, 2, 21, 0, 0, 0, 0, ET)
	if got := BusinessDaysBetween(start, end); got != 4 {
		t.Errorf("BusinessDaysBetween = %d, want 4", got)
	}
}

func TestPrevBusinessDay(t *testing.T) {
	// Tuesday after Presidents Day rolls back over the holiday and weekend.
	got := PrevBusinessDay(time.Date(2026, 2, 17, 0, 0, 0, 0, ET))
	want := time.Date(2026, 2, 13, 0, 0, 0, 0, ET)
	if FormatDate(got) != FormatDate(want) {
		t.Errorf("PrevBusinessDay = %s, want %s", FormatDate(got), FormatDate(want))
	}
}

func TestHolidayName(t *testing.T) {
	if got := HolidayName(time.Date(2025, 12, 25, 12, 0, 0, 0, ET)); got != "Christmas Day" {
		t.Errorf("HolidayName = %q, want Christmas Day", got)
	}
	if got := HolidayName(time.Date(2025, 12, 24, 12, 0, 0, 0, ET)); got != "" {
		t.Errorf("HolidayName = %q, want empty", got)
	}
}
