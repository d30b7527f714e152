package utils

import (
	"fmt"
	"strings"
	"time"
)

// ET is the US Eastern time location used for Treasury curve dates.
var ET *time.Location

func init() {
	var err error
	ET, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback: fixed EST offset if tz database is not available
		ET = time.FixedZone("EST", -5*60*60)
	}
}

// NowET returns the current time in US Eastern.
func NowET() time.Time {
	return time.Now().In(ET)
}

// treasuryDateLayouts are the formats seen in Treasury CSV downloads and feeds.
var treasuryDateLayouts = []string{
	"01/02/2006",
	"2006-01-02",
	"01/02/06",
	"2006-01-02T15:04:05",
	"1/2/2006",
}

// ParseTreasuryDate parses a date in any of the Treasury layouts and returns
// midnight of that day in ET.
func ParseTreasuryDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range treasuryDateLayouts {
		if t, err := time.ParseInLocation(layout, s, ET); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, ET), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// FormatDate formats the calendar date of t as "2006-01-02". Curve dates
// are already midnight in their own location, so no zone conversion is done.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// IsBusinessDay checks if the given date is a bond market business day
// (not weekend, not a full-day bond market holiday).
func IsBusinessDay(t time.Time) bool {
	t = t.In(ET)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !IsBondHoliday(t)
}

// BusinessDaysBetween returns the number of business days between two dates (exclusive of end).
func BusinessDaysBetween(start, end time.Time) int {
	start = start.In(ET)
	end = end.In(ET)
	count := 0
	for current := start; current.Before(end); current = current.AddDate(0, 0, 1) {
		if IsBusinessDay(current) {
			count++
		}
	}
	return count
}

// PrevBusinessDay returns the business day before the given date.
func PrevBusinessDay(from time.Time) time.Time {
	prev := from.In(ET).AddDate(0, 0, -1)
	for !IsBusinessDay(prev) {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}

// IsBondHoliday checks the SIFMA full-close calendar.
// This list should be updated annually.
func IsBondHoliday(t time.Time) bool {
	_, ok := bondHolidays[t.In(ET).Format("2006-01-02")]
	return ok
}

// SIFMA recommended full-day US bond market closes.
var bondHolidays = map[string]string{
	"2025-01-01": "New Year's Day",
	"2025-01-09": "National Day of Mourning",
	"2025-01-20": "Martin Luther King Jr. Day",
	"2025-02-17": "Presidents Day",
	"2025-04-18": "Good Friday",
	"2025-05-26": "Memorial Day",
	"2025-06-19": "Juneteenth",
	"2025-07-04": "Independence Day",
	"2025-09-01": "Labor Day",
	"2025-10-13": "Columbus Day",
	"2025-11-11": "Veterans Day",
	"2025-11-27": "Thanksgiving Day",
	"2025-12-25": "Christmas Day",
	"2026-01-01": "New Year's Day",
	"2026-01-19": "Martin Luther King Jr. Day",
	"2026-02-16": "Presidents Day",
	"2026-04-03": "Good Friday",
	"2026-05-25": "Memorial Day",
	"2026-06-19": "Juneteenth",
	"2026-07-03": "Independence Day (observed)",
	"2026-09-07": "Labor Day",
	"2026-10-12": "Columbus Day",
	"2026-11-11": "Veterans Day",
	"2026-11-26": "Thanksgiving Day",
	"2026-12-25": "Christmas Day",
}

// HolidayName returns the holiday name for a date, or "".
func HolidayName(t time.Time) string {
	return bondHolidays[t.In(ET).Format("2006-01-02")]
}
