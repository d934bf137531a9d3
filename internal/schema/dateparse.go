package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// twoDigitYearPivot disambiguates two-digit years: < 50 maps to 2000s,
// >= 50 maps to 1900s.
const twoDigitYearPivot = 50

// ParseDate parses the date formats seen in invoice exports: day-first
// (DD/MM/YYYY), ISO (YYYY-MM-DD), and the same with "-" or "." as the
// separator. Two-digit years go through the 50-year pivot. Impossible
// calendar dates (day 32, month 13) are rejected, never clamped.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	parts := splitDate(s)
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
		}
		nums[i] = n
	}

	var year, month, day int
	if len(parts[0]) == 4 {
		// ISO: YYYY-MM-DD
		year, month, day = nums[0], nums[1], nums[2]
	} else {
		// Day-first: DD-MM-YYYY or DD-MM-YY
		day, month, year = nums[0], nums[1], nums[2]
		if len(parts[2]) <= 2 {
			if year < twoDigitYearPivot {
				year += 2000
			} else {
				year += 1900
			}
		}
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("invalid calendar date: %q", s)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range components (Jan 32 becomes Feb 1),
	// so a round-trip mismatch means the date was not a real calendar day.
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid calendar date: %q", s)
	}
	return t, nil
}

// splitDate splits on the first separator found among "/", "-", ".".
func splitDate(s string) []string {
	for _, sep := range []string{"/", "-", "."} {
		if strings.Contains(s, sep) {
			return strings.Split(s, sep)
		}
	}
	return []string{s}
}
