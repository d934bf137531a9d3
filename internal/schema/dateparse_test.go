package schema

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string // want formatted as 2006-01-02; empty means error expected
	}{
		{name: "ISO", input: "2024-03-15", want: "2024-03-15"},
		{name: "day first slash", input: "15/03/2024", want: "2024-03-15"},
		{name: "day first dash", input: "15-03-2024", want: "2024-03-15"},
		{name: "day first dot", input: "15.03.2024", want: "2024-03-15"},
		{name: "ISO with slash", input: "2024/03/15", want: "2024-03-15"},
		{name: "surrounding whitespace", input: "  15/03/2024  ", want: "2024-03-15"},
		{name: "two digit year below pivot", input: "15/03/24", want: "2024-03-15"},
		{name: "two digit year at pivot", input: "15/03/50", want: "1950-03-15"},
		{name: "two digit year above pivot", input: "15/03/87", want: "1987-03-15"},
		{name: "leap day", input: "29/02/2024", want: "2024-02-29"},
		{name: "day 32", input: "32/01/2024"},
		{name: "month 13", input: "15/13/2024"},
		{name: "non leap february 29", input: "29/02/2023"},
		{name: "day zero", input: "00/03/2024"},
		{name: "empty", input: ""},
		{name: "not a date", input: "yesterday"},
		{name: "two parts only", input: "03/2024"},
		{name: "text component", input: "15/Mar/2024"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDate(tc.input)
			if tc.want == "" {
				if err == nil {
					t.Errorf("ParseDate(%q) = %v, expected error", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate(%q) returned error: %v", tc.input, err)
			}
			if formatted := got.Format("2006-01-02"); formatted != tc.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tc.input, formatted, tc.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("ParseDate(%q) location = %v, want UTC", tc.input, got.Location())
			}
		})
	}
}

func TestParseDateNeverClamps(t *testing.T) {
	// time.Date would normalize Jan 32 to Feb 1; the parser must reject
	// it instead of silently shifting the date.
	if got, err := ParseDate("2024-01-32"); err == nil {
		t.Errorf("expected rejection of day 32, got %v", got)
	}
}
