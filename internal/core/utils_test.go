package core

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2024-07-15", "2024-07-15", false},
		{"2023-01-01", "2023-01-01", false},
		{"invalid", "", true},
		{"07/15/2024", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.Format(APIDateFmt) != tt.want {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got.Format(APIDateFmt), tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2024-01-15T10:00:00Z", "2024-01-15T10:00:00Z", false},
		{"2024-07-02T08:26:45.700+0300", "2024-07-02T05:26:45Z", false},
		{"2024-07-02T08:26:45+0300", "2024-07-02T05:26:45Z", false},
		{"2024-07-02", "2024-07-02T00:00:00Z", false},
		{"", "", true},
		{"yesterday", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseTimestamp(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.UTC().Truncate(time.Second).Format(time.RFC3339) != tt.want {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got.UTC().Format(time.RFC3339), tt.want)
			}
		})
	}
}

func TestParseDateSpec(t *testing.T) {
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	today := DateOnly(now)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"exact date", "2024-07-15", "2024-07-15", false},
		{"today", "today", "2024-07-15", false},
		{"yesterday", "yesterday", "2024-07-14", false},
		{"relative d-1", "d-1", today.AddDate(0, 0, -1).Format(APIDateFmt), false},
		{"relative d-7", "d-7", today.AddDate(0, 0, -7).Format(APIDateFmt), false},
		{"relative w-1", "w-1", today.AddDate(0, 0, -7).Format(APIDateFmt), false},
		{"relative m-1", "m-1", "2024-06-15", false},
		{"relative y-1", "y-1", "2023-07-15", false},
		{"month/day past", "7/1", "2024-07-01", false},
		{"month/day future wraps", "12/25", "2023-12-25", false},
		{"invalid", "invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDateSpec(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDateSpec(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.Format(APIDateFmt) != tt.want {
				t.Errorf("ParseDateSpec(%q) = %v, want %v", tt.input, got.Format(APIDateFmt), tt.want)
			}
		})
	}
}

func TestGetTimeRange(t *testing.T) {
	now := time.Date(2024, 2, 14, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		period    string
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{"this-week", "2024-02-12", "2024-02-18", false},
		{"last-week", "2024-02-05", "2024-02-11", false},
		{"this-month", "2024-02-01", "2024-02-29", false},
		{"last-month", "2024-01-01", "2024-01-31", false},
		{"this-quarter", "2024-01-01", "2024-03-31", false},
		{"last-quarter", "2023-10-01", "2023-12-31", false},
		{"this-year", "2024-01-01", "2024-12-31", false},
		{"last-year", "2023-01-01", "2023-12-31", false},
		{"invalid-period", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			start, end, err := GetTimeRange(tt.period, now)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetTimeRange(%q) error = %v, wantErr %v", tt.period, err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if FormatDate(start) != tt.wantStart {
				t.Errorf("GetTimeRange(%q) start = %v, want %v", tt.period, FormatDate(start), tt.wantStart)
			}
			if FormatDate(end) != tt.wantEnd {
				t.Errorf("GetTimeRange(%q) end = %v, want %v", tt.period, FormatDate(end), tt.wantEnd)
			}
		})
	}
}

func TestMonthOf(t *testing.T) {
	ts := time.Date(2024, 1, 31, 23, 30, 0, 0, time.FixedZone("x", -3600))
	if got := MonthOf(ts); got != "2024-02" {
		t.Errorf("Expected 2024-02 after UTC conversion, got %s", got)
	}
}
