package reports

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNextDaily(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"before today's slot",
			time.Date(2025, 9, 1, 0, 0, 30, 0, loc),
			time.Date(2025, 9, 1, 0, 1, 0, 0, loc),
		},
		{
			"after today's slot",
			time.Date(2025, 9, 1, 12, 0, 0, 0, loc),
			time.Date(2025, 9, 2, 0, 1, 0, 0, loc),
		},
		{
			"exactly on the slot rolls over",
			time.Date(2025, 9, 1, 0, 1, 0, 0, loc),
			time.Date(2025, 9, 2, 0, 1, 0, 0, loc),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextDaily(tt.now, loc)
			if !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNextWeekly(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)

	// 2025-09-01 is a Monday.
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"monday morning before slot",
			time.Date(2025, 9, 1, 8, 0, 0, 0, loc),
			time.Date(2025, 9, 1, 9, 0, 0, 0, loc),
		},
		{
			"monday after slot",
			time.Date(2025, 9, 1, 10, 0, 0, 0, loc),
			time.Date(2025, 9, 8, 9, 0, 0, 0, loc),
		},
		{
			"midweek",
			time.Date(2025, 9, 3, 12, 0, 0, 0, loc),
			time.Date(2025, 9, 8, 9, 0, 0, 0, loc),
		},
		{
			"sunday evening",
			time.Date(2025, 9, 7, 22, 0, 0, 0, loc),
			time.Date(2025, 9, 8, 9, 0, 0, 0, loc),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextWeekly(tt.now, loc)
			if !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFormatDateID(t *testing.T) {
	// 2025-08-31 is a Sunday.
	got := FormatDateID(time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC))
	want := "Minggu, 31 Agustus 2025"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFormatRupiah(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{950, "950"},
		{22000, "22.000"},
		{1234567, "1.234.567"},
		{-5000, "-5.000"},
	}
	for _, tt := range tests {
		got := FormatRupiah(decimal.NewFromInt(tt.in))
		if got != tt.want {
			t.Errorf("FormatRupiah(%d): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
