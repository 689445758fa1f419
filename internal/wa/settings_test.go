package wa

import "testing"

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"local zero prefix", "081234567890", "6281234567890"},
		{"bare mobile prefix", "81234567890", "6281234567890"},
		{"already international", "6281234567890", "6281234567890"},
		{"formatted input", "+62 812-3456-7890", "6281234567890"},
		{"spaces and dashes local", "0812 3456 7890", "6281234567890"},
		{"empty", "", ""},
		{"no digits", "abc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatNumber(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
