package utils

import "testing"

func TestFormatBps(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{0, "0.00 bps"},
		{0.01, "1.00 bps"},
		{0.0123, "1.23 bps"},
		{-0.25, "-25.00 bps"},
		{1.5, "150.00 bps"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatBps(tt.input)
			if result != tt.expected {
				t.Errorf("FormatBps(%f) = %s, want %s", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatYield(t *testing.T) {
	if got := FormatYield(4.3); got != "4.3000%" {
		t.Errorf("FormatYield(4.3) = %s, want 4.3000%%", got)
	}
}

func TestFormatPctBps(t *testing.T) {
	got := FormatPctBps(0.012345)
	want := "0.012345% (1.23 bps)"
	if got != want {
		t.Errorf("FormatPctBps = %q, want %q", got, want)
	}
}

func TestFormatSigned(t *testing.T) {
	tests := []struct {
		input    float64
		places   int32
		expected string
	}{
		{0.12345, 4, "+0.1235"},
		{-0.5, 2, "-0.50"},
		{0, 1, "+0.0"},
	}
	for _, tt := range tests {
		if got := FormatSigned(tt.input, tt.places); got != tt.expected {
			t.Errorf("FormatSigned(%f, %d) = %s, want %s", tt.input, tt.places, got, tt.expected)
		}
	}
}
