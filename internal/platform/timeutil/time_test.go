package timeutil

import (
	"testing"
	"time"
)

func TestNowIsUTCMicroseconds(t *testing.T) {
	now := Now()
	if now.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", now.Location())
	}
	if now.Nanosecond()%1000 != 0 {
		t.Fatalf("expected microsecond precision, got %d ns", now.Nanosecond())
	}
}

func TestFormatFixedPrecision(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected string
	}{
		{
			name:     "whole seconds",
			input:    time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			expected: "2024-01-15T10:30:00.000000Z",
		},
		{
			name:     "microseconds",
			input:    time.Date(2024, 1, 15, 10, 30, 0, 123456000, time.UTC),
			expected: "2024-01-15T10:30:00.123456Z",
		},
		{
			name:     "non-UTC converted",
			input:    time.Date(2024, 1, 15, 12, 30, 0, 0, time.FixedZone("EET", 2*60*60)),
			expected: "2024-01-15T10:30:00.000000Z",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.input); got != tt.expected {
				t.Fatalf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	in := time.Date(2025, 3, 1, 8, 0, 0, 42000, time.UTC)
	out, err := Parse(Format(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Equal(in) {
		t.Fatalf("expected %v, got %v", in, out)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("yesterday"); err == nil {
		t.Fatal("expected error for non-RFC3339 input")
	}
}
