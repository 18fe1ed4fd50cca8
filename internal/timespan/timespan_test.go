package timespan

import (
	"errors"
	"testing"
	"time"
)

func TestFromSecondsNormalizes(t *testing.T) {
	tests := []struct {
		total int64
		want  TimeSpan
	}{
		{0, TimeSpan{}},
		{-5, TimeSpan{}},
		{59, New(0, 0, 59)},
		{60, New(0, 1, 0)},
		{3599, New(0, 59, 59)},
		{3600, New(1, 0, 0)},
		{90061, New(25, 1, 1)},
	}

	for _, tt := range tests {
		got := FromSeconds(tt.total)
		if got != tt.want {
			t.Errorf("FromSeconds(%d) = %v, want %v", tt.total, got, tt.want)
		}
		if got.Minutes < 0 || got.Minutes > 59 || got.Seconds < 0 || got.Seconds > 59 {
			t.Errorf("FromSeconds(%d) not normalized: %+v", tt.total, got)
		}
	}
}

func TestAddKeepsNormalForm(t *testing.T) {
	sum := New(0, 5, 0).Add(New(0, 2, 0))
	if sum != New(0, 7, 0) {
		t.Fatalf("expected 00:07:00, got %s", sum)
	}

	carry := New(0, 59, 45).Add(New(0, 0, 30))
	if carry != New(1, 0, 15) {
		t.Fatalf("expected 01:00:15, got %s", carry)
	}

	if got := New(0, 0, 3).AddSeconds(-10); !got.IsZero() {
		t.Fatalf("expected clamp at zero, got %s", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		span    TimeSpan
		wantErr bool
	}{
		{"zero", TimeSpan{}, false},
		{"max components", New(100, 59, 59), false},
		{"negative hours", New(-1, 0, 0), true},
		{"minutes overflow", New(0, 60, 0), true},
		{"seconds overflow", New(0, 0, 60), true},
		{"negative seconds", New(0, 0, -1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.span.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeSpan
		wantErr bool
	}{
		{"00:05:00", New(0, 5, 0), false},
		{"1:02:03", New(1, 2, 3), false},
		{"25:00", New(0, 25, 0), false},
		{"90", New(0, 1, 30), false},
		{"25m", New(0, 25, 0), false},
		{"1h30m", New(1, 30, 0), false},
		{"0", TimeSpan{}, false},
		{"", TimeSpan{}, true},
		{"00:60:00", TimeSpan{}, true},
		{"-5", TimeSpan{}, true},
		{"1.5s", TimeSpan{}, true},
		{"a:b", TimeSpan{}, true},
		{"1:2:3:4", TimeSpan{}, true},
		{"-1m", TimeSpan{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestStringAndDuration(t *testing.T) {
	span := New(1, 2, 3)
	if span.String() != "01:02:03" {
		t.Fatalf("unexpected string %q", span.String())
	}
	if span.Duration() != time.Hour+2*time.Minute+3*time.Second {
		t.Fatalf("unexpected duration %s", span.Duration())
	}
	if FromDuration(1500*time.Millisecond) != New(0, 0, 1) {
		t.Fatalf("expected truncation to whole seconds")
	}
}

func TestLookupPreset(t *testing.T) {
	span, err := LookupPreset("10 min")
	if err != nil {
		t.Fatalf("lookup preset: %v", err)
	}
	if span != New(0, 10, 0) {
		t.Fatalf("expected 10 minutes, got %s", span)
	}
	if _, err := LookupPreset("forever"); err == nil {
		t.Fatal("expected error for unknown preset")
	}
}
