package session

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		input   string
		want    Outcome
		wantErr bool
	}{
		{"completed", OutcomeCompleted, false},
		{"Cancelled", OutcomeCancelled, false},
		{"canceled", OutcomeCancelled, false},
		{" scrapped ", OutcomeScrapped, false},
		{"OTHER", OutcomeOther, false},
		{"", "", false},
		{"abandoned", "", true},
	}

	for _, tt := range tests {
		got, err := ParseOutcome(tt.input)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseOutcome(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseOutcome(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestOutcomeUnmarshalJSON(t *testing.T) {
	var log TimerLog
	if err := json.Unmarshal([]byte(`{"id":"a","outcome":"Scrapped"}`), &log); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if log.Outcome != OutcomeScrapped {
		t.Fatalf("expected scrapped, got %q", log.Outcome)
	}

	if err := json.Unmarshal([]byte(`{"outcome":"nope"}`), &log); err == nil {
		t.Fatal("expected error for invalid outcome")
	}
}

func TestCloneIsDeep(t *testing.T) {
	efficiency := 80.0
	original := TimerLog{
		ID:           "s1",
		PauseDetails: []Period{{Duration: 5}},
		Events: []Event{
			{Type: EventResume, PauseDuration: Int64(5)},
		},
		Analysis: &Analysis{
			Efficiency:    &efficiency,
			ActivePeriods: []Period{{Duration: 10}},
		},
	}

	clone := original.Clone()
	clone.PauseDetails[0].Duration = 99
	*clone.Events[0].PauseDuration = 99
	*clone.Analysis.Efficiency = 1
	clone.Analysis.ActivePeriods[0].Duration = 99

	if original.PauseDetails[0].Duration != 5 {
		t.Error("pause details shared with clone")
	}
	if *original.Events[0].PauseDuration != 5 {
		t.Error("event pointer shared with clone")
	}
	if *original.Analysis.Efficiency != 80 {
		t.Error("analysis pointer shared with clone")
	}
	if original.Analysis.ActivePeriods[0].Duration != 10 {
		t.Error("active periods shared with clone")
	}
}

func TestSecondsBetween(t *testing.T) {
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	if got := SecondsBetween(base, base.Add(2999*time.Millisecond)); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := SecondsBetween(base, base.Add(-time.Second)); got != 0 {
		t.Fatalf("expected 0 for reversed interval, got %d", got)
	}
}
