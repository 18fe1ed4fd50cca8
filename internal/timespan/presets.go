package timespan

import (
	"fmt"
	"strings"
)

// Preset is a named quick-start duration.
type Preset struct {
	Name string
	Span TimeSpan
}

// Presets lists the quick-start durations offered by the timer.
var Presets = []Preset{
	{Name: "5min", Span: New(0, 5, 0)},
	{Name: "10min", Span: New(0, 10, 0)},
	{Name: "15min", Span: New(0, 15, 0)},
	{Name: "30min", Span: New(0, 30, 0)},
	{Name: "1hour", Span: New(1, 0, 0)},
}

// LookupPreset finds a preset by name, ignoring case and spaces.
func LookupPreset(name string) (TimeSpan, error) {
	key := strings.ToLower(strings.ReplaceAll(name, " ", ""))
	for _, preset := range Presets {
		if preset.Name == key {
			return preset.Span, nil
		}
	}
	return TimeSpan{}, fmt.Errorf("unknown preset %q", name)
}
