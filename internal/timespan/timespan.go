package timespan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is returned when a duration fails boundary validation.
var ErrInvalid = errors.New("timespan: invalid duration")

var validate = validator.New()

// TimeSpan is an hours/minutes/seconds triple. The normalized form keeps
// minutes and seconds in [0,59]; only hours is unbounded.
type TimeSpan struct {
	Hours   int `json:"hours" yaml:"hours" toml:"hours" validate:"gte=0"`
	Minutes int `json:"minutes" yaml:"minutes" toml:"minutes" validate:"gte=0,lte=59"`
	Seconds int `json:"seconds" yaml:"seconds" toml:"seconds" validate:"gte=0,lte=59"`
}

// New returns the span for h:m:s without normalizing it.
func New(hours, minutes, seconds int) TimeSpan {
	return TimeSpan{Hours: hours, Minutes: minutes, Seconds: seconds}
}

// FromSeconds expresses a raw total in normalized form. Negative totals
// clamp to zero.
func FromSeconds(total int64) TimeSpan {
	if total <= 0 {
		return TimeSpan{}
	}
	return TimeSpan{
		Hours:   int(total / 3600),
		Minutes: int((total % 3600) / 60),
		Seconds: int(total % 60),
	}
}

// FromDuration truncates d to whole seconds.
func FromDuration(d time.Duration) TimeSpan {
	return FromSeconds(int64(d / time.Second))
}

// TotalSeconds returns the total number of seconds.
func (span TimeSpan) TotalSeconds() int64 {
	return int64(span.Hours)*3600 + int64(span.Minutes)*60 + int64(span.Seconds)
}

// Duration returns the span as a time.Duration.
func (span TimeSpan) Duration() time.Duration {
	return time.Duration(span.TotalSeconds()) * time.Second
}

// Normalize re-expresses the span so minutes and seconds are in [0,59].
func (span TimeSpan) Normalize() TimeSpan {
	return FromSeconds(span.TotalSeconds())
}

// Add returns the normalized sum of both spans.
func (span TimeSpan) Add(other TimeSpan) TimeSpan {
	return FromSeconds(span.TotalSeconds() + other.TotalSeconds())
}

// AddSeconds returns the normalized span shifted by delta seconds, clamped at zero.
func (span TimeSpan) AddSeconds(delta int64) TimeSpan {
	return FromSeconds(span.TotalSeconds() + delta)
}

// IsZero reports whether the span is exactly zero.
func (span TimeSpan) IsZero() bool {
	return span.TotalSeconds() == 0
}

// String formats the span as HH:MM:SS.
func (span TimeSpan) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", span.Hours, span.Minutes, span.Seconds)
}

// Validate rejects negative components and minutes or seconds of 60 or more.
func (span TimeSpan) Validate() error {
	if err := validate.Struct(span); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, span, err)
	}
	return nil
}

// Parse accepts HH:MM:SS, MM:SS, a bare number of seconds, or a Go duration
// string such as "25m" or "1h30m". The result is validated and normalized.
func Parse(value string) (TimeSpan, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return TimeSpan{}, fmt.Errorf("%w: empty value", ErrInvalid)
	}

	if strings.Contains(value, ":") {
		return parseClock(value)
	}

	if total, err := strconv.ParseInt(value, 10, 64); err == nil {
		if total < 0 {
			return TimeSpan{}, fmt.Errorf("%w: negative seconds %d", ErrInvalid, total)
		}
		return FromSeconds(total), nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return TimeSpan{}, fmt.Errorf("%w: %q", ErrInvalid, value)
	}
	if d < 0 {
		return TimeSpan{}, fmt.Errorf("%w: negative duration %s", ErrInvalid, d)
	}
	if d%time.Second != 0 {
		return TimeSpan{}, fmt.Errorf("%w: %s is not a whole number of seconds", ErrInvalid, d)
	}
	return FromDuration(d), nil
}

func parseClock(value string) (TimeSpan, error) {
	parts := strings.Split(value, ":")
	if len(parts) > 3 {
		return TimeSpan{}, fmt.Errorf("%w: %q has too many fields", ErrInvalid, value)
	}

	numbers := make([]int, 0, 3)
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return TimeSpan{}, fmt.Errorf("%w: %q is not an integer", ErrInvalid, part)
		}
		numbers = append(numbers, n)
	}
	for len(numbers) < 3 {
		numbers = append([]int{0}, numbers...)
	}

	span := New(numbers[0], numbers[1], numbers[2])
	if err := span.Validate(); err != nil {
		return TimeSpan{}, err
	}
	return span, nil
}
