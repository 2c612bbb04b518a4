package scheduler

import (
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxDelay is the largest single timer delay, in milliseconds, a job period
// may approach. Periods must stay strictly below it.
const MaxDelay = math.MaxInt32

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
)

// Interval is a composite period. Fields are additive and a zero field is
// treated as absent, so Interval{Minutes: 1, Seconds: 30} is 90 seconds.
type Interval struct {
	Milliseconds float64 `json:"milliseconds,omitempty" validate:"gte=0"`
	Seconds      float64 `json:"seconds,omitempty" validate:"gte=0"`
	Minutes      float64 `json:"minutes,omitempty" validate:"gte=0"`
	Hours        float64 `json:"hours,omitempty" validate:"gte=0"`
	Days         float64 `json:"days,omitempty" validate:"gte=0"`
}

var validate = validator.New()

// Every returns an Interval equal to d.
func Every(d time.Duration) Interval {
	return Interval{Milliseconds: float64(d) / float64(time.Millisecond)}
}

// Total returns the sum of all fields in milliseconds without validating it.
func (iv Interval) Total() float64 {
	return iv.Milliseconds +
		iv.Seconds*msPerSecond +
		iv.Minutes*msPerMinute +
		iv.Hours*msPerHour +
		iv.Days*msPerDay
}

// Validate checks that every field is non-negative and that the total lies
// in the open range (0, MaxDelay) and rounds to at least one nanosecond.
func (iv Interval) Validate() error {
	if err := validate.Struct(iv); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ConfigError{Field: verrs[0].Field(), Reason: "must not be negative"}
		}
		return &ConfigError{Field: "interval", Reason: err.Error()}
	}

	total := iv.Total()
	switch {
	case math.IsNaN(total) || math.IsInf(total, 0):
		return &ConfigError{Field: "interval", Reason: "must be a finite number"}
	case total <= 0:
		return &ConfigError{Field: "interval", Reason: "must be greater than zero"}
	case total >= MaxDelay:
		return &ConfigError{Field: "interval", Reason: "must be less than 2147483647 milliseconds"}
	case toDuration(total) <= 0:
		return &ConfigError{Field: "interval", Reason: "must be at least 1ns"}
	}
	return nil
}

// Duration validates the interval and converts it to a time.Duration.
func (iv Interval) Duration() (time.Duration, error) {
	if err := iv.Validate(); err != nil {
		return 0, err
	}
	return toDuration(iv.Total()), nil
}

func toDuration(ms float64) time.Duration {
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}
