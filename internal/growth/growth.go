package growth

import (
	"errors"
	"math"
)

// Default values used when a config field is left at its zero value.
const (
	DefaultTotalDays  = 365
	DefaultDailyRate  = 0.01
	DefaultStartValue = 1.0
)

// ErrInvalidConfig is the sentinel every config validation error unwraps to.
var ErrInvalidConfig = errors.New("invalid simulation config")

// ConfigError describes which field of a Config was rejected.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// Config is the immutable input of one simulation run.
type Config struct {
	TotalDays  int     `json:"total_days"`
	DailyRate  float64 `json:"daily_rate"` // fractional growth per day, 0.01 == 1%
	StartValue float64 `json:"start_value"`
}

// DefaultConfig returns the "1% better every day for a year" config.
func DefaultConfig() Config {
	return Config{
		TotalDays:  DefaultTotalDays,
		DailyRate:  DefaultDailyRate,
		StartValue: DefaultStartValue,
	}
}

// Validate checks that the recurrence is well defined for the config.
func (c Config) Validate() error {
	if c.TotalDays < 1 {
		return &ConfigError{Field: "total_days", Message: "must be at least 1"}
	}
	if math.IsNaN(c.DailyRate) || math.IsInf(c.DailyRate, 0) {
		return &ConfigError{Field: "daily_rate", Message: "must be finite"}
	}
	if c.DailyRate <= -1 {
		return &ConfigError{Field: "daily_rate", Message: "must be greater than -1"}
	}
	if math.IsNaN(c.StartValue) || math.IsInf(c.StartValue, 0) || c.StartValue <= 0 {
		return &ConfigError{Field: "start_value", Message: "must be a positive finite number"}
	}
	return nil
}

// Point is one day of a trajectory. Baseline is the no-improvement reference
// and always equals the config's start value.
type Point struct {
	Day      int     `json:"day"`
	Value    float64 `json:"value"`
	Baseline float64 `json:"baseline"`
}

// Origin returns the day-0 point of the config.
func Origin(c Config) Point {
	return Point{Day: 0, Value: c.StartValue, Baseline: c.StartValue}
}

// Next applies one step of the recurrence: value * (1 + rate).
func Next(c Config, value float64) float64 {
	return value * (1 + c.DailyRate)
}

// ValueAt computes the closed-form value after day days.
//
// This is a pure function: startValue * (1 + dailyRate)^day.
// Negative days are clamped to 0.
func ValueAt(c Config, day int) float64 {
	if day <= 0 {
		return c.StartValue
	}
	return c.StartValue * math.Pow(1+c.DailyRate, float64(day))
}

// Project computes the full closed-form trajectory for days 0..TotalDays.
//
// The returned slice has TotalDays+1 points and points[k].Day == k.
// It is the reference the controller's incremental values are checked
// against, and serves "final value without animating" callers.
//
// Returns ErrInvalidConfig (wrapped in a *ConfigError) for invalid configs.
func Project(c Config) ([]Point, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	points := make([]Point, c.TotalDays+1)
	for day := 0; day <= c.TotalDays; day++ {
		points[day] = Point{
			Day:      day,
			Value:    ValueAt(c, day),
			Baseline: c.StartValue,
		}
	}
	return points, nil
}

// FinalValue returns the closed-form value at TotalDays.
func FinalValue(c Config) (float64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	return ValueAt(c, c.TotalDays), nil
}

// GrowthPercent expresses value relative to the start value, in percent.
func GrowthPercent(c Config, value float64) float64 {
	return (value/c.StartValue - 1) * 100
}
