package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidThresholds is returned when a threshold set fails validation
	ErrInvalidThresholds = errors.New("invalid thresholds")

	// ErrNoSettings is returned by a settings source with nothing new to offer
	ErrNoSettings = errors.New("no new settings")
)

// Thresholds is the tunable detection and deterrent profile.
// It is always replaced as a whole, never field by field.
type Thresholds struct {
	BarkThreshold   float64       `json:"bark_threshold" yaml:"bark_threshold"` // Window and envelope level of a bark
	NoiseFloor      float64       `json:"noise_floor" yaml:"noise_floor"`       // Envelope level treated as silence
	FreqMin         float64       `json:"freq_min" yaml:"freq_min"`             // Hz
	FreqMax         float64       `json:"freq_max" yaml:"freq_max"`             // Hz
	DurationMin     time.Duration `json:"duration_min" yaml:"duration_min"`
	DurationMax     time.Duration `json:"duration_max" yaml:"duration_max"`
	BuzzerFrequency float64       `json:"buzzer_frequency" yaml:"buzzer_frequency"` // Hz
	BuzzerLinger    time.Duration `json:"buzzer_linger" yaml:"buzzer_linger"`
}

// Validate checks that the set is internally consistent
func (t Thresholds) Validate() error {
	var errs []error

	for _, f := range []struct {
		name  string
		value float64
	}{
		{"bark_threshold", t.BarkThreshold},
		{"noise_floor", t.NoiseFloor},
		{"freq_min", t.FreqMin},
		{"freq_max", t.FreqMax},
		{"buzzer_frequency", t.BuzzerFrequency},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			errs = append(errs, fmt.Errorf("%s must be a finite number, got %v", f.name, f.value))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidThresholds, errors.Join(errs...))
	}

	if t.FreqMin < 0 || t.FreqMin >= t.FreqMax {
		errs = append(errs, fmt.Errorf("freq_min %.1f must be non-negative and below freq_max %.1f", t.FreqMin, t.FreqMax))
	}
	if t.DurationMin < 0 || t.DurationMin >= t.DurationMax {
		errs = append(errs, fmt.Errorf("duration_min %v must be non-negative and below duration_max %v", t.DurationMin, t.DurationMax))
	}
	if t.NoiseFloor < 0 || t.NoiseFloor >= t.BarkThreshold {
		errs = append(errs, fmt.Errorf("noise_floor %.1f must be non-negative and below bark_threshold %.1f", t.NoiseFloor, t.BarkThreshold))
	}
	if t.BuzzerFrequency <= 0 {
		errs = append(errs, fmt.Errorf("buzzer_frequency %.1f must be positive", t.BuzzerFrequency))
	}
	if t.BuzzerLinger <= 0 {
		errs = append(errs, fmt.Errorf("buzzer_linger %v must be positive", t.BuzzerLinger))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidThresholds, errors.Join(errs...))
	}
	return nil
}

// ThresholdsUpdate is a partial threshold set received from a remote source.
// Nil fields keep their current value.
type ThresholdsUpdate struct {
	BarkThreshold   *float64  `json:"bark_threshold,omitempty" yaml:"bark_threshold"`
	NoiseFloor      *float64  `json:"noise_floor,omitempty" yaml:"noise_floor"`
	FreqMin         *float64  `json:"freq_min,omitempty" yaml:"freq_min"`
	FreqMax         *float64  `json:"freq_max,omitempty" yaml:"freq_max"`
	DurationMinMs   *float64  `json:"duration_min_ms,omitempty" yaml:"duration_min_ms"`
	DurationMaxMs   *float64  `json:"duration_max_ms,omitempty" yaml:"duration_max_ms"`
	BuzzerFrequency *float64  `json:"buzzer_frequency,omitempty" yaml:"buzzer_frequency"`
	BuzzerLingerSec *float64  `json:"buzzer_linger_s,omitempty" yaml:"buzzer_linger_s"`
	ReceivedAt      time.Time `json:"-" yaml:"-"`
}

// Empty reports whether the update changes nothing
func (u ThresholdsUpdate) Empty() bool {
	return u.BarkThreshold == nil && u.NoiseFloor == nil &&
		u.FreqMin == nil && u.FreqMax == nil &&
		u.DurationMinMs == nil && u.DurationMaxMs == nil &&
		u.BuzzerFrequency == nil && u.BuzzerLingerSec == nil
}

// Validate rejects values that no threshold set can hold, such as NaN
func (u ThresholdsUpdate) Validate() error {
	var errs []error
	for _, f := range []struct {
		name  string
		value *float64
	}{
		{"bark_threshold", u.BarkThreshold},
		{"noise_floor", u.NoiseFloor},
		{"freq_min", u.FreqMin},
		{"freq_max", u.FreqMax},
		{"duration_min_ms", u.DurationMinMs},
		{"duration_max_ms", u.DurationMaxMs},
		{"buzzer_frequency", u.BuzzerFrequency},
		{"buzzer_linger_s", u.BuzzerLingerSec},
	} {
		if f.value != nil && (math.IsNaN(*f.value) || math.IsInf(*f.value, 0)) {
			errs = append(errs, fmt.Errorf("%s must be a finite number, got %v", f.name, *f.value))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidThresholds, errors.Join(errs...))
	}
	return nil
}

// ApplyTo returns base with the update's fields overlaid. The result is not validated.
func (u ThresholdsUpdate) ApplyTo(base Thresholds) Thresholds {
	next := base
	if u.BarkThreshold != nil {
		next.BarkThreshold = *u.BarkThreshold
	}
	if u.NoiseFloor != nil {
		next.NoiseFloor = *u.NoiseFloor
	}
	if u.FreqMin != nil {
		next.FreqMin = *u.FreqMin
	}
	if u.FreqMax != nil {
		next.FreqMax = *u.FreqMax
	}
	if u.DurationMinMs != nil {
		next.DurationMin = millis(*u.DurationMinMs)
	}
	if u.DurationMaxMs != nil {
		next.DurationMax = millis(*u.DurationMaxMs)
	}
	if u.BuzzerFrequency != nil {
		next.BuzzerFrequency = *u.BuzzerFrequency
	}
	if u.BuzzerLingerSec != nil {
		next.BuzzerLinger = time.Duration(*u.BuzzerLingerSec * float64(time.Second))
	}
	return next
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
