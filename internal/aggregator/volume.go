package aggregator

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// VolumeConfig holds configuration for volume measurement
type VolumeConfig struct {
	ReferenceLevel float64 // Reference level for dB calculation (32768.0 for 16-bit)
	MinimumRMS     float64 // Minimum RMS to avoid log(0), represents silence threshold
}

// DefaultVolumeConfig returns default volume measurement configuration
func DefaultVolumeConfig() VolumeConfig {
	return VolumeConfig{
		ReferenceLevel: 32768.0, // Maximum value for signed 16-bit audio
		MinimumRMS:     1.0,     // Prevents log(0) and extremely low values
	}
}

// Level describes the loudness of one sample window
type Level struct {
	DC       float64 // Mean sample value (microphone bias)
	Peak     float64 // Largest absolute deviation from DC
	RMS      float64 // RMS around DC
	VolumeDB float64 // RMS in dBFS
	Clipping bool    // A sample sits at the int16 rail
}

// Measure computes the level of a window with the default configuration
func Measure(samples []int16) Level {
	return MeasureWithConfig(samples, DefaultVolumeConfig())
}

// MeasureWithConfig computes the level of a window.
// Microphones on an ADC pin sit on a bias voltage, so the mean is removed
// before peak and RMS are taken.
func MeasureWithConfig(samples []int16, config VolumeConfig) Level {
	if len(samples) == 0 {
		return Level{VolumeDB: calculateDecibels(config.MinimumRMS, config.ReferenceLevel)}
	}

	values := make([]float64, len(samples))
	var level Level
	for i, s := range samples {
		values[i] = float64(s)
		if s == math.MaxInt16 || s == math.MinInt16 {
			level.Clipping = true
		}
	}

	level.DC = floats.Sum(values) / float64(len(values))
	floats.AddConst(-level.DC, values)

	level.Peak = math.Max(math.Abs(floats.Max(values)), math.Abs(floats.Min(values)))
	level.RMS = floats.Norm(values, 2) / math.Sqrt(float64(len(values)))

	rms := level.RMS
	if rms < config.MinimumRMS {
		rms = config.MinimumRMS
	}
	level.VolumeDB = calculateDecibels(rms, config.ReferenceLevel)

	return level
}

// calculateDecibels converts RMS value to decibels
// Formula: dB = 20 * log10(RMS / reference)
func calculateDecibels(rms float64, reference float64) float64 {
	if rms <= 0 || reference <= 0 {
		return -80.0
	}

	db := 20.0 * math.Log10(rms/reference)

	// Clamp to the practical range of 16-bit audio
	if db < -80.0 {
		db = -80.0
	}
	if db > 0.0 {
		db = 0.0
	}

	return db
}
