package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validThresholds() Thresholds {
	return Thresholds{
		BarkThreshold:   700,
		NoiseFloor:      150,
		FreqMin:         600,
		FreqMax:         1600,
		DurationMin:     60 * time.Millisecond,
		DurationMax:     250 * time.Millisecond,
		BuzzerFrequency: 19000,
		BuzzerLinger:    5 * time.Second,
	}
}

func TestSpectrumPeak(t *testing.T) {
	spec := Spectrum{
		Magnitudes: []float64{100, 1, 5, 9, 9, 2, 0, 0},
		BinWidth:   100,
	}

	t.Run("ties resolve to the lowest frequency", func(t *testing.T) {
		i, mag, ok := spec.Peak(0, 700)
		require.True(t, ok)
		assert.Equal(t, 3, i)
		assert.Equal(t, 9.0, mag)
		assert.Equal(t, 300.0, spec.Frequency(i))
	})

	t.Run("DC is never the peak", func(t *testing.T) {
		i, _, ok := spec.Peak(0, 100)
		require.True(t, ok)
		assert.Equal(t, 1, i)
	})

	t.Run("silent band has no peak", func(t *testing.T) {
		_, _, ok := spec.Peak(600, 700)
		assert.False(t, ok)
	})

	t.Run("band energy", func(t *testing.T) {
		assert.Equal(t, 25.0+81+81, spec.BandEnergy(200, 400))
	})
}

func TestThresholdsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Thresholds)
		valid  bool
	}{
		{"defaults", func(*Thresholds) {}, true},
		{"inverted band", func(t *Thresholds) { t.FreqMin, t.FreqMax = 1600, 600 }, false},
		{"empty band", func(t *Thresholds) { t.FreqMax = t.FreqMin }, false},
		{"inverted durations", func(t *Thresholds) { t.DurationMin = time.Second }, false},
		{"noise floor above threshold", func(t *Thresholds) { t.NoiseFloor = 800 }, false},
		{"no buzzer frequency", func(t *Thresholds) { t.BuzzerFrequency = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := validThresholds()
			tt.mutate(&th)
			err := th.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidThresholds))
		})
	}
}

func TestThresholdsUpdateApplyTo(t *testing.T) {
	freqMax := 2000.0
	durMin := 80.0
	linger := 2.5
	u := ThresholdsUpdate{FreqMax: &freqMax, DurationMinMs: &durMin, BuzzerLingerSec: &linger}

	next := u.ApplyTo(validThresholds())

	assert.False(t, u.Empty())
	assert.True(t, ThresholdsUpdate{}.Empty())
	assert.Equal(t, 600.0, next.FreqMin)
	assert.Equal(t, 2000.0, next.FreqMax)
	assert.Equal(t, 80*time.Millisecond, next.DurationMin)
	assert.Equal(t, 2500*time.Millisecond, next.BuzzerLinger)
}

func TestClassifierStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "cooling_down", StateCoolingDown.String())
	assert.Equal(t, "unknown", ClassifierState(42).String())
}

func TestSampleWindowDuration(t *testing.T) {
	w := SampleWindow{Start: time.Unix(0, 0), SampleRate: 10000, Samples: make([]int16, 256)}
	assert.Equal(t, 25600*time.Microsecond, w.Duration())
	assert.Equal(t, time.Unix(0, 0).Add(25600*time.Microsecond), w.End())
}
