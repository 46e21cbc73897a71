package aggregator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeasureRemovesBias(t *testing.T) {
	samples := make([]int16, 100)
	for i := range samples {
		samples[i] = 500
		if i%2 == 0 {
			samples[i] = 700
		}
	}

	level := Measure(samples)

	assert.InDelta(t, 600, level.DC, 1e-9)
	assert.InDelta(t, 100, level.Peak, 1e-9)
	assert.InDelta(t, 100, level.RMS, 1e-9)
	assert.False(t, level.Clipping)
	assert.InDelta(t, 20*math.Log10(100.0/32768.0), level.VolumeDB, 1e-9)
}

func TestMeasureSilenceAndClipping(t *testing.T) {
	silent := Measure(make([]int16, 64))
	assert.Equal(t, 0.0, silent.Peak)
	assert.Equal(t, calculateDecibels(1.0, 32768.0), silent.VolumeDB)

	empty := Measure(nil)
	assert.Equal(t, 0.0, empty.Peak)

	clipped := Measure([]int16{0, math.MaxInt16, 0, math.MinInt16})
	assert.True(t, clipped.Clipping)
}

func TestEnvelope(t *testing.T) {
	env := NewEnvelope(1.0, 0.5)

	assert.Equal(t, 1000.0, env.Update(1000))
	assert.Equal(t, 500.0, env.Update(0))
	assert.Equal(t, 250.0, env.Update(0))
	assert.Equal(t, 900.0, env.Update(900))

	env.Reset()
	assert.Equal(t, 0.0, env.Value())
}

func TestEnvelopeClampsCoefficients(t *testing.T) {
	env := NewEnvelope(0, 7)
	assert.Equal(t, 10.0, env.Update(10))
	assert.Equal(t, 0.0, env.Update(0))
}
