package dsp

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSampleRate = 10000.0
	testSize       = 256
)

func sineWindow(freq, amplitude float64, size int) models.SampleWindow {
	samples := make([]int16, size)
	for i := range samples {
		t := float64(i) / testSampleRate
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*freq*t))
	}
	return models.SampleWindow{Start: time.Unix(0, 0), SampleRate: int(testSampleRate), Samples: samples}
}

func TestNewAnalyzerRejectsBadSizes(t *testing.T) {
	for _, size := range []int{0, 1, 3, 100, 255} {
		_, err := NewAnalyzer(testSampleRate, size)
		assert.True(t, errors.Is(err, ErrSizeNotPowerOfTwo), "size %d", size)
	}

	_, err := NewAnalyzer(0, 256)
	assert.ErrorIs(t, err, ErrInvalidSampleRate)
}

func TestAnalyzeBinCount(t *testing.T) {
	for _, size := range []int{2, 8, 64, 256, 1024} {
		a, err := NewAnalyzer(testSampleRate, size)
		require.NoError(t, err)

		spec, err := a.Analyze(sineWindow(900, 1000, size))
		require.NoError(t, err)
		assert.Len(t, spec.Magnitudes, size/2)
		assert.Equal(t, testSampleRate/float64(size), spec.BinWidth)
	}
}

func TestAnalyzeSilenceIsZero(t *testing.T) {
	a, err := NewAnalyzer(testSampleRate, testSize)
	require.NoError(t, err)

	spec, err := a.Analyze(models.SampleWindow{Samples: make([]int16, testSize)})
	require.NoError(t, err)
	for i, m := range spec.Magnitudes {
		assert.Zero(t, m, "bin %d", i)
	}
}

func TestAnalyzeRemovesBias(t *testing.T) {
	a, err := NewAnalyzer(testSampleRate, testSize)
	require.NoError(t, err)

	samples := make([]int16, testSize)
	for i := range samples {
		samples[i] = 512
	}
	spec, err := a.Analyze(models.SampleWindow{Samples: samples})
	require.NoError(t, err)
	assert.InDelta(t, 0, spec.Magnitudes[0], 1e-9)
}

func TestAnalyzeFindsTone(t *testing.T) {
	a, err := NewAnalyzer(testSampleRate, testSize)
	require.NoError(t, err)

	spec, err := a.Analyze(sineWindow(900, 2000, testSize))
	require.NoError(t, err)

	i, _, ok := spec.Peak(0, testSampleRate/2)
	require.True(t, ok)
	assert.InDelta(t, 900, spec.Frequency(i), a.BinWidth())
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	a, err := NewAnalyzer(testSampleRate, testSize)
	require.NoError(t, err)

	w := sineWindow(1234, 1500, testSize)
	first, err := a.Analyze(w)
	require.NoError(t, err)
	second, err := a.Analyze(w)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAnalyzeWrongSize(t *testing.T) {
	a, err := NewAnalyzer(testSampleRate, testSize)
	require.NoError(t, err)

	_, err = a.Analyze(sineWindow(900, 1000, 128))
	assert.ErrorIs(t, err, ErrWindowSize)
}
