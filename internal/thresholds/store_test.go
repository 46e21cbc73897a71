package thresholds

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profile(freqMin, freqMax float64) models.Thresholds {
	return models.Thresholds{
		BarkThreshold:   700,
		NoiseFloor:      150,
		FreqMin:         freqMin,
		FreqMax:         freqMax,
		DurationMin:     60 * time.Millisecond,
		DurationMax:     250 * time.Millisecond,
		BuzzerFrequency: 19000,
		BuzzerLinger:    5 * time.Second,
	}
}

func TestNewStoreRejectsInvalid(t *testing.T) {
	_, err := NewStore(profile(900, 600))
	assert.ErrorIs(t, err, models.ErrInvalidThresholds)
}

func TestSwapKeepsOldSetOnInvalid(t *testing.T) {
	s, err := NewStore(profile(600, 1600))
	require.NoError(t, err)

	_, err = s.Swap(profile(2000, 1000))
	assert.ErrorIs(t, err, models.ErrInvalidThresholds)
	assert.Equal(t, profile(600, 1600), s.Load())
	assert.Equal(t, uint64(0), s.Version())

	prev, err := s.Swap(profile(300, 600))
	require.NoError(t, err)
	assert.Equal(t, profile(600, 1600), prev)
	assert.Equal(t, profile(300, 600), s.Load())
	assert.Equal(t, uint64(1), s.Version())
}

func TestApplyPartialUpdate(t *testing.T) {
	s, err := NewStore(profile(600, 1600))
	require.NoError(t, err)

	bad := 500.0
	_, err = s.Apply(models.ThresholdsUpdate{FreqMax: &bad})
	assert.Error(t, err)
	assert.Equal(t, 1600.0, s.Load().FreqMax)

	good := 1800.0
	_, err = s.Apply(models.ThresholdsUpdate{FreqMax: &good})
	require.NoError(t, err)
	assert.Equal(t, 1800.0, s.Load().FreqMax)
}

func TestNonFiniteValuesRejected(t *testing.T) {
	s, err := NewStore(profile(600, 1600))
	require.NoError(t, err)

	nan, inf := math.NaN(), math.Inf(1)
	tests := []struct {
		name   string
		update models.ThresholdsUpdate
	}{
		{"nan band and threshold", models.ThresholdsUpdate{FreqMin: &nan, BarkThreshold: &nan}},
		{"nan noise floor", models.ThresholdsUpdate{NoiseFloor: &nan}},
		{"infinite freq_max", models.ThresholdsUpdate{FreqMax: &inf}},
		{"nan duration", models.ThresholdsUpdate{DurationMaxMs: &nan}},
		{"infinite linger", models.ThresholdsUpdate{BuzzerLingerSec: &inf}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Apply(tt.update)
			assert.ErrorIs(t, err, models.ErrInvalidThresholds)
			assert.Equal(t, profile(600, 1600), s.Load())
		})
	}

	bad := profile(600, 1600)
	bad.BarkThreshold = nan
	_, err = s.Swap(bad)
	assert.ErrorIs(t, err, models.ErrInvalidThresholds)
	assert.Equal(t, uint64(0), s.Version())
}

// Readers racing a writer must only ever see one of the two published
// profiles, never freq_min from one paired with freq_max from the other.
func TestSwapIsAtomicForReaders(t *testing.T) {
	low, high := profile(300, 600), profile(600, 1600)
	s, err := NewStore(high)
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	torn := make(chan models.Thresholds, 1)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				th := s.Load()
				if th != low && th != high {
					select {
					case torn <- th:
					default:
					}
					return
				}
			}
		}()
	}

	for i := 0; i < 10000; i++ {
		next := low
		if i%2 == 1 {
			next = high
		}
		_, err := s.Swap(next)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	select {
	case th := <-torn:
		t.Fatalf("reader observed a torn threshold set: %+v", th)
	default:
	}
}
