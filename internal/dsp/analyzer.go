// Package dsp turns sample windows into magnitude spectra.
package dsp

import (
	"errors"
	"fmt"
	"math/bits"
	"math/cmplx"

	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrSizeNotPowerOfTwo indicates the window size cannot be transformed
	ErrSizeNotPowerOfTwo = errors.New("window size must be a power of two")
	// ErrWindowSize indicates a window does not match the analyzer size
	ErrWindowSize = errors.New("sample window does not match analyzer size")
	// ErrInvalidSampleRate indicates a non-positive sample rate
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
)

// Analyzer computes Hann-windowed magnitude spectra of fixed-size windows.
// It keeps no state between calls apart from the precomputed window, so the
// same input always produces the same spectrum.
type Analyzer struct {
	sampleRate float64
	size       int
	hann       []float64
}

// NewAnalyzer creates an analyzer for windows of size samples
func NewAnalyzer(sampleRate float64, size int) (*Analyzer, error) {
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if size < 2 || bits.OnesCount(uint(size)) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrSizeNotPowerOfTwo, size)
	}

	return &Analyzer{
		sampleRate: sampleRate,
		size:       size,
		hann:       window.Hann(size),
	}, nil
}

// Size returns the window length the analyzer expects
func (a *Analyzer) Size() int {
	return a.size
}

// BinWidth returns the frequency resolution in Hz
func (a *Analyzer) BinWidth() float64 {
	return a.sampleRate / float64(a.size)
}

// Analyze returns size/2 magnitude bins for one window.
// Magnitude is |X[k]| of the real FFT, not power.
func (a *Analyzer) Analyze(w models.SampleWindow) (models.Spectrum, error) {
	if len(w.Samples) != a.size {
		return models.Spectrum{}, fmt.Errorf("%w: got %d samples, want %d", ErrWindowSize, len(w.Samples), a.size)
	}

	// 1. Remove the microphone bias, then taper
	input := make([]float64, a.size)
	for i, s := range w.Samples {
		input[i] = float64(s)
	}
	floats.AddConst(-floats.Sum(input)/float64(a.size), input)
	floats.Mul(input, a.hann)

	// 2. Transform
	spectrum := fft.FFTReal(input)

	// 3. Keep the non-negative frequencies below Nyquist
	mags := make([]float64, a.size/2)
	for i := range mags {
		mags[i] = cmplx.Abs(spectrum[i])
	}

	return models.Spectrum{
		Magnitudes: mags,
		BinWidth:   a.BinWidth(),
	}, nil
}
