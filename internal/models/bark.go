package models

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// SampleWindow is one fixed-size block of microphone samples
type SampleWindow struct {
	Start      time.Time `json:"start"`       // Capture time of the first sample
	SampleRate int       `json:"sample_rate"` // Hz
	Samples    []int16   `json:"-"`
}

// Duration returns how much audio the window covers
func (w SampleWindow) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

// End returns the capture time just after the last sample
func (w SampleWindow) End() time.Time {
	return w.Start.Add(w.Duration())
}

// Spectrum holds the magnitude bins of one analyzed window.
// Bin i is centered on i * BinWidth Hz.
type Spectrum struct {
	Magnitudes []float64
	BinWidth   float64 // Hz per bin (sample rate / window size)
}

// Frequency returns the center frequency of bin i
func (s Spectrum) Frequency(i int) float64 {
	return float64(i) * s.BinWidth
}

// Bin returns the index of the bin whose center is nearest to freq,
// clamped to the spectrum.
func (s Spectrum) Bin(freq float64) int {
	if s.BinWidth <= 0 || len(s.Magnitudes) == 0 {
		return 0
	}
	i := int(math.Round(freq / s.BinWidth))
	if i < 0 {
		return 0
	}
	if i >= len(s.Magnitudes) {
		return len(s.Magnitudes) - 1
	}
	return i
}

// Peak returns the strongest bin between lo and hi Hz inclusive.
// The DC bin is never a candidate. Equal magnitudes resolve to the lowest
// frequency. ok is false when the range holds no bins or only silence.
func (s Spectrum) Peak(lo, hi float64) (index int, magnitude float64, ok bool) {
	first, last := s.Bin(lo), s.Bin(hi)
	if first < 1 {
		first = 1
	}
	if last < first || first >= len(s.Magnitudes) {
		return 0, 0, false
	}

	band := s.Magnitudes[first : last+1]
	i := floats.MaxIdx(band)
	if band[i] <= 0 {
		return 0, 0, false
	}
	return first + i, band[i], true
}

// BandEnergy sums squared magnitudes between lo and hi Hz inclusive
func (s Spectrum) BandEnergy(lo, hi float64) float64 {
	first, last := s.Bin(lo), s.Bin(hi)
	if first < 1 {
		first = 1
	}
	var energy float64
	for i := first; i <= last && i < len(s.Magnitudes); i++ {
		energy += s.Magnitudes[i] * s.Magnitudes[i]
	}
	return energy
}

// BarkEvent is a confirmed bark
type BarkEvent struct {
	Timestamp         time.Time     `json:"timestamp"`          // Start of the bark
	PeakVolume        float64       `json:"peak_volume"`        // Highest envelope value seen
	DominantFrequency float64       `json:"dominant_frequency"` // Hz, strongest bin of the loudest window
	Duration          time.Duration `json:"duration"`
}

// ReportBatch is the set of barks accumulated since the last successful uplink
type ReportBatch struct {
	ID        string      `json:"id"`
	DeviceID  string      `json:"device_id"`
	CreatedAt time.Time   `json:"created_at"`
	Count     int         `json:"count"`  // Every bark in the batch, including ones without details
	Events    []BarkEvent `json:"events"` // Capped detail list, may be shorter than Count
}

// MaxPeakVolume returns the loudest event volume in the batch
func (b ReportBatch) MaxPeakVolume() float64 {
	var peak float64
	for _, e := range b.Events {
		if e.PeakVolume > peak {
			peak = e.PeakVolume
		}
	}
	return peak
}

// MeanFrequency returns the mean dominant frequency of the batch events
func (b ReportBatch) MeanFrequency() float64 {
	if len(b.Events) == 0 {
		return 0
	}
	var sum float64
	for _, e := range b.Events {
		sum += e.DominantFrequency
	}
	return sum / float64(len(b.Events))
}
