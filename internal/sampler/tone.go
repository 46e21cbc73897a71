package sampler

import (
	"io"
	"math"
	"math/rand"
	"time"
)

// Segment is one stretch of a synthetic signal
type Segment struct {
	Duration  time.Duration
	Frequency float64 // Hz, 0 for no tone
	Amplitude float64 // Tone peak in sample units
	Noise     float64 // Uniform noise peak in sample units
}

// ToneSource generates a scripted sequence of tones and noise.
// The sine phase runs continuously across windows and the noise comes
// from a seeded generator, so a script always yields the same samples.
type ToneSource struct {
	sampleRate int
	segments   []Segment
	bias       float64
	rng        *rand.Rand

	segment int   // Current segment index
	offset  int   // Samples consumed from the current segment
	total   int64 // Samples produced overall
}

// NewToneSource creates a synthetic source
func NewToneSource(sampleRate int, seed int64, segments ...Segment) *ToneSource {
	return &ToneSource{
		sampleRate: sampleRate,
		segments:   segments,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// WithBias offsets every sample, imitating a microphone biased to mid-rail
func (s *ToneSource) WithBias(bias int16) *ToneSource {
	s.bias = float64(bias)
	return s
}

// Read fills buf. A script ending mid-window is padded with silence;
// the read after that returns io.EOF.
func (s *ToneSource) Read(buf []int16) error {
	s.skipFinished()
	if s.segment >= len(s.segments) {
		return io.EOF
	}

	for i := range buf {
		buf[i] = s.next()
	}
	return nil
}

func (s *ToneSource) skipFinished() {
	for s.segment < len(s.segments) && s.offset >= s.samplesIn(s.segments[s.segment]) {
		s.segment++
		s.offset = 0
	}
}

func (s *ToneSource) next() int16 {
	s.skipFinished()

	value := s.bias
	if s.segment < len(s.segments) {
		seg := s.segments[s.segment]
		t := float64(s.total) / float64(s.sampleRate)
		if seg.Frequency > 0 {
			value += seg.Amplitude * math.Sin(2*math.Pi*seg.Frequency*t)
		}
		if seg.Noise > 0 {
			value += seg.Noise * (2*s.rng.Float64() - 1)
		}
		s.offset++
	}
	s.total++

	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(value))))
}

func (s *ToneSource) samplesIn(seg Segment) int {
	return int(seg.Duration * time.Duration(s.sampleRate) / time.Second)
}
