// Package sampler acquires fixed-size microphone windows at a strict cadence.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"github.com/hslarson/Dog-Bark-Detector/internal/observe"
	"go.uber.org/zap"
)

// ErrInvalidWindow marks an acquisition that must be discarded and resampled.
// Sources wrap it; the sampler never forwards such a window.
var ErrInvalidWindow = errors.New("invalid sample window")

// Source fills buf with consecutive samples. It returns io.EOF when no
// samples remain and an error wrapping ErrInvalidWindow for bad data.
type Source interface {
	Read(buf []int16) error
}

// Config holds sampler configuration
type Config struct {
	SampleRate  int // Hz
	Samples     int // Window length N
	FullScale   int // Largest valid absolute sample value
	MaxDiscards int // Consecutive discards before warning
}

// Sampler produces SampleWindows every N / SampleRate seconds
type Sampler struct {
	config Config
	source Source
	clock  Clock
	logger *zap.Logger

	period   time.Duration
	deadline time.Time

	consecutiveDiscards int
	discarded           uint64
}

// New creates a sampler reading from source
func New(config Config, source Source, clock Clock, logger *zap.Logger) (*Sampler, error) {
	if config.SampleRate <= 0 || config.Samples <= 0 {
		return nil, fmt.Errorf("sampler: sample rate %d and window size %d must be positive", config.SampleRate, config.Samples)
	}
	if config.FullScale <= 0 {
		config.FullScale = 32767
	}
	if config.MaxDiscards <= 0 {
		config.MaxDiscards = 10
	}
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sampler{
		config: config,
		source: source,
		clock:  clock,
		logger: logger,
		period: time.Duration(config.Samples) * time.Second / time.Duration(config.SampleRate),
	}, nil
}

// Period returns the window cadence
func (s *Sampler) Period() time.Duration {
	return s.period
}

// Discarded returns how many windows were thrown away since start
func (s *Sampler) Discarded() uint64 {
	return s.discarded
}

// Reset restarts the cadence from the current time
func (s *Sampler) Reset() {
	s.deadline = time.Time{}
	s.consecutiveDiscards = 0
}

// Next blocks until the next window tick and returns a freshly allocated
// window owned by the caller. Invalid acquisitions are discarded and
// resampled on the following tick.
func (s *Sampler) Next(ctx context.Context) (models.SampleWindow, error) {
	for {
		if s.deadline.IsZero() {
			s.deadline = s.clock.Now()
		}
		if wait := s.deadline.Sub(s.clock.Now()); wait > 0 {
			select {
			case <-ctx.Done():
				return models.SampleWindow{}, ctx.Err()
			case <-s.clock.After(wait):
			}
		} else if err := ctx.Err(); err != nil {
			return models.SampleWindow{}, err
		}

		start := s.deadline
		s.deadline = s.deadline.Add(s.period)

		buf := make([]int16, s.config.Samples)
		err := s.source.Read(buf)
		if err == nil {
			err = s.validate(buf)
		}
		if err != nil {
			if errors.Is(err, ErrInvalidWindow) {
				s.discard(err)
				continue
			}
			return models.SampleWindow{}, err
		}

		s.consecutiveDiscards = 0
		return models.SampleWindow{
			Start:      start,
			SampleRate: s.config.SampleRate,
			Samples:    buf,
		}, nil
	}
}

// validate rejects samples outside the ADC range and a window pinned to a rail.
// A full scale of 32767 accepts the whole int16 range.
func (s *Sampler) validate(buf []int16) error {
	limit := s.config.FullScale
	pinned := true
	for i, v := range buf {
		a := int(v)
		if a < 0 {
			a = -a
		}
		// Clipping to the negative int16 rail is loud audio, not bad data
		if a > math.MaxInt16 {
			a = math.MaxInt16
		}
		if a > limit {
			return fmt.Errorf("%w: sample %d value %d exceeds full scale %d", ErrInvalidWindow, i, v, limit)
		}
		if a != limit {
			pinned = false
		}
	}
	if pinned {
		return fmt.Errorf("%w: every sample is pinned at full scale", ErrInvalidWindow)
	}
	return nil
}

func (s *Sampler) discard(err error) {
	s.discarded++
	s.consecutiveDiscards++
	observe.WindowsDiscarded.Inc()

	if s.consecutiveDiscards == s.config.MaxDiscards {
		s.logger.Warn("microphone keeps returning invalid windows",
			zap.Int("consecutive", s.consecutiveDiscards),
			zap.Error(err))
		return
	}
	s.logger.Debug("discarded sample window", zap.Error(err))
}
