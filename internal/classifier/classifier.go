// Package classifier decides, window by window, whether the microphone is
// hearing a bark.
//
// The decision is an explicit state machine:
//
//	idle -> candidate -> confirmed -> cooling_down -> idle
//
// A candidate starts when the volume envelope reaches the bark threshold
// and ends when the envelope falls below the noise floor or stays under
// the bark threshold for more than GapTolerance windows. The candidate is
// confirmed only if every loud window had its dominant frequency inside
// the band and the loud stretch lasted between the minimum and maximum
// duration.
package classifier

import (
	"sync"
	"time"

	"github.com/hslarson/Dog-Bark-Detector/internal/aggregator"
	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"github.com/hslarson/Dog-Bark-Detector/internal/observe"
	"go.uber.org/zap"
)

// Rejection reasons
const (
	RejectTooShort  = "too_short"
	RejectTooLong   = "too_long"
	RejectOutOfBand = "out_of_band"
)

// ThresholdSource provides the current threshold set
type ThresholdSource interface {
	Load() models.Thresholds
}

// Config holds the parameters that are fixed for the life of the classifier
type Config struct {
	HysteresisMargin float64       // Idle re-arms once the envelope is below NoiseFloor * margin
	GapTolerance     int           // Quiet windows tolerated inside a candidate
	Cooldown         time.Duration // Dead time after a confirmed bark
	EnvelopeAttack   float64
	EnvelopeRelease  float64
}

// DefaultConfig returns the tuning used on the device
func DefaultConfig() Config {
	return Config{
		HysteresisMargin: 1.2,
		GapTolerance:     1,
		Cooldown:         500 * time.Millisecond,
		EnvelopeAttack:   1.0,
		EnvelopeRelease:  0.7,
	}
}

// Transition describes one state change
type Transition struct {
	From   models.ClassifierState
	To     models.ClassifierState
	At     time.Time
	Reason string // Set when a candidate is rejected
}

// Classifier is not safe for concurrent Process calls. Snapshot may be
// called from any goroutine.
type Classifier struct {
	config     Config
	thresholds ThresholdSource
	envelope   *aggregator.Envelope
	logger     *zap.Logger

	onTransition func(Transition)

	mu             sync.RWMutex
	state          models.ClassifierState
	armed          bool
	candidateStart time.Time
	lastLoudEnd    time.Time
	gaps           int
	inBandEnergy   float64
	peakVolume     float64
	peakFrequency  float64
	cooldownUntil  time.Time
	confirmed      int

	pending []Transition
}

// New creates a classifier in the idle state
func New(config Config, thresholds ThresholdSource, logger *zap.Logger) *Classifier {
	if config.HysteresisMargin <= 0 {
		config.HysteresisMargin = 1
	}
	if config.GapTolerance < 0 {
		config.GapTolerance = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Classifier{
		config:     config,
		thresholds: thresholds,
		envelope:   aggregator.NewEnvelope(config.EnvelopeAttack, config.EnvelopeRelease),
		logger:     logger,
		state:      models.StateIdle,
		armed:      true,
	}
}

// OnTransition registers a hook invoked after every state change
func (c *Classifier) OnTransition(fn func(Transition)) {
	c.onTransition = fn
}

// Snapshot returns a copy of the current state
func (c *Classifier) Snapshot() models.ClassifierSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := models.ClassifierSnapshot{
		State:         c.state,
		Envelope:      c.envelope.Value(),
		Armed:         c.armed,
		Gaps:          c.gaps,
		CooldownUntil: c.cooldownUntil,
		Confirmed:     c.confirmed,
	}
	if c.state == models.StateCandidate {
		snap.CandidateStart = c.candidateStart
		snap.InBandEnergy = c.inBandEnergy
	}
	return snap
}

// Process classifies one analyzed window. It returns the bark event when
// this window confirms a bark, nil otherwise. One threshold snapshot is
// used for the whole window.
//
// The envelope decides when a sound may start and when the room is quiet
// again. The window's own peak decides whether the window belongs to the bark.
func (c *Classifier) Process(w models.SampleWindow, spectrum models.Spectrum) *models.BarkEvent {
	th := c.thresholds.Load()
	level := aggregator.Measure(w.Samples)

	c.mu.Lock()
	env := c.envelope.Update(level.Peak)
	event := c.step(w, spectrum, reading{peak: level.Peak, envelope: env}, th)
	transitions := c.pending
	c.pending = nil
	c.mu.Unlock()

	observe.VolumeEnvelope.Set(env)
	if c.onTransition != nil {
		for _, t := range transitions {
			c.onTransition(t)
		}
	}
	return event
}

// reading is the loudness of one window
type reading struct {
	peak     float64 // This window alone
	envelope float64 // Smoothed across windows
}

func (c *Classifier) step(w models.SampleWindow, spectrum models.Spectrum, r reading, th models.Thresholds) *models.BarkEvent {
	switch c.state {
	case models.StateCoolingDown:
		if w.Start.Before(c.cooldownUntil) {
			return nil
		}
		c.armed = false
		c.transition(models.StateIdle, w.Start, "")
		return c.idle(w, spectrum, r, th)

	case models.StateCandidate:
		return c.candidate(w, spectrum, r, th)

	default:
		return c.idle(w, spectrum, r, th)
	}
}

func (c *Classifier) idle(w models.SampleWindow, spectrum models.Spectrum, r reading, th models.Thresholds) *models.BarkEvent {
	if !c.armed {
		if r.envelope < th.NoiseFloor*c.config.HysteresisMargin {
			c.armed = true
		}
		return nil
	}
	if r.envelope < th.BarkThreshold || r.peak < th.BarkThreshold {
		return nil
	}

	c.candidateStart = w.Start
	c.lastLoudEnd = w.Start
	c.gaps = 0
	c.inBandEnergy = 0
	c.peakVolume = 0
	c.peakFrequency = 0
	c.transition(models.StateCandidate, w.Start, "")

	c.loud(w, spectrum, r, th)
	return nil
}

func (c *Classifier) candidate(w models.SampleWindow, spectrum models.Spectrum, r reading, th models.Thresholds) *models.BarkEvent {
	if r.peak >= th.BarkThreshold {
		c.loud(w, spectrum, r, th)
		return nil
	}

	c.gaps++
	if r.envelope >= th.NoiseFloor && c.gaps <= c.config.GapTolerance {
		return nil
	}

	// The sound is over; judge the loud stretch.
	duration := c.lastLoudEnd.Sub(c.candidateStart)
	switch {
	case duration < th.DurationMin:
		c.reject(RejectTooShort, w.Start, duration)
		return nil
	case duration > th.DurationMax:
		c.reject(RejectTooLong, w.Start, duration)
		return nil
	}

	return c.confirm(w, duration)
}

// loud handles a window whose own peak reaches the bark threshold inside a candidate
func (c *Classifier) loud(w models.SampleWindow, spectrum models.Spectrum, r reading, th models.Thresholds) {
	bin, _, ok := spectrum.Peak(0, spectrum.Frequency(len(spectrum.Magnitudes)))
	freq := spectrum.Frequency(bin)
	if !ok || freq < th.FreqMin || freq > th.FreqMax {
		c.logger.Debug("dominant frequency outside band",
			zap.Float64("frequency_hz", freq),
			zap.Float64("freq_min", th.FreqMin),
			zap.Float64("freq_max", th.FreqMax))
		c.reject(RejectOutOfBand, w.Start, w.End().Sub(c.candidateStart))
		return
	}

	c.gaps = 0
	c.lastLoudEnd = w.End()
	c.inBandEnergy += spectrum.BandEnergy(th.FreqMin, th.FreqMax)
	if r.peak > c.peakVolume {
		c.peakVolume = r.peak
		c.peakFrequency = freq
	}

	if elapsed := c.lastLoudEnd.Sub(c.candidateStart); elapsed > th.DurationMax {
		c.reject(RejectTooLong, w.Start, elapsed)
	}
}

func (c *Classifier) confirm(w models.SampleWindow, duration time.Duration) *models.BarkEvent {
	event := &models.BarkEvent{
		Timestamp:         c.candidateStart,
		PeakVolume:        c.peakVolume,
		DominantFrequency: c.peakFrequency,
		Duration:          duration,
	}

	c.confirmed++
	c.transition(models.StateConfirmed, w.Start, "")
	c.cooldownUntil = w.Start.Add(c.config.Cooldown)
	c.transition(models.StateCoolingDown, w.Start, "")

	observe.BarkEvents.Inc()
	c.logger.Info("bark confirmed",
		zap.Time("started_at", event.Timestamp),
		zap.Duration("duration", duration),
		zap.Float64("peak_volume", event.PeakVolume),
		zap.Float64("dominant_frequency_hz", event.DominantFrequency))

	return event
}

// reject abandons the candidate. Idle stays disarmed until the room is quiet.
func (c *Classifier) reject(reason string, at time.Time, duration time.Duration) {
	c.armed = false
	c.transition(models.StateIdle, at, reason)

	observe.ClassifierRejections.WithLabelValues(reason).Inc()
	c.logger.Debug("candidate rejected",
		zap.String("reason", reason),
		zap.Duration("duration", duration))
}

func (c *Classifier) transition(to models.ClassifierState, at time.Time, reason string) {
	from := c.state
	c.state = to
	if to != models.StateCandidate {
		c.gaps = 0
	}
	c.pending = append(c.pending, Transition{From: from, To: to, At: at, Reason: reason})
}
