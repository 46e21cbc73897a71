// Package actuator drives the buzzer deterrent and the status indicator.
package actuator

import (
	"fmt"
	"sync"
	"time"

	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"github.com/hslarson/Dog-Bark-Detector/internal/observe"
	"go.uber.org/zap"
)

// Pin is the buzzer output
type Pin interface {
	Tone(hz float64) error
	Silence() error
}

// Indicator is an optional status light that is on while the buzzer sounds
type Indicator interface {
	Set(on bool) error
}

// Config holds buzzer timing that is not part of the remote thresholds
type Config struct {
	RetriggerCooldown time.Duration // Quiet time enforced after the buzzer stops
}

// Buzzer sounds the deterrent for the lingering time after a bark.
// A trigger while sounding restarts the countdown from that trigger;
// it never adds to the remaining time.
type Buzzer struct {
	pin       Pin
	indicator Indicator
	config    Config
	logger    *zap.Logger

	mu         sync.Mutex
	active     bool
	frequency  float64
	until      time.Time
	quietUntil time.Time
}

// NewBuzzer creates a silent buzzer. indicator may be nil.
func NewBuzzer(pin Pin, indicator Indicator, config Config, logger *zap.Logger) *Buzzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Buzzer{
		pin:       pin,
		indicator: indicator,
		config:    config,
		logger:    logger,
	}
}

// Trigger starts the buzzer, or restarts the countdown if it is already on
func (b *Buzzer) Trigger(now time.Time, th models.Thresholds) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active && now.Before(b.quietUntil) {
		b.logger.Debug("buzzer trigger suppressed", zap.Time("quiet_until", b.quietUntil))
		return nil
	}

	if !b.active || b.frequency != th.BuzzerFrequency {
		if err := b.pin.Tone(th.BuzzerFrequency); err != nil {
			observe.BuzzerErrors.Inc()
			return fmt.Errorf("failed to start buzzer: %w", err)
		}
		b.setIndicator(true)
	}

	restart := b.active
	b.active = true
	b.frequency = th.BuzzerFrequency
	b.until = now.Add(th.BuzzerLinger)

	observe.BuzzerActivations.Inc()
	observe.BuzzerActive.Set(1)
	b.logger.Info("buzzer on",
		zap.Float64("frequency_hz", b.frequency),
		zap.Time("until", b.until),
		zap.Bool("restart", restart))

	return nil
}

// Tick silences the buzzer once the countdown has expired
func (b *Buzzer) Tick(now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active || now.Before(b.until) {
		return nil
	}
	if err := b.silence(); err != nil {
		return err
	}
	b.quietUntil = now.Add(b.config.RetriggerCooldown)
	return nil
}

// Stop silences the buzzer immediately
func (b *Buzzer) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		return nil
	}
	return b.silence()
}

// Active reports whether the buzzer is sounding
func (b *Buzzer) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Until returns when the current activation ends
func (b *Buzzer) Until() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.until
}

func (b *Buzzer) silence() error {
	if err := b.pin.Silence(); err != nil {
		observe.BuzzerErrors.Inc()
		return fmt.Errorf("failed to silence buzzer: %w", err)
	}
	b.active = false
	b.frequency = 0
	b.setIndicator(false)

	observe.BuzzerActive.Set(0)
	b.logger.Info("buzzer off")
	return nil
}

func (b *Buzzer) setIndicator(on bool) {
	if b.indicator == nil {
		return
	}
	if err := b.indicator.Set(on); err != nil {
		b.logger.Warn("failed to set indicator", zap.Bool("on", on), zap.Error(err))
	}
}
