package services

import (
	"context"
	"errors"
	"time"

	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"github.com/hslarson/Dog-Bark-Detector/internal/observe"
	"github.com/hslarson/Dog-Bark-Detector/internal/thresholds"
	"go.uber.org/zap"
)

// SettingsSource provides remote threshold updates.
// models.ErrNoSettings means there is nothing new.
type SettingsSource interface {
	Fetch(ctx context.Context) (models.ThresholdsUpdate, error)
}

// SynchronizerConfig holds configuration for the settings synchronizer
type SynchronizerConfig struct {
	Interval       time.Duration
	RequestTimeout time.Duration
}

// Synchronizer polls a settings source and installs valid updates into the
// threshold store. A fetch runs on the first tick with a working link and
// then once per interval.
type Synchronizer struct {
	config SynchronizerConfig
	source SettingsSource
	store  *thresholds.Store
	link   Link
	logger *zap.Logger
	spawn  Spawner

	started   bool
	nextCheck time.Time
	flight    *flight[models.ThresholdsUpdate]
}

// NewSynchronizer creates a synchronizer. link may be nil.
func NewSynchronizer(config SynchronizerConfig, source SettingsSource, store *thresholds.Store, link Link, logger *zap.Logger) *Synchronizer {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if link == nil {
		link = AlwaysConnected{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Synchronizer{
		config: config,
		source: source,
		store:  store,
		link:   link,
		logger: logger,
		spawn:  goSpawner,
		flight: newFlight[models.ThresholdsUpdate](),
	}
}

// WithSpawner replaces how fetches are started
func (s *Synchronizer) WithSpawner(spawn Spawner) *Synchronizer {
	s.spawn = spawn
	return s
}

// Tick applies a finished fetch and starts the next one when due
func (s *Synchronizer) Tick(ctx context.Context, now time.Time) {
	if o, done := s.flight.poll(); done {
		s.apply(o.value, o.err)
	}
	if s.flight.active || !s.link.IsConnected() {
		return
	}
	if s.started && now.Before(s.nextCheck) {
		return
	}

	s.started = true
	s.nextCheck = now.Add(s.config.Interval)
	s.flight.launch(s.spawn, func() (models.ThresholdsUpdate, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
		return s.source.Fetch(callCtx)
	})
}

func (s *Synchronizer) apply(update models.ThresholdsUpdate, err error) {
	switch {
	case errors.Is(err, models.ErrNoSettings):
		s.logger.Debug("no new settings")
		return
	case err != nil:
		observe.SettingsFetchFailed.Inc()
		s.logger.Warn("settings fetch failed", zap.Error(err))
		return
	}

	prev, err := s.store.Apply(update)
	if err != nil {
		observe.SettingsRejected.Inc()
		s.logger.Warn("rejected remote settings, keeping current thresholds", zap.Error(err))
		return
	}

	observe.SettingsApplied.Inc()
	s.logger.Info("applied remote settings",
		zap.Any("previous", prev),
		zap.Any("current", s.store.Load()),
		zap.Uint64("version", s.store.Version()))
}
