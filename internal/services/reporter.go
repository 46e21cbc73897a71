package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"github.com/hslarson/Dog-Bark-Detector/internal/observe"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ReporterConfig holds configuration for the bark reporter
type ReporterConfig struct {
	DeviceID       string
	SendInterval   time.Duration // Minimum time between the starts of two batches
	RetryAttempts  int           // Total attempts per batch before it is dropped
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffJitter  float64 // Randomization factor, 0 for none
	RequestTimeout time.Duration
	MaxEvents      int // Event details kept per batch; the count is never capped
}

// DefaultReporterConfig returns default configuration
func DefaultReporterConfig() ReporterConfig {
	return ReporterConfig{
		SendInterval:   300 * time.Second,
		RetryAttempts:  50,
		BackoffInitial: 2 * time.Second,
		BackoffMax:     60 * time.Second,
		BackoffJitter:  0.2,
		RequestTimeout: 10 * time.Second,
		MaxEvents:      100,
	}
}

// Reporter accumulates confirmed barks and uplinks them in rate-limited
// batches. It is driven by Tick from the pipeline loop and never blocks it:
// transmissions run through the spawner and their outcome is collected on
// a later tick.
type Reporter struct {
	config   ReporterConfig
	uplink   Uplink
	notifier Notifier
	link     Link
	logger   *zap.Logger
	spawn    Spawner

	notifySem *semaphore.Weighted

	started   bool
	nextFlush time.Time

	pending      []models.BarkEvent
	pendingCount int

	current  *models.ReportBatch // Batch being sent or waiting for a retry
	attempts int
	retryAt  time.Time
	backoff  *backoff.ExponentialBackOff
	flight   *flight[struct{}]
}

// NewReporter creates a reporter. notifier and link may be nil.
func NewReporter(config ReporterConfig, uplink Uplink, notifier Notifier, link Link, logger *zap.Logger) *Reporter {
	if config.RetryAttempts < 1 {
		config.RetryAttempts = 1
	}
	if config.MaxEvents <= 0 {
		config.MaxEvents = 100
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

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.BackoffInitial
	b.MaxInterval = config.BackoffMax
	b.RandomizationFactor = config.BackoffJitter
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()

	return &Reporter{
		config:    config,
		uplink:    uplink,
		notifier:  notifier,
		link:      link,
		logger:    logger,
		spawn:     goSpawner,
		notifySem: semaphore.NewWeighted(1),
		backoff:   b,
		flight:    newFlight[struct{}](),
	}
}

// WithSpawner replaces how network calls are started
func (r *Reporter) WithSpawner(spawn Spawner) *Reporter {
	r.spawn = spawn
	return r
}

// Pending returns the number of barks not yet delivered
func (r *Reporter) Pending() int {
	return r.pendingCount
}

// Enqueue records a confirmed bark and fires its notification
func (r *Reporter) Enqueue(ctx context.Context, event models.BarkEvent) {
	r.pendingCount++
	if len(r.pending) < r.config.MaxEvents {
		r.pending = append(r.pending, event)
	}
	observe.PendingBarks.Set(float64(r.pendingCount))

	r.notify(ctx, event)
}

// Tick collects finished transmissions and starts the next one when due
func (r *Reporter) Tick(ctx context.Context, now time.Time) {
	if !r.started {
		r.started = true
		r.nextFlush = now.Add(r.config.SendInterval)
	}

	if o, done := r.flight.poll(); done {
		r.finish(now, o.err)
	}
	if r.flight.active {
		return
	}
	if !r.link.IsConnected() {
		return
	}

	switch {
	case r.current != nil:
		if !now.Before(r.retryAt) {
			r.send(ctx)
		}
	case r.pendingCount > 0 && !now.Before(r.nextFlush):
		r.current = &models.ReportBatch{
			ID:        uuid.NewString(),
			DeviceID:  r.config.DeviceID,
			CreatedAt: now,
			Count:     r.pendingCount,
			Events:    append([]models.BarkEvent(nil), r.pending...),
		}
		r.attempts = 0
		r.backoff.Reset()
		r.nextFlush = now.Add(r.config.SendInterval)
		r.send(ctx)
	}
}

func (r *Reporter) send(ctx context.Context) {
	batch := *r.current
	r.attempts++

	r.flight.launch(r.spawn, func() (struct{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.config.RequestTimeout)
		defer cancel()
		return struct{}{}, r.uplink.SendBatch(callCtx, batch)
	})
}

func (r *Reporter) finish(now time.Time, err error) {
	batch := r.current

	if err == nil {
		r.settle(batch)
		observe.ReportsSent.Inc()
		r.logger.Info("report batch sent",
			zap.String("batch_id", batch.ID),
			zap.Int("count", batch.Count),
			zap.Int("attempts", r.attempts),
			zap.String("uplink", r.uplink.Name()))
		return
	}

	observe.ReportAttemptsFailed.Inc()
	if r.attempts >= r.config.RetryAttempts {
		r.settle(batch)
		observe.ReportsDropped.Inc()
		r.logger.Error("dropped report batch",
			zap.String("batch_id", batch.ID),
			zap.Int("count", batch.Count),
			zap.Int("attempts", r.attempts),
			zap.Error(err))
		return
	}

	wait := r.backoff.NextBackOff()
	r.retryAt = now.Add(wait)
	r.logger.Warn("report batch failed, will retry",
		zap.String("batch_id", batch.ID),
		zap.Int("attempt", r.attempts),
		zap.Duration("retry_in", wait),
		zap.Error(err))
}

// settle removes a finished batch from the pending set. Barks that arrived
// while it was in flight stay pending for the next batch.
func (r *Reporter) settle(batch *models.ReportBatch) {
	r.pendingCount -= batch.Count
	if r.pendingCount < 0 {
		r.pendingCount = 0
	}
	n := len(batch.Events)
	if n > len(r.pending) {
		n = len(r.pending)
	}
	r.pending = append(r.pending[:0:0], r.pending[n:]...)
	r.current = nil
	r.attempts = 0
	observe.PendingBarks.Set(float64(r.pendingCount))
}

// notify sends the push notification. At most one is in flight; barks
// that arrive meanwhile are counted but not notified.
func (r *Reporter) notify(ctx context.Context, event models.BarkEvent) {
	if r.notifier == nil {
		return
	}
	if !r.link.IsConnected() {
		observe.NotificationsFailed.WithLabelValues("offline").Inc()
		return
	}
	if !r.notifySem.TryAcquire(1) {
		observe.NotificationsFailed.WithLabelValues("busy").Inc()
		r.logger.Debug("notification skipped, previous one still in flight")
		return
	}

	r.spawn(func() {
		defer r.notifySem.Release(1)

		callCtx, cancel := context.WithTimeout(ctx, r.config.RequestTimeout)
		defer cancel()

		if err := r.notifier.Notify(callCtx, event); err != nil {
			observe.NotificationsFailed.WithLabelValues("error").Inc()
			r.logger.Warn("notification failed", zap.Error(err))
			return
		}
		observe.NotificationsSent.Inc()
	})
}
