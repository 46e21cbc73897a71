package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hslarson/Dog-Bark-Detector/internal/actuator"
	"github.com/hslarson/Dog-Bark-Detector/internal/classifier"
	"github.com/hslarson/Dog-Bark-Detector/internal/dsp"
	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"github.com/hslarson/Dog-Bark-Detector/internal/observe"
	"github.com/hslarson/Dog-Bark-Detector/internal/sampler"
	"github.com/hslarson/Dog-Bark-Detector/internal/thresholds"
	"go.uber.org/zap"
)

// WindowSource yields sample windows on the sampling cadence
type WindowSource interface {
	Next(ctx context.Context) (models.SampleWindow, error)
}

// Pipeline is the central driver: one goroutine takes each window through
// analysis and classification, reacts to confirmed barks, and gives the
// buzzer, reporter and synchronizer their tick.
type Pipeline struct {
	source       WindowSource
	analyzer     *dsp.Analyzer
	classifier   *classifier.Classifier
	buzzer       *actuator.Buzzer
	reporter     *Reporter
	synchronizer *Synchronizer
	thresholds   *thresholds.Store
	clock        sampler.Clock
	logger       *zap.Logger
}

// PipelineDeps groups the pipeline's collaborators. Reporter and
// Synchronizer are optional.
type PipelineDeps struct {
	Source       WindowSource
	Analyzer     *dsp.Analyzer
	Classifier   *classifier.Classifier
	Buzzer       *actuator.Buzzer
	Reporter     *Reporter
	Synchronizer *Synchronizer
	Thresholds   *thresholds.Store
	Clock        sampler.Clock
}

// NewPipeline wires the pipeline
func NewPipeline(deps PipelineDeps, logger *zap.Logger) (*Pipeline, error) {
	if deps.Source == nil || deps.Analyzer == nil || deps.Classifier == nil || deps.Buzzer == nil || deps.Thresholds == nil {
		return nil, errors.New("pipeline requires a source, analyzer, classifier, buzzer and threshold store")
	}
	if deps.Clock == nil {
		deps.Clock = sampler.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		source:       deps.Source,
		analyzer:     deps.Analyzer,
		classifier:   deps.Classifier,
		buzzer:       deps.Buzzer,
		reporter:     deps.Reporter,
		synchronizer: deps.Synchronizer,
		thresholds:   deps.Thresholds,
		clock:        deps.Clock,
		logger:       logger,
	}, nil
}

// Step processes one window. It returns the bark event the window
// confirmed, if any.
func (p *Pipeline) Step(ctx context.Context) (*models.BarkEvent, error) {
	w, err := p.source.Next(ctx)
	if err != nil {
		return nil, err
	}

	spectrum, err := p.analyzer.Analyze(w)
	if err != nil {
		return nil, fmt.Errorf("analyze window: %w", err)
	}
	observe.WindowsProcessed.Inc()

	event := p.classifier.Process(w, spectrum)
	now := p.clock.Now()

	if event != nil {
		if err := p.buzzer.Trigger(now, p.thresholds.Load()); err != nil {
			p.logger.Warn("buzzer trigger failed", zap.Error(err))
		}
		if p.reporter != nil {
			p.reporter.Enqueue(ctx, *event)
		}
	}

	if err := p.buzzer.Tick(now); err != nil {
		p.logger.Warn("buzzer tick failed", zap.Error(err))
	}
	if p.reporter != nil {
		p.reporter.Tick(ctx, now)
	}
	if p.synchronizer != nil {
		p.synchronizer.Tick(ctx, now)
	}

	return event, nil
}

// Run steps until the context is cancelled or the source runs out.
// The buzzer is silenced on the way out.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started")
	defer func() {
		if err := p.buzzer.Stop(); err != nil {
			p.logger.Warn("failed to silence buzzer on shutdown", zap.Error(err))
		}
	}()

	for {
		_, err := p.Step(ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			p.logger.Info("audio source exhausted, pipeline stopping")
			return nil
		case ctx.Err() != nil:
			p.logger.Info("pipeline shutting down")
			return nil
		default:
			return err
		}
	}
}
