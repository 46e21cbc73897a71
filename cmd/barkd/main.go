package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hslarson/Dog-Bark-Detector/internal/actuator"
	"github.com/hslarson/Dog-Bark-Detector/internal/classifier"
	"github.com/hslarson/Dog-Bark-Detector/internal/dsp"
	"github.com/hslarson/Dog-Bark-Detector/internal/logging"
	"github.com/hslarson/Dog-Bark-Detector/internal/observe"
	"github.com/hslarson/Dog-Bark-Detector/internal/sampler"
	"github.com/hslarson/Dog-Bark-Detector/internal/services"
	"github.com/hslarson/Dog-Bark-Detector/internal/thresholds"
	"github.com/hslarson/Dog-Bark-Detector/pkg/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(barkd())
}

// barkd runs the daemon and returns the exit code once every deferred
// cleanup has run
func barkd() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "barkd: %v\n", err)
		return 1
	}

	opts := []logging.Option{logging.WithLevel(cfg.LogLevel), logging.WithDeviceID(cfg.DeviceID)}
	if cfg.Debug {
		opts = append(opts, logging.WithDevelopment())
	}
	logger, err := logging.New(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "barkd: failed to build logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("barkd stopped with error", zap.Error(err))
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting barkd",
		zap.String("profile", cfg.Profile),
		zap.String("audio_source", cfg.AudioSource),
		zap.String("settings_source", cfg.SettingsSource),
		zap.Int("sampling_frequency", cfg.SamplingFrequency),
		zap.Int("samples", cfg.Samples))

	store, err := thresholds.NewStore(cfg.Thresholds())
	if err != nil {
		return fmt.Errorf("initial thresholds: %w", err)
	}

	source, closeSource, err := openAudio(cfg, logger.Named("audio"))
	if err != nil {
		return err
	}
	defer closeSource()

	smp, err := sampler.New(sampler.Config{
		SampleRate: cfg.SamplingFrequency,
		Samples:    cfg.Samples,
		FullScale:  cfg.SampleFullScale,
	}, source, sampler.RealClock{}, logger.Named("sampler"))
	if err != nil {
		return err
	}

	analyzer, err := dsp.NewAnalyzer(float64(cfg.SamplingFrequency), cfg.Samples)
	if err != nil {
		return err
	}

	cls := classifier.New(classifier.Config{
		HysteresisMargin: cfg.HysteresisMargin,
		GapTolerance:     cfg.GapTolerance,
		Cooldown:         cfg.Cooldown,
		EnvelopeAttack:   cfg.EnvelopeAttack,
		EnvelopeRelease:  cfg.EnvelopeRelease,
	}, store, logger.Named("classifier"))

	buzzer, closePin, err := openBuzzer(cfg, logger.Named("buzzer"))
	if err != nil {
		return err
	}
	defer closePin()

	links, err := openNetwork(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer links.Close()

	var reporter *services.Reporter
	if uplink := links.uplink(); uplink != nil {
		reporter = services.NewReporter(services.ReporterConfig{
			DeviceID:       cfg.DeviceID,
			SendInterval:   cfg.BarkSendInterval,
			RetryAttempts:  cfg.RetryAttempts,
			BackoffInitial: cfg.RetryBackoffInitial,
			BackoffMax:     cfg.RetryBackoffMax,
			BackoffJitter:  services.DefaultReporterConfig().BackoffJitter,
			RequestTimeout: cfg.RequestTimeout,
			MaxEvents:      cfg.MaxEventsPerBatch,
		}, uplink, links.notifier(), links.link(), logger.Named("reporter"))
		logger.Info("reporting enabled", zap.String("uplink", uplink.Name()))
	} else {
		logger.Warn("no uplink configured, barks are not reported")
	}

	var synchronizer *services.Synchronizer
	if src := links.settingsSource(cfg); src != nil {
		synchronizer = services.NewSynchronizer(services.SynchronizerConfig{
			Interval:       cfg.SettingsCheckInterval,
			RequestTimeout: cfg.RequestTimeout,
		}, src, store, links.link(), logger.Named("settings"))
	}

	pipeline, err := services.NewPipeline(services.PipelineDeps{
		Source:       smp,
		Analyzer:     analyzer,
		Classifier:   cls,
		Buzzer:       buzzer,
		Reporter:     reporter,
		Synchronizer: synchronizer,
		Thresholds:   store,
	}, logger.Named("pipeline"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	// A finished audio source ends the whole process
	g.Go(func() error {
		defer cancel()
		return pipeline.Run(gctx)
	})
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observe.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func openBuzzer(cfg *config.Config, logger *zap.Logger) (*actuator.Buzzer, func(), error) {
	buzzerConfig := actuator.Config{RetriggerCooldown: cfg.BuzzerCooldown}

	if cfg.BuzzerSerialPort == "" {
		logger.Info("no buzzer serial port, deterrent commands are logged only",
			zap.Int("buzzer_pin", cfg.BuzzerPin),
			zap.Int("indicator_pin", cfg.IndicatorPin))
		pin := actuator.NewLogPin(logger)
		return actuator.NewBuzzer(pin, pin, buzzerConfig, logger), func() {}, nil
	}

	pin, err := actuator.OpenSerial(cfg.BuzzerSerialPort, cfg.BuzzerBaud)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("buzzer on serial port", zap.String("port", cfg.BuzzerSerialPort), zap.Int("baud", cfg.BuzzerBaud))
	closeFn := func() {
		if err := pin.Close(); err != nil {
			logger.Warn("failed to close buzzer port", zap.Error(err))
		}
	}
	return actuator.NewBuzzer(pin, pin, buzzerConfig, logger), closeFn, nil
}
