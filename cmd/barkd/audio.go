package main

import (
	"fmt"
	"time"

	"github.com/hslarson/Dog-Bark-Detector/internal/sampler"
	"github.com/hslarson/Dog-Bark-Detector/internal/sampler/capture"
	"github.com/hslarson/Dog-Bark-Detector/pkg/config"
	"go.uber.org/zap"
)

// demoScript is the synthetic signal: background hum with a bark every
// few seconds, and one out-of-band whistle that must not trigger.
func demoScript(repeats int) []sampler.Segment {
	var script []sampler.Segment
	for i := 0; i < repeats; i++ {
		script = append(script,
			sampler.Segment{Duration: 3 * time.Second, Noise: 60},
			sampler.Segment{Duration: 150 * time.Millisecond, Frequency: 900, Amplitude: 2500, Noise: 60},
			sampler.Segment{Duration: 3 * time.Second, Noise: 60},
			sampler.Segment{Duration: 200 * time.Millisecond, Frequency: 3200, Amplitude: 2500, Noise: 60},
		)
	}
	return script
}

func openAudio(cfg *config.Config, logger *zap.Logger) (sampler.Source, func(), error) {
	switch cfg.AudioSource {
	case config.AudioWAV:
		src, err := sampler.OpenWAV(cfg.WAVPath)
		if err != nil {
			return nil, nil, err
		}
		if src.SampleRate() != cfg.SamplingFrequency {
			src.Close()
			return nil, nil, fmt.Errorf("wav %q is sampled at %d Hz, SAMPLING_FREQUENCY is %d Hz",
				cfg.WAVPath, src.SampleRate(), cfg.SamplingFrequency)
		}
		logger.Info("replaying wav file", zap.String("path", cfg.WAVPath))
		return src, func() { src.Close() }, nil

	case config.AudioSynthetic:
		logger.Info("using synthetic audio")
		return sampler.NewToneSource(cfg.SamplingFrequency, time.Now().UnixNano(), demoScript(20)...), func() {}, nil

	default:
		src, err := capture.Open(capture.Config{
			SampleRate: cfg.SamplingFrequency,
			DeviceName: cfg.AudioDevice,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("capturing from microphone",
			zap.String("device", cfg.AudioDevice),
			zap.Int("mic_pin", cfg.MicPin))
		return src, src.Close, nil
	}
}
